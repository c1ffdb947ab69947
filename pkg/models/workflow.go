package models

import (
	"errors"
	"time"
)

var ErrNoTriggerNode = errors.New("workflow has no trigger node")

// Workflow is a published automation: a trigger node plus the graph of
// action, branch and delay nodes reachable from it. The engine treats
// workflow rows as read-only during a run, except for clearing the
// test-run expiry after the first successful execution.
type Workflow struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"         validate:"required,min=3"`
	WorkspaceID string  `json:"workspace_id" validate:"required"`
	Nodes       []*Node `json:"nodes"`
	Published   bool    `json:"published"`
	Paused      bool    `json:"paused"`

	// TestRunExpiresAt marks a workflow created through the test-run
	// flow; it is cleared after the first successful run.
	TestRunExpiresAt *time.Time `json:"test_run_expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TriggerNode locates the workflow's designated entry node.
func (w *Workflow) TriggerNode() (*Node, error) {
	for _, node := range w.Nodes {
		if node.IsTriggerNode() {
			return node, nil
		}
	}

	return nil, ErrNoTriggerNode
}

// NodeByID looks a node up by id.
func (w *Workflow) NodeByID(id string) (*Node, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// Runnable reports whether the engine may execute this workflow.
func (w *Workflow) Runnable() bool {
	return w.Published && !w.Paused
}
