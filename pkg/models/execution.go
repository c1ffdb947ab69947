package models

import (
	"time"
)

// ExecutionStatus is the terminal-state machine of one workflow run:
// running transitions to exactly one of completed or failed.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// ExecutionError is one recorded node failure inside a run.
type ExecutionError struct {
	NodeID     string    `json:"node_id,omitempty"`
	Message    string    `json:"message"`
	Critical   bool      `json:"critical"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ExecutionContext is the mutable per-run state threaded through node
// dispatch. It is owned exclusively by the run that created it and is
// never shared across concurrent runs.
type ExecutionContext struct {
	ID          string           `json:"id"`
	WorkflowID  string           `json:"workflow_id"`
	StartedAt   time.Time        `json:"started_at"`
	Payload     map[string]any   `json:"payload"`
	NodeOutputs map[string]any   `json:"node_outputs"`
	Path        []string         `json:"path"`
	Errors      []ExecutionError `json:"errors"`
	Status      ExecutionStatus  `json:"status"`
}

// NewExecutionContext seeds a fresh context from the trigger payload.
func NewExecutionContext(executionID, workflowID string, payload map[string]any) *ExecutionContext {
	if payload == nil {
		payload = make(map[string]any)
	}

	return &ExecutionContext{
		ID:          executionID,
		WorkflowID:  workflowID,
		StartedAt:   time.Now().UTC(),
		Payload:     payload,
		NodeOutputs: make(map[string]any),
		Path:        make([]string, 0),
		Errors:      make([]ExecutionError, 0),
		Status:      ExecutionStatusRunning,
	}
}

// RecordOutput stores a node's output and merges it into the shared
// payload so the next node in the branch can see it.
func (ec *ExecutionContext) RecordOutput(nodeID string, output map[string]any) {
	ec.Path = append(ec.Path, nodeID)
	ec.NodeOutputs[nodeID] = output

	for k, v := range output {
		ec.Payload[k] = v
	}
}

// AddError records a node failure without deciding whether the run
// continues; that classification belongs to the runner.
func (ec *ExecutionContext) AddError(nodeID, message string, critical bool) {
	ec.Errors = append(ec.Errors, ExecutionError{
		NodeID:     nodeID,
		Message:    message,
		Critical:   critical,
		OccurredAt: time.Now().UTC(),
	})
}

// Elapsed returns the wall-clock time since the run started.
func (ec *ExecutionContext) Elapsed() time.Duration {
	return time.Since(ec.StartedAt)
}
