package models

import "time"

// ExecutionLogEntry is the durable, append-only record of a run or of a
// single node inside a run. NodeID is empty for workflow-level entries.
// Entries are never mutated after being written.
type ExecutionLogEntry struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"execution_id"`
	WorkflowID  string          `json:"workflow_id"`
	NodeID      string          `json:"node_id,omitempty"`
	Status      ExecutionStatus `json:"status"`
	Input       map[string]any  `json:"input,omitempty"`
	Output      map[string]any  `json:"output,omitempty"`

	// Path and Errors are populated on workflow-level entries only.
	Path   []string         `json:"path,omitempty"`
	Errors []ExecutionError `json:"errors,omitempty"`

	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
	RetryCount int           `json:"retry_count"`
	CreatedAt  time.Time     `json:"created_at"`
}
