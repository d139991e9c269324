package models

import "time"

// Checkpoint is the durable snapshot written before each node begins.
// One row per execution, deleted on successful completion.
type Checkpoint struct {
	ExecutionID string          `json:"execution_id"`
	CurrentNode string          `json:"current_node"`
	Context     map[string]any  `json:"context"`
	Status      ExecutionStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
