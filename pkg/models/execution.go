package models

import (
	"time"
)

// ExecutionStatus is the overall state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusTimedOut  ExecutionStatus = "timed_out"
)

// NodeExecutionStatus is the terminal state of a single node run.
type NodeExecutionStatus string

const (
	NodeStatusCompleted NodeExecutionStatus = "completed"
	NodeStatusFailed    NodeExecutionStatus = "failed"
	NodeStatusTimedOut  NodeExecutionStatus = "timed_out"
	NodeStatusSkipped   NodeExecutionStatus = "skipped"
)

// ExecutionMode selects how node executors behave.
type ExecutionMode string

const (
	ModeFull  ExecutionMode = "full"
	ModeMock  ExecutionMode = "mock"
	ModeDebug ExecutionMode = "debug"
)

// TriggerType records what initiated an execution.
type TriggerType string

const (
	TriggerManual     TriggerType = "manual"
	TriggerCron       TriggerType = "cron"
	TriggerWebhook    TriggerType = "webhook"
	TriggerPlayground TriggerType = "playground"
)

// NodeExecution is the per-node record inside an execution log.
type NodeExecution struct {
	NodeID      string              `json:"node_id"`
	Status      NodeExecutionStatus `json:"status"`
	Input       any                 `json:"input,omitempty"`
	Output      any                 `json:"output,omitempty"`
	Error       string              `json:"error,omitempty"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	DurationMs  int64               `json:"duration_ms,omitempty"`
	RetryCount  int                 `json:"retry_count"`
}

// Execution is one invocation of a workflow.
type Execution struct {
	ID            string           `json:"id"`
	WorkflowID    string           `json:"workflow_id"`
	Status        ExecutionStatus  `json:"status"`
	Mode          ExecutionMode    `json:"mode"`
	TriggerType   TriggerType      `json:"trigger_type"`
	TriggerID     string           `json:"trigger_id,omitempty"`
	Input         any              `json:"input,omitempty"`
	Output        any              `json:"output,omitempty"`
	Error         string           `json:"error,omitempty"`
	NodeLogs      []*NodeExecution `json:"node_logs"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	DurationMs    int64            `json:"duration_ms,omitempty"`
	TotalTokens   int              `json:"total_tokens,omitempty"`
	EstimatedCost float64          `json:"estimated_cost,omitempty"`
	ModelUsed     string           `json:"model_used,omitempty"`
}

// NodeLog returns the log record for a node, if the node was visited.
func (e *Execution) NodeLog(nodeID string) (*NodeExecution, bool) {
	for _, l := range e.NodeLogs {
		if l.NodeID == nodeID {
			return l, true
		}
	}
	return nil, false
}

// Usage is the token/cost accounting for one provider call.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Cost             float64 `json:"cost"`
	Model            string  `json:"model"`
}
