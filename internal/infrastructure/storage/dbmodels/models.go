// Package dbmodels holds the bun table models and their converters to and
// from the domain entities.
package dbmodels

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/flowline-ai/flowline/pkg/models"
)

// WorkflowModel maps the workflows table. Nodes and edges are stored as
// JSONB documents; the graph is always read and written whole.
type WorkflowModel struct {
	bun.BaseModel `bun:"table:workflows,alias:w"`

	ID          string         `bun:"id,pk"`
	Name        string         `bun:"name,notnull"`
	Description string         `bun:"description"`
	Nodes       []*models.Node `bun:"nodes,type:jsonb"`
	Edges       []*models.Edge `bun:"edges,type:jsonb"`
	Status      string         `bun:"status"`
	OwnerID     *string        `bun:"owner_id"`
	CreatedAt   time.Time      `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,notnull,default:current_timestamp"`
}

// ToDomain converts to the domain entity.
func (m *WorkflowModel) ToDomain() *models.Workflow {
	return &models.Workflow{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Nodes:       m.Nodes,
		Edges:       m.Edges,
		Status:      m.Status,
		OwnerID:     m.OwnerID,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// WorkflowFromDomain converts from the domain entity.
func WorkflowFromDomain(w *models.Workflow) *WorkflowModel {
	return &WorkflowModel{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Nodes:       w.Nodes,
		Edges:       w.Edges,
		Status:      w.Status,
		OwnerID:     w.OwnerID,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

// ExecutionModel maps the executions table. Node logs are embedded JSONB;
// they are only ever read with their execution.
type ExecutionModel struct {
	bun.BaseModel `bun:"table:executions,alias:e"`

	ID            string                  `bun:"id,pk"`
	WorkflowID    string                  `bun:"workflow_id,notnull"`
	Status        string                  `bun:"status,notnull"`
	Mode          string                  `bun:"mode,notnull"`
	TriggerType   string                  `bun:"trigger_type,notnull"`
	TriggerID     string                  `bun:"trigger_id"`
	Input         any                     `bun:"input,type:jsonb"`
	Output        any                     `bun:"output,type:jsonb"`
	Error         string                  `bun:"error"`
	NodeLogs      []*models.NodeExecution `bun:"node_logs,type:jsonb"`
	StartedAt     *time.Time              `bun:"started_at"`
	CompletedAt   *time.Time              `bun:"completed_at"`
	DurationMs    int64                   `bun:"duration_ms"`
	TotalTokens   int                     `bun:"total_tokens"`
	EstimatedCost float64                 `bun:"estimated_cost"`
	ModelUsed     string                  `bun:"model_used"`
}

// ToDomain converts to the domain entity.
func (m *ExecutionModel) ToDomain() *models.Execution {
	return &models.Execution{
		ID:            m.ID,
		WorkflowID:    m.WorkflowID,
		Status:        models.ExecutionStatus(m.Status),
		Mode:          models.ExecutionMode(m.Mode),
		TriggerType:   models.TriggerType(m.TriggerType),
		TriggerID:     m.TriggerID,
		Input:         m.Input,
		Output:        m.Output,
		Error:         m.Error,
		NodeLogs:      m.NodeLogs,
		StartedAt:     m.StartedAt,
		CompletedAt:   m.CompletedAt,
		DurationMs:    m.DurationMs,
		TotalTokens:   m.TotalTokens,
		EstimatedCost: m.EstimatedCost,
		ModelUsed:     m.ModelUsed,
	}
}

// ExecutionFromDomain converts from the domain entity.
func ExecutionFromDomain(e *models.Execution) *ExecutionModel {
	return &ExecutionModel{
		ID:            e.ID,
		WorkflowID:    e.WorkflowID,
		Status:        string(e.Status),
		Mode:          string(e.Mode),
		TriggerType:   string(e.TriggerType),
		TriggerID:     e.TriggerID,
		Input:         e.Input,
		Output:        e.Output,
		Error:         e.Error,
		NodeLogs:      e.NodeLogs,
		StartedAt:     e.StartedAt,
		CompletedAt:   e.CompletedAt,
		DurationMs:    e.DurationMs,
		TotalTokens:   e.TotalTokens,
		EstimatedCost: e.EstimatedCost,
		ModelUsed:     e.ModelUsed,
	}
}

// ScheduleModel maps the schedules table.
type ScheduleModel struct {
	bun.BaseModel `bun:"table:schedules,alias:s"`

	ID         string         `bun:"id,pk"`
	WorkflowID string         `bun:"workflow_id,notnull"`
	Type       string         `bun:"type,notnull"`
	Expression string         `bun:"expression,notnull"`
	Input      map[string]any `bun:"input,type:jsonb"`
	Timezone   string         `bun:"timezone,notnull"`
	Enabled    bool           `bun:"enabled,notnull"`
	LastRunAt  *time.Time     `bun:"last_run_at"`
	NextRunAt  *time.Time     `bun:"next_run_at"`
	CreatedAt  time.Time      `bun:"created_at,notnull,default:current_timestamp"`
	OwnerID    *string        `bun:"owner_id"`
}

// ToDomain converts to the domain entity.
func (m *ScheduleModel) ToDomain() *models.Schedule {
	return &models.Schedule{
		ID:         m.ID,
		WorkflowID: m.WorkflowID,
		Type:       m.Type,
		Expression: m.Expression,
		Input:      m.Input,
		Timezone:   m.Timezone,
		Enabled:    m.Enabled,
		LastRunAt:  m.LastRunAt,
		NextRunAt:  m.NextRunAt,
		CreatedAt:  m.CreatedAt,
		OwnerID:    m.OwnerID,
	}
}

// ScheduleFromDomain converts from the domain entity.
func ScheduleFromDomain(s *models.Schedule) *ScheduleModel {
	return &ScheduleModel{
		ID:         s.ID,
		WorkflowID: s.WorkflowID,
		Type:       s.Type,
		Expression: s.Expression,
		Input:      s.Input,
		Timezone:   s.Timezone,
		Enabled:    s.Enabled,
		LastRunAt:  s.LastRunAt,
		NextRunAt:  s.NextRunAt,
		CreatedAt:  s.CreatedAt,
		OwnerID:    s.OwnerID,
	}
}

// CheckpointModel maps the checkpoints table: one row per execution.
type CheckpointModel struct {
	bun.BaseModel `bun:"table:checkpoints,alias:cp"`

	ExecutionID string         `bun:"execution_id,pk"`
	CurrentNode string         `bun:"current_node,notnull"`
	Context     map[string]any `bun:"context,type:jsonb"`
	Status      string         `bun:"status,notnull"`
	Error       string         `bun:"error"`
	UpdatedAt   time.Time      `bun:"updated_at,notnull,default:current_timestamp"`
}

// ToDomain converts to the domain entity.
func (m *CheckpointModel) ToDomain() *models.Checkpoint {
	return &models.Checkpoint{
		ExecutionID: m.ExecutionID,
		CurrentNode: m.CurrentNode,
		Context:     m.Context,
		Status:      models.ExecutionStatus(m.Status),
		Error:       m.Error,
		UpdatedAt:   m.UpdatedAt,
	}
}
