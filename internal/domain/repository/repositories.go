// Package repository defines the workflow, execution, and schedule
// persistence contracts the execution core depends on. Implementations live in infrastructure/storage;
// tests use the in-memory variants.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/flowline-ai/flowline/pkg/models"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// WorkflowRepository persists workflow definitions.
type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Workflow, error)
}

// ExecutionRepository persists execution records and their node logs.
type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error)
}

// ScheduleRepository persists cron schedules.
type ScheduleRepository interface {
	GetByID(ctx context.Context, id string) (*models.Schedule, error)
	ListEnabled(ctx context.Context) ([]*models.Schedule, error)
	Save(ctx context.Context, schedule *models.Schedule) error
	Delete(ctx context.Context, id string) error
	UpdateLastRun(ctx context.Context, id string, at time.Time) error
	UpdateNextRun(ctx context.Context, id string, at time.Time) error
}
