package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/flowline-ai/flowline/internal/domain/repository"
	"github.com/flowline-ai/flowline/internal/infrastructure/storage/dbmodels"
	"github.com/flowline-ai/flowline/pkg/models"
)

var _ repository.ExecutionRepository = (*ExecutionRepository)(nil)

// ExecutionRepository implements repository.ExecutionRepository with bun.
type ExecutionRepository struct {
	db bun.IDB
}

// NewExecutionRepository creates an execution repository.
func NewExecutionRepository(db bun.IDB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Save upserts an execution record with its node logs.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	model := dbmodels.ExecutionFromDomain(execution)
	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("output = EXCLUDED.output").
		Set("error = EXCLUDED.error").
		Set("node_logs = EXCLUDED.node_logs").
		Set("started_at = EXCLUDED.started_at").
		Set("completed_at = EXCLUDED.completed_at").
		Set("duration_ms = EXCLUDED.duration_ms").
		Set("total_tokens = EXCLUDED.total_tokens").
		Set("estimated_cost = EXCLUDED.estimated_cost").
		Set("model_used = EXCLUDED.model_used").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save execution %s: %w", execution.ID, err)
	}
	return nil
}

// GetByID loads an execution.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	model := new(dbmodels.ExecutionModel)
	err := r.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", id, err)
	}
	return model.ToDomain(), nil
}

// ListByWorkflow lists the most recent executions of a workflow.
func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []*dbmodels.ExecutionModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("workflow_id = ?", workflowID).
		Order("started_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list executions for %s: %w", workflowID, err)
	}

	out := make([]*models.Execution, len(rows))
	for i, row := range rows {
		out[i] = row.ToDomain()
	}
	return out, nil
}
