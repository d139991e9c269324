package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/flowline-ai/flowline/internal/infrastructure/storage/dbmodels"
	"github.com/flowline-ai/flowline/pkg/engine"
	"github.com/flowline-ai/flowline/pkg/models"
)

var _ engine.CheckpointStore = (*CheckpointRepository)(nil)

// CheckpointRepository implements engine.CheckpointStore with bun. One row
// per execution, upserted by execution ID; the upsert makes a save atomic
// with respect to concurrent loads.
type CheckpointRepository struct {
	db bun.IDB
}

// NewCheckpointRepository creates a checkpoint repository.
func NewCheckpointRepository(db bun.IDB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Save upserts the checkpoint row for an execution.
func (r *CheckpointRepository) Save(ctx context.Context, executionID, nodeID string, execCtx map[string]any, status models.ExecutionStatus) error {
	model := &dbmodels.CheckpointModel{
		ExecutionID: executionID,
		CurrentNode: nodeID,
		Context:     execCtx,
		Status:      string(status),
		UpdatedAt:   time.Now().UTC(),
	}

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (execution_id) DO UPDATE").
		Set("current_node = EXCLUDED.current_node").
		Set("context = EXCLUDED.context").
		Set("status = EXCLUDED.status").
		Set("error = EXCLUDED.error").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", executionID, err)
	}
	return nil
}

// Load reads the checkpoint row for an execution.
func (r *CheckpointRepository) Load(ctx context.Context, executionID string) (*models.Checkpoint, error) {
	model := new(dbmodels.CheckpointModel)
	err := r.db.NewSelect().Model(model).Where("execution_id = ?", executionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", executionID, err)
	}
	return model.ToDomain(), nil
}

// MarkFailed records the failure on the checkpoint row, keeping it
// resumable.
func (r *CheckpointRepository) MarkFailed(ctx context.Context, executionID, nodeID, errMsg string) error {
	res, err := r.db.NewUpdate().
		Model((*dbmodels.CheckpointModel)(nil)).
		Set("current_node = ?", nodeID).
		Set("status = ?", string(models.ExecutionStatusFailed)).
		Set("error = ?", errMsg).
		Set("updated_at = ?", time.Now().UTC()).
		Where("execution_id = ?", executionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark checkpoint failed %s: %w", executionID, err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return engine.ErrNoCheckpoint
	}
	return nil
}

// Delete removes the checkpoint row.
func (r *CheckpointRepository) Delete(ctx context.Context, executionID string) error {
	_, err := r.db.NewDelete().
		Model((*dbmodels.CheckpointModel)(nil)).
		Where("execution_id = ?", executionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", executionID, err)
	}
	return nil
}
