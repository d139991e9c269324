package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/flowline-ai/flowline/internal/domain/repository"
	"github.com/flowline-ai/flowline/internal/infrastructure/storage/dbmodels"
	"github.com/flowline-ai/flowline/pkg/models"
)

var _ repository.WorkflowRepository = (*WorkflowRepository)(nil)

// WorkflowRepository implements repository.WorkflowRepository with bun.
type WorkflowRepository struct {
	db bun.IDB
}

// NewWorkflowRepository creates a workflow repository.
func NewWorkflowRepository(db bun.IDB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// GetByID loads a workflow.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	model := new(dbmodels.WorkflowModel)
	err := r.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}
	return model.ToDomain(), nil
}

// Save upserts a workflow.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	model := dbmodels.WorkflowFromDomain(workflow)
	model.UpdatedAt = time.Now().UTC()
	if model.CreatedAt.IsZero() {
		model.CreatedAt = model.UpdatedAt
	}

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("description = EXCLUDED.description").
		Set("nodes = EXCLUDED.nodes").
		Set("edges = EXCLUDED.edges").
		Set("status = EXCLUDED.status").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save workflow %s: %w", workflow.ID, err)
	}
	return nil
}

// Delete removes a workflow.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().
		Model((*dbmodels.WorkflowModel)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete workflow %s: %w", id, err)
	}
	return nil
}

// ListByOwner lists workflows belonging to an owner.
func (r *WorkflowRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Workflow, error) {
	var rows []*dbmodels.WorkflowModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workflows for %s: %w", ownerID, err)
	}

	out := make([]*models.Workflow, len(rows))
	for i, row := range rows {
		out[i] = row.ToDomain()
	}
	return out, nil
}
