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

var _ repository.ScheduleRepository = (*ScheduleRepository)(nil)

// ScheduleRepository implements repository.ScheduleRepository with bun.
type ScheduleRepository struct {
	db bun.IDB
}

// NewScheduleRepository creates a schedule repository.
func NewScheduleRepository(db bun.IDB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// GetByID loads a schedule.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	model := new(dbmodels.ScheduleModel)
	err := r.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule %s: %w", id, err)
	}
	return model.ToDomain(), nil
}

// ListEnabled returns all enabled schedules.
func (r *ScheduleRepository) ListEnabled(ctx context.Context) ([]*models.Schedule, error) {
	var rows []*dbmodels.ScheduleModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("enabled = TRUE").
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled schedules: %w", err)
	}

	out := make([]*models.Schedule, len(rows))
	for i, row := range rows {
		out[i] = row.ToDomain()
	}
	return out, nil
}

// Save upserts a schedule.
func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	model := dbmodels.ScheduleFromDomain(schedule)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (id) DO UPDATE").
		Set("expression = EXCLUDED.expression").
		Set("input = EXCLUDED.input").
		Set("timezone = EXCLUDED.timezone").
		Set("enabled = EXCLUDED.enabled").
		Set("last_run_at = EXCLUDED.last_run_at").
		Set("next_run_at = EXCLUDED.next_run_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save schedule %s: %w", schedule.ID, err)
	}
	return nil
}

// Delete removes a schedule.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().
		Model((*dbmodels.ScheduleModel)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete schedule %s: %w", id, err)
	}
	return nil
}

// UpdateLastRun records the last fire time.
func (r *ScheduleRepository) UpdateLastRun(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*dbmodels.ScheduleModel)(nil)).
		Set("last_run_at = ?", at.UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update last run for %s: %w", id, err)
	}
	return nil
}

// UpdateNextRun records the next fire time.
func (r *ScheduleRepository) UpdateNextRun(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*dbmodels.ScheduleModel)(nil)).
		Set("next_run_at = ?", at.UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update next run for %s: %w", id, err)
	}
	return nil
}
