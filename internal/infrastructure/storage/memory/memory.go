// Package memory provides in-memory implementations of the repository
// contracts plus a secrets store, for tests and standalone runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowline-ai/flowline/internal/domain/repository"
	"github.com/flowline-ai/flowline/pkg/models"
)

// WorkflowRepository is an in-memory repository.WorkflowRepository.
type WorkflowRepository struct {
	mu   sync.RWMutex
	rows map[string]*models.Workflow
}

// NewWorkflowRepository creates an empty workflow repository.
func NewWorkflowRepository() *WorkflowRepository {
	return &WorkflowRepository{rows: make(map[string]*models.Workflow)}
}

// GetByID implements repository.WorkflowRepository.
func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return wf, nil
}

// Save implements repository.WorkflowRepository.
func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[workflow.ID] = workflow
	return nil
}

// Delete implements repository.WorkflowRepository.
func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

// ListByOwner implements repository.WorkflowRepository.
func (r *WorkflowRepository) ListByOwner(_ context.Context, ownerID string) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Workflow
	for _, wf := range r.rows {
		if wf.OwnerID != nil && *wf.OwnerID == ownerID {
			out = append(out, wf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ExecutionRepository is an in-memory repository.ExecutionRepository.
type ExecutionRepository struct {
	mu   sync.RWMutex
	rows map[string]*models.Execution
}

// NewExecutionRepository creates an empty execution repository.
func NewExecutionRepository() *ExecutionRepository {
	return &ExecutionRepository{rows: make(map[string]*models.Execution)}
}

// Save implements repository.ExecutionRepository.
func (r *ExecutionRepository) Save(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[execution.ID] = execution
	return nil
}

// GetByID implements repository.ExecutionRepository.
func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ex, nil
}

// ListByWorkflow implements repository.ExecutionRepository.
func (r *ExecutionRepository) ListByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Execution
	for _, ex := range r.rows {
		if ex.WorkflowID == workflowID {
			out = append(out, ex)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		var ti, tj time.Time
		if out[i].StartedAt != nil {
			ti = *out[i].StartedAt
		}
		if out[j].StartedAt != nil {
			tj = *out[j].StartedAt
		}
		return ti.After(tj)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ScheduleRepository is an in-memory repository.ScheduleRepository.
type ScheduleRepository struct {
	mu   sync.RWMutex
	rows map[string]*models.Schedule
}

// NewScheduleRepository creates an empty schedule repository.
func NewScheduleRepository() *ScheduleRepository {
	return &ScheduleRepository{rows: make(map[string]*models.Schedule)}
}

// GetByID implements repository.ScheduleRepository.
func (r *ScheduleRepository) GetByID(_ context.Context, id string) (*models.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

// ListEnabled implements repository.ScheduleRepository.
func (r *ScheduleRepository) ListEnabled(_ context.Context) ([]*models.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Schedule
	for _, s := range r.rows {
		if s.Enabled {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Save implements repository.ScheduleRepository.
func (r *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[schedule.ID] = schedule
	return nil
}

// Delete implements repository.ScheduleRepository.
func (r *ScheduleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

// UpdateLastRun implements repository.ScheduleRepository.
func (r *ScheduleRepository) UpdateLastRun(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	utc := at.UTC()
	s.LastRunAt = &utc
	return nil
}

// UpdateNextRun implements repository.ScheduleRepository.
func (r *ScheduleRepository) UpdateNextRun(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	utc := at.UTC()
	s.NextRunAt = &utc
	return nil
}

// SecretsStore is an in-memory provider.SecretsStore keyed by (name, owner).
type SecretsStore struct {
	mu      sync.RWMutex
	secrets map[string]map[string]string
}

// NewSecretsStore creates an empty secrets store.
func NewSecretsStore() *SecretsStore {
	return &SecretsStore{secrets: make(map[string]map[string]string)}
}

// Set stores a secret for an owner.
func (s *SecretsStore) Set(name, owner, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secrets[owner] == nil {
		s.secrets[owner] = make(map[string]string)
	}
	s.secrets[owner][name] = value
}

// Get returns the owner's secret, or empty when absent.
func (s *SecretsStore) Get(_ context.Context, name, owner string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secrets[owner][name], nil
}
