package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowline-ai/flowline/pkg/models"
)

// ErrNoCheckpoint is returned by Load when no checkpoint row exists.
var ErrNoCheckpoint = errors.New("no checkpoint for execution")

// CheckpointStore persists the (execution → current node, context, status)
// snapshot written before each node begins. One row per execution, upserted
// on save, deleted on successful completion. Contexts must round-trip
// through JSON; keeping values JSON-compatible is the executors' job.
type CheckpointStore interface {
	Save(ctx context.Context, executionID, nodeID string, execCtx map[string]any, status models.ExecutionStatus) error
	Load(ctx context.Context, executionID string) (*models.Checkpoint, error)
	MarkFailed(ctx context.Context, executionID, nodeID, errMsg string) error
	Delete(ctx context.Context, executionID string) error
}

// MemoryCheckpointStore keeps checkpoints in memory. Used in tests and
// standalone runs; the storage package provides the Postgres-backed store.
type MemoryCheckpointStore struct {
	mu   sync.Mutex
	rows map[string]*models.Checkpoint
}

// NewMemoryCheckpointStore creates an empty in-memory checkpoint store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{rows: make(map[string]*models.Checkpoint)}
}

// Save upserts the checkpoint row for an execution. The context is copied
// through JSON so a concurrent load never observes a partial write.
func (s *MemoryCheckpointStore) Save(_ context.Context, executionID, nodeID string, execCtx map[string]any, status models.ExecutionStatus) error {
	copied, err := copyContext(execCtx)
	if err != nil {
		return fmt.Errorf("checkpoint context not serializable: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[executionID] = &models.Checkpoint{
		ExecutionID: executionID,
		CurrentNode: nodeID,
		Context:     copied,
		Status:      status,
		UpdatedAt:   time.Now().UTC(),
	}
	return nil
}

// Load returns the checkpoint row for an execution.
func (s *MemoryCheckpointStore) Load(_ context.Context, executionID string) (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[executionID]
	if !ok {
		return nil, ErrNoCheckpoint
	}
	return row, nil
}

// MarkFailed records the failure on the existing checkpoint row so the
// execution stays resumable.
func (s *MemoryCheckpointStore) MarkFailed(_ context.Context, executionID, nodeID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[executionID]
	if !ok {
		return ErrNoCheckpoint
	}
	row.CurrentNode = nodeID
	row.Status = models.ExecutionStatusFailed
	row.Error = errMsg
	row.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes the checkpoint row.
func (s *MemoryCheckpointStore) Delete(_ context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, executionID)
	return nil
}

// copyContext deep-copies a context map through JSON.
func copyContext(execCtx map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(execCtx)
	if err != nil {
		return nil, err
	}
	var copied map[string]any
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, err
	}
	return copied, nil
}
