// Package executor defines the node executor contract and registry.
// One executor exists per node kind; the graph runtime looks executors up
// by node type and calls them with the node, its resolved input, and the
// shared execution context.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowline-ai/flowline/pkg/models"
)

// Reserved execution-context keys. Every completed node additionally stores
// its output under its own node ID.
const (
	KeyInput       = "input"
	KeyUserID      = "_user_id"
	KeyToday       = "today"
	UsageKeyPrefix = "_usage_"
)

// UsageKey returns the context key holding a node's token/cost accounting.
func UsageKey(nodeID string) string {
	return UsageKeyPrefix + nodeID
}

// Context is the mutable per-execution state map. Values must round-trip
// through JSON so checkpoints can persist them.
type Context = map[string]any

// Executor turns (node, input, context) into the node's output.
// Side effects are confined to provider calls and _usage_<id> writes.
type Executor interface {
	Execute(ctx context.Context, node *models.Node, input any, execCtx Context) (any, error)
}

// Manager is a registry of executors keyed by node type.
type Manager struct {
	mu        sync.RWMutex
	executors map[models.NodeType]Executor
}

// NewManager creates an empty executor registry.
func NewManager() *Manager {
	return &Manager{executors: make(map[models.NodeType]Executor)}
}

// Register adds an executor for a node type. Registering the same type twice
// is an error.
func (m *Manager) Register(nodeType models.NodeType, exec Executor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.executors[nodeType]; exists {
		return fmt.Errorf("executor already registered for type %s", nodeType)
	}
	m.executors[nodeType] = exec
	return nil
}

// Get returns the executor for a node type.
func (m *Manager) Get(nodeType models.NodeType) (Executor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exec, ok := m.executors[nodeType]
	if !ok {
		return nil, fmt.Errorf("no executor registered for type %s", nodeType)
	}
	return exec, nil
}

// Types returns the registered node types.
func (m *Manager) Types() []models.NodeType {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]models.NodeType, 0, len(m.executors))
	for t := range m.executors {
		types = append(types, t)
	}
	return types
}
