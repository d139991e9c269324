package orchestration

import (
	"context"
	"sync"
)

// CallbackEvent identifies an orchestration observability event.
// These are side channels; strategy correctness never depends on them.
type CallbackEvent string

const (
	EventAgentDelegated       CallbackEvent = "agent_delegated"
	EventAgentCompleted       CallbackEvent = "agent_completed"
	EventConvergenceDetected  CallbackEvent = "convergence_detected"
	EventSynthesisStart       CallbackEvent = "synthesis_start"
	EventOrchestrationStart   CallbackEvent = "orchestration_start"
	EventOrchestrationEnd     CallbackEvent = "orchestration_end"
	EventOrchestrationError   CallbackEvent = "orchestration_error"
	EventOrchestrationMessage CallbackEvent = "orchestration_message"
)

// CallbackFunc handles an orchestration event.
type CallbackFunc func(ctx context.Context, event CallbackEvent, fields map[string]any)

// CallbackManager fans orchestration events out to registered handlers.
// Handler errors and panics must not disturb the strategy, so handlers are
// plain funcs with no error return.
type CallbackManager struct {
	mu       sync.RWMutex
	handlers []CallbackFunc
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{}
}

// Register adds a handler.
func (m *CallbackManager) Register(fn CallbackFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, fn)
}

// Emit delivers an event to every handler. Safe on a nil manager.
func (m *CallbackManager) Emit(ctx context.Context, event CallbackEvent, fields map[string]any) {
	if m == nil {
		return
	}
	m.mu.RLock()
	handlers := make([]CallbackFunc, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.RUnlock()

	for _, fn := range handlers {
		func() {
			defer func() { _ = recover() }()
			fn(ctx, event, fields)
		}()
	}
}
