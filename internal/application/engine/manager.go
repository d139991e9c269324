// Package engine hosts the background execution manager: it owns
// run-to-completion tasks, buffers their lifecycle events, fans events out to
// subscribers, and sweeps stale state on a TTL.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/flowline-ai/flowline/internal/infrastructure/logger"
	pkgengine "github.com/flowline-ai/flowline/pkg/engine"
)

const (
	// MaxEventsPerExecution caps each execution's event buffer. On overflow
	// the oldest half is discarded, biasing retention toward recent events so
	// late subscribers get an accurate tail.
	MaxEventsPerExecution = 1000
	// EventTTL is how long events and subscriber lists outlive the last
	// activity on an execution. The sweep runs at every dispatch.
	EventTTL = time.Hour
	// subscriberBuffer is each subscriber channel's capacity. Delivery is
	// at-most-once: a full subscriber drops events rather than back-pressure
	// the producer.
	subscriberBuffer = 256
)

// RunFunc is the execution body dispatched as a background task.
type RunFunc func(ctx context.Context) error

// Manager owns per-execution lifecycle state.
type Manager struct {
	mu           sync.Mutex
	tasks        map[string]*task
	events       map[string][]pkgengine.Event
	subscribers  map[string][]chan pkgengine.Event
	lastActivity map[string]time.Time

	log *logger.Logger
	now func() time.Time
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithManagerLogger sets the manager logger.
func WithManagerLogger(l *logger.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// NewManager creates an execution manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		tasks:        make(map[string]*task),
		events:       make(map[string][]pkgengine.Event),
		subscribers:  make(map[string][]chan pkgengine.Event),
		lastActivity: make(map[string]time.Time),
		log:          logger.New("execution-manager"),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dispatch sweeps stale events, starts run as a background task under the
// execution ID, and emits the started event. Completion and failure events
// are emitted when the task settles; the task handle is cleared then, while
// the event buffer and subscribers remain until TTL expiry.
func (m *Manager) Dispatch(ctx context.Context, run RunFunc, executionID string) {
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &task{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.sweepLocked()
	m.tasks[executionID] = t
	if _, ok := m.events[executionID]; !ok {
		m.events[executionID] = nil
	}
	m.lastActivity[executionID] = m.now()
	m.mu.Unlock()

	m.Emit(executionID, pkgengine.EventStarted, map[string]any{})

	go func() {
		defer close(t.done)
		defer func() {
			m.mu.Lock()
			delete(m.tasks, executionID)
			m.mu.Unlock()
		}()

		if err := run(taskCtx); err != nil {
			m.log.Error("background execution failed", "execution_id", executionID, "error", err)
			m.Emit(executionID, pkgengine.EventFailed, map[string]any{"error": err.Error()})
			return
		}
		m.Emit(executionID, pkgengine.EventCompleted, map[string]any{"status": "completed"})
	}()
}

// Emit records an event in the execution's buffer and mirrors it to every
// subscriber. Full subscriber channels are skipped.
func (m *Manager) Emit(executionID, eventType string, data map[string]any) {
	event := pkgengine.Event{
		ExecutionID: executionID,
		Type:        eventType,
		Data:        data,
		Timestamp:   m.now(),
	}

	m.mu.Lock()
	buffer := m.events[executionID]
	if len(buffer) >= MaxEventsPerExecution {
		buffer = buffer[len(buffer)/2:]
	}
	m.events[executionID] = append(buffer, event)
	m.lastActivity[executionID] = m.now()

	subs := make([]chan pkgengine.Event, len(m.subscribers[executionID]))
	copy(subs, m.subscribers[executionID])
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber; at-most-once delivery drops the event.
		}
	}
}

// Notify adapts the manager to the runner's Notifier interface so node-level
// events land in the same stream.
func (m *Manager) Notify(_ context.Context, event pkgengine.Event) {
	m.Emit(event.ExecutionID, event.Type, event.Data)
}

// Subscribe attaches a new event stream to an execution. Only events emitted
// after subscription are delivered; use GetEvents for history.
func (m *Manager) Subscribe(executionID string) chan pkgengine.Event {
	ch := make(chan pkgengine.Event, subscriberBuffer)
	m.mu.Lock()
	m.subscribers[executionID] = append(m.subscribers[executionID], ch)
	m.mu.Unlock()
	return ch
}

// Unsubscribe detaches a stream; the execution's subscriber list is removed
// once empty.
func (m *Manager) Unsubscribe(executionID string, ch chan pkgengine.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subscribers[executionID]
	for i, existing := range subs {
		if existing == ch {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(m.subscribers, executionID)
	} else {
		m.subscribers[executionID] = subs
	}
}

// IsRunning reports whether the execution's task handle is present.
func (m *Manager) IsRunning(executionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[executionID]
	return ok
}

// GetEvents returns the execution's full current buffer, for late joiners
// that want history.
func (m *Manager) GetEvents(executionID string) []pkgengine.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pkgengine.Event, len(m.events[executionID]))
	copy(out, m.events[executionID])
	return out
}

// Shutdown cancels every in-flight task, emits a failed event on each, waits
// for cancellation to settle, and clears all state. Cancelled tasks do not
// write a checkpoint on the way out, so their last saved checkpoint stays
// resumable.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	running := make(map[string]*task, len(m.tasks))
	for id, t := range m.tasks {
		running[id] = t
	}
	m.mu.Unlock()

	if len(running) > 0 {
		m.log.Info("shutting down background tasks", "count", len(running))
	}

	for id, t := range running {
		t.cancel()
		m.Emit(id, pkgengine.EventFailed, map[string]any{"error": "Server shutting down"})
	}
	for _, t := range running {
		select {
		case <-t.done:
		case <-ctx.Done():
		}
	}

	m.mu.Lock()
	m.tasks = make(map[string]*task)
	m.events = make(map[string][]pkgengine.Event)
	m.subscribers = make(map[string][]chan pkgengine.Event)
	m.lastActivity = make(map[string]time.Time)
	m.mu.Unlock()
}

// sweepLocked drops events and subscribers for executions whose last
// activity is past the TTL and that are no longer running.
func (m *Manager) sweepLocked() {
	cutoff := m.now().Add(-EventTTL)
	for id, ts := range m.lastActivity {
		if _, running := m.tasks[id]; running {
			continue
		}
		if ts.Before(cutoff) {
			delete(m.events, id)
			delete(m.subscribers, id)
			delete(m.lastActivity, id)
		}
	}
}
