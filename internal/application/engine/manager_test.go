package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgengine "github.com/flowline-ai/flowline/pkg/engine"
)

func eventTypes(events []pkgengine.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestManager_DispatchLifecycle(t *testing.T) {
	t.Parallel()

	m := NewManager()
	release := make(chan struct{})

	m.Dispatch(context.Background(), func(context.Context) error {
		<-release
		return nil
	}, "exec-1")

	assert.True(t, m.IsRunning("exec-1"))
	assert.Equal(t, []string{pkgengine.EventStarted}, eventTypes(m.GetEvents("exec-1")))

	close(release)
	waitUntil(t, func() bool { return !m.IsRunning("exec-1") })

	events := m.GetEvents("exec-1")
	assert.Equal(t, []string{pkgengine.EventStarted, pkgengine.EventCompleted}, eventTypes(events))
	assert.Equal(t, "completed", events[1].Data["status"])
}

func TestManager_DispatchFailure(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Dispatch(context.Background(), func(context.Context) error {
		return errors.New("node exploded")
	}, "exec-2")

	waitUntil(t, func() bool { return !m.IsRunning("exec-2") })

	events := m.GetEvents("exec-2")
	require.Len(t, events, 2)
	assert.Equal(t, pkgengine.EventFailed, events[1].Type)
	assert.Equal(t, "node exploded", events[1].Data["error"])
}

func TestManager_SubscriberFanOut(t *testing.T) {
	t.Parallel()

	m := NewManager()
	sub1 := m.Subscribe("exec-3")
	sub2 := m.Subscribe("exec-3")

	m.Emit("exec-3", pkgengine.EventNodeStarted, map[string]any{"node_id": "A"})

	for _, sub := range []chan pkgengine.Event{sub1, sub2} {
		select {
		case e := <-sub:
			assert.Equal(t, pkgengine.EventNodeStarted, e.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}

	// Unsubscribed streams stop receiving; emitting must not block.
	m.Unsubscribe("exec-3", sub1)
	m.Emit("exec-3", pkgengine.EventNodeCompleted, nil)
	select {
	case e := <-sub2:
		assert.Equal(t, pkgengine.EventNodeCompleted, e.Type)
	case <-time.After(time.Second):
		t.Fatal("remaining subscriber did not receive event")
	}
	select {
	case e := <-sub1:
		t.Fatalf("unsubscribed stream received %v", e.Type)
	default:
	}
}

func TestManager_BufferCapDiscardsOldestHalf(t *testing.T) {
	t.Parallel()

	m := NewManager()
	for i := 0; i < MaxEventsPerExecution+10; i++ {
		m.Emit("exec-4", pkgengine.EventNodeCompleted, map[string]any{"seq": i})
	}

	events := m.GetEvents("exec-4")
	assert.LessOrEqual(t, len(events), MaxEventsPerExecution)

	// Retention is biased to recent: the very last emission survives.
	last := events[len(events)-1]
	assert.Equal(t, MaxEventsPerExecution+9, last.Data["seq"])
}

func TestManager_TTLSweepOnDispatch(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	now := time.Now().UTC()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	m := NewManager(WithClock(clock))
	m.Emit("stale-exec", pkgengine.EventCompleted, nil)
	require.NotEmpty(t, m.GetEvents("stale-exec"))

	mu.Lock()
	now = now.Add(EventTTL + time.Minute)
	mu.Unlock()

	done := make(chan struct{})
	m.Dispatch(context.Background(), func(context.Context) error {
		close(done)
		return nil
	}, "fresh-exec")
	<-done

	assert.Empty(t, m.GetEvents("stale-exec"))
	assert.NotEmpty(t, m.GetEvents("fresh-exec"))
}

func TestManager_Shutdown(t *testing.T) {
	t.Parallel()

	m := NewManager()
	started := make(chan struct{})

	m.Dispatch(context.Background(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, "exec-5")
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.Shutdown(ctx)

	assert.False(t, m.IsRunning("exec-5"))
	assert.Empty(t, m.GetEvents("exec-5"))
}
