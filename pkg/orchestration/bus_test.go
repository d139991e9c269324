package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageBus_DirectDelivery(t *testing.T) {
	t.Parallel()

	bus := NewMessageBus()
	bus.Register("researcher")
	bus.Register("writer")

	ctx := context.Background()
	require.NoError(t, bus.Send(ctx, AgentMessage{
		Sender:    "researcher",
		Recipient: "writer",
		Type:      MessageTask,
		Content:   "draft the intro",
	}))

	msg := bus.Receive(ctx, "writer", 100*time.Millisecond)
	require.NotNil(t, msg)
	assert.Equal(t, "researcher", msg.Sender)
	assert.Equal(t, "draft the intro", msg.Content)
	assert.False(t, msg.Timestamp.IsZero())

	// The sender's own mailbox stays empty.
	assert.Equal(t, 0, bus.PendingCount("researcher"))
}

func TestMessageBus_BroadcastExcludesSender(t *testing.T) {
	t.Parallel()

	bus := NewMessageBus()
	bus.Register("a")
	bus.Register("b")
	bus.Register("c")

	ctx := context.Background()
	_, err := bus.Broadcast(ctx, "a", "team update", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, bus.PendingCount("a"))
	assert.Equal(t, 1, bus.PendingCount("b"))
	assert.Equal(t, 1, bus.PendingCount("c"))
}

func TestMessageBus_ReceiveTimeout(t *testing.T) {
	t.Parallel()

	bus := NewMessageBus()
	bus.Register("a")

	start := time.Now()
	msg := bus.Receive(context.Background(), "a", 30*time.Millisecond)
	assert.Nil(t, msg)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	// Unregistered agent returns nil immediately.
	assert.Nil(t, bus.Receive(context.Background(), "ghost", time.Second))
}

func TestMessageBus_HistoryAndFilters(t *testing.T) {
	t.Parallel()

	bus := NewMessageBus(WithBusMaxHistory(3))
	bus.Register("a")
	bus.Register("b")

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Send(ctx, AgentMessage{Sender: "a", Recipient: "b", Type: MessageResponse, Content: "msg"}))
	}

	// Ring retention keeps the most recent maxHistory messages.
	assert.Equal(t, 3, bus.MessageCount())

	require.NoError(t, bus.Send(ctx, AgentMessage{Sender: "b", Recipient: "a", Type: MessageResult, Content: "reply"}))
	forA := bus.AgentMessages("a")
	assert.NotEmpty(t, forA)
	for _, m := range forA {
		assert.True(t, m.Sender == "a" || m.Recipient == "a")
	}

	bus.Clear()
	assert.Equal(t, 0, bus.MessageCount())
	assert.Equal(t, 0, bus.PendingCount("b"))
}

func TestMessageBus_SendEmitsCallback(t *testing.T) {
	t.Parallel()

	callbacks := NewCallbackManager()
	var events []CallbackEvent
	callbacks.Register(func(_ context.Context, event CallbackEvent, _ map[string]any) {
		events = append(events, event)
	})

	bus := NewMessageBus(WithBusCallbacks(callbacks))
	bus.Register("a")
	require.NoError(t, bus.Send(context.Background(), AgentMessage{Sender: "system", Recipient: "a", Type: MessageTask, Content: "go"}))

	require.Len(t, events, 1)
	assert.Equal(t, EventOrchestrationMessage, events[0])
}
