package orchestration

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultReceiveTimeout bounds a mailbox receive with no explicit timeout.
	DefaultReceiveTimeout = 30 * time.Second
	// DefaultMaxHistory is the bus history ring size; zero means unlimited.
	DefaultMaxHistory = 10000
	// mailboxCapacity bounds each agent's ordered mailbox.
	mailboxCapacity = 256
)

// MessageBus routes messages between the agents of one team. Each registered
// agent owns an ordered, bounded mailbox. Direct messages go to one mailbox;
// broadcasts go to every mailbox except the sender's.
type MessageBus struct {
	mu         sync.Mutex
	mailboxes  map[string]chan AgentMessage
	history    []AgentMessage
	maxHistory int
	callbacks  *CallbackManager
}

// BusOption configures a MessageBus.
type BusOption func(*MessageBus)

// WithBusCallbacks emits an orchestration_message event per send.
func WithBusCallbacks(cb *CallbackManager) BusOption {
	return func(b *MessageBus) { b.callbacks = cb }
}

// WithBusMaxHistory sets the history ring size; zero keeps everything.
func WithBusMaxHistory(n int) BusOption {
	return func(b *MessageBus) { b.maxHistory = n }
}

// NewMessageBus creates a bus with no registered agents.
func NewMessageBus(opts ...BusOption) *MessageBus {
	b := &MessageBus{
		mailboxes:  make(map[string]chan AgentMessage),
		maxHistory: DefaultMaxHistory,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register assigns a mailbox to an agent. Registering twice is a no-op.
func (b *MessageBus) Register(agentName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mailboxes[agentName]; !ok {
		b.mailboxes[agentName] = make(chan AgentMessage, mailboxCapacity)
	}
}

// Unregister removes an agent's mailbox.
func (b *MessageBus) Unregister(agentName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.mailboxes, agentName)
}

// RegisteredAgents lists agents with mailboxes.
func (b *MessageBus) RegisteredAgents() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.mailboxes))
	for name := range b.mailboxes {
		names = append(names, name)
	}
	return names
}

// Send delivers a message. With a recipient it goes to that mailbox; without
// one, or with the broadcast type, it goes to all mailboxes except the
// sender's. Sends to full mailboxes block until the recipient drains.
func (b *MessageBus) Send(ctx context.Context, msg AgentMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	b.history = append(b.history, msg)
	if b.maxHistory > 0 && len(b.history) > b.maxHistory {
		b.history = b.history[len(b.history)-b.maxHistory:]
	}

	var targets []chan AgentMessage
	if msg.Recipient == "" || msg.Type == MessageBroadcast {
		for name, box := range b.mailboxes {
			if name != msg.Sender {
				targets = append(targets, box)
			}
		}
	} else if box, ok := b.mailboxes[msg.Recipient]; ok {
		targets = append(targets, box)
	}
	b.mu.Unlock()

	if b.callbacks != nil {
		content := msg.Content
		if len(content) > 200 {
			content = content[:200]
		}
		b.callbacks.Emit(ctx, EventOrchestrationMessage, map[string]any{
			"sender":       msg.Sender,
			"recipient":    msg.Recipient,
			"message_type": string(msg.Type),
			"content":      content,
		})
	}

	for _, box := range targets {
		select {
		case box <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Broadcast sends content from sender to every other agent.
func (b *MessageBus) Broadcast(ctx context.Context, sender, content string, metadata map[string]any) (AgentMessage, error) {
	msg := AgentMessage{
		Sender:   sender,
		Type:     MessageBroadcast,
		Content:  content,
		Metadata: metadata,
	}
	err := b.Send(ctx, msg)
	return msg, err
}

// Receive pops the next message for an agent, or returns nil when the
// timeout expires or the agent is not registered. A zero timeout uses
// DefaultReceiveTimeout.
func (b *MessageBus) Receive(ctx context.Context, agentName string, timeout time.Duration) *AgentMessage {
	b.mu.Lock()
	box, ok := b.mailboxes[agentName]
	b.mu.Unlock()
	if !ok {
		return nil
	}

	if timeout <= 0 {
		timeout = DefaultReceiveTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-box:
		return &msg
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
}

// History returns all retained messages in send order.
func (b *MessageBus) History() []AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]AgentMessage, len(b.history))
	copy(out, b.history)
	return out
}

// AgentMessages returns retained messages sent by or to an agent.
func (b *MessageBus) AgentMessages(agentName string) []AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []AgentMessage
	for _, m := range b.history {
		if m.Sender == agentName || m.Recipient == agentName {
			out = append(out, m)
		}
	}
	return out
}

// MessageCount is the number of retained messages.
func (b *MessageBus) MessageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.history)
}

// PendingCount is the number of unread messages in an agent's mailbox.
func (b *MessageBus) PendingCount(agentName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if box, ok := b.mailboxes[agentName]; ok {
		return len(box)
	}
	return 0
}

// Clear drops history and drains every mailbox.
func (b *MessageBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
	for _, box := range b.mailboxes {
		for len(box) > 0 {
			<-box
		}
	}
}
