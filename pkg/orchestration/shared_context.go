package orchestration

import (
	"encoding/json"
	"sync"
	"time"
)

// ContextUpdate records one shared-context modification.
type ContextUpdate struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	Agent     string    `json:"agent"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
}

// SharedContext is the team-scoped key-value store agents collaborate
// through. Every read and write deep-copies so no agent can alias another's
// state, and every modification lands in an ordered history log.
type SharedContext struct {
	mu         sync.Mutex
	data       map[string]any
	history    []ContextUpdate
	maxHistory int
}

// NewSharedContext creates a shared context seeded with initial data.
func NewSharedContext(initial map[string]any) *SharedContext {
	data := make(map[string]any, len(initial))
	for k, v := range initial {
		data[k] = deepCopy(v)
	}
	return &SharedContext{data: data, maxHistory: DefaultMaxHistory}
}

// Get returns a deep copy of the value under key, or nil.
func (c *SharedContext) Get(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return deepCopy(c.data[key])
}

// Has reports whether key exists.
func (c *SharedContext) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// Set stores a deep copy of value under key, attributed to agent.
func (c *SharedContext) Set(key string, value any, agent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, agent)
}

// Update stores several values at once.
func (c *SharedContext) Update(data map[string]any, agent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range data {
		c.setLocked(k, v, agent)
	}
}

func (c *SharedContext) setLocked(key string, value any, agent string) {
	copied := deepCopy(value)
	c.data[key] = copied
	c.appendHistory(ContextUpdate{
		Key:       key,
		Value:     deepCopy(copied),
		Agent:     agent,
		Timestamp: time.Now().UTC(),
		Operation: "set",
	})
}

// Delete removes a key, returning whether it existed.
func (c *SharedContext) Delete(key, agent string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; !ok {
		return false
	}
	delete(c.data, key)
	c.appendHistory(ContextUpdate{
		Key:       key,
		Agent:     agent,
		Timestamp: time.Now().UTC(),
		Operation: "delete",
	})
	return true
}

// Keys lists the current keys.
func (c *SharedContext) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a deep copy of the entire state.
func (c *SharedContext) Snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = deepCopy(v)
	}
	return out
}

// History returns all retained updates in order.
func (c *SharedContext) History() []ContextUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ContextUpdate, len(c.history))
	copy(out, c.history)
	return out
}

// AgentUpdates returns the updates made by one agent.
func (c *SharedContext) AgentUpdates(agent string) []ContextUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ContextUpdate
	for _, u := range c.history {
		if u.Agent == agent {
			out = append(out, u)
		}
	}
	return out
}

// Size is the number of keys.
func (c *SharedContext) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// UpdateCount is the number of retained history entries.
func (c *SharedContext) UpdateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Clear drops all data and history.
func (c *SharedContext) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]any)
	c.history = nil
}

func (c *SharedContext) appendHistory(u ContextUpdate) {
	c.history = append(c.history, u)
	if c.maxHistory > 0 && len(c.history) > c.maxHistory {
		c.history = c.history[len(c.history)-c.maxHistory:]
	}
}

// deepCopy copies a value through JSON. Shared-context values are
// JSON-compatible by the same contract as the execution context; anything
// that fails to marshal is returned as-is.
func deepCopy(v any) any {
	if v == nil {
		return nil
	}
	switch v.(type) {
	case string, bool, int, int64, float64:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
