// Package orchestration runs multi-agent teams: a message bus and shared
// context per team, an agent runner with a tool-calling loop, and the four
// orchestration strategies (coordinator, round_robin, debate, map_reduce).
package orchestration

import (
	"time"
)

// MessageType classifies bus messages.
type MessageType string

const (
	MessageTask      MessageType = "task"
	MessageResponse  MessageType = "response"
	MessageResult    MessageType = "result"
	MessageBroadcast MessageType = "broadcast"
	MessageConsult   MessageType = "consult"
)

// AgentMessage is one message on a team's bus. An empty Recipient or the
// broadcast type delivers to every registered agent except the sender.
type AgentMessage struct {
	Sender    string         `json:"sender"`
	Recipient string         `json:"recipient,omitempty"`
	Type      MessageType    `json:"message_type"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// TeamRole distinguishes the coordinator from workers.
type TeamRole string

const (
	RoleCoordinator TeamRole = "coordinator"
	RoleWorker      TeamRole = "worker"
)

// Member describes one team member.
type Member struct {
	Name         string   `json:"name"`
	Role         TeamRole `json:"role"`
	Model        string   `json:"model"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	MCPTools     []string `json:"mcp_tools,omitempty"`
}

// AgentOutput records one agent's contribution in a team run.
type AgentOutput struct {
	AgentName  string   `json:"agent_name"`
	Role       TeamRole `json:"role"`
	Output     string   `json:"output"`
	Tokens     int      `json:"tokens"`
	Cost       float64  `json:"cost"`
	DurationMs int64    `json:"duration_ms"`
}

// TeamResult is the aggregated outcome of a strategy run.
type TeamResult struct {
	Output       string                 `json:"output"`
	AgentOutputs map[string]AgentOutput `json:"agent_outputs"`
	Messages     []AgentMessage         `json:"messages,omitempty"`
	TotalCost    float64                `json:"total_cost"`
	TotalTokens  int                    `json:"total_tokens"`
	Rounds       int                    `json:"rounds"`
	DurationMs   int64                  `json:"duration_ms"`
	Strategy     string                 `json:"strategy"`
	Converged    bool                   `json:"converged,omitempty"`
}
