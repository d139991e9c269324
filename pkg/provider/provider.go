// Package provider adapts LLM and embedding backends behind small contracts.
// The execution core only depends on Complete and Embed; everything else
// (auth, wire formats, SDKs) stays inside the adapters.
package provider

import (
	"context"
	"fmt"
	"strings"
)

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role       Role
	Content    string
	Name       string
	ToolCallID string
	ToolCalls  []ToolCall
}

// ToolCall is a provider-requested tool invocation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Tool describes a callable tool offered to the model. Parameters is a JSON
// Schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Usage is the token accounting for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's response to a chat request.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
	Model     string
}

// ChatProvider completes chat conversations, optionally calling tools.
type ChatProvider interface {
	Complete(ctx context.Context, messages []Message, tools []Tool) (*Completion, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Family groups models by provider API.
type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyAnthropic Family = "anthropic"
	FamilyGemini    Family = "gemini"
	FamilyOllama    Family = "ollama"
)

// FamilyForModel routes a model name to its provider family. Unrecognized
// names fall through to the Ollama family, which serves local models.
func FamilyForModel(model string) Family {
	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "gpt-"),
		strings.HasPrefix(lower, "o1"),
		strings.HasPrefix(lower, "o3"),
		strings.HasPrefix(lower, "o4"),
		strings.HasPrefix(lower, "text-embedding-3"),
		strings.HasPrefix(lower, "text-embedding-ada"),
		strings.HasPrefix(lower, "chatgpt"):
		return FamilyOpenAI
	case strings.HasPrefix(lower, "claude"):
		return FamilyAnthropic
	case strings.HasPrefix(lower, "gemini"), strings.HasPrefix(lower, "text-embedding-004"):
		return FamilyGemini
	default:
		return FamilyOllama
	}
}

// SecretName returns the secrets-store key holding a family's API key.
func SecretName(f Family) string {
	return fmt.Sprintf("LLM_%s_API_KEY", strings.ToUpper(string(f)))
}
