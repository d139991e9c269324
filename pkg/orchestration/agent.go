package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/flowline-ai/flowline/pkg/provider"
)

// Tool is a callable offered to an agent's model. Parameters is a JSON
// Schema object; Call receives the model-supplied arguments.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Call        func(ctx context.Context, args map[string]any) (string, error)
}

// Agent is one LLM-backed participant. It holds its identity, system prompt,
// and chat provider; strategies inject tools per run.
type Agent struct {
	Name         string
	Role         string
	Model        string
	SystemPrompt string

	chat  provider.ChatProvider
	tools []Tool
}

// NewAgent creates an agent over a chat provider.
func NewAgent(name, role, model, systemPrompt string, chat provider.ChatProvider) *Agent {
	return &Agent{
		Name:         name,
		Role:         role,
		Model:        model,
		SystemPrompt: systemPrompt,
		chat:         chat,
	}
}

// BindTools sets the agent's permanent tools (e.g. MCP bindings).
func (a *Agent) BindTools(tools []Tool) {
	a.tools = tools
}

// RunResult is the outcome of one agent run.
type RunResult struct {
	Output     string
	Usage      provider.Usage
	Cost       float64
	DurationMs int64
}

// Run executes the agent on input with its permanent tools only.
func (a *Agent) Run(ctx context.Context, input string) (*RunResult, error) {
	return a.RunWithTools(ctx, input, nil, 0, "")
}

// RunWithTools executes the agent in a multi-round tool-calling loop.
// extraTools are added for this run only; maxRounds bounds the number of
// provider round-trips (0 uses a sensible default); extraSystem extends the
// system prompt for this run.
func (a *Agent) RunWithTools(ctx context.Context, input string, extraTools []Tool, maxRounds int, extraSystem string) (*RunResult, error) {
	if maxRounds <= 0 {
		maxRounds = 10
	}

	tools := make([]Tool, 0, len(a.tools)+len(extraTools))
	tools = append(tools, a.tools...)
	tools = append(tools, extraTools...)

	byName := make(map[string]Tool, len(tools))
	specs := make([]provider.Tool, 0, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
		specs = append(specs, provider.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}

	system := a.SystemPrompt
	if extraSystem != "" {
		if system != "" {
			system += "\n\n"
		}
		system += extraSystem
	}

	var messages []provider.Message
	if system != "" {
		messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: system})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: input})

	started := time.Now()
	result := &RunResult{}

	for round := 0; round < maxRounds; round++ {
		completion, err := a.chat.Complete(ctx, messages, specs)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.Name, err)
		}

		result.Usage.PromptTokens += completion.Usage.PromptTokens
		result.Usage.CompletionTokens += completion.Usage.CompletionTokens
		result.Usage.TotalTokens += completion.Usage.TotalTokens
		result.Cost += provider.EstimateCost(a.Model, completion.Usage)
		result.Output = completion.Content

		if len(completion.ToolCalls) == 0 {
			break
		}

		messages = append(messages, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})
		for _, call := range completion.ToolCalls {
			tool, ok := byName[call.Name]
			var toolOut string
			if !ok {
				toolOut = fmt.Sprintf("unknown tool: %s", call.Name)
			} else {
				out, err := tool.Call(ctx, call.Arguments)
				if err != nil {
					toolOut = fmt.Sprintf("tool error: %v", err)
				} else {
					toolOut = out
				}
			}
			messages = append(messages, provider.Message{
				Role:       provider.RoleTool,
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    toolOut,
			})
		}
	}

	result.DurationMs = time.Since(started).Milliseconds()
	return result, nil
}
