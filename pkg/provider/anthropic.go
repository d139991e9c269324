package provider

import (
	"context"
	"encoding/json"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

// Anthropic is a ChatProvider backed by the Anthropic messages API.
type Anthropic struct {
	client anthropicsdk.Client
	model  string
}

// NewAnthropic creates an Anthropic-family chat provider.
func NewAnthropic(apiKey, model string) *Anthropic {
	return &Anthropic{
		client: anthropicsdk.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements ChatProvider. System messages are extracted into the
// dedicated system parameter the API expects.
func (p *Anthropic) Complete(ctx context.Context, messages []Message, tools []Tool) (*Completion, error) {
	system, conversation := splitSystem(messages)

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(p.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  toAnthropicMessages(conversation),
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	out := &Completion{
		Model: string(resp.Model),
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}

	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			if out.Content != "" {
				out.Content += "\n"
			}
			out.Content += b.Text
		case anthropicsdk.ToolUseBlock:
			args := map[string]any{}
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &args); err != nil {
					return nil, fmt.Errorf("anthropic tool input: %w", err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}
	return out, nil
}

// splitSystem separates system messages from the conversation; the messages
// API takes the system prompt as its own parameter.
func splitSystem(messages []Message) (string, []Message) {
	var system string
	var rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func toAnthropicMessages(messages []Message) []anthropicsdk.MessageParam {
	converted := make([]anthropicsdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			blocks := []anthropicsdk.ContentBlockParamUnion{anthropicsdk.NewTextBlock(m.Content)}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicsdk.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			converted = append(converted, anthropicsdk.NewAssistantMessage(blocks...))
		case RoleTool:
			converted = append(converted, anthropicsdk.NewUserMessage(
				anthropicsdk.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		default:
			converted = append(converted, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		}
	}
	return converted
}

func toAnthropicTools(tools []Tool) []anthropicsdk.ToolUnionParam {
	converted := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var properties any
		var required []string
		if t.Parameters != nil {
			properties = t.Parameters["properties"]
			if req, ok := t.Parameters["required"].([]string); ok {
				required = req
			} else if req, ok := t.Parameters["required"].([]any); ok {
				for _, v := range req {
					if s, ok := v.(string); ok {
						required = append(required, s)
					}
				}
			}
		}
		converted = append(converted, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.Name,
				Description: anthropicsdk.String(t.Description),
				InputSchema: anthropicsdk.ToolInputSchemaParam{
					Properties: properties,
					Required:   required,
				},
			},
		})
	}
	return converted
}
