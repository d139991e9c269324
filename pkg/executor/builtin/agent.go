package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
	"github.com/flowline-ai/flowline/pkg/orchestration"
)

// AgentExecutor runs an LLM agent node: provider lookup by model family,
// optional MCP tool bindings, optional structured output, and per-node usage
// accounting under _usage_<id>.
type AgentExecutor struct {
	deps Deps
}

// Execute implements executor.Executor.
func (e *AgentExecutor) Execute(ctx context.Context, node *models.Node, input any, execCtx executor.Context) (any, error) {
	model, _ := node.Data["model"].(string)
	if model == "" {
		model = "gpt-4o-mini"
	}
	systemPrompt, _ := node.Data["systemPrompt"].(string)

	userID, _ := execCtx[executor.KeyUserID].(string)
	chat, err := e.deps.Providers.Chat(ctx, model, userID)
	if err != nil {
		return nil, fmt.Errorf("agent node %s: %w", node.ID, err)
	}

	outputFields := parseOutputFields(node.Data)
	if len(outputFields) > 0 {
		systemPrompt = appendFieldInstructions(systemPrompt, outputFields)
	}

	agent := orchestration.NewAgent(node.Name(), "", model, systemPrompt, chat)

	tools, err := e.bindMCPTools(ctx, node)
	if err != nil {
		return nil, err
	}
	agent.BindTools(tools)

	result, err := agent.Run(ctx, executor.FormatValue(input))
	if err != nil {
		return nil, fmt.Errorf("agent node %s: %w", node.ID, err)
	}

	execCtx[executor.UsageKey(node.ID)] = map[string]any{
		"prompt_tokens":     result.Usage.PromptTokens,
		"completion_tokens": result.Usage.CompletionTokens,
		"cost":              result.Cost,
		"model":             model,
	}

	if len(outputFields) > 0 {
		structured, err := parseStructuredOutput(result.Output, outputFields)
		if err != nil {
			return nil, fmt.Errorf("agent node %s structured output: %w", node.ID, err)
		}
		return structured, nil
	}
	return result.Output, nil
}

// bindMCPTools turns mcpTools entries into callable tools. "server:tool"
// binds one tool; a bare "server" binds every tool the server lists.
func (e *AgentExecutor) bindMCPTools(ctx context.Context, node *models.Node) ([]orchestration.Tool, error) {
	bindings := stringSlice(node.Data["mcpTools"])
	if len(bindings) == 0 {
		return nil, nil
	}
	if e.deps.MCP == nil {
		return nil, fmt.Errorf("agent node %s binds MCP tools but no MCP manager is configured", node.ID)
	}

	var tools []orchestration.Tool
	for _, binding := range bindings {
		server, toolName, specific := strings.Cut(binding, ":")
		if specific {
			tools = append(tools, e.mcpTool(executor.MCPTool{Server: server, Name: toolName}))
			continue
		}
		listed, err := e.deps.MCP.ListTools(ctx, server)
		if err != nil {
			return nil, fmt.Errorf("agent node %s: list tools on %s: %w", node.ID, server, err)
		}
		for _, t := range listed {
			tools = append(tools, e.mcpTool(t))
		}
	}
	return tools, nil
}

func (e *AgentExecutor) mcpTool(t executor.MCPTool) orchestration.Tool {
	params := t.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return orchestration.Tool{
		Name:        t.Server + "_" + t.Name,
		Description: t.Description,
		Parameters:  params,
		Call: func(ctx context.Context, args map[string]any) (string, error) {
			out, err := e.deps.MCP.ExecuteTool(ctx, t.Server, t.Name, args)
			if err != nil {
				return "", err
			}
			return executor.FormatValue(out), nil
		},
	}
}

// OutputField declares one field of a structured agent response.
type OutputField struct {
	Name string
	Type string
}

func parseOutputFields(data map[string]any) []OutputField {
	raw, ok := data["outputFields"].([]any)
	if !ok {
		return nil
	}
	var fields []OutputField
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			continue
		}
		fieldType, _ := m["type"].(string)
		if fieldType == "" {
			fieldType = "string"
		}
		fields = append(fields, OutputField{Name: name, Type: fieldType})
	}
	return fields
}

func appendFieldInstructions(systemPrompt string, fields []OutputField) string {
	var b strings.Builder
	if systemPrompt != "" {
		b.WriteString(systemPrompt)
		b.WriteString("\n\n")
	}
	b.WriteString("Respond with a single JSON object containing exactly these fields:\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "- %q (%s)\n", f.Name, f.Type)
	}
	b.WriteString("Do not wrap the JSON in markdown fences or add commentary.")
	return b.String()
}

// parseStructuredOutput extracts the first JSON object from the response and
// coerces the declared fields by type.
func parseStructuredOutput(response string, fields []OutputField) (map[string]any, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(response[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("parse response JSON: %w", err)
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Name] = coerceField(parsed[f.Name], f.Type)
	}
	return out, nil
}

func coerceField(value any, fieldType string) any {
	switch fieldType {
	case "number":
		switch v := value.(type) {
		case float64:
			return v
		case string:
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				return n
			}
		}
		return float64(0)
	case "boolean":
		switch v := value.(type) {
		case bool:
			return v
		case string:
			return strings.EqualFold(v, "true")
		}
		return false
	case "array":
		if v, ok := value.([]any); ok {
			return v
		}
		return []any{}
	case "object":
		if v, ok := value.(map[string]any); ok {
			return v
		}
		return map[string]any{}
	default:
		if v, ok := value.(string); ok {
			return v
		}
		return executor.FormatValue(value)
	}
}

func stringSlice(v any) []string {
	switch items := v.(type) {
	case []string:
		return items
	case []any:
		var out []string
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
