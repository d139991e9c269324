package builtin

import (
	"context"
	"fmt"

	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
)

// MCPToolExecutor runs one tool on an MCP server. Parameters pass through
// the template resolver recursively before the call.
type MCPToolExecutor struct {
	deps Deps
}

// Execute implements executor.Executor.
func (e *MCPToolExecutor) Execute(ctx context.Context, node *models.Node, _ any, execCtx executor.Context) (any, error) {
	if e.deps.MCP == nil {
		return nil, fmt.Errorf("mcp_tool node %s: no MCP manager configured", node.ID)
	}

	server, _ := node.Data["serverId"].(string)
	tool, _ := node.Data["toolName"].(string)
	if server == "" || tool == "" {
		return nil, fmt.Errorf("mcp_tool node %s requires serverId and toolName", node.ID)
	}

	params, _ := node.Data["parameters"].(map[string]any)
	engine := executor.NewTemplateEngine(execCtx)
	resolved, _ := engine.ResolveAny(params).(map[string]any)

	result, err := e.deps.MCP.ExecuteTool(ctx, server, tool, resolved)
	if err != nil {
		return nil, fmt.Errorf("mcp tool %s/%s: %w", server, tool, err)
	}
	return result, nil
}
