package builtin

import (
	"context"
	"fmt"

	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
)

// Mock is the synthetic executor that stands in for every node kind in mock
// mode. Outputs are deterministic and fast; no external I/O occurs.
type Mock struct{}

// Execute implements executor.Executor.
func (m *Mock) Execute(_ context.Context, node *models.Node, input any, execCtx executor.Context) (any, error) {
	switch node.Type {
	case models.NodeTypeTrigger:
		return execCtx[executor.KeyInput], nil

	case models.NodeTypeParallel:
		return input, nil

	case models.NodeTypeCondition:
		return map[string]any{
			"result":        true,
			"active_handle": models.HandleTrue,
		}, nil

	case models.NodeTypeAgent:
		if fields := parseOutputFields(node.Data); len(fields) > 0 {
			return mockFieldFixture(fields), nil
		}
		return "[Mock] " + node.Name(), nil

	case models.NodeTypeMCPTool:
		if resp, ok := node.Data["mockResponse"]; ok {
			return resp, nil
		}
		toolName, _ := node.Data["toolName"].(string)
		if toolName == "" {
			toolName = node.Name()
		}
		return map[string]any{"result": "[Mock] " + toolName}, nil

	case models.NodeTypeFeedbackLoop:
		return map[string]any{
			"output":     "[Mock] " + node.Name(),
			"iterations": 1,
			"stopped":    true,
		}, nil

	case models.NodeTypeRAG:
		return map[string]any{
			"output": "[Mock] " + node.Name(),
			"chunks": []any{},
		}, nil

	case models.NodeTypeMultiAgent:
		return map[string]any{
			"output":    "[Mock] " + node.Name(),
			"strategy":  stringOr(node.Data["strategy"], "coordinator"),
			"rounds":    1,
			"converged": false,
		}, nil

	default:
		return nil, fmt.Errorf("no mock output for node type %s", node.Type)
	}
}

// mockFieldFixture populates a structured output object matching declared
// field types.
func mockFieldFixture(fields []OutputField) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		switch f.Type {
		case "number":
			out[f.Name] = float64(42)
		case "boolean":
			out[f.Name] = true
		case "array":
			out[f.Name] = []any{"mock"}
		case "object":
			out[f.Name] = map[string]any{"mock": true}
		default:
			out[f.Name] = "[Mock] " + f.Name
		}
	}
	return out
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
