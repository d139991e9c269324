package builtin

import (
	"context"
	"fmt"

	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
)

const defaultMaxIterations = 3

// FeedbackLoop runs an inline sub-plan of nodes repeatedly, checking a stop
// condition against the execution context between iterations. The sub-plan
// is declared in node data as an ordered node list; each inner node's output
// lands in the context under its ID, so the stop condition and later
// iterations can see it.
type FeedbackLoop struct {
	deps Deps
}

// Execute implements executor.Executor.
func (e *FeedbackLoop) Execute(ctx context.Context, node *models.Node, input any, execCtx executor.Context) (any, error) {
	maxIterations := intValue(node.Data["maxIterations"], defaultMaxIterations)
	stopCondition, _ := node.Data["stopCondition"].(string)

	plan, err := innerPlan(node)
	if err != nil {
		return nil, err
	}

	iterations := 0
	stopped := false
	current := input
	var lastOutputs map[string]any

	for iterations < maxIterations {
		iterations++
		lastOutputs = make(map[string]any, len(plan))

		for _, inner := range plan {
			exec, err := e.executorFor(inner.Type)
			if err != nil {
				return nil, fmt.Errorf("feedback_loop %s: %w", node.ID, err)
			}
			out, err := exec.Execute(ctx, inner, current, execCtx)
			if err != nil {
				return nil, fmt.Errorf("feedback_loop %s iteration %d node %s: %w", node.ID, iterations, inner.ID, err)
			}
			execCtx[inner.ID] = out
			lastOutputs[inner.ID] = out
			current = out
		}

		if stopCondition != "" {
			env := make(map[string]any, len(execCtx)+1)
			for k, v := range execCtx {
				env[k] = v
			}
			env["iteration"] = iterations
			stop, err := EvaluateExpression(stopCondition, env)
			if err != nil {
				return nil, fmt.Errorf("feedback_loop %s stop condition: %w", node.ID, err)
			}
			if stop {
				stopped = true
				break
			}
		}
	}

	return map[string]any{
		"output":     current,
		"iterations": iterations,
		"stopped":    stopped,
		"results":    lastOutputs,
	}, nil
}

// executorFor resolves inner-node executors without going through a manager,
// keeping the loop body to the kinds that make sense inside a plan.
func (e *FeedbackLoop) executorFor(nodeType models.NodeType) (executor.Executor, error) {
	switch nodeType {
	case models.NodeTypeAgent:
		return &AgentExecutor{deps: e.deps}, nil
	case models.NodeTypeMCPTool:
		return &MCPToolExecutor{deps: e.deps}, nil
	case models.NodeTypeCondition:
		return &Condition{}, nil
	case models.NodeTypeRAG:
		return &RAGExecutor{deps: e.deps}, nil
	default:
		return nil, fmt.Errorf("node type %s not allowed inside a feedback loop", nodeType)
	}
}

// innerPlan parses the ordered sub-plan from node data.
func innerPlan(node *models.Node) ([]*models.Node, error) {
	raw, ok := node.Data["nodes"].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("feedback_loop %s declares no inner nodes", node.ID)
	}

	plan := make([]*models.Node, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("feedback_loop %s: inner node %d is not an object", node.ID, i)
		}
		id, _ := m["id"].(string)
		if id == "" {
			id = fmt.Sprintf("%s_inner_%d", node.ID, i)
		}
		typeStr, _ := m["type"].(string)
		data, _ := m["data"].(map[string]any)
		plan = append(plan, &models.Node{ID: id, Type: models.NodeType(typeStr), Data: data})
	}
	return plan, nil
}

func intValue(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}
