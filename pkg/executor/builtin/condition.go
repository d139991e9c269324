package builtin

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
)

// Condition evaluates a boolean expression against the execution context and
// selects the outgoing branch through active_handle. The expression grammar
// is the expr language: arithmetic, comparisons, boolean operators, string
// helpers, and membership tests over context keys.
type Condition struct{}

// Execute implements executor.Executor.
func (c *Condition) Execute(_ context.Context, node *models.Node, input any, execCtx executor.Context) (any, error) {
	expression, _ := node.Data["condition"].(string)
	if expression == "" {
		return nil, fmt.Errorf("condition node %s has no condition expression", node.ID)
	}

	env := make(map[string]any, len(execCtx)+1)
	for k, v := range execCtx {
		env[k] = v
	}
	env["node_input"] = input

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("condition %s compile: %w", node.ID, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("condition %s eval: %w", node.ID, err)
	}

	truthy, ok := result.(bool)
	if !ok {
		return nil, fmt.Errorf("condition %s did not evaluate to a boolean", node.ID)
	}

	handle := models.HandleFalse
	if truthy {
		handle = models.HandleTrue
	}
	return map[string]any{
		"result":        truthy,
		"active_handle": handle,
	}, nil
}

// EvaluateExpression compiles and runs a boolean expression against a plain
// environment. Shared with the feedback loop's stop condition.
func EvaluateExpression(expression string, env map[string]any) (bool, error) {
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return false, err
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	truthy, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not evaluate to a boolean")
	}
	return truthy, nil
}
