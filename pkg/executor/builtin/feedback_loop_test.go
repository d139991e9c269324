package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
)

func TestFeedbackLoop_StopConditionBreaksEarly(t *testing.T) {
	t.Parallel()

	node := &models.Node{
		ID:   "loop",
		Type: models.NodeTypeFeedbackLoop,
		Data: map[string]any{
			"maxIterations": 5,
			"stopCondition": "iteration >= 2",
			"nodes": []any{
				map[string]any{
					"id":   "check",
					"type": "condition",
					"data": map[string]any{"condition": "true"},
				},
			},
		},
	}

	loop := &FeedbackLoop{}
	execCtx := executor.Context{executor.KeyInput: "go"}
	out, err := loop.Execute(context.Background(), node, "go", execCtx)
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, 2, result["iterations"])
	assert.Equal(t, true, result["stopped"])
	// Inner node output is visible in the execution context.
	assert.Contains(t, execCtx, "check")
}

func TestFeedbackLoop_MaxIterationsBound(t *testing.T) {
	t.Parallel()

	node := &models.Node{
		ID:   "loop",
		Type: models.NodeTypeFeedbackLoop,
		Data: map[string]any{
			"maxIterations": 3,
			"stopCondition": "false",
			"nodes": []any{
				map[string]any{
					"id":   "check",
					"type": "condition",
					"data": map[string]any{"condition": "true"},
				},
			},
		},
	}

	loop := &FeedbackLoop{}
	out, err := loop.Execute(context.Background(), node, "go", executor.Context{})
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, 3, result["iterations"])
	assert.Equal(t, false, result["stopped"])
}

func TestFeedbackLoop_RequiresInnerNodes(t *testing.T) {
	t.Parallel()

	loop := &FeedbackLoop{}
	_, err := loop.Execute(context.Background(), &models.Node{
		ID:   "loop",
		Type: models.NodeTypeFeedbackLoop,
		Data: map[string]any{"maxIterations": 2},
	}, nil, executor.Context{})
	assert.Error(t, err)
}

func TestFeedbackLoop_DisallowsNestedLoops(t *testing.T) {
	t.Parallel()

	loop := &FeedbackLoop{}
	_, err := loop.Execute(context.Background(), &models.Node{
		ID:   "loop",
		Type: models.NodeTypeFeedbackLoop,
		Data: map[string]any{
			"nodes": []any{
				map[string]any{"id": "inner", "type": "feedback_loop", "data": map[string]any{}},
			},
		},
	}, nil, executor.Context{})
	assert.Error(t, err)
}
