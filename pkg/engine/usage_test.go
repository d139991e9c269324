package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
)

func TestAggregateUsage_SumsAcrossNodes(t *testing.T) {
	t.Parallel()

	execution := &models.Execution{
		NodeLogs: []*models.NodeExecution{
			{NodeID: "A"}, {NodeID: "B"}, {NodeID: "C"},
		},
	}
	execCtx := executor.Context{
		executor.UsageKey("A"): map[string]any{
			"prompt_tokens": 100, "completion_tokens": 40, "cost": 0.001, "model": "gpt-4o-mini",
		},
		// Float-typed numbers appear after a checkpoint JSON round-trip.
		executor.UsageKey("B"): map[string]any{
			"prompt_tokens": float64(50), "completion_tokens": float64(10), "cost": 0.0005, "model": "claude-3-haiku",
		},
	}

	AggregateUsage(execution, execCtx)

	assert.Equal(t, 200, execution.TotalTokens)
	assert.InDelta(t, 0.0015, execution.EstimatedCost, 1e-9)
	// First model seen in node-log order wins.
	assert.Equal(t, "gpt-4o-mini", execution.ModelUsed)
}

func TestAggregateUsage_EmptyWhenNoTokens(t *testing.T) {
	t.Parallel()

	execution := &models.Execution{NodeLogs: []*models.NodeExecution{{NodeID: "A"}}}
	AggregateUsage(execution, executor.Context{})

	assert.Zero(t, execution.TotalTokens)
	assert.Zero(t, execution.EstimatedCost)
	assert.Empty(t, execution.ModelUsed)
}

func TestAggregateUsage_CostRoundedToSixDecimals(t *testing.T) {
	t.Parallel()

	execution := &models.Execution{NodeLogs: []*models.NodeExecution{{NodeID: "A"}}}
	execCtx := executor.Context{
		executor.UsageKey("A"): map[string]any{
			"prompt_tokens": 1, "completion_tokens": 1, "cost": 0.00000049, "model": "m",
		},
	}

	AggregateUsage(execution, execCtx)
	assert.Equal(t, 0.0, execution.EstimatedCost)
	assert.Equal(t, 2, execution.TotalTokens)
}
