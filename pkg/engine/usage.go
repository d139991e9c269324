package engine

import (
	"math"
	"strings"

	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
)

// AggregateUsage sums every _usage_* context entry into the execution's
// totals. Visited nodes are scanned in log order so model_used is the first
// model seen; cost is rounded to six decimal places. A zero-token execution
// leaves the aggregate empty.
func AggregateUsage(execution *models.Execution, execCtx executor.Context) {
	var prompt, completion int
	var cost float64
	var model string

	seen := make(map[string]bool)
	for _, log := range execution.NodeLogs {
		key := executor.UsageKey(log.NodeID)
		seen[key] = true
		addUsage(execCtx[key], &prompt, &completion, &cost, &model)
	}
	// Usage written by nodes outside the log (inner loop plans) still counts.
	for key, value := range execCtx {
		if strings.HasPrefix(key, executor.UsageKeyPrefix) && !seen[key] {
			addUsage(value, &prompt, &completion, &cost, &model)
		}
	}

	total := prompt + completion
	if total == 0 {
		return
	}
	execution.TotalTokens = total
	execution.EstimatedCost = math.Round(cost*1e6) / 1e6
	execution.ModelUsed = model
}

func addUsage(value any, prompt, completion *int, cost *float64, model *string) {
	m, ok := value.(map[string]any)
	if !ok {
		return
	}
	*prompt += asInt(m["prompt_tokens"])
	*completion += asInt(m["completion_tokens"])
	*cost += asFloat(m["cost"])
	if *model == "" {
		if name, ok := m["model"].(string); ok {
			*model = name
		}
	}
}

// asInt tolerates the float64 shape produced by JSON round-trips.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
