package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MapReduceStrategy runs every agent concurrently on the same task (map) and
// then has a reducer consolidate their outputs (reduce). Always exactly two
// rounds.
type MapReduceStrategy struct{}

// Execute implements Strategy.
func (s *MapReduceStrategy) Execute(ctx context.Context, task string, agents map[string]*Agent, sc *StrategyContext) (*TeamResult, error) {
	started := time.Now()

	if len(sc.Order) == 0 {
		return nil, fmt.Errorf("map_reduce strategy requires at least one agent")
	}

	outputs := make(map[string]AgentOutput)
	var totalCost float64
	var totalTokens int

	// Map: all agents in parallel on the same task.
	type mapResult struct {
		name   string
		result *RunResult
		err    error
	}

	var wg sync.WaitGroup
	resultCh := make(chan mapResult, len(sc.Order))
	for _, name := range sc.Order {
		wg.Add(1)
		go func(name string, agent *Agent) {
			defer wg.Done()
			sc.Callbacks.Emit(ctx, EventAgentDelegated, map[string]any{
				"agent_name": name,
				"phase":      "map",
				"strategy":   sc.StrategyName,
			})
			result, err := agent.Run(ctx, task)
			resultCh <- mapResult{name: name, result: result, err: err}
		}(name, agents[name])
	}
	wg.Wait()
	close(resultCh)

	mapOutputs := make(map[string]string)
	for r := range resultCh {
		if r.err != nil {
			return nil, fmt.Errorf("map_reduce agent %s: %w", r.name, r.err)
		}
		mapOutputs[r.name] = r.result.Output
		outputs[r.name+"_map"] = AgentOutput{
			AgentName:  r.name,
			Role:       RoleWorker,
			Output:     r.result.Output,
			Tokens:     r.result.Usage.TotalTokens,
			Cost:       r.result.Cost,
			DurationMs: r.result.DurationMs,
		}
		totalCost += r.result.Cost
		totalTokens += r.result.Usage.TotalTokens

		sc.Callbacks.Emit(ctx, EventAgentCompleted, map[string]any{
			"agent_name": r.name,
			"phase":      "map",
			"tokens":     r.result.Usage.TotalTokens,
			"strategy":   sc.StrategyName,
		})
		if sc.Shared != nil {
			sc.Shared.Set(r.name+"_map", r.result.Output, r.name)
		}
	}

	// Reduce: the coordinator if present, first agent otherwise.
	reducer := sc.Coordinator
	reducerName := ""
	if reducer != nil {
		reducerName = reducer.Name
	} else {
		reducerName = sc.Order[0]
		reducer = agents[reducerName]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\nThe following agents each produced an answer:\n", task)
	for _, name := range sc.Order {
		fmt.Fprintf(&b, "\n[%s]:\n%s\n", name, mapOutputs[name])
	}
	b.WriteString("\nConsolidate these answers into a single, comprehensive response.")

	sc.Callbacks.Emit(ctx, EventSynthesisStart, map[string]any{
		"synthesizer": reducerName,
		"phase":       "reduce",
		"strategy":    sc.StrategyName,
	})

	reduceResult, err := reducer.Run(ctx, b.String())
	if err != nil {
		return nil, fmt.Errorf("map_reduce reducer %s: %w", reducerName, err)
	}

	outputs[reducerName+"_reduce"] = AgentOutput{
		AgentName:  reducerName,
		Role:       RoleCoordinator,
		Output:     reduceResult.Output,
		Tokens:     reduceResult.Usage.TotalTokens,
		Cost:       reduceResult.Cost,
		DurationMs: reduceResult.DurationMs,
	}
	totalCost += reduceResult.Cost
	totalTokens += reduceResult.Usage.TotalTokens

	sc.Callbacks.Emit(ctx, EventAgentCompleted, map[string]any{
		"agent_name": reducerName,
		"phase":      "reduce",
		"tokens":     reduceResult.Usage.TotalTokens,
		"strategy":   sc.StrategyName,
	})
	if sc.Shared != nil {
		sc.Shared.Set("reduce_output", reduceResult.Output, reducerName)
	}

	var messages []AgentMessage
	if sc.Bus != nil {
		messages = sc.Bus.History()
	}

	return &TeamResult{
		Output:       reduceResult.Output,
		AgentOutputs: outputs,
		Messages:     messages,
		TotalCost:    totalCost,
		TotalTokens:  totalTokens,
		Rounds:       2,
		DurationMs:   time.Since(started).Milliseconds(),
		Strategy:     sc.StrategyName,
	}, nil
}
