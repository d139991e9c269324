package orchestration

import (
	"context"
	"fmt"
	"time"
)

// RoundRobinStrategy has each agent take a turn, refining the previous
// agent's output. With consult enabled, the current agent may ask its peers
// questions through consult_<peer> tools, bounded by the consult depth.
type RoundRobinStrategy struct{}

// Execute implements Strategy.
func (s *RoundRobinStrategy) Execute(ctx context.Context, task string, agents map[string]*Agent, sc *StrategyContext) (*TeamResult, error) {
	started := time.Now()
	maxRounds := sc.rounds(defaultRoundRobinRounds)

	outputs := make(map[string]AgentOutput)
	var totalCost float64
	var totalTokens int
	currentInput := task

	for round := 1; round <= maxRounds; round++ {
		for _, name := range sc.Order {
			agent := agents[name]

			if sc.Bus != nil {
				_ = sc.Bus.Send(ctx, AgentMessage{
					Sender:    "system",
					Recipient: name,
					Type:      MessageTask,
					Content:   currentInput,
					Metadata:  map[string]any{"round": round},
				})
			}
			sc.Callbacks.Emit(ctx, EventAgentDelegated, map[string]any{
				"agent_name": name,
				"round":      round,
				"strategy":   sc.StrategyName,
			})

			var consultTools []Tool
			if sc.EnableConsult {
				consultTools = NewConsultTools(sc.Members, agents, name, sc.Bus, sc.MaxConsultDepth)
			}

			result, err := agent.RunWithTools(ctx, currentInput, consultTools, 0, "")
			if err != nil {
				return nil, fmt.Errorf("round_robin agent %s: %w", name, err)
			}
			currentInput = result.Output

			outputs[fmt.Sprintf("%s_r%d", name, round)] = AgentOutput{
				AgentName:  name,
				Role:       RoleWorker,
				Output:     result.Output,
				Tokens:     result.Usage.TotalTokens,
				Cost:       result.Cost,
				DurationMs: result.DurationMs,
			}
			totalCost += result.Cost
			totalTokens += result.Usage.TotalTokens

			sc.Callbacks.Emit(ctx, EventAgentCompleted, map[string]any{
				"agent_name": name,
				"round":      round,
				"tokens":     result.Usage.TotalTokens,
				"strategy":   sc.StrategyName,
			})

			if sc.Shared != nil {
				sc.Shared.Set(fmt.Sprintf("%s_r%d", name, round), result.Output, name)
			}
			if sc.Bus != nil {
				_ = sc.Bus.Send(ctx, AgentMessage{
					Sender:    name,
					Recipient: "system",
					Type:      MessageResult,
					Content:   result.Output,
					Metadata:  map[string]any{"round": round},
				})
			}
		}
	}

	if sc.Shared != nil {
		sc.Shared.Set("final_output", currentInput, StrategyRoundRobin)
	}

	var messages []AgentMessage
	if sc.Bus != nil {
		messages = sc.Bus.History()
	}

	return &TeamResult{
		Output:       currentInput,
		AgentOutputs: outputs,
		Messages:     messages,
		TotalCost:    totalCost,
		TotalTokens:  totalTokens,
		Rounds:       maxRounds,
		DurationMs:   time.Since(started).Milliseconds(),
		Strategy:     sc.StrategyName,
	}, nil
}
