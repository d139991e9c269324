package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DebateStrategy has every agent respond to the accumulated debate each
// round. After the first round, unchanged positions across the whole team
// mean convergence and the debate stops early. A synthesizer (dedicated
// coordinator or the first agent) produces the final output.
type DebateStrategy struct{}

// Execute implements Strategy.
func (s *DebateStrategy) Execute(ctx context.Context, task string, agents map[string]*Agent, sc *StrategyContext) (*TeamResult, error) {
	started := time.Now()
	maxRounds := sc.rounds(defaultDebateRounds)

	if len(sc.Order) == 0 {
		return nil, fmt.Errorf("debate strategy requires at least one agent")
	}

	outputs := make(map[string]AgentOutput)
	var totalCost float64
	var totalTokens int
	var transcript []string

	previousPositions := make(map[string]string)
	converged := false
	actualRounds := 0

	for round := 1; round <= maxRounds; round++ {
		actualRounds = round
		currentPositions := make(map[string]string)

		for _, name := range sc.Order {
			agent := agents[name]
			prompt := debatePrompt(task, transcript, round, len(sc.Order))

			if sc.Bus != nil {
				content := prompt
				if len(content) > 500 {
					content = content[:500]
				}
				_ = sc.Bus.Send(ctx, AgentMessage{
					Sender:    "system",
					Recipient: name,
					Type:      MessageTask,
					Content:   content,
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

			result, err := agent.RunWithTools(ctx, prompt, consultTools, 0, "")
			if err != nil {
				return nil, fmt.Errorf("debate agent %s: %w", name, err)
			}

			currentPositions[name] = result.Output
			transcript = append(transcript, fmt.Sprintf("[%s] (Round %d): %s", name, round, result.Output))

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
				sc.Shared.Set(fmt.Sprintf("%s_position_r%d", name, round), result.Output, name)
			}
			if sc.Bus != nil {
				_ = sc.Bus.Send(ctx, AgentMessage{
					Sender:   name,
					Type:     MessageResponse,
					Content:  result.Output,
					Metadata: map[string]any{"round": round},
				})
			}
		}

		// Convergence: only meaningful once there is a previous round to
		// compare against, and only checked while rounds remain to be
		// skipped, so a converged debate always stops before max rounds.
		if round > 1 && round < maxRounds {
			unchanged := true
			for name, position := range currentPositions {
				if previousPositions[name] != position {
					unchanged = false
					break
				}
			}
			if unchanged {
				converged = true
				sc.Callbacks.Emit(ctx, EventConvergenceDetected, map[string]any{
					"round":    round,
					"strategy": sc.StrategyName,
				})
				if sc.Shared != nil {
					sc.Shared.Set("convergence_round", round, StrategyDebate)
				}
				break
			}
		}
		previousPositions = currentPositions
	}

	// Synthesis: dedicated coordinator if present, first agent otherwise.
	synthesizer := sc.Coordinator
	synthName := ""
	if synthesizer != nil {
		synthName = synthesizer.Name
	} else {
		synthName = sc.Order[0]
		synthesizer = agents[synthName]
	}

	synthesisPrompt := fmt.Sprintf(
		"Task: %s\n\nThe following debate has concluded:\n%s\n\nPlease synthesize the key points into a final, comprehensive response.",
		task, strings.Join(transcript, "\n---\n"))

	if sc.Bus != nil {
		_ = sc.Bus.Send(ctx, AgentMessage{
			Sender:    "system",
			Recipient: synthName,
			Type:      MessageTask,
			Content:   "Synthesize debate results",
			Metadata:  map[string]any{"phase": "synthesis"},
		})
	}
	sc.Callbacks.Emit(ctx, EventSynthesisStart, map[string]any{
		"synthesizer":   synthName,
		"debate_rounds": actualRounds,
		"strategy":      sc.StrategyName,
	})

	synthResult, err := synthesizer.Run(ctx, synthesisPrompt)
	if err != nil {
		return nil, fmt.Errorf("debate synthesis by %s: %w", synthName, err)
	}

	outputs[synthName+"_synthesis"] = AgentOutput{
		AgentName:  synthName,
		Role:       RoleCoordinator,
		Output:     synthResult.Output,
		Tokens:     synthResult.Usage.TotalTokens,
		Cost:       synthResult.Cost,
		DurationMs: synthResult.DurationMs,
	}
	totalCost += synthResult.Cost
	totalTokens += synthResult.Usage.TotalTokens

	sc.Callbacks.Emit(ctx, EventAgentCompleted, map[string]any{
		"agent_name": synthName,
		"phase":      "synthesis",
		"tokens":     synthResult.Usage.TotalTokens,
		"strategy":   sc.StrategyName,
	})

	if sc.Shared != nil {
		sc.Shared.Set("synthesis", synthResult.Output, synthName)
		if converged {
			sc.Shared.Set("converged", true, StrategyDebate)
		}
	}
	if sc.Bus != nil {
		_ = sc.Bus.Send(ctx, AgentMessage{
			Sender:    synthName,
			Recipient: "system",
			Type:      MessageResult,
			Content:   synthResult.Output,
			Metadata:  map[string]any{"phase": "synthesis"},
		})
	}

	var messages []AgentMessage
	if sc.Bus != nil {
		messages = sc.Bus.History()
	}

	return &TeamResult{
		Output:       synthResult.Output,
		AgentOutputs: outputs,
		Messages:     messages,
		TotalCost:    totalCost,
		TotalTokens:  totalTokens,
		Rounds:       actualRounds,
		DurationMs:   time.Since(started).Milliseconds(),
		Strategy:     sc.StrategyName,
		Converged:    converged,
	}, nil
}

// debatePrompt windows the transcript to the most recent 2·|agents| entries
// so later rounds stay within context limits.
func debatePrompt(task string, transcript []string, round, agentCount int) string {
	if len(transcript) == 0 {
		return fmt.Sprintf("Task: %s\n\nRound 1: Please provide your initial perspective on this topic.", task)
	}

	window := transcript
	if limit := agentCount * 2; len(window) > limit {
		window = window[len(window)-limit:]
	}
	return fmt.Sprintf(
		"Task: %s\n\nPrevious arguments:\n%s\n\nRound %d: Please provide your perspective, building on or challenging the previous arguments.",
		task, strings.Join(window, "\n---\n"), round)
}
