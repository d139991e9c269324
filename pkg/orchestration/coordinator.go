package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// CoordinatorStrategy orchestrates through a coordinator agent that delegates
// with dynamically synthesised tools, one per worker. The model decides when
// and to whom to delegate; worker results flow back through the tool loop.
type CoordinatorStrategy struct{}

// Execute implements Strategy.
func (s *CoordinatorStrategy) Execute(ctx context.Context, task string, agents map[string]*Agent, sc *StrategyContext) (*TeamResult, error) {
	started := time.Now()
	maxRounds := sc.rounds(defaultCoordinatorRounds)

	coordinator := sc.Coordinator
	if coordinator == nil && len(sc.Order) > 0 {
		coordinator = agents[sc.Order[0]]
	}
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator strategy requires at least one agent")
	}

	var mu sync.Mutex
	outputs := make(map[string]AgentOutput)

	workers := make(map[string]*Agent)
	var workerOrder []string
	for _, name := range sc.Order {
		if agents[name] != coordinator {
			workers[name] = agents[name]
			workerOrder = append(workerOrder, name)
		}
	}

	// Single-agent team: nothing to delegate, run directly.
	if len(workers) == 0 {
		result, err := coordinator.Run(ctx, task)
		if err != nil {
			return nil, err
		}
		outputs[coordinator.Name] = AgentOutput{
			AgentName:  coordinator.Name,
			Role:       RoleCoordinator,
			Output:     result.Output,
			Tokens:     result.Usage.TotalTokens,
			Cost:       result.Cost,
			DurationMs: result.DurationMs,
		}
		return &TeamResult{
			Output:       result.Output,
			AgentOutputs: outputs,
			TotalCost:    result.Cost,
			TotalTokens:  result.Usage.TotalTokens,
			Rounds:       1,
			DurationMs:   time.Since(started).Milliseconds(),
			Strategy:     sc.StrategyName,
		}, nil
	}

	onResult := func(ctx context.Context, agentName string, role TeamRole, result *RunResult) {
		mu.Lock()
		outputs[agentName] = AgentOutput{
			AgentName:  agentName,
			Role:       role,
			Output:     result.Output,
			Tokens:     result.Usage.TotalTokens,
			Cost:       result.Cost,
			DurationMs: result.DurationMs,
		}
		mu.Unlock()

		if sc.Shared != nil {
			sc.Shared.Set(agentName+"_result", result.Output, agentName)
		}
		sc.Callbacks.Emit(ctx, EventAgentCompleted, map[string]any{
			"agent_name": agentName,
			"strategy":   sc.StrategyName,
			"tokens":     result.Usage.TotalTokens,
		})
	}

	var members []Member
	for _, name := range workerOrder {
		if m, ok := sc.member(name); ok {
			members = append(members, m)
		} else {
			members = append(members, Member{Name: name, Role: RoleWorker})
		}
	}
	tools := NewDelegationTools(members, workers, sc.Bus, coordinator.Name, onResult)
	if sc.Shared != nil {
		tools = append(tools, NewContextTools(sc.Shared, coordinator.Name)...)
	}

	result, err := coordinator.RunWithTools(ctx, task, tools, maxRounds, coordinatorSystemPrompt(workerOrder, workers, sc))
	if err != nil {
		return nil, err
	}

	mu.Lock()
	outputs[coordinator.Name] = AgentOutput{
		AgentName:  coordinator.Name,
		Role:       RoleCoordinator,
		Output:     result.Output,
		Tokens:     result.Usage.TotalTokens,
		Cost:       result.Cost,
		DurationMs: result.DurationMs,
	}
	var totalCost float64
	var totalTokens int
	for _, out := range outputs {
		totalCost += out.Cost
		totalTokens += out.Tokens
	}
	rounds := len(outputs)
	mu.Unlock()

	var messages []AgentMessage
	if sc.Bus != nil {
		messages = sc.Bus.History()
	}

	return &TeamResult{
		Output:       result.Output,
		AgentOutputs: outputs,
		Messages:     messages,
		TotalCost:    totalCost,
		TotalTokens:  totalTokens,
		Rounds:       rounds,
		DurationMs:   time.Since(started).Milliseconds(),
		Strategy:     sc.StrategyName,
	}, nil
}

// coordinatorSystemPrompt lists the workers and their capabilities so the
// model knows who it can delegate to.
func coordinatorSystemPrompt(order []string, workers map[string]*Agent, sc *StrategyContext) string {
	var b strings.Builder
	b.WriteString("You are a team coordinator managing the following agents:\n")
	for _, name := range order {
		role := workers[name].Role
		if role == "" {
			role = "worker"
		}
		b.WriteString("- " + name + ": " + role)
		if m, ok := sc.member(name); ok && len(m.Capabilities) > 0 {
			b.WriteString(" (capabilities: " + joinStrings(m.Capabilities) + ")")
		}
		b.WriteString("\n")
	}
	b.WriteString("\nYour job is to:\n")
	b.WriteString("1. Analyze the given task\n")
	b.WriteString("2. Delegate subtasks to appropriate team members using the delegation tools\n")
	b.WriteString("3. Synthesize their results into a final comprehensive response\n\n")
	b.WriteString("Use the delegate_to_* tools to assign work. You can delegate to multiple agents.")
	return b.String()
}
