package orchestration

import (
	"context"
	"fmt"
)

// TeamConfig assembles a team. Agents maps each member name to its agent;
// the team registers each on the bus in Members order.
type TeamConfig struct {
	Name            string
	Members         []Member
	Agents          map[string]*Agent
	Coordinator     *Agent
	Strategy        string
	MaxRounds       int
	SharedContext   *SharedContext
	Bus             *MessageBus
	Callbacks       *CallbackManager
	EnableConsult   bool
	MaxConsultDepth int
}

// Team is the ephemeral ensemble created for one multi_agent node. The team
// owns its bus, shared context, and agent handles; agents reach the bus only
// through the tools handed to them, so there is no reference cycle.
type Team struct {
	name     string
	members  []Member
	agents   map[string]*Agent
	order    []string
	strategy Strategy

	coordinator     *Agent
	strategyName    string
	maxRounds       int
	shared          *SharedContext
	bus             *MessageBus
	callbacks       *CallbackManager
	enableConsult   bool
	maxConsultDepth int
}

// NewTeam builds a team and registers its agents on the message bus.
func NewTeam(cfg TeamConfig) (*Team, error) {
	if len(cfg.Members) == 0 {
		return nil, fmt.Errorf("team %q has no members", cfg.Name)
	}

	strategyName := cfg.Strategy
	if strategyName == "" {
		strategyName = StrategyCoordinator
	}
	strategy, err := strategyByName(strategyName)
	if err != nil {
		return nil, err
	}

	bus := cfg.Bus
	if bus == nil {
		bus = NewMessageBus(WithBusCallbacks(cfg.Callbacks))
	}
	shared := cfg.SharedContext
	if shared == nil {
		shared = NewSharedContext(nil)
	}

	maxDepth := cfg.MaxConsultDepth
	if maxDepth <= 0 {
		maxDepth = 1
	}

	t := &Team{
		name:            cfg.Name,
		members:         cfg.Members,
		agents:          make(map[string]*Agent, len(cfg.Members)),
		strategy:        strategy,
		coordinator:     cfg.Coordinator,
		strategyName:    strategyName,
		maxRounds:       cfg.MaxRounds,
		shared:          shared,
		bus:             bus,
		callbacks:       cfg.Callbacks,
		enableConsult:   cfg.EnableConsult,
		maxConsultDepth: maxDepth,
	}

	for _, member := range cfg.Members {
		agent, ok := cfg.Agents[member.Name]
		if !ok {
			return nil, fmt.Errorf("team %q: no agent for member %q", cfg.Name, member.Name)
		}
		t.agents[member.Name] = agent
		t.order = append(t.order, member.Name)
		bus.Register(member.Name)
	}
	if cfg.Coordinator != nil {
		if _, ok := t.agents[cfg.Coordinator.Name]; !ok {
			t.agents[cfg.Coordinator.Name] = cfg.Coordinator
			bus.Register(cfg.Coordinator.Name)
		}
	}

	return t, nil
}

// Name returns the team name.
func (t *Team) Name() string { return t.name }

// SharedContext returns the team's shared context.
func (t *Team) SharedContext() *SharedContext { return t.shared }

// Bus returns the team's message bus.
func (t *Team) Bus() *MessageBus { return t.bus }

// Run executes the team's strategy on a task.
func (t *Team) Run(ctx context.Context, task string) (*TeamResult, error) {
	t.callbacks.Emit(ctx, EventOrchestrationStart, map[string]any{
		"team":     t.name,
		"strategy": t.strategyName,
		"agents":   len(t.order),
	})

	sc := &StrategyContext{
		Coordinator:     t.coordinator,
		Members:         t.members,
		Order:           t.order,
		Bus:             t.bus,
		Shared:          t.shared,
		MaxRounds:       t.maxRounds,
		Callbacks:       t.callbacks,
		StrategyName:    t.strategyName,
		EnableConsult:   t.enableConsult,
		MaxConsultDepth: t.maxConsultDepth,
	}

	result, err := t.strategy.Execute(ctx, task, t.agents, sc)
	if err != nil {
		t.callbacks.Emit(ctx, EventOrchestrationError, map[string]any{
			"team":     t.name,
			"strategy": t.strategyName,
			"error":    err.Error(),
		})
		return nil, err
	}

	t.callbacks.Emit(ctx, EventOrchestrationEnd, map[string]any{
		"team":     t.name,
		"strategy": t.strategyName,
		"rounds":   result.Rounds,
		"tokens":   result.TotalTokens,
	})
	return result, nil
}
