package orchestration

import (
	"context"
	"fmt"
)

// Strategy names accepted by node data and the team builder.
const (
	StrategyCoordinator = "coordinator"
	StrategyRoundRobin  = "round_robin"
	StrategyDebate      = "debate"
	StrategyMapReduce   = "map_reduce"
)

// Per-strategy default round counts, applied when the team leaves MaxRounds
// unset. map_reduce always runs exactly two rounds (map, then reduce).
const (
	defaultCoordinatorRounds = 10
	defaultRoundRobinRounds  = 1
	defaultDebateRounds      = 3
)

// StrategyContext is the typed contract between Team.Run and strategies.
type StrategyContext struct {
	// Coordinator is the dedicated coordinator agent, if any.
	Coordinator *Agent
	// Members describes the team in declared order.
	Members []Member
	// Order lists agent names in declared order; strategies iterate it
	// instead of the agents map to stay deterministic.
	Order []string
	// Bus is the team's message bus.
	Bus *MessageBus
	// Shared is the team's shared context.
	Shared *SharedContext
	// MaxRounds bounds orchestration rounds; zero applies the strategy
	// default.
	MaxRounds int
	// Callbacks receives observability events; may be nil.
	Callbacks *CallbackManager
	// StrategyName tags results.
	StrategyName string
	// EnableConsult gives agents consult_<peer> tools during their turns.
	EnableConsult bool
	// MaxConsultDepth bounds chained consultation.
	MaxConsultDepth int
}

func (sc *StrategyContext) member(name string) (Member, bool) {
	for _, m := range sc.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

func (sc *StrategyContext) rounds(fallback int) int {
	if sc.MaxRounds > 0 {
		return sc.MaxRounds
	}
	return fallback
}

// Strategy orchestrates a team on one task.
type Strategy interface {
	Execute(ctx context.Context, task string, agents map[string]*Agent, sc *StrategyContext) (*TeamResult, error)
}

// strategyByName resolves a strategy identifier.
func strategyByName(name string) (Strategy, error) {
	switch name {
	case StrategyCoordinator:
		return &CoordinatorStrategy{}, nil
	case StrategyRoundRobin, "sequential":
		return &RoundRobinStrategy{}, nil
	case StrategyDebate:
		return &DebateStrategy{}, nil
	case StrategyMapReduce:
		return &MapReduceStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
