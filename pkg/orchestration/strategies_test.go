package orchestration

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline-ai/flowline/pkg/provider"
)

// scriptedChat returns canned completions in order, then echoes.
type scriptedChat struct {
	mu        sync.Mutex
	responses []*provider.Completion
	calls     int
}

func (s *scriptedChat) Complete(_ context.Context, messages []provider.Message, _ []provider.Tool) (*provider.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if len(s.responses) > 0 {
		next := s.responses[0]
		s.responses = s.responses[1:]
		return next, nil
	}

	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	return &provider.Completion{
		Content: "echo: " + last,
		Usage:   provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

// fixedChat always returns the same content; used for convergence tests.
type fixedChat struct {
	content string
}

func (f *fixedChat) Complete(context.Context, []provider.Message, []provider.Tool) (*provider.Completion, error) {
	return &provider.Completion{
		Content: f.content,
		Usage:   provider.Usage{PromptTokens: 4, CompletionTokens: 4, TotalTokens: 8},
	}, nil
}

func testTeam(t *testing.T, strategy string, maxRounds int, agents ...*Agent) *Team {
	t.Helper()

	members := make([]Member, len(agents))
	byName := make(map[string]*Agent, len(agents))
	for i, a := range agents {
		members[i] = Member{Name: a.Name, Role: RoleWorker, Model: a.Model}
		byName[a.Name] = a
	}

	team, err := NewTeam(TeamConfig{
		Name:      "test-team",
		Members:   members,
		Agents:    byName,
		Strategy:  strategy,
		MaxRounds: maxRounds,
	})
	require.NoError(t, err)
	return team
}

func TestRoundRobin_AgentsTakeTurns(t *testing.T) {
	t.Parallel()

	first := NewAgent("first", "worker", "test-model", "", &scriptedChat{
		responses: []*provider.Completion{{Content: "draft", Usage: provider.Usage{TotalTokens: 10}}},
	})
	second := NewAgent("second", "worker", "test-model", "", &scriptedChat{
		responses: []*provider.Completion{{Content: "refined draft", Usage: provider.Usage{TotalTokens: 12}}},
	})

	team := testTeam(t, StrategyRoundRobin, 1, first, second)
	result, err := team.Run(context.Background(), "write a post")
	require.NoError(t, err)

	// The second agent refines the first's output and wins.
	assert.Equal(t, "refined draft", result.Output)
	assert.Equal(t, 1, result.Rounds)
	assert.Equal(t, StrategyRoundRobin, result.Strategy)
	assert.Contains(t, result.AgentOutputs, "first_r1")
	assert.Contains(t, result.AgentOutputs, "second_r1")
	assert.Equal(t, 22, result.TotalTokens)
	assert.Equal(t, "refined draft", team.SharedContext().Get("final_output"))
}

func TestDebate_ConvergenceStopsEarly(t *testing.T) {
	t.Parallel()

	// Fixed positions converge after the second round.
	a := NewAgent("a", "worker", "test-model", "", &fixedChat{content: "position A"})
	b := NewAgent("b", "worker", "test-model", "", &fixedChat{content: "position B"})

	maxRounds := 5
	team := testTeam(t, StrategyDebate, maxRounds, a, b)
	result, err := team.Run(context.Background(), "discuss")
	require.NoError(t, err)

	assert.True(t, result.Converged)
	// Converged debates always use fewer than max_rounds rounds.
	assert.Less(t, result.Rounds, maxRounds)
	assert.Equal(t, 2, result.Rounds)

	// Synthesis output comes from the first agent.
	assert.Equal(t, "position A", result.Output)
	assert.Contains(t, result.AgentOutputs, "a_synthesis")
	assert.Equal(t, true, team.SharedContext().Get("converged"))
	assert.Equal(t, 2, team.SharedContext().Get("convergence_round"))
}

func TestDebate_RunsAllRoundsWithoutConvergence(t *testing.T) {
	t.Parallel()

	counterA, counterB := &scriptedChat{}, &scriptedChat{}
	a := NewAgent("a", "worker", "test-model", "", counterA)
	b := NewAgent("b", "worker", "test-model", "", counterB)

	team := testTeam(t, StrategyDebate, 2, a, b)
	result, err := team.Run(context.Background(), "discuss")
	require.NoError(t, err)

	// Echo responses change every round, so no convergence.
	assert.False(t, result.Converged)
	assert.Equal(t, 2, result.Rounds)
}

func TestMapReduce_ExactlyTwoRounds(t *testing.T) {
	t.Parallel()

	a := NewAgent("a", "worker", "test-model", "", &fixedChat{content: "answer from a"})
	b := NewAgent("b", "worker", "test-model", "", &scriptedChat{
		responses: []*provider.Completion{{Content: "answer from b", Usage: provider.Usage{TotalTokens: 9}}},
	})

	team := testTeam(t, StrategyMapReduce, 0, a, b)
	result, err := team.Run(context.Background(), "solve")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Rounds)
	assert.Contains(t, result.AgentOutputs, "a_map")
	assert.Contains(t, result.AgentOutputs, "b_map")
	assert.Contains(t, result.AgentOutputs, "a_reduce")
	// The reducer (first agent) consolidates; fixedChat keeps returning its
	// content, which is fine for the contract.
	assert.Equal(t, "answer from a", result.Output)
}

func TestCoordinator_DelegatesThroughTools(t *testing.T) {
	t.Parallel()

	coordChat := &scriptedChat{
		responses: []*provider.Completion{
			{
				ToolCalls: []provider.ToolCall{{
					ID:        "call-1",
					Name:      "delegate_to_worker",
					Arguments: map[string]any{"task": "research the topic"},
				}},
				Usage: provider.Usage{TotalTokens: 20},
			},
			{Content: "final summary", Usage: provider.Usage{TotalTokens: 15}},
		},
	}
	coordinator := NewAgent("lead", "coordinator", "test-model", "", coordChat)
	worker := NewAgent("worker", "researcher", "test-model", "", &fixedChat{content: "research notes"})

	team, err := NewTeam(TeamConfig{
		Name:        "coord-team",
		Members:     []Member{{Name: "worker", Role: RoleWorker, Capabilities: []string{"research"}}},
		Agents:      map[string]*Agent{"worker": worker},
		Coordinator: coordinator,
		Strategy:    StrategyCoordinator,
	})
	require.NoError(t, err)

	result, err := team.Run(context.Background(), "produce a report")
	require.NoError(t, err)

	assert.Equal(t, "final summary", result.Output)
	require.Contains(t, result.AgentOutputs, "worker")
	assert.Equal(t, "research notes", result.AgentOutputs["worker"].Output)
	require.Contains(t, result.AgentOutputs, "lead")
	assert.Equal(t, RoleCoordinator, result.AgentOutputs["lead"].Role)

	// The delegation round-trip is visible on the bus and in shared context.
	assert.NotEmpty(t, team.Bus().History())
	assert.Equal(t, "research notes", team.SharedContext().Get("worker_result"))
}

func TestTeam_EmitsOrchestrationEvents(t *testing.T) {
	t.Parallel()

	callbacks := NewCallbackManager()
	var mu sync.Mutex
	var events []CallbackEvent
	callbacks.Register(func(_ context.Context, event CallbackEvent, _ map[string]any) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})

	a := NewAgent("a", "worker", "test-model", "", &fixedChat{content: "out"})
	team, err := NewTeam(TeamConfig{
		Name:      "events-team",
		Members:   []Member{{Name: "a", Role: RoleWorker}},
		Agents:    map[string]*Agent{"a": a},
		Strategy:  StrategyRoundRobin,
		Callbacks: callbacks,
	})
	require.NoError(t, err)

	_, err = team.Run(context.Background(), "task")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventOrchestrationStart, events[0])
	assert.Equal(t, EventOrchestrationEnd, events[len(events)-1])
	assert.Contains(t, events, EventAgentDelegated)
	assert.Contains(t, events, EventAgentCompleted)
}

func TestStrategyByName_Unknown(t *testing.T) {
	t.Parallel()

	_, err := NewTeam(TeamConfig{
		Name:     "bad",
		Members:  []Member{{Name: "a"}},
		Agents:   map[string]*Agent{"a": NewAgent("a", "", "m", "", &fixedChat{})},
		Strategy: "tournament",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}

func TestConsultTools_DepthBounded(t *testing.T) {
	t.Parallel()

	members := []Member{{Name: "a"}, {Name: "b"}}
	agents := map[string]*Agent{
		"a": NewAgent("a", "", "m", "", &fixedChat{content: "from a"}),
		"b": NewAgent("b", "", "m", "", &fixedChat{content: "from b"}),
	}

	tools := NewConsultTools(members, agents, "a", nil, 1)
	require.Len(t, tools, 1)
	assert.Equal(t, "consult_b", tools[0].Name)

	out, err := tools[0].Call(context.Background(), map[string]any{"task": "what do you think?"})
	require.NoError(t, err)
	assert.Equal(t, "from b", out)

	// Depth zero disables consultation entirely.
	assert.Nil(t, NewConsultTools(members, agents, "a", nil, 0))
}

func TestDelegationTools_NamedPerWorker(t *testing.T) {
	t.Parallel()

	members := []Member{{Name: "alpha", Role: RoleWorker}, {Name: "beta", Role: RoleWorker}}
	agents := map[string]*Agent{
		"alpha": NewAgent("alpha", "analyst", "m", "", &fixedChat{content: "alpha out"}),
		"beta":  NewAgent("beta", "critic", "m", "", &fixedChat{content: "beta out"}),
	}

	var recorded []string
	tools := NewDelegationTools(members, agents, nil, "lead", func(_ context.Context, name string, _ TeamRole, _ *RunResult) {
		recorded = append(recorded, name)
	})

	require.Len(t, tools, 2)
	names := []string{tools[0].Name, tools[1].Name}
	assert.Contains(t, names, "delegate_to_alpha")
	assert.Contains(t, names, "delegate_to_beta")

	for i, tool := range tools {
		out, err := tool.Call(context.Background(), map[string]any{"task": fmt.Sprintf("task %d", i)})
		require.NoError(t, err)
		assert.NotEmpty(t, out)
	}
	assert.Len(t, recorded, 2)
}
