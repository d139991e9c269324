package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline-ai/flowline/pkg/builder"
	"github.com/flowline-ai/flowline/pkg/engine"
	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/executor/builtin"
	"github.com/flowline-ai/flowline/pkg/models"
)

// stubExecutor runs an injectable func, teacher-style.
type stubExecutor struct {
	fn func(ctx context.Context, node *models.Node, input any, execCtx executor.Context) (any, error)
}

func (s *stubExecutor) Execute(ctx context.Context, node *models.Node, input any, execCtx executor.Context) (any, error) {
	return s.fn(ctx, node, input, execCtx)
}

func mockRunner(t *testing.T) (*engine.Runner, *engine.MemoryCheckpointStore) {
	t.Helper()
	mock, err := builtin.NewMockManager()
	require.NoError(t, err)
	store := engine.NewMemoryCheckpointStore()
	return engine.NewRunner(mock, mock, store), store
}

func stubRunner(t *testing.T, fn func(ctx context.Context, node *models.Node, input any, execCtx executor.Context) (any, error)) (*engine.Runner, *engine.MemoryCheckpointStore) {
	t.Helper()
	mgr := executor.NewManager()
	stub := &stubExecutor{fn: fn}
	for _, nodeType := range []models.NodeType{
		models.NodeTypeTrigger, models.NodeTypeAgent, models.NodeTypeCondition,
		models.NodeTypeParallel, models.NodeTypeMCPTool,
	} {
		require.NoError(t, mgr.Register(nodeType, stub))
	}
	store := engine.NewMemoryCheckpointStore()
	return engine.NewRunner(mgr, nil, store), store
}

func nodeIDs(execution *models.Execution) []string {
	ids := make([]string, len(execution.NodeLogs))
	for i, log := range execution.NodeLogs {
		ids[i] = log.NodeID
	}
	return ids
}

func TestRun_LinearAgentChain(t *testing.T) {
	t.Parallel()

	wf := builder.NewWorkflow("linear").
		AddNode("A", models.NodeTypeAgent, nil).
		AddNode("B", models.NodeTypeAgent, nil).
		AddNode("C", models.NodeTypeAgent, nil).
		Connect("A", "B").
		Connect("B", "C").
		MustBuild()

	runner, store := mockRunner(t)
	execution, err := runner.Run(context.Background(), wf, "hello", &engine.Options{Mode: models.ModeMock})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, "[Mock] C", execution.Output)
	require.Len(t, execution.NodeLogs, 3)
	for _, log := range execution.NodeLogs {
		assert.Equal(t, models.NodeStatusCompleted, log.Status)
	}

	// No checkpoint row survives a completed execution.
	_, err = store.Load(context.Background(), execution.ID)
	assert.ErrorIs(t, err, engine.ErrNoCheckpoint)
}

func TestRun_BranchingCondition(t *testing.T) {
	t.Parallel()

	wf := builder.NewWorkflow("branch").
		AddNode("A", models.NodeTypeAgent, nil).
		AddNode("cond", models.NodeTypeCondition, map[string]any{"condition": "true"}).
		AddNode("B", models.NodeTypeAgent, nil).
		AddNode("C", models.NodeTypeAgent, nil).
		Connect("A", "cond").
		ConnectHandle("cond", "B", models.HandleTrue).
		ConnectHandle("cond", "C", models.HandleFalse).
		MustBuild()

	runner, _ := mockRunner(t)
	execution, err := runner.Run(context.Background(), wf, "x", &engine.Options{Mode: models.ModeMock})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	ids := nodeIDs(execution)
	assert.Contains(t, ids, "A")
	assert.Contains(t, ids, "cond")
	assert.Contains(t, ids, "B")
	assert.NotContains(t, ids, "C")
}

func TestRun_ParallelFanIn(t *testing.T) {
	t.Parallel()

	wf := builder.NewWorkflow("parallel").
		AddNode("A", models.NodeTypeAgent, nil).
		AddNode("P", models.NodeTypeParallel, nil).
		AddNode("B", models.NodeTypeAgent, nil).
		AddNode("C", models.NodeTypeAgent, nil).
		AddNode("M", models.NodeTypeAgent, nil).
		Connect("A", "P").
		Connect("P", "B").
		Connect("P", "C").
		Connect("B", "M").
		Connect("C", "M").
		MustBuild()

	runner, _ := mockRunner(t)
	execution, err := runner.Run(context.Background(), wf, "in", &engine.Options{Mode: models.ModeMock})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	require.Len(t, execution.NodeLogs, 5)

	// The join node runs exactly once and sees both branch outputs.
	var joins int
	for _, log := range execution.NodeLogs {
		if log.NodeID == "M" {
			joins++
			input, ok := log.Input.(string)
			require.True(t, ok)
			assert.Contains(t, input, "[Mock] B")
			assert.Contains(t, input, "[Mock] C")
		}
	}
	assert.Equal(t, 1, joins)
}

func TestRun_RetryThenErrorEdge(t *testing.T) {
	t.Parallel()

	wf := builder.NewWorkflow("retry").
		AddNode("A", models.NodeTypeAgent, nil).
		AddNode("fails", models.NodeTypeAgent, map[string]any{"maxRetries": 2}).
		AddNode("normal_downstream", models.NodeTypeAgent, nil).
		AddNode("handler", models.NodeTypeAgent, nil).
		Connect("A", "fails").
		Connect("fails", "normal_downstream").
		ConnectError("fails", "handler").
		MustBuild()

	var attempts atomic.Int32
	runner, _ := stubRunner(t, func(_ context.Context, node *models.Node, _ any, _ executor.Context) (any, error) {
		if node.ID == "fails" {
			attempts.Add(1)
			return nil, errors.New("provider unavailable")
		}
		return "ok:" + node.ID, nil
	})

	execution, err := runner.Run(context.Background(), wf, "in", &engine.Options{
		RetryBaseDelay: time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.EqualValues(t, 3, attempts.Load())

	failLog, ok := execution.NodeLog("fails")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusFailed, failLog.Status)
	assert.Equal(t, 2, failLog.RetryCount)

	ids := nodeIDs(execution)
	assert.Contains(t, ids, "handler")
	assert.NotContains(t, ids, "normal_downstream")
}

func TestRun_ErrorEnvelopeVisibleToHandler(t *testing.T) {
	t.Parallel()

	wf := builder.NewWorkflow("envelope").
		AddNode("fails", models.NodeTypeAgent, nil).
		AddNode("handler", models.NodeTypeAgent, nil).
		ConnectError("fails", "handler").
		MustBuild()

	var seen map[string]any
	runner, _ := stubRunner(t, func(_ context.Context, node *models.Node, _ any, execCtx executor.Context) (any, error) {
		switch node.ID {
		case "fails":
			return nil, errors.New("boom")
		default:
			seen, _ = execCtx["fails"].(map[string]any)
			return "handled", nil
		}
	})

	execution, err := runner.Run(context.Background(), wf, "in", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	require.NotNil(t, seen)
	assert.Equal(t, "boom", seen["error"])
	assert.Equal(t, string(models.NodeStatusFailed), seen["status"])
	assert.Equal(t, "fails", seen["node_id"])
}

func TestRun_FailureWithoutErrorEdgeFailsExecution(t *testing.T) {
	t.Parallel()

	wf := builder.NewWorkflow("fatal").
		AddNode("A", models.NodeTypeAgent, nil).
		AddNode("B", models.NodeTypeAgent, nil).
		Connect("A", "B").
		MustBuild()

	runner, store := stubRunner(t, func(_ context.Context, node *models.Node, _ any, _ executor.Context) (any, error) {
		if node.ID == "B" {
			return nil, errors.New("boom")
		}
		return "ok", nil
	})

	execution, err := runner.Run(context.Background(), wf, "in", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.Error, "boom")

	// The failed checkpoint row survives, keeping the execution resumable.
	cp, err := store.Load(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", cp.CurrentNode)
	assert.Equal(t, models.ExecutionStatusFailed, cp.Status)
}

func TestRun_NodeTimeout(t *testing.T) {
	t.Parallel()

	wf := builder.NewWorkflow("slow").
		AddNode("slow", models.NodeTypeAgent, nil).
		MustBuild()

	runner, _ := stubRunner(t, func(ctx context.Context, _ *models.Node, _ any, _ executor.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	execution, err := runner.Run(context.Background(), wf, "in", &engine.Options{
		NodeTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	log, ok := execution.NodeLog("slow")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusTimedOut, log.Status)
}

func TestResume_ContinuesFromCheckpoint(t *testing.T) {
	t.Parallel()

	wf := builder.NewWorkflow("resume").
		AddNode("A", models.NodeTypeAgent, nil).
		AddNode("B", models.NodeTypeAgent, nil).
		AddNode("C", models.NodeTypeAgent, nil).
		Connect("A", "B").
		Connect("B", "C").
		MustBuild()

	runner, store := mockRunner(t)

	// Simulate a process exit after A completed: the checkpoint row points at
	// B and holds A's output in the context.
	execID := "exec-resume-1"
	require.NoError(t, store.Save(context.Background(), execID, "B", map[string]any{
		"input":    "hello",
		"_user_id": "user-1",
		"A":        "[Mock] A",
	}, models.ExecutionStatusRunning))

	execution, err := runner.Resume(context.Background(), execID, wf, &engine.Options{Mode: models.ModeMock})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, []string{"B", "C"}, nodeIDs(execution))
	assert.Equal(t, "[Mock] C", execution.Output)

	_, err = store.Load(context.Background(), execID)
	assert.ErrorIs(t, err, engine.ErrNoCheckpoint)
}

func TestResume_NoCheckpoint(t *testing.T) {
	t.Parallel()

	wf := builder.NewWorkflow("none").
		AddNode("A", models.NodeTypeAgent, nil).
		MustBuild()

	runner, _ := mockRunner(t)
	_, err := runner.Resume(context.Background(), "missing", wf, nil)
	assert.ErrorIs(t, err, engine.ErrNoCheckpoint)
}

func TestRun_ValidationFailures(t *testing.T) {
	t.Parallel()

	runner, _ := mockRunner(t)

	t.Run("dangling edge", func(t *testing.T) {
		wf := &models.Workflow{
			ID:    "wf",
			Nodes: []*models.Node{{ID: "A", Type: models.NodeTypeTrigger}},
			Edges: []*models.Edge{{ID: "e", Source: "A", Target: "ghost"}},
		}
		_, err := runner.Run(context.Background(), wf, "in", nil)
		var vErr *models.ValidationError
		require.ErrorAs(t, err, &vErr)
	})

	t.Run("duplicate node IDs", func(t *testing.T) {
		wf := &models.Workflow{
			ID: "wf",
			Nodes: []*models.Node{
				{ID: "A", Type: models.NodeTypeTrigger},
				{ID: "A", Type: models.NodeTypeAgent},
			},
		}
		_, err := runner.Run(context.Background(), wf, "in", nil)
		var vErr *models.ValidationError
		require.ErrorAs(t, err, &vErr)
	})

	t.Run("no root", func(t *testing.T) {
		wf := &models.Workflow{
			ID: "wf",
			Nodes: []*models.Node{
				{ID: "A", Type: models.NodeTypeAgent},
				{ID: "B", Type: models.NodeTypeAgent},
			},
			Edges: []*models.Edge{
				{ID: "e1", Source: "A", Target: "B"},
				{ID: "e2", Source: "B", Target: "A"},
			},
		}
		_, err := runner.Run(context.Background(), wf, "in", nil)
		var vErr *models.ValidationError
		require.ErrorAs(t, err, &vErr)
	})
}

func TestRun_BoundaryBehaviours(t *testing.T) {
	t.Parallel()

	runner, _ := mockRunner(t)

	t.Run("single trigger completes with its input", func(t *testing.T) {
		wf := builder.NewWorkflow("trigger-only").
			AddNode("T", models.NodeTypeTrigger, nil).
			MustBuild()
		execution, err := runner.Run(context.Background(), wf, "payload", &engine.Options{Mode: models.ModeMock})
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
		assert.Equal(t, "payload", execution.Output)
	})

	t.Run("condition with no matching handle ends the branch", func(t *testing.T) {
		wf := builder.NewWorkflow("dead-branch").
			AddNode("cond", models.NodeTypeCondition, map[string]any{"condition": "true"}).
			AddNode("onlyFalse", models.NodeTypeAgent, nil).
			ConnectHandle("cond", "onlyFalse", models.HandleFalse).
			MustBuild()
		execution, err := runner.Run(context.Background(), wf, "x", &engine.Options{Mode: models.ModeMock})
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
		assert.Equal(t, []string{"cond"}, nodeIDs(execution))
	})

	t.Run("parallel with zero outgoing edges is a no-op", func(t *testing.T) {
		wf := builder.NewWorkflow("lonely-parallel").
			AddNode("P", models.NodeTypeParallel, nil).
			MustBuild()
		execution, err := runner.Run(context.Background(), wf, "x", &engine.Options{Mode: models.ModeMock})
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	})
}

func TestRun_UsageAggregation(t *testing.T) {
	t.Parallel()

	wf := builder.NewWorkflow("usage").
		AddNode("A", models.NodeTypeAgent, nil).
		AddNode("B", models.NodeTypeAgent, nil).
		Connect("A", "B").
		MustBuild()

	runner, _ := stubRunner(t, func(_ context.Context, node *models.Node, _ any, execCtx executor.Context) (any, error) {
		execCtx[executor.UsageKey(node.ID)] = map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 5,
			"cost":              0.0000015,
			"model":             "gpt-4o-mini",
		}
		return strings.ToLower(node.ID), nil
	})

	execution, err := runner.Run(context.Background(), wf, "in", nil)
	require.NoError(t, err)

	assert.Equal(t, 30, execution.TotalTokens)
	assert.Equal(t, "gpt-4o-mini", execution.ModelUsed)
	assert.InDelta(t, 0.000003, execution.EstimatedCost, 1e-9)
}

func TestRun_EventsEmitted(t *testing.T) {
	t.Parallel()

	wf := builder.NewWorkflow("events").
		AddNode("A", models.NodeTypeAgent, nil).
		MustBuild()

	var events []engine.Event
	notifier := notifierFunc(func(e engine.Event) { events = append(events, e) })

	mock, err := builtin.NewMockManager()
	require.NoError(t, err)
	runner := engine.NewRunner(mock, mock, engine.NewMemoryCheckpointStore(), engine.WithNotifier(notifier))

	_, err = runner.Run(context.Background(), wf, "in", &engine.Options{Mode: models.ModeMock})
	require.NoError(t, err)

	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{engine.EventNodeStarted, engine.EventNodeCompleted}, types)
}

type notifierFunc func(engine.Event)

func (f notifierFunc) Notify(_ context.Context, e engine.Event) { f(e) }
