// Package engine drives workflow graphs to completion: topological dispatch
// from root nodes, condition branching, parallel fan-out with fan-in at join
// nodes, per-node retry and timeout, error-edge recovery, checkpointing
// before every node, and resume from the last checkpoint.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowline-ai/flowline/internal/infrastructure/logger"
	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
)

// Default execution limits, overridable per Options and per node data.
const (
	DefaultNodeTimeout      = time.Minute
	DefaultExecutionTimeout = 10 * time.Minute
	DefaultRetryBaseDelay   = 500 * time.Millisecond
)

// Options configures one execution.
type Options struct {
	// ExecutionID is generated when empty.
	ExecutionID string
	Mode        models.ExecutionMode
	TriggerType models.TriggerType
	TriggerID   string
	// UserID is the owner on whose behalf the execution runs. Propagated to
	// provider-key lookups via the _user_id context key. Ownership itself is
	// checked at the entry points, not here.
	UserID string
	// NodeTimeout bounds a single node attempt. Node data "timeout" (seconds)
	// overrides it per node. Ignored in mock mode.
	NodeTimeout time.Duration
	// Timeout bounds the whole execution. Fatal when exceeded.
	Timeout time.Duration
	// RetryBaseDelay is the first backoff interval; it doubles per attempt.
	RetryBaseDelay time.Duration
}

func (o *Options) withDefaults() *Options {
	out := *o
	if out.ExecutionID == "" {
		out.ExecutionID = uuid.NewString()
	}
	if out.Mode == "" {
		out.Mode = models.ModeFull
	}
	if out.TriggerType == "" {
		out.TriggerType = models.TriggerManual
	}
	if out.NodeTimeout <= 0 {
		out.NodeTimeout = DefaultNodeTimeout
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultExecutionTimeout
	}
	if out.RetryBaseDelay <= 0 {
		out.RetryBaseDelay = DefaultRetryBaseDelay
	}
	return &out
}

// Runner executes workflow graphs.
type Runner struct {
	executors     *executor.Manager
	mockExecutors *executor.Manager
	checkpoints   CheckpointStore
	notifier      Notifier
	log           *logger.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithNotifier sets the lifecycle event sink.
func WithNotifier(n Notifier) RunnerOption {
	return func(r *Runner) { r.notifier = n }
}

// WithLogger sets the runner logger.
func WithLogger(l *logger.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// NewRunner creates a runner. mockExecutors serves mock-mode executions;
// passing nil reuses the full registry for both modes.
func NewRunner(executors, mockExecutors *executor.Manager, checkpoints CheckpointStore, opts ...RunnerOption) *Runner {
	r := &Runner{
		executors:     executors,
		mockExecutors: mockExecutors,
		checkpoints:   checkpoints,
		notifier:      NoopNotifier{},
		log:           logger.New("engine"),
	}
	if r.mockExecutors == nil {
		r.mockExecutors = executors
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run validates the workflow and executes it from its roots.
func (r *Runner) Run(ctx context.Context, wf *models.Workflow, input any, opts *Options) (*models.Execution, error) {
	if opts == nil {
		opts = &Options{}
	}
	o := opts.withDefaults()

	if err := wf.Validate(); err != nil {
		return nil, err
	}

	execution := &models.Execution{
		ID:          o.ExecutionID,
		WorkflowID:  wf.ID,
		Status:      models.ExecutionStatusPending,
		Mode:        o.Mode,
		TriggerType: o.TriggerType,
		TriggerID:   o.TriggerID,
		Input:       input,
	}

	execCtx := executor.Context{
		executor.KeyInput:  input,
		executor.KeyUserID: o.UserID,
		executor.KeyToday:  time.Now().UTC().Format("2006-01-02"),
	}

	// A node whose only inbound edges are error edges runs when its source
	// fails, never at the start.
	var roots []*models.Node
	for _, n := range wf.Roots() {
		if len(wf.IncomingEdges(n.ID)) == 0 {
			roots = append(roots, n)
		}
	}
	if len(wf.Nodes) > 0 && len(roots) == 0 {
		return nil, &models.ValidationError{Field: "edges", Message: "workflow has no root node"}
	}

	return r.run(ctx, wf, execution, execCtx, roots, o)
}

// Resume restarts an execution from its checkpoint. Earlier nodes are not
// re-run; the node logs of the resumed execution start at the checkpointed
// node. A failed execution with a surviving checkpoint row is resumable.
func (r *Runner) Resume(ctx context.Context, executionID string, wf *models.Workflow, opts *Options) (*models.Execution, error) {
	cp, err := r.checkpoints.Load(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", executionID, err)
	}

	if err := wf.Validate(); err != nil {
		return nil, err
	}
	current, ok := wf.Node(cp.CurrentNode)
	if !ok {
		return nil, &models.ValidationError{Field: "checkpoint", Message: "checkpoint references unknown node: " + cp.CurrentNode}
	}

	if opts == nil {
		opts = &Options{}
	}
	opts.ExecutionID = executionID
	o := opts.withDefaults()
	if o.UserID == "" {
		if uid, ok := cp.Context[executor.KeyUserID].(string); ok {
			o.UserID = uid
		}
	}

	execution := &models.Execution{
		ID:          executionID,
		WorkflowID:  wf.ID,
		Status:      models.ExecutionStatusPending,
		Mode:        o.Mode,
		TriggerType: o.TriggerType,
		TriggerID:   o.TriggerID,
		Input:       cp.Context[executor.KeyInput],
	}

	execCtx := executor.Context{}
	for k, v := range cp.Context {
		execCtx[k] = v
	}

	return r.run(ctx, wf, execution, execCtx, []*models.Node{current}, o)
}

// nodeResult carries a finished node back to the dispatcher.
type nodeResult struct {
	node   *models.Node
	record *models.NodeExecution
	output any
	err    error
}

// runState is the dispatcher's bookkeeping for one execution.
type runState struct {
	mu        sync.Mutex
	execCtx   executor.Context
	activated map[string]bool
	completed map[string]bool
}

func (s *runState) snapshot() executor.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(executor.Context, len(s.execCtx))
	for k, v := range s.execCtx {
		copied[k] = v
	}
	return copied
}

// merge copies keys added by an executor (usage accounting, loop-internal
// outputs) back into the shared context. Usage keys always win so a resumed
// node refreshes its accounting; other existing keys are left alone.
func (s *runState) merge(after executor.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range after {
		if _, exists := s.execCtx[k]; !exists || strings.HasPrefix(k, executor.UsageKeyPrefix) {
			s.execCtx[k] = v
		}
	}
}

func (s *runState) set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execCtx[key] = value
}

// run is the single-dispatcher execution loop. Node attempts run in their own
// goroutines; all state transitions happen here, so the ready-set computation
// never races with branch completion.
func (r *Runner) run(ctx context.Context, wf *models.Workflow, execution *models.Execution, execCtx executor.Context, roots []*models.Node, opts *Options) (*models.Execution, error) {
	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	mgr := r.executors
	if opts.Mode == models.ModeMock {
		mgr = r.mockExecutors
	}

	state := &runState{
		execCtx:   execCtx,
		activated: make(map[string]bool),
		completed: make(map[string]bool),
	}
	results := make(chan *nodeResult)
	inFlight := 0

	started := time.Now().UTC()
	execution.Status = models.ExecutionStatusRunning
	execution.StartedAt = &started

	schedule := func(node *models.Node) {
		state.activated[node.ID] = true
		inFlight++

		if err := r.checkpoints.Save(runCtx, execution.ID, node.ID, state.snapshot(), models.ExecutionStatusRunning); err != nil {
			r.log.Warn("checkpoint save failed", "execution_id", execution.ID, "node_id", node.ID, "error", err)
		}
		r.notifier.Notify(runCtx, Event{
			ExecutionID: execution.ID,
			Type:        EventNodeStarted,
			Data:        map[string]any{"node_id": node.ID, "node_type": string(node.Type)},
			Timestamp:   time.Now().UTC(),
		})

		go r.runNode(runCtx, wf, node, state, mgr, opts, results)
	}

	for _, root := range roots {
		schedule(root)
	}

	var failure error
	failed := false

	for inFlight > 0 {
		res := <-results
		inFlight--
		execution.NodeLogs = append(execution.NodeLogs, res.record)

		if res.err == nil {
			state.completed[res.node.ID] = true
			state.set(res.node.ID, res.output)
			r.notifier.Notify(runCtx, Event{
				ExecutionID: execution.ID,
				Type:        EventNodeCompleted,
				Data:        map[string]any{"node_id": res.node.ID, "status": string(models.NodeStatusCompleted)},
				Timestamp:   time.Now().UTC(),
			})
			if !failed {
				for _, next := range r.successors(wf, res.node, res.output, state) {
					schedule(next)
				}
			}
			continue
		}

		// Terminal node failure after retries.
		r.notifier.Notify(runCtx, Event{
			ExecutionID: execution.ID,
			Type:        EventNodeCompleted,
			Data:        map[string]any{"node_id": res.node.ID, "status": string(res.record.Status), "error": res.record.Error},
			Timestamp:   time.Now().UTC(),
		})

		if edge, ok := wf.ErrorEdge(res.node.ID); ok && !failed {
			envelope := map[string]any{
				"error":   res.record.Error,
				"status":  string(res.record.Status),
				"node_id": res.node.ID,
			}
			state.completed[res.node.ID] = true
			state.set(res.node.ID, envelope)

			if target, exists := wf.Node(edge.Target); exists && !state.activated[target.ID] {
				schedule(target)
			}
			continue
		}

		if !failed {
			failed = true
			failure = res.err
			// A cancelled execution leaves its last saved checkpoint untouched.
			if ctx.Err() == nil {
				if err := r.checkpoints.MarkFailed(runCtx, execution.ID, res.node.ID, res.record.Error); err != nil && !errors.Is(err, ErrNoCheckpoint) {
					r.log.Warn("checkpoint mark-failed failed", "execution_id", execution.ID, "error", err)
				}
			}
		}
	}

	return r.finish(ctx, runCtx, wf, execution, state, failed, failure), nil
}

// finish derives the terminal status, aggregates usage, and clears the
// checkpoint on success. The parent ctx distinguishes cancellation from the
// execution deadline.
func (r *Runner) finish(parent, runCtx context.Context, wf *models.Workflow, execution *models.Execution, state *runState, failed bool, failure error) *models.Execution {
	completedAt := time.Now().UTC()
	execution.CompletedAt = &completedAt
	if execution.StartedAt != nil {
		execution.DurationMs = completedAt.Sub(*execution.StartedAt).Milliseconds()
	}

	switch {
	case parent.Err() != nil:
		execution.Status = models.ExecutionStatusCancelled
		execution.Error = "execution cancelled"
	case runCtx.Err() != nil && !failed:
		execution.Status = models.ExecutionStatusTimedOut
		execution.Error = "execution timed out"
	case failed:
		execution.Status = models.ExecutionStatusFailed
		if failure != nil {
			execution.Error = failure.Error()
		}
	default:
		execution.Status = models.ExecutionStatusCompleted
		for i := len(execution.NodeLogs) - 1; i >= 0; i-- {
			if execution.NodeLogs[i].Status == models.NodeStatusCompleted {
				execution.Output = execution.NodeLogs[i].Output
				break
			}
		}
		if err := r.checkpoints.Delete(context.WithoutCancel(runCtx), execution.ID); err != nil {
			r.log.Warn("checkpoint delete failed", "execution_id", execution.ID, "error", err)
		}
	}

	AggregateUsage(execution, state.snapshot())
	return execution
}

// successors computes the next ready nodes after a completed node.
// Condition nodes keep only edges matching the active handle; every other
// node keeps its untagged edges, with parallel nodes fanning all of them out
// concurrently. A target is ready once every inbound untagged edge from an
// activated source is resolved, so parallel branches join exactly once.
func (r *Runner) successors(wf *models.Workflow, node *models.Node, output any, state *runState) []*models.Node {
	var activeHandle string
	if node.Type == models.NodeTypeCondition {
		activeHandle = models.HandleTrue
		if m, ok := output.(map[string]any); ok {
			if h, ok := m["active_handle"].(string); ok {
				activeHandle = h
			}
		}
	}

	var ready []*models.Node
	seen := make(map[string]bool)
	for _, e := range wf.OutgoingEdges(node.ID) {
		if e.IsError() {
			continue
		}
		if node.Type == models.NodeTypeCondition {
			if e.SourceHandle != activeHandle {
				continue
			}
		} else if e.SourceHandle != "" {
			continue
		}

		target, ok := wf.Node(e.Target)
		if !ok || seen[target.ID] || state.activated[target.ID] {
			continue
		}
		if !r.inboundResolved(wf, target.ID, state) {
			continue
		}
		seen[target.ID] = true
		ready = append(ready, target)
	}
	return ready
}

// inboundResolved implements the inbound-completion join rule: every inbound
// untagged edge whose source has been activated must be resolved. Sources on
// branches that were never taken are ignored.
func (r *Runner) inboundResolved(wf *models.Workflow, nodeID string, state *runState) bool {
	for _, e := range wf.IncomingEdges(nodeID) {
		if e.IsError() {
			continue
		}
		if state.activated[e.Source] && !state.completed[e.Source] {
			return false
		}
	}
	return true
}

// runNode executes one node with retries, per-attempt timeout, and usage
// merge-back. It runs off the dispatcher goroutine and reports through the
// results channel.
func (r *Runner) runNode(ctx context.Context, wf *models.Workflow, node *models.Node, state *runState, mgr *executor.Manager, opts *Options, results chan<- *nodeResult) {
	startedAt := time.Now().UTC()
	record := &models.NodeExecution{NodeID: node.ID, StartedAt: &startedAt}

	send := func(output any, err error) {
		completedAt := time.Now().UTC()
		record.CompletedAt = &completedAt
		record.DurationMs = completedAt.Sub(startedAt).Milliseconds()
		results <- &nodeResult{node: node, record: record, output: output, err: err}
	}

	exec, err := mgr.Get(node.Type)
	if err != nil {
		record.Status = models.NodeStatusFailed
		record.Error = err.Error()
		send(nil, err)
		return
	}

	maxRetries := intFromData(node.Data, "maxRetries", 0)
	timeout := nodeTimeout(node, opts)

	var output any
	var lastErr error
	timedOut := false

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			record.RetryCount = attempt
			delay := opts.RetryBaseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				record.Status = models.NodeStatusFailed
				record.Error = ctx.Err().Error()
				send(nil, ctx.Err())
				return
			}
		}

		snapshot := state.snapshot()
		input := ResolveInput(node, snapshot, wf.IncomingEdges(node.ID))
		record.Input = input

		attemptCtx := ctx
		var cancelAttempt context.CancelFunc
		if timeout > 0 && opts.Mode != models.ModeMock {
			attemptCtx, cancelAttempt = context.WithTimeout(ctx, timeout)
		}

		output, lastErr = exec.Execute(attemptCtx, node, input, snapshot)
		timedOut = lastErr != nil && errors.Is(lastErr, context.DeadlineExceeded) && ctx.Err() == nil
		if cancelAttempt != nil {
			cancelAttempt()
		}

		if lastErr == nil {
			state.merge(snapshot)
			record.Status = models.NodeStatusCompleted
			record.Output = output
			send(output, nil)
			return
		}
		if ctx.Err() != nil {
			break
		}
		r.log.Warn("node attempt failed",
			"node_id", node.ID, "attempt", attempt+1, "max_retries", maxRetries, "error", lastErr)
	}

	if timedOut {
		record.Status = models.NodeStatusTimedOut
	} else {
		record.Status = models.NodeStatusFailed
	}
	record.Error = lastErr.Error()
	send(nil, lastErr)
}

// nodeTimeout reads the per-node timeout in seconds from node data, falling
// back to the execution-level default.
func nodeTimeout(node *models.Node, opts *Options) time.Duration {
	if secs := intFromData(node.Data, "timeout", 0); secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return opts.NodeTimeout
}

// intFromData reads an integer node-data value, tolerating the float64 shape
// JSON decoding produces.
func intFromData(data map[string]any, key string, fallback int) int {
	if data == nil {
		return fallback
	}
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
