package debug

import (
	"context"
	"fmt"
	"time"

	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
)

// EventType classifies stepper events.
type EventType string

const (
	EventBreakpoint   EventType = "breakpoint"
	EventNodeStart    EventType = "node_start"
	EventNodeComplete EventType = "node_complete"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
	EventTimeout      EventType = "timeout"
)

// Event is one stepper observation.
type Event struct {
	Type      EventType      `json:"type"`
	NodeID    string         `json:"node_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Stepper walks a workflow node by node in declared order, pausing at
// breakpoints and awaiting session commands. It is an observability surface,
// not a production dispatcher.
type Stepper struct {
	workflow  *models.Workflow
	session   *Session
	executors *executor.Manager
	input     any
}

// NewStepper creates a stepper over a workflow and session. The executor
// registry is usually the mock registry; debug runs should not bill
// providers.
func NewStepper(workflow *models.Workflow, session *Session, executors *executor.Manager, input any) *Stepper {
	return &Stepper{
		workflow:  workflow,
		session:   session,
		executors: executors,
		input:     input,
	}
}

// Run drives the workflow, emitting events on the returned channel. The
// channel closes when the run terminates for any reason.
func (s *Stepper) Run(ctx context.Context) <-chan Event {
	events := make(chan Event, 16)
	go s.run(ctx, events)
	return events
}

func (s *Stepper) run(ctx context.Context, events chan<- Event) {
	defer close(events)

	emit := func(eventType EventType, nodeID string, data map[string]any) {
		events <- Event{
			Type:      eventType,
			NodeID:    nodeID,
			Data:      data,
			Timestamp: time.Now().UTC(),
		}
	}

	execCtx := executor.Context{
		executor.KeyInput: s.input,
		executor.KeyToday: time.Now().UTC().Format("2006-01-02"),
	}
	results := make(map[string]any)
	executed := 0

	for idx, node := range s.workflow.Nodes {
		if s.session.Stopped() || ctx.Err() != nil {
			break
		}

		if s.session.HasBreakpoint(node.ID) {
			emit(EventBreakpoint, node.ID, map[string]any{
				"index": idx,
				"total": len(s.workflow.Nodes),
			})

			cmd, err := s.session.WaitForCommand(ctx)
			if err != nil {
				if err == ErrInactivity {
					emit(EventTimeout, node.ID, map[string]any{"message": "Inactivity timeout"})
				}
				return
			}
			if cmd == CommandStop || s.session.Stopped() {
				break
			}
		}

		emit(EventNodeStart, node.ID, map[string]any{"node_type": string(node.Type)})

		output, err := s.executeNode(ctx, node, execCtx)
		if err != nil {
			emit(EventError, node.ID, map[string]any{
				"error": err.Error(),
				"type":  fmt.Sprintf("%T", err),
			})
			return
		}

		execCtx[node.ID] = output
		results[node.ID] = output
		executed = idx + 1

		emit(EventNodeComplete, node.ID, map[string]any{"result": output})
	}

	if !s.session.Stopped() {
		emit(EventComplete, "", map[string]any{
			"results":        results,
			"nodes_executed": executed,
		})
	}
}

func (s *Stepper) executeNode(ctx context.Context, node *models.Node, execCtx executor.Context) (any, error) {
	exec, err := s.executors.Get(node.Type)
	if err != nil {
		return nil, err
	}
	input := execCtx[executor.KeyInput]
	return exec.Execute(ctx, node, input, execCtx)
}
