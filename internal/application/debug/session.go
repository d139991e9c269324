// Package debug provides the step-through workflow driver: breakpoints, a
// command queue, and an inactivity timeout. It iterates nodes in declared
// order, not topological order, so breakpoints bind to node identity.
package debug

import (
	"context"
	"errors"
	"sync"
	"time"
)

// InactivityTimeout terminates a session that receives no command at a
// breakpoint for this long.
const InactivityTimeout = 600 * time.Second

// Command controls a paused session.
type Command string

const (
	CommandContinue Command = "continue"
	CommandStep     Command = "step"
	CommandStop     Command = "stop"
)

// ErrInactivity is returned by WaitForCommand when the timeout expires.
var ErrInactivity = errors.New("debug session inactivity timeout")

// Session holds a debug run's command queue and breakpoint set.
type Session struct {
	mu          sync.Mutex
	commands    chan Command
	breakpoints map[string]struct{}
	stopped     bool
	inactivity  time.Duration
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithInactivityTimeout overrides the inactivity timeout; tests shrink it.
func WithInactivityTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.inactivity = d }
}

// NewSession creates a session with no breakpoints.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		commands:    make(chan Command, 16),
		breakpoints: make(map[string]struct{}),
		inactivity:  InactivityTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetBreakpoints replaces the breakpoint set.
func (s *Session) SetBreakpoints(nodeIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakpoints = make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		s.breakpoints[id] = struct{}{}
	}
}

// AddBreakpoint adds one breakpoint.
func (s *Session) AddBreakpoint(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakpoints[nodeID] = struct{}{}
}

// RemoveBreakpoint removes one breakpoint.
func (s *Session) RemoveBreakpoint(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakpoints, nodeID)
}

// HasBreakpoint reports whether a node is in the breakpoint set.
func (s *Session) HasBreakpoint(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.breakpoints[nodeID]
	return ok
}

// Continue resumes execution past the current breakpoint.
func (s *Session) Continue() { s.commands <- CommandContinue }

// Step advances a single node; operationally identical to Continue since the
// stepper pauses again at the next breakpoint.
func (s *Session) Step() { s.commands <- CommandStep }

// Stop terminates the session. The flag is checked between every node, so
// this is an in-band cancellation.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	select {
	case s.commands <- CommandStop:
	default:
	}
}

// Stopped reports whether the session was stopped.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// WaitForCommand blocks until a command arrives or the inactivity timeout
// expires. A timeout stops the session.
func (s *Session) WaitForCommand(ctx context.Context) (Command, error) {
	timer := time.NewTimer(s.inactivity)
	defer timer.Stop()

	select {
	case cmd := <-s.commands:
		return cmd, nil
	case <-timer.C:
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		return "", ErrInactivity
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
