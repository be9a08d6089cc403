package engine

import (
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// State is the phase of an orchestration run.
type State int

const (
	// StateRunning means the active agent is about to step.
	StateRunning State = iota
	// StateAwaitingTool means a tool call is in flight.
	StateAwaitingTool
	// StateTerminal is the absorbing success state.
	StateTerminal
	// StateFailed is the absorbing failure state.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateAwaitingTool:
		return "awaiting_tool"
	case StateTerminal:
		return "terminal"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Done reports whether s is absorbing.
func (s State) Done() bool { return s == StateTerminal || s == StateFailed }

// TransitionKind classifies a counted transition.
type TransitionKind string

const (
	// TransitionHandoff is an explicit transfer along a graph edge.
	TransitionHandoff TransitionKind = "handoff"
	// TransitionTool is a completed tool call.
	TransitionTool TransitionKind = "tool"
	// TransitionReturn is the implicit return of a sub-agent to the entry agent.
	TransitionReturn TransitionKind = "return"
)

// Transition records one counted transition of a run.
type Transition struct {
	Kind  TransitionKind `json:"kind"`
	From  string         `json:"from"`
	To    string         `json:"to"`
	Tool  string         `json:"tool,omitempty"`
	Depth int            `json:"depth"`
	At    time.Time      `json:"at"`
}

// Run is the record of one orchestration run.
type Run struct {
	ID          string         `json:"id"`
	State       State          `json:"state"`
	Entry       string         `json:"entry"`
	ActiveAgent string         `json:"active_agent"`
	History     []core.Message `json:"history"`
	Depth       int            `json:"depth"`
	Transitions []Transition   `json:"transitions"`
	Result      *core.Result   `json:"result,omitempty"`
	Err         error          `json:"-"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at"`
}

// Duration returns the wall time of the run.
func (r *Run) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// EventType classifies observer events.
type EventType string

const (
	// EventMessage reports a message appended to the history.
	EventMessage EventType = "message"
	// EventTransition reports a counted transition.
	EventTransition EventType = "transition"
	// EventTerminal reports the terminal result.
	EventTerminal EventType = "terminal"
	// EventFailed reports the run failure.
	EventFailed EventType = "failed"
)

// Event is a progress notification delivered to run observers.
type Event struct {
	RunID      string        `json:"run_id"`
	Type       EventType     `json:"type"`
	Agent      string        `json:"agent"`
	Message    *core.Message `json:"message,omitempty"`
	Transition *Transition   `json:"transition,omitempty"`
	Result     *core.Result  `json:"result,omitempty"`
	Err        error         `json:"-"`
	Time       time.Time     `json:"time"`
}

// Observer receives run events synchronously, in order.
type Observer func(Event)

type runConfig struct {
	id       string
	history  []core.Message
	vars     map[string]any
	observer Observer
}

// RunOption customizes a single run.
type RunOption func(c *runConfig)

// WithRunID sets the run identifier instead of a generated one.
func WithRunID(id string) RunOption {
	return func(c *runConfig) { c.id = id }
}

// WithHistory seeds the run with a previously recorded transcript, for
// example to continue a chat. The transcript must start with its System
// message.
func WithHistory(prior []core.Message) RunOption {
	return func(c *runConfig) { c.history = prior }
}

// WithVars adds template variables for agent instructions.
func WithVars(vars map[string]any) RunOption {
	return func(c *runConfig) {
		for k, v := range vars {
			c.vars[k] = v
		}
	}
}

// WithObserver registers a progress observer for the run.
func WithObserver(fn Observer) RunOption {
	return func(c *runConfig) { c.observer = fn }
}
