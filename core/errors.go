package core

import (
	"errors"
	"fmt"
)

// Run error taxonomy. Tool-level failures (ErrToolInvocation) and content
// policy refusals are recovered inside a run; the remaining kinds are fatal
// and surface to the caller wrapped in a *RunError.
var (
	ErrUnknownTool              = errors.New("unknown tool")
	ErrDuplicateToolName        = errors.New("duplicate tool name")
	ErrIllegalTransition        = errors.New("illegal transition")
	ErrUnknownAgent             = errors.New("unknown agent")
	ErrToolInvocation           = errors.New("tool invocation failed")
	ErrContentPolicyViolation   = errors.New("content policy violation")
	ErrMalformedTerminalPayload = errors.New("malformed terminal payload")
	ErrDepthExceeded            = errors.New("depth exceeded")
	ErrTimeout                  = errors.New("run timed out")
	ErrCanceled                 = errors.New("run canceled")
	ErrPolicyViolation          = errors.New("tool choice policy violated")
	ErrInvalidMessage           = errors.New("invalid message")
)

var kinds = []error{
	ErrUnknownTool,
	ErrDuplicateToolName,
	ErrIllegalTransition,
	ErrUnknownAgent,
	ErrToolInvocation,
	ErrContentPolicyViolation,
	ErrMalformedTerminalPayload,
	ErrDepthExceeded,
	ErrTimeout,
	ErrCanceled,
	ErrPolicyViolation,
	ErrInvalidMessage,
}

// RunError is the tagged failure returned by a run that ended in the Failed
// state. It matches its Kind sentinel and its cause with errors.Is.
type RunError struct {
	Kind  error
	Agent string
	Err   error
}

// NewRunError tags err with kind. A nil kind is inferred from err.
func NewRunError(kind error, agent string, err error) *RunError {
	if kind == nil {
		kind = KindOf(err)
	}
	return &RunError{Kind: kind, Agent: agent, Err: err}
}

func (e *RunError) Error() string {
	msg := "run failed"
	if e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Agent != "" {
		msg = fmt.Sprintf("%s (agent %s)", msg, e.Agent)
	}
	if e.Err != nil && e.Err != e.Kind {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *RunError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// KindOf returns the first taxonomy sentinel err matches, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var re *RunError
	if errors.As(err, &re) && re.Kind != nil {
		return re.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsRecoverable reports whether err belongs to a kind the orchestrator
// recovers from inside a run.
func IsRecoverable(err error) bool {
	switch KindOf(err) {
	case ErrToolInvocation, ErrContentPolicyViolation:
		return true
	}
	return false
}
