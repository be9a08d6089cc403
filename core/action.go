package core

import "fmt"

// ActionKind classifies the outcome of a single agent step.
type ActionKind int

const (
	// ActionAnswer is final content for the agent's turn.
	ActionAnswer ActionKind = iota
	// ActionInvoke requests a call of a tool bound to the agent.
	ActionInvoke
	// ActionHandoff requests a transfer of control to another agent.
	ActionHandoff
)

// String returns a readable name for the kind.
func (k ActionKind) String() string {
	switch k {
	case ActionAnswer:
		return "answer"
	case ActionInvoke:
		return "invoke"
	case ActionHandoff:
		return "handoff"
	default:
		return "unknown"
	}
}

// Action is the classified output of an agent step.
//
// For ActionAnswer only Text is set. For ActionInvoke, Tool and Args name the
// call. For ActionHandoff, Target and Reason describe the transfer. CallID
// links Invoke and Handoff actions to the Tool-role message answering them.
type Action struct {
	Kind   ActionKind
	Text   string
	Tool   string
	Args   string
	Target string
	Reason string
	CallID string
}

// Answer builds an ActionAnswer.
func Answer(text string) Action {
	return Action{Kind: ActionAnswer, Text: text}
}

// Invoke builds an ActionInvoke.
func Invoke(callID, tool, args string) Action {
	return Action{Kind: ActionInvoke, CallID: callID, Tool: tool, Args: args}
}

// Handoff builds an ActionHandoff.
func Handoff(callID, target, reason string) Action {
	return Action{Kind: ActionHandoff, CallID: callID, Target: target, Reason: reason}
}

func (a Action) String() string {
	switch a.Kind {
	case ActionInvoke:
		return fmt.Sprintf("Invoke(%s, %s)", a.Tool, a.Args)
	case ActionHandoff:
		return fmt.Sprintf("Handoff(%s, %q)", a.Target, a.Reason)
	default:
		return fmt.Sprintf("Answer(%q)", a.Text)
	}
}
