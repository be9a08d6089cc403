package core

import (
	"fmt"
	"strings"
)

// PolicyKind enumerates the tool-choice policies an agent can carry.
type PolicyKind int

const (
	// PolicyAuto lets the completion capability decide whether to call a tool.
	PolicyAuto PolicyKind = iota
	// PolicyNone forbids tool calls; the agent answers or hands off.
	PolicyNone
	// PolicyRequired forces a call of one named tool on the first sub-turn.
	PolicyRequired
)

// ToolChoicePolicy governs whether and which tool an agent must call before
// answering. The zero value is Auto. Policies are immutable values.
type ToolChoicePolicy struct {
	kind PolicyKind
	tool string
}

// None returns the policy forbidding tool calls.
func None() ToolChoicePolicy { return ToolChoicePolicy{kind: PolicyNone} }

// Auto returns the policy delegating the choice to the completion capability.
func Auto() ToolChoicePolicy { return ToolChoicePolicy{kind: PolicyAuto} }

// Required returns the policy forcing a call of tool on the first sub-turn.
func Required(tool string) ToolChoicePolicy {
	return ToolChoicePolicy{kind: PolicyRequired, tool: tool}
}

// Kind returns the policy kind.
func (p ToolChoicePolicy) Kind() PolicyKind { return p.kind }

// Tool returns the required tool name (empty unless Kind is PolicyRequired).
func (p ToolChoicePolicy) Tool() string { return p.tool }

// String renders the policy in the form accepted by ParsePolicy.
func (p ToolChoicePolicy) String() string {
	switch p.kind {
	case PolicyNone:
		return "none"
	case PolicyRequired:
		return "required:" + p.tool
	default:
		return "auto"
	}
}

// ParsePolicy parses "none", "auto" or "required:<tool>".
func ParsePolicy(s string) (ToolChoicePolicy, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "auto":
		return Auto(), nil
	case "none":
		return None(), nil
	}
	if name, ok := strings.CutPrefix(s, "required:"); ok {
		name = strings.TrimSpace(name)
		if name == "" {
			return ToolChoicePolicy{}, fmt.Errorf("required policy needs a tool name")
		}
		return Required(name), nil
	}
	return ToolChoicePolicy{}, fmt.Errorf("unknown tool choice policy %q", s)
}
