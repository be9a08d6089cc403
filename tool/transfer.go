package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// TransferPrefix marks the tool names agents use to request a handoff.
const TransferPrefix = "transfer_to_"

// TransferToolName returns the handoff tool name for target.
func TransferToolName(target string) string { return TransferPrefix + target }

// ParseTransferName extracts the target agent from a handoff tool name.
func ParseTransferName(name string) (string, bool) {
	target, ok := strings.CutPrefix(name, TransferPrefix)
	if !ok || target == "" {
		return "", false
	}
	return target, true
}

// ParseTransferReason extracts the optional "reason" argument of a handoff call.
func ParseTransferReason(raw string) string {
	var args struct {
		Reason string `json:"reason"`
	}
	if raw == "" || json.Unmarshal([]byte(raw), &args) != nil {
		return ""
	}
	return args.Reason
}

// TransferTool is the tool offered to an agent for each outgoing handoff
// edge. Its description carries the edge rationale so the model can choose
// between several legal targets. Transfer tools are interpreted by the
// orchestrator and never executed.
type TransferTool struct {
	target    string
	rationale string
}

// NewTransferTool creates the handoff tool for target.
func NewTransferTool(target, rationale string) *TransferTool {
	return &TransferTool{target: target, rationale: rationale}
}

// Target returns the agent this tool transfers to.
func (t *TransferTool) Target() string { return t.target }

// Name returns transfer_to_<target>.
func (t *TransferTool) Name() string { return TransferToolName(t.target) }

// Description returns the edge rationale.
func (t *TransferTool) Description() string {
	if t.rationale == "" {
		return fmt.Sprintf("Transfer the conversation to %s.", t.target)
	}
	return t.rationale
}

// Parameters declares an optional free-text reason.
func (t *TransferTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{"type": "string", "description": "Why control is transferred"},
		},
	}
}

// Call always fails: handoffs are routed by the orchestrator.
func (t *TransferTool) Call(context.Context, map[string]any) (string, error) {
	return "", NewToolError(t.Name(), "transfer tools are handled by the orchestrator", CodeExecution)
}
