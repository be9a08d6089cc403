package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/agentrelay/tool"
)

// Violation describes a content-policy refusal the engine is recovering from.
type Violation struct {
	// Agent is the active agent.
	Agent string
	// Tool names the refusing tool; empty when the completion itself was
	// filtered.
	Tool string
	// Message is the provider's refusal text.
	Message string
	// Attempt counts consecutive violations, starting at 1.
	Attempt int
}

// Sanitizer turns a violation into guidance for the agent's next attempt.
type Sanitizer interface {
	Guidance(ctx context.Context, v Violation) string
}

// SanitizerFunc adapts a function to the Sanitizer interface.
type SanitizerFunc func(ctx context.Context, v Violation) string

// Guidance implements Sanitizer.
func (f SanitizerFunc) Guidance(ctx context.Context, v Violation) string { return f(ctx, v) }

// DefaultSanitizer asks the agent to rephrase without protected names.
var DefaultSanitizer Sanitizer = SanitizerFunc(func(_ context.Context, v Violation) string {
	if v.Tool != "" {
		return fmt.Sprintf(
			"The %s request was rejected by a content policy. Retry with a rephrased request: "+
				"replace names of real people, trademarked characters and brands with detailed visual descriptions.",
			v.Tool)
	}
	return "Your previous reply was blocked by a content filter. Rephrase it: avoid reproducing " +
		"protected names or copyrighted text and describe them in your own words instead."
})

// contentPolicyPayload renders the Tool message answering a refused call.
func contentPolicyPayload(err error, guidance string) string {
	msg := err.Error()
	var te *tool.ToolError
	if errors.As(err, &te) {
		msg = te.Message
	}
	raw, _ := json.Marshal(map[string]string{"error": msg, "guidance": guidance})
	return string(raw)
}
