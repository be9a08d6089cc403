package core

import (
	"strings"

	"github.com/google/uuid"
)

// NewID generates a new unique identifier for runs and transcripts.
func NewID() string { return uuid.NewString() }

// NewToolCallID generates a synthetic identifier for tool calls whose
// provider did not supply one.
func NewToolCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
