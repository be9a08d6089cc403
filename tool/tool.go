// Package tool implements the tool calling subsystem: the Tool contract,
// providers that feed tools into the shared Catalog, schema validated
// function tools, the transfer tools that signal handoffs and the uniform
// error payloads returned to agents when a tool fails.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/model"
)

// Tool defines a callable capability offered to agents.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define a JSON schema for parameters
//   - Return errors instead of panicking (the Catalog recovers panics anyway)
//   - Be safe for concurrent use; one tool instance is shared by all runs
type Tool interface {
	// Name returns the identifier, unique within a Catalog.
	Name() string

	// Description returns a human-readable description of what this tool does.
	// It is provided to the model to help it decide when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with decoded, schema validated arguments and
	// returns its textual result.
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Error codes used by ToolError.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeExecution     = "EXECUTION_ERROR"
	CodeContentPolicy = "CONTENT_POLICY"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap maps the error code onto the run error taxonomy.
func (e *ToolError) Unwrap() error {
	if e.Code == CodeContentPolicy {
		return core.ErrContentPolicyViolation
	}
	return core.ErrToolInvocation
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// ContentPolicyError reports that a provider refused the request on content
// grounds. Guidance tells the agent how to rephrase before retrying.
func ContentPolicyError(tool, guidance string) *ToolError {
	return &ToolError{Tool: tool, Message: guidance, Code: CodeContentPolicy}
}

// ErrorPayload renders err as the structured {"error": "..."} text agents
// receive in place of a tool result.
func ErrorPayload(err error) string {
	msg := err.Error()
	var te *ToolError
	if errors.As(err, &te) {
		msg = te.Message
	}
	raw, _ := json.Marshal(map[string]string{"error": msg})
	return string(raw)
}

// ParseArguments decodes the raw JSON arguments of a tool call. An empty
// string decodes to an empty map.
func ParseArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

// Definition converts t into the provider-agnostic definition offered to models.
func Definition(t Tool) model.ToolDefinition {
	params := t.Parameters()
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  params,
		},
	}
}

// Definitions converts a tool list preserving order.
func Definitions(tools []Tool) []model.ToolDefinition {
	out := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		out = append(out, Definition(t))
	}
	return out
}

// StringArg returns the string argument key, or "" when absent.
func StringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// IntArg returns the integer argument key, or def when absent.
func IntArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}
