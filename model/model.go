package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentrelay/core"
)

// ErrContentFiltered is returned when the provider refused to complete the
// request because of its content policy.
var ErrContentFiltered = errors.New("completion refused by content filter")

// FinishReasonContentFilter is the normalized finish reason adapters emit
// for content-policy refusals.
const FinishReasonContentFilter = "content_filter"

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// ToolChoiceMode selects how the model may use the offered tools.
type ToolChoiceMode int

const (
	// ToolChoiceAuto lets the model decide between text and tool calls.
	ToolChoiceAuto ToolChoiceMode = iota
	// ToolChoiceNone forbids tool calls.
	ToolChoiceNone
	// ToolChoiceNamed forces a call of the tool named in ToolChoice.Name.
	ToolChoiceNamed
)

// ToolChoice constrains the model's use of tools for one request.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Name string         `json:"name,omitempty"`
}

// Request captures the normalized model input produced by an agent step.
// Instructions are the agent's rendered persona and are kept apart from the
// shared, provider-agnostic Messages.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []core.Message   `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	ToolChoice   ToolChoice       `json:"tool_choice"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
// The final response carries the complete assistant message including any
// tool calls.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", "content_filter"
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the completion capability agents drive.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Complete runs req against m and returns the final (non-partial) response.
// A content-filter refusal is reported as an error matching both
// ErrContentFiltered and core.ErrContentPolicyViolation.
func Complete(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final Response
		got   bool
	)
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !r.Partial {
				final, got = r, true
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				if errors.Is(err, ErrContentFiltered) {
					return Response{}, fmt.Errorf("%w: %w", core.ErrContentPolicyViolation, err)
				}
				return Response{}, err
			}
		}
	}
	if !got {
		return Response{}, fmt.Errorf("model %s returned no final response", m.Info().Name)
	}
	if final.FinishReason == FinishReasonContentFilter {
		return Response{}, fmt.Errorf("%w: %w", core.ErrContentPolicyViolation, ErrContentFiltered)
	}
	final.Message.Role = core.RoleAssistant
	return final, nil
}
