package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrelay/core"
)

// Responder computes a response for a request. It is used by ScriptedModel
// once its queued replies are exhausted.
type Responder func(req Request) (Response, error)

type scriptedReply struct {
	resp Response
	err  error
}

// ScriptedModel is a deterministic in‑memory Model useful for tests, examples
// and offline runs. Replies are served in the order they were queued; when
// the queue is empty the optional Responder is consulted. Every request is
// recorded for later inspection.
type ScriptedModel struct {
	mu        sync.Mutex
	info      Info
	replies   []scriptedReply
	responder Responder
	requests  []Request
}

// NewScriptedModel constructs a ScriptedModel with tool support enabled.
func NewScriptedModel(name string) *ScriptedModel {
	return &ScriptedModel{info: Info{Name: name, Provider: "scripted", SupportsTools: true}}
}

// Then queues a response.
func (m *ScriptedModel) Then(resp Response) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, scriptedReply{resp: resp})
	return m
}

// ThenText queues a plain text answer.
func (m *ScriptedModel) ThenText(text string) *ScriptedModel {
	return m.Then(TextResponse(text))
}

// ThenCall queues a single tool call.
func (m *ScriptedModel) ThenCall(tool, args string) *ScriptedModel {
	return m.Then(ToolCallResponse(tool, args))
}

// ThenError queues a failed generation.
func (m *ScriptedModel) ThenError(err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, scriptedReply{err: err})
	return m
}

// Otherwise installs the responder used once queued replies are exhausted.
func (m *ScriptedModel) Otherwise(fn Responder) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = fn
	return m
}

// Requests returns the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate calls received.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *ScriptedModel) next(req Request) (Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.replies) > 0 {
		r := m.replies[0]
		m.replies = m.replies[1:]
		m.mu.Unlock()
		return r.resp, r.err
	}
	responder := m.responder
	m.mu.Unlock()
	if responder == nil {
		return Response{}, fmt.Errorf("scripted model %s: no reply queued", m.info.Name)
	}
	return responder(req)
}

// Generate implements Model; emits optional streaming char chunks then the final response.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}
		full, err := m.next(req)
		if err != nil {
			errCh <- err
			return
		}
		if req.Stream {
			for _, r := range full.Message.Content {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Message: core.Message{Role: core.RoleAssistant, Content: string(r)},
				}:
				}
			}
		}
		full.Partial = false
		full.Message.Role = core.RoleAssistant
		if full.FinishReason == "" {
			full.FinishReason = "stop"
			if full.Message.HasToolCalls() {
				full.FinishReason = "tool_calls"
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- full:
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *ScriptedModel) Info() Info { return m.info }

// TextResponse builds a final response carrying plain text.
func TextResponse(text string) Response {
	return Response{
		Message:      core.Message{Role: core.RoleAssistant, Content: text},
		FinishReason: "stop",
	}
}

// ToolCallResponse builds a final response carrying a single tool call with
// a freshly generated call identifier.
func ToolCallResponse(tool, args string) Response {
	if args == "" {
		args = "{}"
	}
	return Response{
		Message: core.Message{
			Role:      core.RoleAssistant,
			ToolCalls: []core.ToolCall{{ID: core.NewToolCallID(), Name: tool, Arguments: args}},
		},
		FinishReason: "tool_calls",
	}
}

// ContentFilteredResponse builds a final response refused by the provider's
// content filter.
func ContentFilteredResponse() Response {
	return Response{
		Message:      core.Message{Role: core.RoleAssistant},
		FinishReason: FinishReasonContentFilter,
	}
}
