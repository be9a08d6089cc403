package core

import (
	"fmt"
	"time"
)

// Role identifies the author class of a Message.
type Role string

const (
	// RoleSystem carries the persona and safety constraints of a conversation.
	RoleSystem Role = "system"
	// RoleUser carries end-user input.
	RoleUser Role = "user"
	// RoleAssistant carries agent output, including tool-call requests.
	RoleAssistant Role = "assistant"
	// RoleTool carries a tool result answering an earlier tool call.
	RoleTool Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ToolCall is the structured tool-call shape attached to Assistant messages.
// Arguments holds the raw JSON object emitted by the completion capability.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a single conversation entry. Messages are treated as immutable
// once appended to a History; the History hands out copies only.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// SystemMessage creates the persona message that opens every conversation.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates an end-user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage creates a plain text message authored by agent.
func AssistantMessage(agent, content string) Message {
	return Message{Role: RoleAssistant, Name: agent, Content: content}
}

// ToolCallMessage creates an Assistant message requesting a single tool call.
func ToolCallMessage(agent string, call ToolCall) Message {
	return Message{Role: RoleAssistant, Name: agent, ToolCalls: []ToolCall{call}}
}

// ToolResultMessage creates a Tool message answering the call identified by callID.
func ToolResultMessage(callID, tool, content string) Message {
	return Message{Role: RoleTool, Name: tool, ToolCallID: callID, Content: content}
}

// HasToolCalls reports whether the message requests at least one tool call.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// Validate checks the structural shape of the message.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, m.Role)
	}
	if m.Role == RoleTool && m.ToolCallID == "" {
		return fmt.Errorf("%w: tool message without tool call id", ErrInvalidMessage)
	}
	if m.Role != RoleAssistant && len(m.ToolCalls) > 0 {
		return fmt.Errorf("%w: only assistant messages may carry tool calls", ErrInvalidMessage)
	}
	for _, c := range m.ToolCalls {
		if c.ID == "" || c.Name == "" {
			return fmt.Errorf("%w: tool call requires id and name", ErrInvalidMessage)
		}
	}
	return nil
}

func (m Message) clone() Message {
	if m.ToolCalls != nil {
		calls := make([]ToolCall, len(m.ToolCalls))
		copy(calls, m.ToolCalls)
		m.ToolCalls = calls
	}
	return m
}
