package testutil

import (
	"github.com/hupe1980/agentrelay/core"
)

// HistoryBuilder helps construct transcripts with fluent chaining for tests.
// Example:
//
//	msgs := NewHistoryBuilder("persona").User("hi").Answer("Bot", "hello").Messages()
type HistoryBuilder struct {
	msgs []core.Message
}

// NewHistoryBuilder starts a transcript with the given System persona.
func NewHistoryBuilder(system string) *HistoryBuilder {
	return &HistoryBuilder{msgs: []core.Message{core.SystemMessage(system)}}
}

// User appends a user message (chainable).
func (b *HistoryBuilder) User(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.UserMessage(text))
	return b
}

// Answer appends an assistant text message authored by agent (chainable).
func (b *HistoryBuilder) Answer(agent, text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.AssistantMessage(agent, text))
	return b
}

// Call appends an assistant tool call and its result (chainable).
func (b *HistoryBuilder) Call(agent, tool, args, result string) *HistoryBuilder {
	id := core.NewToolCallID()
	b.msgs = append(b.msgs,
		core.ToolCallMessage(agent, core.ToolCall{ID: id, Name: tool, Arguments: args}),
		core.ToolResultMessage(id, tool, result),
	)
	return b
}

// Messages returns the transcript.
func (b *HistoryBuilder) Messages() []core.Message {
	out := make([]core.Message, len(b.msgs))
	copy(out, b.msgs)
	return out
}

// Build returns the transcript as a History. It panics on an invalid
// transcript, which is a bug in the test.
func (b *HistoryBuilder) Build() *core.History {
	h, err := core.NewHistoryFrom(b.msgs)
	if err != nil {
		panic(err)
	}
	return h
}
