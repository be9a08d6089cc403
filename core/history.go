package core

import (
	"fmt"
	"sync"
	"time"
)

// History is the ordered, append-only conversation log shared by reference by
// every agent participating in one orchestration run. It is safe for
// concurrent access so that observers (runners, hooks) can snapshot it while
// the run appends.
//
// Contract:
//   - The first message is a single System message; it is never removed and
//     no further System message can be appended
//   - Append is atomic: either the full message is recorded or nothing is
//   - Snapshot returns a copy; a snapshot taken earlier is always a
//     prefix of a snapshot taken later
type History struct {
	mu       sync.RWMutex
	messages []Message
}

// NewHistory creates a History opened by the given System persona.
func NewHistory(system string) *History {
	msg := SystemMessage(system)
	msg.CreatedAt = time.Now()
	return &History{messages: []Message{msg}}
}

// NewHistoryFrom rebuilds a History from a previously recorded transcript,
// for example to continue a chat across runs. The transcript must satisfy the
// same invariants Append enforces.
func NewHistoryFrom(messages []Message) (*History, error) {
	if len(messages) == 0 || messages[0].Role != RoleSystem {
		return nil, fmt.Errorf("%w: transcript must start with a system message", ErrInvalidMessage)
	}
	h := &History{messages: []Message{messages[0].clone()}}
	for _, m := range messages[1:] {
		if err := h.Append(m); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Append records msg at the end of the log.
func (h *History) Append(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.Role == RoleSystem {
		return fmt.Errorf("%w: system message already present", ErrInvalidMessage)
	}
	msg = msg.clone()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
	return nil
}

// Len returns the number of recorded messages, System message included.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// System returns the persona message opening the conversation.
func (h *History) System() Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.messages[0].clone()
}

// At returns the message at index i.
func (h *History) At(i int) (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 || i >= len(h.messages) {
		return Message{}, false
	}
	return h.messages[i].clone(), true
}

// Last returns the most recently appended message.
func (h *History) Last() Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.messages[len(h.messages)-1].clone()
}

// Snapshot returns a copy of the full log.
func (h *History) Snapshot() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	for i, m := range h.messages {
		out[i] = m.clone()
	}
	return out
}

// Since returns a copy of the messages recorded at or after index i.
func (h *History) Since(i int) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 {
		i = 0
	}
	if i >= len(h.messages) {
		return nil
	}
	out := make([]Message, 0, len(h.messages)-i)
	for _, m := range h.messages[i:] {
		out = append(out, m.clone())
	}
	return out
}
