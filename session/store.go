package session

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// ErrNotFound is returned when no transcript exists for an ID.
var ErrNotFound = errors.New("transcript not found")

// Transition mirrors a counted transition of the run.
type Transition struct {
	Kind  string    `json:"kind"`
	From  string    `json:"from"`
	To    string    `json:"to"`
	Tool  string    `json:"tool,omitempty"`
	Depth int       `json:"depth"`
	At    time.Time `json:"at"`
}

// Transcript is the persisted record of one run.
type Transcript struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	State       string         `json:"state"`
	Entry       string         `json:"entry"`
	ActiveAgent string         `json:"active_agent"`
	Messages    []core.Message `json:"messages"`
	Transitions []Transition   `json:"transitions"`
	Result      *core.Result   `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at"`
}

// Clone returns a deep copy of the transcript.
func (t Transcript) Clone() Transcript {
	out := t
	out.Messages = make([]core.Message, len(t.Messages))
	for i, m := range t.Messages {
		if m.ToolCalls != nil {
			m.ToolCalls = append([]core.ToolCall(nil), m.ToolCalls...)
		}
		out.Messages[i] = m
	}
	out.Transitions = append([]Transition(nil), t.Transitions...)
	if t.Result != nil {
		r := *t.Result
		out.Result = &r
	}
	return out
}

// Store persists transcripts. Implementations must be safe for concurrent use.
type Store interface {
	// Save inserts or replaces the transcript with t.ID.
	Save(ctx context.Context, t Transcript) error
	// Get returns the transcript with id or ErrNotFound.
	Get(ctx context.Context, id string) (Transcript, error)
	// List returns the transcripts of a session ordered by start time.
	List(ctx context.Context, sessionID string) ([]Transcript, error)
	// Delete removes the transcript with id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
}

// Latest returns the most recent transcript of a session or ErrNotFound.
func Latest(ctx context.Context, s Store, sessionID string) (Transcript, error) {
	all, err := s.List(ctx, sessionID)
	if err != nil {
		return Transcript{}, err
	}
	if len(all) == 0 {
		return Transcript{}, ErrNotFound
	}
	return all[len(all)-1], nil
}
