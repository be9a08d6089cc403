package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemoryStore is a volatile Store implementation keeping transcripts in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral processes. Transcripts are cloned on the way in and out
// to prevent external mutation of internal state.
type InMemoryStore struct {
	mu          sync.RWMutex
	transcripts map[string]Transcript
}

// NewInMemoryStore constructs an empty in‑memory transcript store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{transcripts: make(map[string]Transcript)}
}

// Save stores a clone of t.
func (s *InMemoryStore) Save(_ context.Context, t Transcript) error {
	if t.ID == "" {
		return fmt.Errorf("session: transcript id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[t.ID] = t.Clone()
	return nil
}

// Get returns a clone of the stored transcript.
func (s *InMemoryStore) Get(_ context.Context, id string) (Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transcripts[id]
	if !ok {
		return Transcript{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.Clone(), nil
}

// List returns the transcripts of sessionID ordered by start time.
func (s *InMemoryStore) List(_ context.Context, sessionID string) ([]Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transcript
	for _, t := range s.transcripts {
		if t.SessionID == sessionID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Delete removes the transcript with id.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcripts, id)
	return nil
}
