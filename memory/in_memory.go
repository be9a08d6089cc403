package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// InMemoryStore is a naive process‑local Store.
//
// Search: linear scan scoring each document by the fraction of distinct
// query terms it contains (case insensitive). Documents without any query
// term are skipped. Suitable only for tests and demos; swap for a vector
// backend for semantic retrieval.
type InMemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]Document
	order []string
}

// NewInMemoryStore creates a new in-memory document store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string]Document)}
}

// Upsert stores copies of docs.
func (m *InMemoryStore) Upsert(_ context.Context, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("memory: document id is required")
		}
		if _, exists := m.docs[d.ID]; !exists {
			m.order = append(m.order, d.ID)
		}
		d.Metadata = cloneMetadata(d.Metadata)
		m.docs[d.ID] = d
	}
	return nil
}

// Len returns the number of stored documents.
func (m *InMemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Query scores stored documents by term overlap.
func (m *InMemoryStore) Query(_ context.Context, text string, topK int, filter Filter) ([]Match, error) {
	terms := tokenize(text)
	if len(terms) == 0 {
		return nil, fmt.Errorf("memory: query text is empty")
	}
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Match
	for _, id := range m.order {
		d := m.docs[id]
		if !filter.matches(d.Metadata) {
			continue
		}
		words := make(map[string]struct{})
		for _, w := range tokenize(d.Content) {
			words[w] = struct{}{}
		}
		hits := 0
		for _, t := range terms {
			if _, ok := words[t]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		d.Metadata = cloneMetadata(d.Metadata)
		out = append(out, Match{Document: d, Score: float32(hits) / float32(len(terms))})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// tokenize returns the distinct lower-cased words of s.
func tokenize(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
