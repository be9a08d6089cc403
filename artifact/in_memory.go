package artifact

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemoryStore keeps published stories and images in process memory, for
// tests and for embedding the publisher where nothing should touch disk.
// Stored bytes are copied on Save and Get.
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string][]byte
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string][]byte)}
}

// Save stores (or overwrites) the artifact bytes under name.
// The input slice is copied before storage.
func (a *InMemoryStore) Save(_ context.Context, name string, data []byte) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.artifacts[name] = cp
	return nil
}

// Get returns a copy of the stored artifact bytes or ErrNotFound.
func (a *InMemoryStore) Get(_ context.Context, name string) ([]byte, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.artifacts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// List returns the sorted artifact names. The slice is a snapshot and safe
// for caller mutation.
func (a *InMemoryStore) List(_ context.Context) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.artifacts))
	for name := range a.artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the artifact if present or returns ErrNotFound.
func (a *InMemoryStore) Delete(_ context.Context, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.artifacts[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(a.artifacts, name)
	return nil
}
