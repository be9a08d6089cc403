package memory

import (
	"context"
	"errors"
)

// ErrNoEmbedder is returned by vector stores constructed without an Embedder.
var ErrNoEmbedder = errors.New("memory: embedder is required")

// Document is an indexed unit of text.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Match is a query hit. Score is higher for better matches.
type Match struct {
	Document
	Score float32
}

// Filter restricts a query to documents whose metadata equals every entry.
type Filter map[string]string

// matches reports whether md satisfies the filter.
func (f Filter) matches(md map[string]string) bool {
	for k, v := range f {
		if md[k] != v {
			return false
		}
	}
	return true
}

// Store indexes and searches documents. Implementations must be safe for
// concurrent use.
type Store interface {
	// Upsert inserts or replaces documents by ID.
	Upsert(ctx context.Context, docs []Document) error
	// Query returns up to topK matches ordered by descending score.
	Query(ctx context.Context, text string, topK int, filter Filter) ([]Match, error)
}

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderFunc adapts a function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Embed implements Embedder.
func (f EmbedderFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

func cloneMetadata(md map[string]string) map[string]string {
	if md == nil {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
