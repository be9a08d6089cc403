package memory

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"
)

// ChromemOptions configures a ChromemStore.
type ChromemOptions struct {
	// Collection names the chromem collection. Defaults to "documents".
	Collection string
	// Path persists the database to a directory; empty keeps it in memory.
	Path string
	// Concurrency bounds parallel embedding during Upsert.
	Concurrency int
}

// ChromemStore is an in-process vector store backed by chromem-go.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	opts       ChromemOptions
}

// NewChromemStore creates (or opens) a chromem collection.
func NewChromemStore(embedder Embedder, optFns ...func(o *ChromemOptions)) (*ChromemStore, error) {
	if embedder == nil {
		return nil, ErrNoEmbedder
	}
	opts := ChromemOptions{
		Collection:  "documents",
		Concurrency: runtime.NumCPU(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	db := chromem.NewDB()
	if opts.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(opts.Path, false)
		if err != nil {
			return nil, fmt.Errorf("memory: open chromem db: %w", err)
		}
	}

	embed := func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("memory: embedder returned %d vectors for 1 text", len(vecs))
		}
		return vecs[0], nil
	}
	col, err := db.GetOrCreateCollection(opts.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("memory: open collection %s: %w", opts.Collection, err)
	}
	return &ChromemStore{db: db, collection: col, embedder: embedder, opts: opts}, nil
}

// Len returns the number of stored documents.
func (s *ChromemStore) Len() int { return s.collection.Count() }

// Upsert embeds docs in one batch and adds them to the collection. Existing
// IDs are replaced.
func (s *ChromemStore) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("memory: embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("memory: embedder returned %d vectors for %d documents", len(vecs), len(docs))
	}

	cdocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		cdocs[i] = chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  cloneMetadata(d.Metadata),
			Embedding: vecs[i],
		}
	}
	if err := s.collection.AddDocuments(ctx, cdocs, s.opts.Concurrency); err != nil {
		return fmt.Errorf("memory: add documents: %w", err)
	}
	return nil
}

// Query runs a cosine similarity search.
func (s *ChromemStore) Query(ctx context.Context, text string, topK int, filter Filter) ([]Match, error) {
	if text == "" {
		return nil, fmt.Errorf("memory: query text is empty")
	}
	n := min(topK, s.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	res, err := s.collection.Query(ctx, text, n, map[string]string(filter), nil)
	if err != nil {
		return nil, fmt.Errorf("memory: query: %w", err)
	}
	out := make([]Match, 0, len(res))
	for _, r := range res {
		out = append(out, Match{
			Document: Document{ID: r.ID, Content: r.Content, Metadata: cloneMetadata(r.Metadata)},
			Score:    r.Similarity,
		})
	}
	return out, nil
}
