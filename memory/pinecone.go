package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// contentKey is the metadata field holding the document text in Pinecone.
const contentKey = "text"

// PineconeOptions configures a PineconeStore.
type PineconeOptions struct {
	APIKey    string
	IndexName string
	// Host skips index discovery when set.
	Host      string
	Namespace string
	// BatchSize bounds vectors per upsert request.
	BatchSize int
}

// PineconeStore is a managed vector store backed by a Pinecone index.
type PineconeStore struct {
	client   *pinecone.Client
	embedder Embedder
	opts     PineconeOptions

	mu   sync.Mutex
	conn *pinecone.IndexConnection
}

// NewPineconeStore creates a store on an existing index.
func NewPineconeStore(embedder Embedder, optFns ...func(o *PineconeOptions)) (*PineconeStore, error) {
	if embedder == nil {
		return nil, ErrNoEmbedder
	}
	opts := PineconeOptions{BatchSize: 100}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("memory: API key is required for Pinecone")
	}
	if opts.IndexName == "" && opts.Host == "" {
		return nil, fmt.Errorf("memory: Pinecone index name or host is required")
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 100
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: opts.APIKey})
	if err != nil {
		return nil, fmt.Errorf("memory: create Pinecone client: %w", err)
	}
	return &PineconeStore{client: client, embedder: embedder, opts: opts}, nil
}

func (s *PineconeStore) index(ctx context.Context) (*pinecone.IndexConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}

	host := s.opts.Host
	if host == "" {
		idx, err := s.client.DescribeIndex(ctx, s.opts.IndexName)
		if err != nil {
			return nil, fmt.Errorf("memory: describe index %s: %w", s.opts.IndexName, err)
		}
		host = idx.Host
	}
	conn, err := s.client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: s.opts.Namespace})
	if err != nil {
		return nil, fmt.Errorf("memory: connect index: %w", err)
	}
	s.conn = conn
	return conn, nil
}

// Close releases the index connection.
func (s *PineconeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Upsert embeds and writes docs in batches.
func (s *PineconeStore) Upsert(ctx context.Context, docs []Document) error {
	conn, err := s.index(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(docs); start += s.opts.BatchSize {
		batch := docs[start:min(start+s.opts.BatchSize, len(docs))]
		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Content
		}
		vecs, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("memory: embed documents: %w", err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("memory: embedder returned %d vectors for %d documents", len(vecs), len(batch))
		}

		vectors := make([]*pinecone.Vector, len(batch))
		for i, d := range batch {
			md, err := toPineconeMetadata(d)
			if err != nil {
				return err
			}
			vectors[i] = &pinecone.Vector{Id: d.ID, Values: vecs[i], Metadata: md}
		}
		if _, err := conn.UpsertVectors(ctx, vectors); err != nil {
			return fmt.Errorf("memory: upsert vectors: %w", err)
		}
	}
	return nil
}

// Query embeds text and queries the index.
func (s *PineconeStore) Query(ctx context.Context, text string, topK int, filter Filter) ([]Match, error) {
	if text == "" {
		return nil, fmt.Errorf("memory: query text is empty")
	}
	if topK <= 0 {
		return nil, nil
	}
	conn, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("memory: embedder returned %d vectors for 1 text", len(vecs))
	}

	mf, err := toPineconeFilter(filter)
	if err != nil {
		return nil, err
	}
	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vecs[0],
		TopK:            uint32(topK),
		MetadataFilter:  mf,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: query Pinecone: %w", err)
	}
	return fromPineconeMatches(resp.Matches), nil
}

func toPineconeMetadata(d Document) (*pinecone.Metadata, error) {
	fields := make(map[string]any, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		fields[k] = v
	}
	fields[contentKey] = d.Content
	md, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("memory: convert metadata: %w", err)
	}
	return md, nil
}

// toPineconeFilter converts an equality filter into Pinecone's $eq syntax.
func toPineconeFilter(f Filter) (*pinecone.MetadataFilter, error) {
	if len(f) == 0 {
		return nil, nil
	}
	fields := make(map[string]any, len(f))
	for k, v := range f {
		fields[k] = map[string]any{"$eq": v}
	}
	mf, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("memory: convert filter: %w", err)
	}
	return mf, nil
}

func fromPineconeMatches(matches []*pinecone.ScoredVector) []Match {
	out := make([]Match, 0, len(matches))
	for _, sv := range matches {
		if sv == nil || sv.Vector == nil {
			continue
		}
		m := Match{Document: Document{ID: sv.Vector.Id}, Score: sv.Score}
		if sv.Vector.Metadata != nil {
			m.Metadata = make(map[string]string)
			for k, v := range sv.Vector.Metadata.AsMap() {
				s, ok := v.(string)
				if !ok {
					s = fmt.Sprint(v)
				}
				if k == contentKey {
					m.Content = s
					continue
				}
				m.Metadata[k] = s
			}
		}
		out = append(out, m)
	}
	return out
}
