// Package scripts implements the SearchStarWarsScriptsTool, a vector search
// over the dialogue lines of the six Star Wars films, and the ingestion of
// script files into a memory.Store.
package scripts

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/memory"
	"github.com/hupe1980/agentrelay/tool"
)

// Name is the tool name exposed to agents.
const Name = "SearchStarWarsScriptsTool"

// DefaultTopK is the number of script chunks returned per search.
const DefaultTopK = 20

// MovieKey is the metadata key holding the film slug.
const MovieKey = "movie_name"

// Movies lists the accepted film slugs.
var Movies = []string{
	"the-phantom-menace",
	"attack-of-the-clones",
	"revenge-of-the-sith",
	"a-new-hope",
	"the-empire-strikes-back",
	"return-of-the-jedi",
}

// ValidMovie reports whether name is one of Movies.
func ValidMovie(name string) bool { return slices.Contains(Movies, name) }

const description = "A tool for searching Star Wars movie scripts using a vector database. " +
	"This tool takes a query and returns a list of relevant script chunks."

// Chunk is one search hit.
type Chunk struct {
	ID        string  `json:"id"`
	MovieName string  `json:"movie_name"`
	ChunkText string  `json:"chunk_text"`
	Score     float32 `json:"score"`
}

// Options configures the tool.
type Options struct {
	// TopK bounds the number of returned chunks.
	TopK int
	// Logger provides structured logging.
	Logger logging.Logger
}

// Tool searches script lines in a memory.Store.
type Tool struct {
	store  memory.Store
	opts   Options
	logger logging.Logger
}

// New creates the tool over store.
func New(store memory.Store, optFns ...func(o *Options)) *Tool {
	opts := Options{TopK: DefaultTopK}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Tool{store: store, opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// Name implements tool.Tool.
func (t *Tool) Name() string { return Name }

// Description implements tool.Tool.
func (t *Tool) Description() string { return description }

// Parameters implements tool.Tool.
func (t *Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The query to search for information from the Star Wars movie scripts.",
			},
			"movieName": map[string]any{
				"type": "string",
				"description": "Optional. The name of the Star Wars movie to search within. " +
					"Omit it to search all movies.",
				"enum": Movies,
			},
		},
		"required": []string{"query"},
	}
}

// Call implements tool.Tool.
func (t *Tool) Call(ctx context.Context, args map[string]any) (string, error) {
	chunks, err := t.Search(ctx, tool.StringArg(args, "query"), tool.StringArg(args, "movieName"))
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(map[string]any{"matches": chunks})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Search returns the script lines most relevant to query, optionally
// restricted to one film.
func (t *Tool) Search(ctx context.Context, query, movie string) ([]Chunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, tool.NewToolError(Name, "Query cannot be empty.", tool.CodeValidation)
	}

	var filter memory.Filter
	if movie != "" {
		if !ValidMovie(movie) {
			return nil, tool.NewToolError(Name,
				fmt.Sprintf("Invalid movie name '%s'. Valid options are: %s.", movie, strings.Join(Movies, ", ")),
				tool.CodeValidation)
		}
		filter = memory.Filter{MovieKey: movie}
	}

	matches, err := t.store.Query(ctx, query, t.opts.TopK, filter)
	if err != nil {
		return nil, fmt.Errorf("search scripts: %w", err)
	}

	out := make([]Chunk, 0, len(matches))
	for _, m := range matches {
		out = append(out, Chunk{
			ID:        m.ID,
			MovieName: m.Metadata[MovieKey],
			ChunkText: m.Content,
			Score:     m.Score,
		})
	}
	t.logger.Debug("scripts.search", "movie", movie, "results", len(out))
	return out, nil
}
