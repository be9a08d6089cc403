// Package wookieepedia implements the WookiepediaTool: a Tavily web search
// restricted to the Star Wars fandom wiki. Responses are cached per query.
package wookieepedia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/tool"
)

// Name is the tool name exposed to agents.
const Name = "WookiepediaTool"

// DefaultEndpoint is the Tavily search API.
const DefaultEndpoint = "https://api.tavily.com/search"

const description = "A tool for getting information on Star Wars from Wookiepedia. " +
	"This tool takes a prompt as a query and returns a list of results from Wookiepedia."

// Options configures the tool.
type Options struct {
	// APIKey is the Tavily API key sent as bearer token.
	APIKey string
	// Endpoint overrides the search endpoint.
	Endpoint string
	// Domains restricts results. Defaults to the Star Wars fandom wiki.
	Domains []string
	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
	// CacheTTL is the lifetime of cached responses. 0 disables caching.
	CacheTTL time.Duration
	// CacheMaxBytes bounds the total size of cached responses.
	CacheMaxBytes int64
	// Logger provides structured logging.
	Logger logging.Logger
}

// Tool searches Wookieepedia through Tavily.
type Tool struct {
	opts   Options
	client *http.Client
	cache  *ristretto.Cache[string, string]
	logger logging.Logger
}

// New creates the tool.
func New(optFns ...func(o *Options)) (*Tool, error) {
	opts := Options{
		Endpoint:      DefaultEndpoint,
		Domains:       []string{"https://starwars.fandom.com/"},
		CacheTTL:      time.Hour,
		CacheMaxBytes: 16 << 20,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("wookieepedia: Tavily API key is required")
	}

	t := &Tool{opts: opts, client: opts.HTTPClient, logger: logging.OrNoOp(opts.Logger)}
	if t.client == nil {
		t.client = &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if opts.CacheTTL > 0 && opts.CacheMaxBytes > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
			NumCounters: max(opts.CacheMaxBytes/1024*10, 1000),
			MaxCost:     opts.CacheMaxBytes,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("wookieepedia: create cache: %w", err)
		}
		t.cache = cache
	}
	return t, nil
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
				"description": "The query to search for information on Wookiepedia.",
			},
		},
		"required": []string{"query"},
	}
}

// Call implements tool.Tool. It returns the raw Tavily response body.
func (t *Tool) Call(ctx context.Context, args map[string]any) (string, error) {
	query := strings.TrimSpace(tool.StringArg(args, "query"))
	if query == "" {
		return "", tool.NewToolError(Name, "Query cannot be empty.", tool.CodeValidation)
	}

	key := strings.ToLower(query)
	if t.cache != nil {
		if body, ok := t.cache.Get(key); ok {
			t.logger.Debug("wookieepedia.cache.hit", "query", query)
			return body, nil
		}
	}

	body, err := t.search(ctx, query)
	if err != nil {
		return "", err
	}

	if t.cache != nil {
		t.cache.SetWithTTL(key, body, int64(len(body)), t.opts.CacheTTL)
		t.cache.Wait()
	}
	return body, nil
}

func (t *Tool) search(ctx context.Context, query string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"query":           query,
		"include_answer":  "advanced",
		"include_domains": t.opts.Domains,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.opts.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tavily request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("tavily response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("tavily returned status %d", resp.StatusCode)
	}
	return string(body), nil
}

// Close releases the cache.
func (t *Tool) Close() {
	if t.cache != nil {
		t.cache.Close()
	}
}
