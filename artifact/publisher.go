package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// DefaultMaxAssetBytes bounds downloaded assets.
const DefaultMaxAssetBytes = 32 << 20

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	// HTTPClient downloads auxiliary assets. Defaults to an instrumented
	// client with a 60s timeout.
	HTTPClient *http.Client
	// MaxAssetBytes bounds the size of a downloaded asset.
	MaxAssetBytes int64
	// DefaultExtension is used when the asset URL has none.
	DefaultExtension string
	// Logger provides structured logging.
	Logger logging.Logger
}

// Publication names the artifacts written for a result.
type Publication struct {
	Document string
	Asset    string
}

// Publisher writes terminal results into a Store.
type Publisher struct {
	store  Store
	client *http.Client
	opts   PublisherOptions
	logger logging.Logger
}

// NewPublisher creates a publisher writing into store.
func NewPublisher(store Store, optFns ...func(o *PublisherOptions)) *Publisher {
	opts := PublisherOptions{
		MaxAssetBytes:    DefaultMaxAssetBytes,
		DefaultExtension: ".png",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Publisher{store: store, client: client, opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// Publish downloads the result's auxiliary asset under a fresh name and
// writes "<title>.md" with the title, the body and a link to the asset.
// Results without an asset produce the document only.
func (p *Publisher) Publish(ctx context.Context, result core.Result) (Publication, error) {
	var pub Publication

	if result.AuxiliaryAssetURL != "" {
		data, ext, err := p.download(ctx, result.AuxiliaryAssetURL)
		if err != nil {
			return Publication{}, err
		}
		pub.Asset = uuid.NewString() + ext
		if err := p.store.Save(ctx, pub.Asset, data); err != nil {
			return Publication{}, fmt.Errorf("artifact: save asset: %w", err)
		}
	}

	pub.Document = DocumentName(result.Title)
	if err := p.store.Save(ctx, pub.Document, []byte(result.Markdown(pub.Asset))); err != nil {
		return Publication{}, fmt.Errorf("artifact: save document: %w", err)
	}

	p.logger.Info("artifact.published", "document", pub.Document, "asset", pub.Asset)
	return pub, nil
}

func (p *Publisher) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", fmt.Errorf("artifact: invalid asset url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("artifact: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("artifact: download asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("artifact: download asset: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.opts.MaxAssetBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("artifact: download asset: %w", err)
	}
	if int64(len(data)) > p.opts.MaxAssetBytes {
		return nil, "", fmt.Errorf("artifact: asset exceeds %d bytes", p.opts.MaxAssetBytes)
	}

	ext := path.Ext(u.Path)
	if ext == "" {
		ext = p.opts.DefaultExtension
	}
	return data, ext, nil
}

// DocumentName derives the markdown file name from a title. Path separators
// and control characters are replaced.
func DocumentName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r < 0x20:
			return '-'
		default:
			return r
		}
	}, strings.TrimSpace(title))
	name = strings.Trim(name, ". ")
	if name == "" {
		name = "story"
	}
	return name + ".md"
}
