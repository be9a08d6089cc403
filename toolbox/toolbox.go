// Package toolbox assembles the built-in Star Wars tools (Wookieepedia web
// search, figurine purchases, script search and cover image generation) and
// exposes them either as an in-process tool.Provider or as an MCP server.
package toolbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/memory"
	"github.com/hupe1980/agentrelay/tool"
	"github.com/hupe1980/agentrelay/toolbox/imagegen"
	"github.com/hupe1980/agentrelay/toolbox/purchases"
	"github.com/hupe1980/agentrelay/toolbox/scripts"
	"github.com/hupe1980/agentrelay/toolbox/wookieepedia"
)

// ProviderName is the catalog provider name of the built-in tools.
const ProviderName = "starwars"

// Options selects and configures the built-in tools. A tool whose
// prerequisites are missing is skipped.
type Options struct {
	// TavilyAPIKey enables the WookiepediaTool.
	TavilyAPIKey string
	// SearchCacheTTL bounds how long search responses are cached.
	SearchCacheTTL time.Duration

	// PurchasesDB is the sqlite path of the purchase database. Empty
	// disables the StarWarsPurchaseTool.
	PurchasesDB string
	// SeedPurchases loads the sample orders on open.
	SeedPurchases bool

	// Scripts is the vector store holding the movie scripts. Nil disables
	// the SearchStarWarsScriptsTool. Stores implementing io.Closer are
	// closed with the toolbox.
	Scripts memory.Store

	// Images enables the GenerateStarWarsImageTool.
	Images bool
	// ImageModel overrides the image model.
	ImageModel string
	// OpenAIAPIKey and OpenAIBaseURL configure the image client.
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// Logger provides structured logging.
	Logger logging.Logger
}

// Toolbox owns the constructed tools and their resources.
type Toolbox struct {
	tools   []tool.Tool
	closers []func() error
	logger  logging.Logger
}

// New wraps already constructed tools.
func New(tools ...tool.Tool) *Toolbox {
	return &Toolbox{tools: tools, logger: logging.NoOpLogger{}}
}

// Open constructs the tools enabled by opts.
func Open(ctx context.Context, optFns ...func(o *Options)) (*Toolbox, error) {
	opts := Options{SearchCacheTTL: time.Hour}
	for _, fn := range optFns {
		fn(&opts)
	}
	tb := &Toolbox{logger: logging.OrNoOp(opts.Logger)}

	if opts.TavilyAPIKey != "" {
		wt, err := wookieepedia.New(func(o *wookieepedia.Options) {
			o.APIKey = opts.TavilyAPIKey
			o.CacheTTL = opts.SearchCacheTTL
			o.Logger = opts.Logger
		})
		if err != nil {
			return nil, err
		}
		tb.add(wt, func() error { wt.Close(); return nil })
	} else {
		tb.logger.Warn("toolbox.skipped", "tool", wookieepedia.Name, "reason", "no Tavily API key")
	}

	if opts.PurchasesDB != "" {
		pt, err := purchases.Open(ctx, opts.PurchasesDB, func(o *purchases.Options) { o.Logger = opts.Logger })
		if err != nil {
			_ = tb.Close()
			return nil, err
		}
		tb.add(pt, pt.Close)
		if opts.SeedPurchases {
			if err := pt.Seed(ctx); err != nil {
				_ = tb.Close()
				return nil, err
			}
		}
	} else {
		tb.logger.Warn("toolbox.skipped", "tool", purchases.Name, "reason", "no purchases database")
	}

	if opts.Scripts != nil {
		var closer func() error
		if c, ok := opts.Scripts.(io.Closer); ok {
			closer = c.Close
		}
		tb.add(scripts.New(opts.Scripts, func(o *scripts.Options) { o.Logger = opts.Logger }), closer)
	} else {
		tb.logger.Warn("toolbox.skipped", "tool", scripts.Name, "reason", "no vector store")
	}

	if opts.Images {
		tb.add(imagegen.New(func(o *imagegen.Options) {
			if opts.ImageModel != "" {
				o.Model = opts.ImageModel
			}
			o.APIKey = opts.OpenAIAPIKey
			o.BaseURL = opts.OpenAIBaseURL
			o.Logger = opts.Logger
		}), nil)
	}

	tb.logger.Info("toolbox.opened", "tools", len(tb.tools))
	return tb, nil
}

func (tb *Toolbox) add(t tool.Tool, closer func() error) {
	tb.tools = append(tb.tools, t)
	if closer != nil {
		tb.closers = append(tb.closers, closer)
	}
}

// Tools returns the constructed tools.
func (tb *Toolbox) Tools() []tool.Tool {
	out := make([]tool.Tool, len(tb.tools))
	copy(out, tb.tools)
	return out
}

// Provider exposes the tools to a tool.Catalog.
func (tb *Toolbox) Provider() tool.Provider {
	return tool.NewStaticProvider(ProviderName, tb.tools...)
}

// Close releases tool resources.
func (tb *Toolbox) Close() error {
	var errs []error
	for _, c := range tb.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	tb.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close toolbox: %w", errors.Join(errs...))
	}
	return nil
}
