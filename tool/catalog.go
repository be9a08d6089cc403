package tool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/logging"
)

// ErrCatalogSealed is returned when registering into a sealed Catalog.
var ErrCatalogSealed = errors.New("catalog is sealed")

// CatalogOptions configures a Catalog.
type CatalogOptions struct {
	Logger logging.Logger
}

// Catalog is the registry of every tool available in the system. Tool names
// are unique across all providers. The catalog is populated at startup,
// sealed, and then read concurrently by any number of runs.
type Catalog struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	order     []string
	providers map[string]string
	sealed    bool
	logger    logging.Logger
}

// NewCatalog creates an empty Catalog.
func NewCatalog(optFns ...func(o *CatalogOptions)) *Catalog {
	opts := CatalogOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Catalog{
		tools:     make(map[string]Tool),
		providers: make(map[string]string),
		logger:    logging.OrNoOp(opts.Logger),
	}
}

// Register lists the tools of p and adds them to the catalog. Registration
// is all-or-nothing: on a name collision nothing from p is added and an error
// matching core.ErrDuplicateToolName is returned.
func (c *Catalog) Register(ctx context.Context, p Provider) error {
	tools, err := p.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools of provider %s: %w", p.Name(), err)
	}
	return c.add(p.Name(), tools)
}

// RegisterAll lists every provider concurrently and registers their tools in
// argument order. Nothing is added unless every provider lists successfully
// and no names collide.
func (c *Catalog) RegisterAll(ctx context.Context, providers ...Provider) error {
	listed := make([][]Tool, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			tools, err := p.ListTools(gctx)
			if err != nil {
				return fmt.Errorf("list tools of provider %s: %w", p.Name(), err)
			}
			listed[i] = tools
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return ErrCatalogSealed
	}
	seen := make(map[string]string)
	for i, p := range providers {
		for _, t := range listed[i] {
			if err := c.checkLocked(p.Name(), t, seen); err != nil {
				return err
			}
			seen[t.Name()] = p.Name()
		}
	}
	for i, p := range providers {
		c.insertLocked(p.Name(), listed[i])
	}
	return nil
}

// Add registers tools directly under the "local" provider.
func (c *Catalog) Add(tools ...Tool) error {
	return c.add("local", tools)
}

func (c *Catalog) add(provider string, tools []Tool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return ErrCatalogSealed
	}
	seen := make(map[string]string, len(tools))
	for _, t := range tools {
		if err := c.checkLocked(provider, t, seen); err != nil {
			return err
		}
		seen[t.Name()] = provider
	}
	c.insertLocked(provider, tools)
	return nil
}

func (c *Catalog) checkLocked(provider string, t Tool, pending map[string]string) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("provider %s: tool without a name", provider)
	}
	if _, ok := ParseTransferName(name); ok {
		return fmt.Errorf("provider %s: tool name %q uses the reserved %s prefix", provider, name, TransferPrefix)
	}
	if owner, ok := c.providers[name]; ok {
		return fmt.Errorf("%w: %s (registered by %s, offered again by %s)", core.ErrDuplicateToolName, name, owner, provider)
	}
	if owner, ok := pending[name]; ok {
		return fmt.Errorf("%w: %s (offered by %s and %s)", core.ErrDuplicateToolName, name, owner, provider)
	}
	return nil
}

func (c *Catalog) insertLocked(provider string, tools []Tool) {
	for _, t := range tools {
		c.tools[t.Name()] = t
		c.providers[t.Name()] = provider
		c.order = append(c.order, t.Name())
	}
	c.logger.Debug("tool.catalog.registered", "provider", provider, "count", len(tools))
}

// Seal freezes the catalog. Subsequent registrations fail with ErrCatalogSealed.
func (c *Catalog) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
}

// Sealed reports whether Seal has been called.
func (c *Catalog) Sealed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sealed
}

// Lookup returns the tool registered under name.
func (c *Catalog) Lookup(name string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[name]
	return t, ok
}

// Resolve returns the named tools in the given order. Any unknown name fails
// the whole resolution with core.ErrUnknownTool.
func (c *Catalog) Resolve(names ...string) ([]Tool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Tool, 0, len(names))
	for _, n := range names {
		t, ok := c.tools[n]
		if !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrUnknownTool, n)
		}
		out = append(out, t)
	}
	return out, nil
}

// Names returns every registered tool name in registration order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// ProviderOf returns the provider that registered name.
func (c *Catalog) ProviderOf(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.providers[name]
	return p, ok
}

// Outcome is the result of one tool invocation. Content is what the calling
// agent sees: the tool output on success or a structured error payload on
// failure. Err carries the classified failure (a *ToolError) for the
// orchestrator.
type Outcome struct {
	Content  string
	Err      error
	Duration time.Duration
}

// Failed reports whether the invocation failed.
func (o Outcome) Failed() bool { return o.Err != nil }

// Invoke executes the named tool with raw JSON arguments. Tool failures,
// argument errors and panics never escape as errors; they are reported in the
// returned Outcome. The error return is reserved for names the catalog does
// not know (core.ErrUnknownTool).
func (c *Catalog) Invoke(ctx context.Context, name, rawArgs string) (Outcome, error) {
	t, ok := c.Lookup(name)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", core.ErrUnknownTool, name)
	}

	start := time.Now()
	content, err := c.call(ctx, t, rawArgs)
	out := Outcome{Content: content, Err: err, Duration: time.Since(start)}
	if err != nil {
		out.Content = ErrorPayload(err)
	}

	c.logger.Debug("tool.invoke", "tool", name, "duration", out.Duration, "failed", out.Failed())
	return out, nil
}

func (c *Catalog) call(ctx context.Context, t Tool, rawArgs string) (content string, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("tool.invoke.panic", "tool", t.Name(), "panic", r, "stack", string(debug.Stack()))
			err = NewToolError(t.Name(), fmt.Sprintf("tool panicked: %v", r), CodeExecution)
		}
	}()

	args, perr := ParseArguments(rawArgs)
	if perr != nil {
		return "", NewToolError(t.Name(), perr.Error(), CodeValidation)
	}
	if verr := validate(t, args); verr != nil {
		return "", verr
	}

	content, err = t.Call(ctx, args)
	if err == nil {
		return content, nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return "", te
	}
	return "", NewToolError(t.Name(), err.Error(), CodeExecution)
}

// validate checks args against the tool schema unless the tool validates on
// its own (FunctionTool does).
func validate(t Tool, args map[string]any) error {
	if _, ok := t.(*FunctionTool); ok {
		return nil
	}
	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		return &ToolError{
			Tool:    t.Name(),
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}
	return nil
}
