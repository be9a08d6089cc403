package tool

import "context"

// Provider is a source of tools feeding the Catalog, for example an MCP
// server or an in-process toolbox. Connection lifecycle is the provider's
// concern; the catalog only lists.
type Provider interface {
	Name() string
	ListTools(ctx context.Context) ([]Tool, error)
}

// StaticProvider serves a fixed tool list.
type StaticProvider struct {
	name  string
	tools []Tool
}

// NewStaticProvider creates a provider serving tools.
func NewStaticProvider(name string, tools ...Tool) *StaticProvider {
	return &StaticProvider{name: name, tools: tools}
}

// Name returns the provider name.
func (p *StaticProvider) Name() string { return p.name }

// ListTools returns a copy of the tool list.
func (p *StaticProvider) ListTools(context.Context) ([]Tool, error) {
	out := make([]Tool, len(p.tools))
	copy(out, p.tools)
	return out, nil
}

// FilteredProvider exposes only the named tools of an inner provider.
type FilteredProvider struct {
	inner Provider
	allow map[string]bool
}

// Filter restricts p to names. An empty name list leaves p unfiltered.
func Filter(p Provider, names ...string) Provider {
	if len(names) == 0 {
		return p
	}
	allow := make(map[string]bool, len(names))
	for _, n := range names {
		allow[n] = true
	}
	return &FilteredProvider{inner: p, allow: allow}
}

// Name returns the inner provider's name.
func (f *FilteredProvider) Name() string { return f.inner.Name() }

// ListTools lists the inner provider and drops tools not allowed.
func (f *FilteredProvider) ListTools(ctx context.Context) ([]Tool, error) {
	tools, err := f.inner.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := tools[:0:0]
	for _, t := range tools {
		if f.allow[t.Name()] {
			out = append(out, t)
		}
	}
	return out, nil
}
