package testutil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/handoff"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/tool"
)

// GraphBuilder assembles a catalog, scripted agents and edges for tests.
// Example:
//
//	g, cat := NewGraphBuilder(t, "Supervisor").
//		Tool(StaticTool("lookup", "found")).
//		Agent("Supervisor", supervisorModel, core.Auto()).
//		Agent("Research", researchModel, core.Required("lookup"), "lookup").
//		Edge("Supervisor", "Research", "needs lore").
//		Build()
type GraphBuilder struct {
	t       testing.TB
	entry   string
	catalog *tool.Catalog
	agents  []*agent.Agent
	edges   []handoff.Edge
}

// NewGraphBuilder creates a builder whose graph starts at entry.
func NewGraphBuilder(t testing.TB, entry string) *GraphBuilder {
	return &GraphBuilder{t: t, entry: entry, catalog: tool.NewCatalog()}
}

// Tool adds tools to the catalog (chainable).
func (b *GraphBuilder) Tool(tools ...tool.Tool) *GraphBuilder {
	require.NoError(b.t, b.catalog.Add(tools...))
	return b
}

// Agent adds an agent bound to the named tools (chainable).
func (b *GraphBuilder) Agent(name string, llm model.Model, policy core.ToolChoicePolicy, tools ...string) *GraphBuilder {
	a, err := agent.New(name, llm, b.catalog, func(o *agent.Options) {
		o.Policy = policy
		o.Tools = tools
	})
	require.NoError(b.t, err)
	b.agents = append(b.agents, a)
	return b
}

// Edge adds a handoff edge (chainable).
func (b *GraphBuilder) Edge(from, to, rationale string) *GraphBuilder {
	b.edges = append(b.edges, handoff.Edge{From: from, To: to, Rationale: rationale})
	return b
}

// Build returns the graph and its catalog.
func (b *GraphBuilder) Build() (*handoff.Graph, *tool.Catalog) {
	g := handoff.New(b.entry)
	for _, a := range b.agents {
		require.NoError(b.t, g.AddAgent(a))
	}
	for _, e := range b.edges {
		require.NoError(b.t, g.AddEdge(e.From, e.To, e.Rationale))
	}
	return g, b.catalog
}

// StaticTool returns a tool answering every call with result.
func StaticTool(name, result string) tool.Tool {
	return tool.NewFunctionTool(name, "Static test tool "+name, nil,
		func(context.Context, map[string]any) (any, error) { return result, nil })
}

// ToolFunc returns a tool backed by fn with a permissive schema.
func ToolFunc(name string, fn tool.Func) tool.Tool {
	return tool.NewFunctionTool(name, "Test tool "+name, nil, fn)
}

// StoryPayload renders a terminal payload as produced by the storyteller
// supervisor.
func StoryPayload(title, story, imageURL string) string {
	raw, _ := json.Marshal(map[string]string{"title": title, "story": story, "imageUrl": imageURL})
	return string(raw)
}

// Handoff returns a scripted transfer call to target.
func Handoff(target, reason string) model.Response {
	args, _ := json.Marshal(map[string]string{"reason": reason})
	return model.ToolCallResponse(tool.TransferToolName(target), string(args))
}
