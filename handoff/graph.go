// Package handoff holds the directed graph of agents and the transfer edges
// between them. Each edge carries a rationale that is offered to the source
// agent so it can choose between several legal targets.
package handoff

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
)

// ErrDuplicateEdge is returned when an edge between the same pair of agents
// is added twice.
var ErrDuplicateEdge = errors.New("duplicate handoff edge")

// ErrDuplicateAgent is returned when two agents share a name.
var ErrDuplicateAgent = errors.New("duplicate agent")

// Edge is a directed, legal transfer of control.
type Edge struct {
	From      string
	To        string
	Rationale string
}

// Graph is the set of agents and legal transfers of one orchestration.
// Graphs are built at startup and read-only afterwards; they are shared by
// reference between concurrent runs.
type Graph struct {
	mu     sync.RWMutex
	entry  string
	agents map[string]*agent.Agent
	order  []string
	edges  map[string][]Edge
}

// New creates a graph whose runs start at the entry agent. The entry agent
// must be added with AddAgent before the graph validates.
func New(entry string) *Graph {
	return &Graph{
		entry:  entry,
		agents: make(map[string]*agent.Agent),
		edges:  make(map[string][]Edge),
	}
}

// AddAgent registers a node.
func (g *Graph) AddAgent(a *agent.Agent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.agents[a.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, a.Name())
	}
	g.agents[a.Name()] = a
	g.order = append(g.order, a.Name())
	return nil
}

// AddEdge registers the transfer from -> to. Both endpoints must already be
// registered. Self-loops are legal.
func (g *Graph) AddEdge(from, to, rationale string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, name := range []string{from, to} {
		if _, ok := g.agents[name]; !ok {
			return fmt.Errorf("%w: %s", core.ErrUnknownAgent, name)
		}
	}
	for _, e := range g.edges[from] {
		if e.To == to {
			return fmt.Errorf("%w: %s -> %s", ErrDuplicateEdge, from, to)
		}
	}
	g.edges[from] = append(g.edges[from], Edge{From: from, To: to, Rationale: rationale})
	return nil
}

// Entry returns the name of the entry agent.
func (g *Graph) Entry() string { return g.entry }

// Agent returns the named agent.
func (g *Graph) Agent(name string) (*agent.Agent, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a, ok := g.agents[name]
	return a, ok
}

// Agents returns the agent names in registration order.
func (g *Graph) Agents() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// EdgesFrom returns the outgoing edges of name in insertion order.
func (g *Graph) EdgesFrom(name string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, len(g.edges[name]))
	copy(out, g.edges[name])
	return out
}

// Edge returns the edge from -> to if it exists.
func (g *Graph) Edge(from, to string) (Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.edges[from] {
		if e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

// Transfers returns the outgoing edges of name as agent transfer offers.
func (g *Graph) Transfers(name string) []agent.Transfer {
	edges := g.EdgesFrom(name)
	out := make([]agent.Transfer, len(edges))
	for i, e := range edges {
		out[i] = agent.Transfer{Target: e.To, Rationale: e.Rationale}
	}
	return out
}

// Validate checks that the entry agent exists and every edge resolves.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.agents[g.entry]; !ok {
		return fmt.Errorf("%w: entry agent %s", core.ErrUnknownAgent, g.entry)
	}
	for from, edges := range g.edges {
		for _, e := range edges {
			if _, ok := g.agents[e.To]; !ok {
				return fmt.Errorf("%w: edge %s -> %s", core.ErrUnknownAgent, from, e.To)
			}
		}
	}
	return nil
}
