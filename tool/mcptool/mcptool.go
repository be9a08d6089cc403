// Package mcptool exposes the tools of a Model Context Protocol server as a
// tool.Provider. The connection is established lazily on the first
// ListTools call and shared by every tool of the provider.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/tool"
)

// contentPolicyMarker identifies provider refusals relayed through MCP error
// results.
const contentPolicyMarker = "content_policy_violation"

// Config configures a stdio MCP provider.
type Config struct {
	// Name identifies the provider in the catalog.
	Name string
	// Command launches the MCP server subprocess.
	Command string
	// Args are passed to Command.
	Args []string
	// Env is added to the subprocess environment.
	Env map[string]string
	// Filter limits which tools are exposed. Empty exposes all.
	Filter []string
	// Logger receives connection diagnostics.
	Logger logging.Logger
}

// Provider is an MCP-backed tool.Provider.
type Provider struct {
	cfg     Config
	connect func(ctx context.Context) (*client.Client, error)
	logger  logging.Logger

	mu     sync.Mutex
	client *client.Client
	tools  []tool.Tool
}

// New creates a provider launching cfg.Command over stdio.
func New(cfg Config) (*Provider, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcptool: command is required")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Command
	}
	p := &Provider{cfg: cfg, logger: logging.OrNoOp(cfg.Logger)}
	p.connect = func(ctx context.Context) (*client.Client, error) {
		c, err := client.NewStdioMCPClient(cfg.Command, convertEnv(cfg.Env), cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("create MCP client: %w", err)
		}
		return c, nil
	}
	return p, nil
}

// NewFromClient wraps an existing, not yet initialized client, for example an
// in-process client.
func NewFromClient(name string, c *client.Client, filter ...string) *Provider {
	return &Provider{
		cfg:     Config{Name: name, Filter: filter},
		connect: func(context.Context) (*client.Client, error) { return c, nil },
		logger:  logging.NoOpLogger{},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.cfg.Name }

// ListTools connects on first use and returns the server's tools.
func (p *Provider) ListTools(ctx context.Context) ([]tool.Tool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		if err := p.init(ctx); err != nil {
			return nil, fmt.Errorf("connect to MCP server %s: %w", p.cfg.Name, err)
		}
	}
	out := make([]tool.Tool, len(p.tools))
	copy(out, p.tools)
	return out, nil
}

func (p *Provider) init(ctx context.Context) error {
	c, err := p.connect(ctx)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return fmt.Errorf("start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentrelay", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return fmt.Errorf("initialize MCP: %w", err)
	}

	listResp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	allow := make(map[string]bool, len(p.cfg.Filter))
	for _, n := range p.cfg.Filter {
		allow[n] = true
	}

	tools := make([]tool.Tool, 0, len(listResp.Tools))
	for _, mt := range listResp.Tools {
		if len(allow) > 0 && !allow[mt.Name] {
			continue
		}
		tools = append(tools, &remoteTool{
			provider: p,
			name:     mt.Name,
			desc:     mt.Description,
			schema:   convertSchema(mt.InputSchema),
		})
	}
	sort.SliceStable(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })

	p.client = c
	p.tools = tools
	p.logger.Info("mcp.connected", "provider", p.cfg.Name, "tools", len(tools))
	return nil
}

// Close shuts down the connection if one was established.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	p.tools = nil
	return err
}

func (p *Provider) conn() (*client.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil, fmt.Errorf("MCP provider %s is not connected", p.cfg.Name)
	}
	return p.client, nil
}

type remoteTool struct {
	provider *Provider
	name     string
	desc     string
	schema   map[string]any
}

func (t *remoteTool) Name() string               { return t.name }
func (t *remoteTool) Description() string        { return t.desc }
func (t *remoteTool) Parameters() map[string]any { return t.schema }

func (t *remoteTool) Call(ctx context.Context, args map[string]any) (string, error) {
	c, err := t.provider.conn()
	if err != nil {
		return "", tool.NewToolError(t.name, err.Error(), tool.CodeExecution)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	resp, err := c.CallTool(ctx, req)
	if err != nil {
		return "", tool.NewToolError(t.name, fmt.Sprintf("MCP call failed: %v", err), tool.CodeExecution)
	}

	text := collectText(resp)
	if resp.IsError {
		if strings.Contains(text, contentPolicyMarker) {
			return "", tool.ContentPolicyError(t.name, text)
		}
		return "", tool.NewToolError(t.name, text, tool.CodeExecution)
	}
	return text, nil
}

func collectText(resp *mcp.CallToolResult) string {
	var parts []string
	for _, content := range resp.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

func convertEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

var _ tool.Provider = (*Provider)(nil)
