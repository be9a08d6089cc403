package mcptool

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/tool"
)

func newTestServer() *server.MCPServer {
	s := server.NewMCPServer("holocron", "1.0.0", server.WithToolCapabilities(false))
	s.AddTool(mcp.NewTool("lookup",
		mcp.WithDescription("Looks up a character"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Character name")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, _ := req.GetArguments()["name"].(string)
		return mcp.NewToolResultText("found " + name), nil
	})
	s.AddTool(mcp.NewTool("paint", mcp.WithDescription("Paints a scene")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("content_policy_violation: remove named characters"), nil
		})
	s.AddTool(mcp.NewTool("broken", mcp.WithDescription("Always fails")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("backend unavailable"), nil
		})
	return s
}

func newProvider(t *testing.T, filter ...string) *Provider {
	t.Helper()
	c, err := client.NewInProcessClient(newTestServer())
	require.NoError(t, err)
	p := NewFromClient("holocron", c, filter...)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProvider_ListTools(t *testing.T) {
	p := newProvider(t)

	tools, err := p.ListTools(context.Background())

	require.NoError(t, err)
	require.Len(t, tools, 3)
	assert.Equal(t, "broken", tools[0].Name())
	assert.Equal(t, "lookup", tools[1].Name())
	assert.Equal(t, "Looks up a character", tools[1].Description())
	props, ok := tools[1].Parameters()["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "name")
}

func TestProvider_Filter(t *testing.T) {
	p := newProvider(t, "lookup")

	tools, err := p.ListTools(context.Background())

	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "lookup", tools[0].Name())
}

func TestProvider_CatalogInvoke(t *testing.T) {
	c := tool.NewCatalog()
	require.NoError(t, c.Register(context.Background(), newProvider(t)))

	out, err := c.Invoke(context.Background(), "lookup", `{"name":"Yoda"}`)
	require.NoError(t, err)
	assert.False(t, out.Failed())
	assert.Equal(t, "found Yoda", out.Content)

	out, err = c.Invoke(context.Background(), "lookup", `{}`)
	require.NoError(t, err)
	assert.True(t, out.Failed(), "schema validation runs before the remote call")

	out, err = c.Invoke(context.Background(), "paint", `{}`)
	require.NoError(t, err)
	assert.ErrorIs(t, out.Err, core.ErrContentPolicyViolation)

	out, err = c.Invoke(context.Background(), "broken", `{}`)
	require.NoError(t, err)
	assert.ErrorIs(t, out.Err, core.ErrToolInvocation)
	assert.JSONEq(t, `{"error":"backend unavailable"}`, out.Content)
}

func TestNew_RequiresCommand(t *testing.T) {
	_, err := New(Config{Name: "x"})
	assert.Error(t, err)
}

// brokenTransport fails to start and records whether it was closed.
type brokenTransport struct {
	closed int
}

func (b *brokenTransport) Start(context.Context) error { return errors.New("spawn failed") }

func (b *brokenTransport) SendRequest(context.Context, transport.JSONRPCRequest) (*transport.JSONRPCResponse, error) {
	return nil, errors.New("not started")
}

func (b *brokenTransport) SendNotification(context.Context, mcp.JSONRPCNotification) error {
	return errors.New("not started")
}

func (b *brokenTransport) SetNotificationHandler(func(mcp.JSONRPCNotification)) {}

func (b *brokenTransport) Close() error {
	b.closed++
	return nil
}

func (b *brokenTransport) GetSessionId() string { return "" }

func TestProvider_StartFailureClosesClient(t *testing.T) {
	tr := &brokenTransport{}
	p := NewFromClient("holocron", client.NewClient(tr))

	_, err := p.ListTools(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "spawn failed")
	assert.Equal(t, 1, tr.closed)
	assert.NoError(t, p.Close())
	assert.Equal(t, 1, tr.closed, "a failed connection is not closed twice")
}
