package toolbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/tool"
)

// contentPolicyMarker prefixes refusals so MCP clients can classify them.
const contentPolicyMarker = "content_policy_violation"

// ServerOptions configures NewMCPServer.
type ServerOptions struct {
	Name    string
	Version string
	Logger  logging.Logger
}

// NewMCPServer exposes tools over the Model Context Protocol. Calls go
// through a private tool.Catalog so arguments are validated and panics are
// recovered as on the in-process path.
func NewMCPServer(tools []tool.Tool, optFns ...func(o *ServerOptions)) (*server.MCPServer, error) {
	opts := ServerOptions{Name: "agentrelay-starwars", Version: "0.1.0"}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	catalog := tool.NewCatalog(func(o *tool.CatalogOptions) { o.Logger = opts.Logger })
	if err := catalog.Add(tools...); err != nil {
		return nil, err
	}
	catalog.Seal()

	s := server.NewMCPServer(opts.Name, opts.Version, server.WithToolCapabilities(false))
	for _, t := range tools {
		schema, err := json.Marshal(tool.Definition(t).Function.Parameters)
		if err != nil {
			return nil, fmt.Errorf("encode schema of %s: %w", t.Name(), err)
		}
		s.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema), handler(catalog, t.Name(), logger))
	}
	return s, nil
}

func handler(c *tool.Catalog, name string, logger logging.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		out, err := c.Invoke(ctx, name, string(args))
		if err != nil {
			return nil, err
		}
		if !out.Failed() {
			return mcp.NewToolResultText(out.Content), nil
		}

		logger.Warn("mcp.tool.failed", "tool", name, "error", out.Err)
		msg := out.Err.Error()
		var te *tool.ToolError
		if errors.As(out.Err, &te) {
			msg = te.Message
		}
		if errors.Is(out.Err, core.ErrContentPolicyViolation) {
			msg = contentPolicyMarker + ": " + msg
		}
		return mcp.NewToolResultError(msg), nil
	}
}

// ServeStdio serves tools over stdin/stdout until the client disconnects.
func ServeStdio(tools []tool.Tool, optFns ...func(o *ServerOptions)) error {
	s, err := NewMCPServer(tools, optFns...)
	if err != nil {
		return err
	}
	return server.ServeStdio(s)
}
