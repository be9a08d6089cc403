package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/hupe1980/agentrelay"
	"github.com/hupe1980/agentrelay/toolbox"
)

// ToolsListCmd prints the tool catalog.
type ToolsListCmd struct{}

func (c *ToolsListCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, logger, err := cli.load()
	if err != nil {
		return err
	}
	tb, err := agentrelay.OpenToolbox(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer tb.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPROVIDER\tDESCRIPTION")
	for _, t := range tb.Tools() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name(), toolbox.ProviderName, t.Description())
	}
	return w.Flush()
}

// ToolsServeCmd serves the built-in tools over MCP on stdin/stdout.
type ToolsServeCmd struct{}

func (c *ToolsServeCmd) Run(cli *CLI) error {
	cfg, logger, err := cli.load()
	if err != nil {
		return err
	}
	tb, err := agentrelay.OpenToolbox(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer tb.Close()

	logger.Info("mcp.serve", "tools", len(tb.Tools()))
	return toolbox.ServeStdio(tb.Tools(), func(o *toolbox.ServerOptions) { o.Logger = logger })
}
