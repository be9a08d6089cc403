// Command agentrelay runs the Star Wars storyteller relay.
//
// Usage:
//
//	agentrelay story "Ben Smith" --config relay.yaml
//	agentrelay chat
//	agentrelay tools list
//	agentrelay tools serve
//	agentrelay ingest purchases
//	agentrelay ingest scripts --dir ./scripts
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/logging"
)

// CLI defines the command-line interface.
type CLI struct {
	Story  StoryCmd  `cmd:"" help:"Write a personalized story for a customer."`
	Chat   ChatCmd   `cmd:"" help:"Chat with the Star Wars copilot."`
	Tools  ToolsCmd  `cmd:"" help:"Inspect or serve the built-in tools."`
	Ingest IngestCmd `cmd:"" help:"Load sample data into the tool backends."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." env:"LOG_LEVEL"`
	LogFormat string `help:"Log format (text or json)." enum:",text,json" default:"" env:"LOG_FORMAT"`
}

// ToolsCmd groups the tool commands.
type ToolsCmd struct {
	List  ToolsListCmd  `cmd:"" help:"List the configured tools."`
	Serve ToolsServeCmd `cmd:"" help:"Serve the built-in tools over MCP (stdio)."`
}

// IngestCmd groups the ingestion commands.
type IngestCmd struct {
	Purchases IngestPurchasesCmd `cmd:"" help:"Create and seed the purchase database."`
	Scripts   IngestScriptsCmd   `cmd:"" help:"Index movie scripts into the vector store."`
}

// load reads the configuration and applies the global flag overrides.
func (c *CLI) load() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, nil, err
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.Logging.Format = c.LogFormat
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.NewSlogLogger(level, cfg.Logging.Format, false), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("agentrelay"),
		kong.Description("Multi-agent handoff orchestration for Star Wars stories."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
