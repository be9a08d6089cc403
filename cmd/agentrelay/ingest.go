package main

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentrelay"
	"github.com/hupe1980/agentrelay/memory"
	"github.com/hupe1980/agentrelay/toolbox/purchases"
	"github.com/hupe1980/agentrelay/toolbox/scripts"
)

// IngestPurchasesCmd seeds the purchase database.
type IngestPurchasesCmd struct {
	Path string `help:"Database path (defaults to tools.purchases.path)." type:"path"`
}

func (c *IngestPurchasesCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, logger, err := cli.load()
	if err != nil {
		return err
	}
	path := c.Path
	if path == "" {
		path = cfg.Tools.Purchases.Path
	}
	if path == "" {
		return errors.New("no purchase database configured (tools.purchases.path or --path)")
	}

	pt, err := purchases.Open(ctx, path, func(o *purchases.Options) { o.Logger = logger })
	if err != nil {
		return err
	}
	defer pt.Close()

	if err := pt.Seed(ctx); err != nil {
		return err
	}
	fmt.Printf("Seeded purchase database %s\n", path)
	return nil
}

// IngestScriptsCmd indexes movie scripts.
type IngestScriptsCmd struct {
	Dir string `help:"Directory with <movie>.txt scripts (defaults to tools.scripts.dir)." type:"existingdir"`
}

func (c *IngestScriptsCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, logger, err := cli.load()
	if err != nil {
		return err
	}
	dir := c.Dir
	if dir == "" {
		dir = cfg.Tools.Scripts.Dir
	}
	if dir == "" {
		return errors.New("no script directory configured (tools.scripts.dir or --dir)")
	}

	store, err := agentrelay.NewScriptStore(cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("no script store configured (tools.scripts.backend)")
	}
	if _, ok := store.(*memory.InMemoryStore); ok {
		logger.Warn("scripts.ingest.ephemeral", "backend", cfg.Tools.Scripts.Backend)
	}

	n, err := scripts.Ingest(ctx, store, dir, func(o *scripts.IngestOptions) { o.Logger = logger })
	if err != nil {
		return err
	}
	if p, ok := store.(*memory.PineconeStore); ok {
		_ = p.Close()
	}
	fmt.Printf("Indexed %d script lines from %s\n", n, dir)
	return nil
}
