package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/hupe1980/agentrelay"
	"github.com/hupe1980/agentrelay/engine"
	"github.com/hupe1980/agentrelay/runner"
)

// StoryCmd runs the storyteller graph.
type StoryCmd struct {
	Customer string `arg:"" optional:"" help:"Customer name (prompted when omitted)."`
	Quiet    bool   `short:"q" help:"Do not print progress."`
}

func (c *StoryCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, logger, err := cli.load()
	if err != nil {
		return err
	}

	customer := strings.TrimSpace(c.Customer)
	if customer == "" {
		if customer, err = promptCustomer(os.Stdin, os.Stdout); err != nil {
			return err
		}
	}

	app, err := agentrelay.New(ctx, cfg, func(o *agentrelay.Options) { o.Logger = logger })
	if err != nil {
		return err
	}
	defer app.Close()

	runID, events, err := app.Runner.Start(ctx, runner.Request{Input: customer})
	if err != nil {
		return err
	}
	for ev := range events {
		if !c.Quiet {
			printProgress(os.Stderr, ev)
		}
	}
	run, err := app.Runner.Wait(ctx, runID)
	if err != nil {
		return err
	}

	pub, err := app.Publisher.Publish(ctx, *run.Result)
	if err != nil {
		return err
	}
	fmt.Printf("Story '%s' created successfully", run.Result.Title)
	if pub.Asset != "" {
		fmt.Printf(" with image %s", pub.Asset)
	}
	fmt.Printf(" and saved to %s in %s\n", pub.Document, cfg.Output.Dir)
	return nil
}

func promptCustomer(in *os.File, out io.Writer) (string, error) {
	if term.IsTerminal(int(in.Fd())) {
		fmt.Fprintln(out, "Which customer would you like to create a story for? (e.g., 'Ben Smith')")
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	name := strings.TrimSpace(line)
	if name == "" {
		return "", errors.New("customer name is required")
	}
	return name, nil
}

func printProgress(w io.Writer, ev engine.Event) {
	switch ev.Type {
	case engine.EventTransition:
		t := ev.Transition
		switch t.Kind {
		case engine.TransitionTool:
			fmt.Fprintf(w, "[%d] %s called %s\n", t.Depth, t.From, t.Tool)
		default:
			fmt.Fprintf(w, "[%d] %s %s -> %s\n", t.Depth, t.Kind, t.From, t.To)
		}
	case engine.EventFailed:
		fmt.Fprintf(w, "run failed in %s: %v\n", ev.Agent, ev.Err)
	}
}
