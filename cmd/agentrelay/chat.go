package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/hupe1980/agentrelay"
)

// ChatCmd runs an interactive conversation.
type ChatCmd struct {
	Session string `help:"Session to continue (a new one is started when empty)."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, logger, err := cli.load()
	if err != nil {
		return err
	}
	app, err := agentrelay.New(ctx, cfg, func(o *agentrelay.Options) { o.Logger = logger })
	if err != nil {
		return err
	}
	defer app.Close()

	session := c.Session
	if session == "" {
		session = uuid.NewString()
	}
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Printf("Session %s. Type 'exit' to quit.\n", session)
	}

	sc := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("User > ")
		}
		if !sc.Scan() {
			return sc.Err()
		}
		input := strings.TrimSpace(sc.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}

		answer, err := app.Chat(ctx, session, input)
		if err != nil {
			return err
		}
		fmt.Printf("Assistant > %s\n", answer)
	}
}
