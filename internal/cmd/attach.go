package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// AttachCmd attaches the terminal to a session's tmux window,
// recreating the window first if it has gone away
type AttachCmd struct {
	Name  string `arg:"" optional:"" help:"Session name (default: main)"`
	Print bool   `help:"Print the tmux target instead of attaching" short:"p"`
}

// Run executes the attach command
func (a *AttachCmd) Run(cli *CLI) error {
	name := a.Name
	if name == "" {
		name = "main"
	}

	target, err := cli.Container.Orchestrator.Attach(context.Background(), name)
	if err != nil {
		return err
	}

	if a.Print {
		fmt.Println(target)
		return nil
	}

	// Inside tmux, attach-session fails with "sessions should be
	// nested with care"; switching the client is what the user means.
	verb := "attach-session"
	if os.Getenv("TMUX") != "" {
		verb = "switch-client"
	}

	cmd := exec.Command("tmux", verb, "-t", target)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to attach to %s: %w", target, err)
	}
	return nil
}
