package cmd

import (
	"context"
	"fmt"
)

// PeekCmd prints the tail of an agent's tmux pane without attaching
type PeekCmd struct {
	Agent string `arg:"" help:"Agent id (or unique id prefix)"`
	Lines int    `help:"Pane lines to capture (default: capture_lines setting)" short:"n"`
}

// Run executes the peek command
func (p *PeekCmd) Run(cli *CLI) error {
	lines := p.Lines
	if lines <= 0 {
		lines = cli.settings.Capture()
	}

	output, err := cli.Container.Orchestrator.PeekAgent(context.Background(), p.Agent, lines)
	if err != nil {
		return err
	}
	fmt.Print(output)
	return nil
}
