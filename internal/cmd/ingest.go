package cmd

import (
	"context"
	"fmt"
)

// IngestCmd collects a completed agent's result: copies it to the
// clipboard and marks the agent ingested
type IngestCmd struct {
	Agent string `arg:"" help:"Agent id (or unique id prefix)"`
	Quiet bool   `help:"Do not print the result text" short:"q"`
}

// Run executes the ingest command
func (i *IngestCmd) Run(cli *CLI) error {
	agent, err := cli.Container.Orchestrator.Ingest(context.Background(), i.Agent)
	if err != nil {
		return err
	}

	if !i.Quiet && agent.Result != nil && agent.Result.Summary != "" {
		fmt.Println(agent.Result.Summary)
	}
	fmt.Printf("Agent '%s' ingested\n", agent.Name)
	return nil
}
