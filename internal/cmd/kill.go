package cmd

import (
	"context"
	"fmt"
)

// KillCmd tears a session down: its window, its worktree, and its
// agents. The main session can never be killed.
type KillCmd struct {
	DeleteBranch bool   `help:"Also delete the session's branch"`
	Force        bool   `help:"Kill even if the session is active" short:"f"`
	Name         string `arg:"" help:"Session name"`
}

// Run executes the kill command
func (k *KillCmd) Run(cli *CLI) error {
	if err := cli.Container.Orchestrator.KillSession(context.Background(), k.Name, k.Force, k.DeleteBranch); err != nil {
		return err
	}
	fmt.Printf("Session '%s' killed\n", k.Name)
	return nil
}
