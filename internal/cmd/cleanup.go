package cmd

import (
	"context"
	"fmt"

	"kiln/internal/theme"
)

// CleanupCmd retires finished sessions and sweeps leftover worktrees
// and agent output directories
type CleanupCmd struct {
	All    bool `help:"Also remove completed sessions, not just archived ones"`
	DryRun bool `help:"Report what would be removed without removing anything" short:"n"`
}

// Run executes the cleanup command
func (c *CleanupCmd) Run(cli *CLI) error {
	report, err := cli.Container.Orchestrator.Cleanup(context.Background(), c.All, c.DryRun)
	if err != nil {
		return err
	}

	if report.Empty() {
		fmt.Println("Nothing to clean up")
		return nil
	}

	verb := "Removed"
	if report.DryRun {
		verb = "Would remove"
	}

	for _, name := range report.Sessions {
		fmt.Printf("%s session '%s'\n", verb, name)
	}
	for _, path := range report.Worktrees {
		fmt.Printf("  %s\n", theme.MutedStyle.Render(path))
	}
	for _, path := range report.Orphans {
		fmt.Printf("%s orphan worktree %s\n", verb, path)
	}
	for _, dir := range report.AgentDirs {
		fmt.Printf("%s stale agent directory %s\n", verb, dir)
	}

	if report.DryRun {
		fmt.Println("\nDry run; nothing was changed")
	}
	return nil
}
