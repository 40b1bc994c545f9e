package cmd

import (
	"context"
	"fmt"

	"kiln/internal/services"
)

// NewCmd creates a session: a branch, a worktree (one per repo in
// multi-repo workspaces), a tmux window, and the primary agent
type NewCmd struct {
	Base         string `help:"Base ref to branch from (default: the repository's default branch)"`
	Branch       string `help:"Branch name (default: derived from the session name)"`
	Headless     bool   `help:"Run the primary agent detached, reporting through its output artifact"`
	Name         string `arg:"" help:"Session name"`
	Prompt       string `help:"Prompt for the primary agent" short:"p"`
	SystemPrompt string `help:"Extra system prompt for the primary agent"`
	Template     string `help:"Agent template for the primary agent" short:"t"`
}

// Run executes the new command
func (n *NewCmd) Run(cli *CLI) error {
	session, warnings, err := cli.Container.Orchestrator.CreateSession(context.Background(), services.CreateSessionOptions{
		BaseRef:      n.Base,
		Branch:       n.Branch,
		Headless:     n.Headless,
		Name:         n.Name,
		Prompt:       n.Prompt,
		SystemPrompt: n.SystemPrompt,
		Template:     n.Template,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	for _, warning := range warnings {
		fmt.Printf("Warning: %s\n", warning)
	}

	fmt.Printf("Session '%s' created on branch '%s'\n", session.Name, session.Branch)
	if session.WorktreePath != "" {
		fmt.Printf("Worktree: %s\n", session.WorktreePath)
	}
	for repo, path := range session.RepoWorktrees {
		fmt.Printf("Worktree (%s): %s\n", repo, path)
	}
	if n.Headless {
		fmt.Println("Headless agent started; check progress with 'kiln status'")
	}
	fmt.Printf("Attach with: kiln attach %s\n", session.Name)
	return nil
}
