package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"kiln/internal/domain"
	"kiln/internal/logging"
)

// InitCmd initializes a workspace
type InitCmd struct {
	MultiRepo bool   `help:"Treat immediate subdirectories as separate repositories"`
	Name      string `help:"Workspace name (default: directory name)"`
}

// Run executes the init command
func (i *InitCmd) Run(cli *CLI) error {
	root := cli.Container.Root

	if cli.Container.State.IsInitialized() {
		fmt.Printf("Workspace already initialized in %s\n", cli.Container.State.Dir())
		return i.ensureMainSession(cli)
	}

	ws := domain.Workspace{
		Root: root,
		Name: i.Name,
	}
	if ws.Name == "" {
		ws.Name = filepath.Base(root)
	}

	if i.MultiRepo {
		repos, err := cli.Container.Git.DiscoverRepos(root)
		if err != nil {
			return fmt.Errorf("failed to discover repositories: %w", err)
		}
		if len(repos) == 0 {
			return fmt.Errorf("no git repositories found under %s", root)
		}
		ws.Kind = domain.MultiRepo
		ws.Repos = repos
		ws.DefaultBranch = repos[0].DefaultBranch
	} else {
		isRepo, repoRoot := cli.Container.Git.IsGitRepo(root)
		if !isRepo {
			return fmt.Errorf("%s is not a git repository (use --multi-repo for a directory of repositories)", root)
		}
		if repoRoot != root {
			logging.Logger.Warn("Workspace root is not the repository root", "workspace", root, "repo", repoRoot)
		}
		ws.DefaultBranch = cli.Container.Git.DefaultBranch(root)
		ws.RemoteURL = cli.Container.Git.RemoteURL(root)
	}
	ws.Normalize()

	tmuxName := cli.settings.SessionPrefix() + domain.SanitizeSessionName(ws.Name)
	st := domain.NewWorkspaceState(ws, tmuxName)

	if err := cli.Container.State.Init(st); err != nil {
		return fmt.Errorf("failed to initialize workspace: %w", err)
	}

	fmt.Printf("Initialized %s workspace '%s' in %s\n", ws.Kind, ws.Name, cli.Container.State.Dir())
	if ws.IsMultiRepo() {
		for _, repo := range ws.Repos {
			fmt.Printf("  repo %s (%s)\n", repo.Name, repo.DefaultBranch)
		}
	}

	return i.ensureMainSession(cli)
}

// ensureMainSession creates the protected main session. A machine
// without a usable tmux still gets a valid workspace; the session is
// created on the first attach instead.
func (i *InitCmd) ensureMainSession(cli *CLI) error {
	if err := cli.Container.Tmux.Available(); err != nil {
		fmt.Println("tmux not found; the main session will be created on first attach")
		return nil
	}
	main, err := cli.Container.Orchestrator.EnsureMainSession(context.Background())
	if err != nil {
		logging.Logger.Warn("Could not create the main session", "error", err)
		fmt.Printf("Warning: could not create the main tmux session: %v\n", err)
		return nil
	}
	fmt.Printf("Main session ready (attach with: kiln attach %s)\n", main.Name)
	return nil
}
