package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"kiln/internal/adapters/claude"
	"kiln/internal/adapters/clipboard"
	"kiln/internal/adapters/git"
	"kiln/internal/adapters/history"
	"kiln/internal/adapters/plans"
	"kiln/internal/adapters/process"
	"kiln/internal/adapters/state"
	"kiln/internal/adapters/templates"
	"kiln/internal/adapters/tmux"
	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/ports"
	"kiln/internal/services"
)

// historyFileName is the event log database inside the managed directory
const historyFileName = "history.db"

// Container holds all dependencies for the application
type Container struct {
	// Workspace root everything is anchored to
	Root string

	// Services
	Doctor       *services.Doctor
	Orchestrator *services.Orchestrator
	Reconciler   *services.Reconciler

	// Adapters commands reach for directly
	Git       ports.GitClient
	History   ports.EventRecorder
	Plans     ports.PlanStore
	Runner    ports.AgentRunner
	State     *state.Store
	Templates ports.TemplateResolver
	Tmux      ports.TmuxClient
}

// NewContainer creates a new Container with all dependencies wired.
// It works on uninitialized directories too: `kiln init` needs the
// store and the git client before any state document exists, so
// workspace-derived facts fall back to the defaults init will write.
func NewContainer(workspaceDir string, settings *config.Settings) (*Container, error) {
	if settings == nil {
		settings = &config.Settings{}
	}

	root := workspaceDir
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		root = cwd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace directory: %w", err)
	}

	store := state.NewStore(root)

	worktreeBase := filepath.Dir(root)
	suffix := settings.Suffix()
	if st, err := store.Load(); err == nil {
		worktreeBase = st.Workspace.WorktreeBaseDir
		if st.Workspace.WorktreePrefix != "" {
			suffix = st.Workspace.WorktreePrefix
		}
	}

	procs := process.NewInspector()
	gitClient := git.NewClient(worktreeBase, suffix)
	tmuxClient := tmux.NewClient(tmux.Options{
		DashboardKeys: settings.DashboardKeys(),
		EscapeTimeMS:  settings.EscapeTime(),
		LockPath:      store.LockPath("nav_bindings.lock"),
		OverviewKeys:  settings.OverviewKeys(),
	}, procs)
	runner := claude.NewRunner(settings.Agent(), settings.AgentExtraArgs)

	// Resolution order: workspace templates, then user-configured
	// directories, then the user-global directory
	templateDirs := []string{store.TemplatesDir()}
	for _, dir := range settings.TemplateDirs {
		templateDirs = append(templateDirs, config.ExpandPath(dir))
	}
	if userDir := config.UserTemplatesDir(); userDir != "" {
		templateDirs = append(templateDirs, userDir)
	}
	resolver := templates.NewResolver(templateDirs...)

	var clip ports.Clipboard = clipboard.NewWriter()
	if !settings.CopyOnComplete() {
		clip = clipboard.Disabled{}
	}

	// The history database lives inside the managed directory, so it
	// only exists for initialized workspaces. Opening it elsewhere
	// would create .kiln/ as a side effect of a read-only command.
	var recorder ports.EventRecorder
	if store.IsInitialized() {
		rec, err := history.NewStore(filepath.Join(store.Dir(), historyFileName))
		if err != nil {
			logging.Logger.Warn("Event history unavailable", "error", err)
		} else {
			recorder = rec
		}
	}

	reconciler := services.NewReconciler(tmuxClient, procs, recorder)
	orchestrator := services.NewOrchestrator(store, gitClient, tmuxClient, runner, resolver, clip, procs, recorder)
	doctor := services.NewDoctor(store, gitClient, tmuxClient, runner, reconciler, recorder)

	return &Container{
		Doctor:       doctor,
		Git:          gitClient,
		History:      recorder,
		Orchestrator: orchestrator,
		Plans:        plans.NewStore(store.PlansDir()),
		Reconciler:   reconciler,
		Root:         root,
		Runner:       runner,
		State:        store,
		Templates:    resolver,
		Tmux:         tmuxClient,
	}, nil
}

// Close closes all resources held by the container
func (c *Container) Close() error {
	if c.History != nil {
		return c.History.Close()
	}
	return nil
}
