// Package services composes the adapters into the session and agent
// lifecycle operations the CLI exposes. All persisted-state mutation
// funnels through here: adapters touch external resources, the
// orchestrator decides what those changes mean and writes state.
package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"kiln/internal/domain"
	"kiln/internal/logging"
	"kiln/internal/ports"
)

// Orchestrator is the facade over the state store, the worktree
// provisioner, the tmux controller, and the agent runner.
type Orchestrator struct {
	clipboard ports.Clipboard
	git       ports.GitClient
	history   ports.EventRecorder
	procs     ports.ProcessInspector
	runner    ports.AgentRunner
	state     ports.StateStore
	templates ports.TemplateResolver
	tmux      ports.TmuxClient
}

// NewOrchestrator wires the facade.
func NewOrchestrator(
	state ports.StateStore,
	git ports.GitClient,
	tmux ports.TmuxClient,
	runner ports.AgentRunner,
	templates ports.TemplateResolver,
	clipboard ports.Clipboard,
	procs ports.ProcessInspector,
	history ports.EventRecorder,
) *Orchestrator {
	return &Orchestrator{
		clipboard: clipboard,
		git:       git,
		history:   history,
		procs:     procs,
		runner:    runner,
		state:     state,
		templates: templates,
		tmux:      tmux,
	}
}

// CreateSessionOptions carries everything `kiln new` accepts.
type CreateSessionOptions struct {
	BaseRef      string
	Branch       string
	Headless     bool
	Name         string
	Prompt       string
	SystemPrompt string
	Template     string
}

// CreateSession provisions a worktree (or one per repo), creates the
// tmux window, starts the primary agent, and persists the session.
// Warnings report repos that failed in a partially successful
// multi-repo provisioning run.
func (o *Orchestrator) CreateSession(ctx context.Context, opts CreateSessionOptions) (*domain.Session, []string, error) {
	st, err := o.state.Load()
	if err != nil {
		return nil, nil, err
	}

	name := domain.SanitizeSessionName(opts.Name)
	if name == "" {
		return nil, nil, fmt.Errorf("session name %q is empty after sanitizing", opts.Name)
	}
	for i := range st.Sessions {
		s := &st.Sessions[i]
		if s.Name == name && !s.Status.Is(domain.SessionArchived) {
			return nil, nil, fmt.Errorf("%w: %s", domain.ErrSessionExists, name)
		}
	}

	tmpl := domain.AgentTemplate{}
	if opts.Template != "" {
		resolved, err := o.templates.Resolve(opts.Template)
		if err != nil {
			return nil, nil, err
		}
		tmpl = *resolved
	}
	headless := opts.Headless || tmpl.Mode == domain.ModeHeadless
	if headless && opts.Prompt == "" {
		return nil, nil, fmt.Errorf("headless sessions need a prompt")
	}

	branch := opts.Branch
	if branch == "" {
		branch, err = o.git.SanitizeBranchName(name)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to derive branch name from %q: %w", name, err)
		}
	} else if err := o.git.ValidateBranchName(branch); err != nil {
		return nil, nil, fmt.Errorf("invalid branch name %q: %w", branch, err)
	}

	logging.Logger.Info("Creating session",
		"name", name, "branch", branch, "base", opts.BaseRef, "template", opts.Template, "headless", headless)

	worktreePath, repoWorktrees, warnings, err := o.provision(ctx, &st.Workspace, branch, opts.BaseRef)
	if err != nil {
		return nil, nil, err
	}

	if err := o.tmux.EnsureSession(st.TmuxSessionName, st.Workspace.Root); err != nil {
		o.rollbackWorktrees(ctx, &st.Workspace, worktreePath, repoWorktrees)
		return nil, nil, fmt.Errorf("failed to ensure tmux session: %w", err)
	}
	windowHandle, err := o.tmux.CreateWindow(st.TmuxSessionName, name, worktreePath)
	if err != nil {
		o.rollbackWorktrees(ctx, &st.Workspace, worktreePath, repoWorktrees)
		return nil, nil, fmt.Errorf("failed to create session window: %w", err)
	}

	session := domain.NewSession(name, branch, worktreePath, windowHandle)
	session.RepoWorktrees = repoWorktrees
	session.SystemPrompt = opts.SystemPrompt
	session.Template = opts.Template

	mode := domain.ModeInteractive
	if headless {
		mode = domain.ModeHeadless
	}
	agent := domain.NewAgent(session.ID, name, mode, opts.Prompt, worktreePath, o.state.AgentsDir())
	agent.SystemPrompt = systemPromptFor(opts.SystemPrompt, tmpl)
	agent.Template = opts.Template
	session.AgentIDs = append(session.AgentIDs, agent.ID)

	st.Sessions = append(st.Sessions, session)
	st.Agents = append(st.Agents, agent)
	if err := o.state.Save(st); err != nil {
		return nil, nil, err
	}

	sess := st.FindSessionByID(session.ID)
	started := st.FindAgent(agent.ID)
	if err := o.startAgent(ctx, st, sess, started, tmpl, nil); err != nil {
		if terr := started.TransitionTo(domain.AgentFailure(truncateMessage(err.Error()))); terr != nil {
			logging.Logger.Warn("Could not mark agent failed", "agent_id", started.ID, "error", terr)
		}
		sess.SetStatus(domain.SessionFailure("primary agent failed to start"))
		if saveErr := o.state.Save(st); saveErr != nil {
			logging.Logger.Error("Failed to persist failed session", "session", name, "error", saveErr)
		}
		return nil, warnings, err
	}

	sess.SetStatus(domain.SessionStatusOf(domain.SessionActive))
	if err := o.state.Save(st); err != nil {
		return nil, warnings, err
	}

	o.record(ctx, ports.Event{
		Kind:        ports.EventSessionCreated,
		SessionName: name,
		Detail:      fmt.Sprintf("branch %s", branch),
	})
	logging.Logger.Info("Session created", "name", name, "branch", branch, "window", windowHandle)

	created := *sess
	return &created, warnings, nil
}

// provision creates the working copies for a new session, single or
// multi depending on the workspace kind.
func (o *Orchestrator) provision(ctx context.Context, ws *domain.Workspace, branch, baseRef string) (string, map[string]string, []string, error) {
	if ws.IsMultiRepo() {
		sessionRoot := o.git.WorktreePathFor(ws.Name)
		multi, err := o.git.CreateMultiRepoWorktrees(ctx, ws.Repos, branch, baseRef, sessionRoot)
		if err != nil {
			return "", nil, nil, fmt.Errorf("failed to provision worktrees: %w", err)
		}
		return multi.SessionRoot, multi.Worktrees, multi.Warnings, nil
	}

	result, err := o.git.CreateWorktree(ctx, ws.Root, branch, baseRef)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to provision worktree: %w", err)
	}
	var warnings []string
	if result.Attached {
		warnings = append(warnings, fmt.Sprintf("branch %s already existed, worktree attached to it", result.Branch))
	}
	return result.Path, nil, warnings, nil
}

// rollbackWorktrees tears down freshly provisioned working copies when
// a later step of session creation fails. Best-effort.
func (o *Orchestrator) rollbackWorktrees(ctx context.Context, ws *domain.Workspace, worktreePath string, repoWorktrees map[string]string) {
	if len(repoWorktrees) > 0 {
		for name, path := range repoWorktrees {
			repo := ws.RepoByName(name)
			if repo == nil {
				continue
			}
			if err := o.git.RemoveWorktree(ctx, repo.Root, path); err != nil {
				logging.Logger.Warn("Rollback could not remove worktree", "path", path, "error", err)
			}
		}
		if err := os.RemoveAll(worktreePath); err != nil {
			logging.Logger.Warn("Rollback could not remove session root", "path", worktreePath, "error", err)
		}
		return
	}
	if worktreePath == "" {
		return
	}
	if err := o.git.RemoveWorktree(ctx, ws.Root, worktreePath); err != nil {
		logging.Logger.Warn("Rollback could not remove worktree", "path", worktreePath, "error", err)
	}
}

// SpawnAgentOptions carries everything `kiln spawn` accepts.
type SpawnAgentOptions struct {
	Interactive  bool
	Name         string
	Prompt       string
	Session      string
	Shell        bool
	SystemPrompt string
	Template     string
}

// SpawnAgent adds an agent to an existing session: headless agents run
// detached and report through their output artifact, interactive
// agents get a pane split off the session window, shell agents get a
// window of their own. The agent is persisted before its process
// starts. The returned channel carries the parsed output of a headless
// agent once it exits; it is nil for the other modes.
func (o *Orchestrator) SpawnAgent(ctx context.Context, opts SpawnAgentOptions) (*domain.Agent, <-chan *domain.AgentOutput, error) {
	st, err := o.state.Load()
	if err != nil {
		return nil, nil, err
	}

	parent, err := o.resolveParent(st, opts.Session)
	if err != nil {
		return nil, nil, err
	}

	tmpl := domain.AgentTemplate{}
	if opts.Template != "" {
		resolved, err := o.templates.Resolve(opts.Template)
		if err != nil {
			return nil, nil, err
		}
		tmpl = *resolved
	}

	mode := domain.ModeHeadless
	if tmpl.Mode == domain.ModeInteractive {
		mode = domain.ModeInteractive
	}
	if opts.Interactive {
		mode = domain.ModeInteractive
	}
	if opts.Shell {
		mode = domain.ModeShell
	}
	if mode == domain.ModeHeadless && opts.Prompt == "" {
		return nil, nil, fmt.Errorf("headless agents need a prompt")
	}

	workdir := parent.WorktreePath
	if workdir == "" {
		workdir = st.Workspace.Root
	}

	agentName := opts.Name
	if agentName == "" {
		agentName = defaultAgentName(opts.Template, mode, len(parent.AgentIDs))
	}

	agent := domain.NewAgent(parent.ID, agentName, mode, opts.Prompt, workdir, o.state.AgentsDir())
	agent.SystemPrompt = systemPromptFor(opts.SystemPrompt, tmpl)
	agent.Template = opts.Template

	parent.AgentIDs = append(parent.AgentIDs, agent.ID)
	st.Agents = append(st.Agents, agent)
	if err := o.state.Save(st); err != nil {
		return nil, nil, err
	}

	started := st.FindAgent(agent.ID)
	done := make(chan *domain.AgentOutput, 1)
	if err := o.startAgent(ctx, st, parent, started, tmpl, done); err != nil {
		if terr := started.TransitionTo(domain.AgentFailure(truncateMessage(err.Error()))); terr != nil {
			logging.Logger.Warn("Could not mark agent failed", "agent_id", started.ID, "error", terr)
		}
		if saveErr := o.state.Save(st); saveErr != nil {
			logging.Logger.Error("Failed to persist failed agent", "agent_id", started.ID, "error", saveErr)
		}
		return nil, nil, err
	}

	if err := o.state.Save(st); err != nil {
		return nil, nil, err
	}

	o.record(ctx, ports.Event{
		Kind:        ports.EventAgentSpawned,
		SessionName: parent.Name,
		AgentID:     started.ID,
		Detail:      fmt.Sprintf("%s agent %s", started.Mode, started.Name),
	})
	logging.Logger.Info("Agent spawned",
		"agent_id", started.ID, "name", started.Name, "mode", started.Mode, "session", parent.Name)

	spawned := *started
	if spawned.Mode != domain.ModeHeadless {
		return &spawned, nil, nil
	}
	return &spawned, done, nil
}

// resolveParent picks the session an agent lands in: the named one, or
// the most recently created active session. The main session is never
// picked implicitly since it has no isolated worktree.
func (o *Orchestrator) resolveParent(st *domain.WorkspaceState, name string) (*domain.Session, error) {
	if name != "" {
		parent := st.FindSession(domain.SanitizeSessionName(name))
		if parent == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, name)
		}
		return parent, nil
	}

	var parent *domain.Session
	for i := range st.Sessions {
		s := &st.Sessions[i]
		if s.IsMain || !s.IsActive() {
			continue
		}
		if parent == nil || s.CreatedAt.After(parent.CreatedAt) {
			parent = s
		}
	}
	if parent == nil {
		return nil, fmt.Errorf("%w: no active session to spawn into", domain.ErrSessionNotFound)
	}
	return parent, nil
}

// startAgent launches the agent process for its mode and stamps the
// runtime handles (pid, pane) onto the persisted record. The caller
// saves state afterwards.
func (o *Orchestrator) startAgent(ctx context.Context, st *domain.WorkspaceState, parent *domain.Session, agent *domain.Agent, tmpl domain.AgentTemplate, done chan<- *domain.AgentOutput) error {
	switch agent.Mode {
	case domain.ModeHeadless:
		onExit := o.exitHandler(agent.ID, done)
		handle, err := o.runner.StartHeadless(ctx, *agent, tmpl, onExit)
		if err != nil {
			return fmt.Errorf("failed to start headless agent: %w", err)
		}
		agent.PID = handle.PID

	case domain.ModeInteractive:
		target := parent.TmuxWindow
		if len(parent.AgentIDs) > 1 {
			// The window's own pane belongs to the primary agent;
			// later interactive agents each get a split.
			paneID, err := o.tmux.SplitPane(parent.TmuxWindow, agent.WorktreePath)
			if err != nil {
				return fmt.Errorf("failed to split pane: %w", err)
			}
			target = paneID
		}
		if err := o.tmux.SendText(target, o.runner.InteractiveCommand(*agent, tmpl)); err != nil {
			return fmt.Errorf("failed to start interactive agent: %w", err)
		}
		agent.TmuxPane = target

	case domain.ModeShell:
		// The agent being started is already in st.Agents; count only
		// the shells before it.
		window := fmt.Sprintf("%s~shell-%d", parent.Name, countShellAgents(st, parent.ID, agent.ID)+1)
		handle, err := o.tmux.CreateWindow(st.TmuxSessionName, window, agent.WorktreePath)
		if err != nil {
			return fmt.Errorf("failed to create shell window: %w", err)
		}
		if agent.Prompt != "" {
			if err := o.tmux.SendText(handle, agent.Prompt); err != nil {
				logging.Logger.Warn("Could not send initial command to shell", "agent_id", agent.ID, "error", err)
			}
		}
		agent.TmuxPane = handle

	default:
		return fmt.Errorf("unknown agent mode %q", agent.Mode)
	}

	return agent.TransitionTo(domain.AgentStatusOf(domain.AgentRunning))
}

// exitHandler builds the onExit callback for a headless agent: fold
// the artifact into state, then hand the output to whoever is waiting.
func (o *Orchestrator) exitHandler(agentID string, done chan<- *domain.AgentOutput) func(*domain.AgentOutput, error) {
	return func(output *domain.AgentOutput, runErr error) {
		// Detached from the spawning call on purpose; the spawn's ctx
		// is long gone when a headless agent finishes.
		if err := o.FoldAgentOutput(context.Background(), agentID, output); err != nil {
			logging.Logger.Warn("Could not fold agent exit into state", "agent_id", agentID, "error", err)
		}
		if done != nil {
			done <- output
		}
	}
}

// countShellAgents counts shell-mode agents a session owns, excluding
// the one named by excludeID.
func countShellAgents(st *domain.WorkspaceState, sessionID, excludeID string) int {
	count := 0
	for _, a := range st.AgentsForSession(sessionID) {
		if a.Mode == domain.ModeShell && a.ID != excludeID {
			count++
		}
	}
	return count
}

// defaultAgentName derives an agent name when the caller gave none.
func defaultAgentName(template string, mode domain.AgentMode, ordinal int) string {
	if template != "" {
		return template
	}
	if mode == domain.ModeShell {
		return "shell"
	}
	return fmt.Sprintf("agent-%d", ordinal+1)
}

// systemPromptFor resolves the effective system prompt: an explicit
// override wins over the template body.
func systemPromptFor(override string, tmpl domain.AgentTemplate) string {
	if override != "" {
		return override
	}
	return tmpl.SystemPrompt
}

// KillSession tears a session down: its windows, its agents'
// processes, its working copies, and finally its state entries. The
// main session is always refused; an active session is refused unless
// force is set.
func (o *Orchestrator) KillSession(ctx context.Context, name string, force, deleteBranch bool) error {
	st, err := o.state.Load()
	if err != nil {
		return err
	}

	session := st.FindSession(domain.SanitizeSessionName(name))
	if session == nil {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, name)
	}
	if session.IsMain {
		return domain.ErrMainSessionProtected
	}
	if session.IsActive() && !force {
		return fmt.Errorf("%w: %s", domain.ErrSessionActive, session.Name)
	}

	logging.Logger.Info("Killing session", "name", session.Name, "force", force, "delete_branch", deleteBranch)

	// External teardown is best-effort throughout; state removal below
	// is what actually retires the session.
	for _, agent := range st.AgentsForSession(session.ID) {
		o.teardownAgent(agent)
	}
	if tmuxSession, window, ok := splitWindowHandle(session.TmuxWindow); ok {
		if err := o.tmux.KillWindow(tmuxSession, window); err != nil {
			logging.Logger.Warn("Could not kill session window", "window", session.TmuxWindow, "error", err)
		}
	}
	o.removeWorktrees(ctx, st, session, deleteBranch)

	st.RemoveSession(session.Name)
	if err := o.state.Save(st); err != nil {
		return err
	}

	o.record(ctx, ports.Event{Kind: ports.EventSessionKilled, SessionName: name})
	logging.Logger.Info("Session killed", "name", name)
	return nil
}

// teardownAgent stops whatever backs a live agent: the headless
// process or the extra shell window. Panes inside the session window
// die with the window itself.
func (o *Orchestrator) teardownAgent(agent *domain.Agent) {
	if agent.IsDone() {
		return
	}
	if agent.Mode == domain.ModeHeadless && agent.PID > 0 {
		if err := o.procs.Terminate(agent.PID); err != nil {
			logging.Logger.Warn("Could not terminate agent process", "agent_id", agent.ID, "pid", agent.PID, "error", err)
		}
		return
	}
	if agent.Mode == domain.ModeShell && agent.TmuxPane != "" {
		if tmuxSession, window, ok := splitWindowHandle(agent.TmuxPane); ok {
			if err := o.tmux.KillWindow(tmuxSession, window); err != nil {
				logging.Logger.Warn("Could not kill shell window", "agent_id", agent.ID, "error", err)
			}
		}
	}
}

// removeWorktrees deletes a session's working copies and prunes the
// stale registrations, best-effort.
func (o *Orchestrator) removeWorktrees(ctx context.Context, st *domain.WorkspaceState, session *domain.Session, deleteBranch bool) {
	ws := &st.Workspace

	if len(session.RepoWorktrees) > 0 {
		for repoName, path := range session.RepoWorktrees {
			repo := ws.RepoByName(repoName)
			if repo == nil {
				logging.Logger.Warn("Worktree references unknown repo", "repo", repoName, "path", path)
				continue
			}
			if err := o.git.RemoveWorktree(ctx, repo.Root, path); err != nil {
				logging.Logger.Warn("Could not remove worktree", "path", path, "error", err)
			}
			if deleteBranch {
				if err := o.git.DeleteBranch(ctx, repo.Root, session.Branch); err != nil {
					logging.Logger.Warn("Could not delete branch", "repo", repoName, "branch", session.Branch, "error", err)
				}
			}
			if err := o.git.PruneWorktrees(ctx, repo.Root); err != nil {
				logging.Logger.Warn("Could not prune worktrees", "repo", repoName, "error", err)
			}
		}
		// The per-repo removals leave the shared session root behind.
		if session.WorktreePath != "" {
			if err := os.RemoveAll(session.WorktreePath); err != nil {
				logging.Logger.Warn("Could not remove session root", "path", session.WorktreePath, "error", err)
			}
		}
		return
	}

	if session.WorktreePath == "" {
		return
	}
	if err := o.git.RemoveWorktree(ctx, ws.Root, session.WorktreePath); err != nil {
		logging.Logger.Warn("Could not remove worktree", "path", session.WorktreePath, "error", err)
	}
	if deleteBranch {
		if err := o.git.DeleteBranch(ctx, ws.Root, session.Branch); err != nil {
			logging.Logger.Warn("Could not delete branch", "branch", session.Branch, "error", err)
		}
	}
	if err := o.git.PruneWorktrees(ctx, ws.Root); err != nil {
		logging.Logger.Warn("Could not prune worktrees", "error", err)
	}
}

// Ingest marks a completed agent's result as consumed, copying the
// result text to the clipboard on the way. Already-ingested agents are
// a no-op. The query may be a full agent id or a unique prefix.
func (o *Orchestrator) Ingest(ctx context.Context, query string) (*domain.Agent, error) {
	st, err := o.state.Load()
	if err != nil {
		return nil, err
	}

	agent, err := findAgentByQuery(st, query)
	if err != nil {
		return nil, err
	}

	if agent.Status.Is(domain.AgentIngested) {
		ingested := *agent
		return &ingested, nil
	}
	if !agent.Status.Is(domain.AgentCompleted) {
		return nil, fmt.Errorf("agent %s is %s; only completed agents can be ingested", agent.Name, agent.Status.Kind)
	}
	if agent.Result == nil {
		return nil, fmt.Errorf("agent %s has no parsed result to ingest", agent.Name)
	}

	// A missing clipboard (headless server, no display) must not block
	// marking the result consumed.
	if err := o.clipboard.Write(agent.Result.Summary); err != nil {
		logging.Logger.Warn("Could not copy result to clipboard", "agent_id", agent.ID, "error", err)
	} else {
		logging.Logger.Info("Result copied to clipboard", "agent_id", agent.ID)
	}

	if err := agent.TransitionTo(domain.AgentStatusOf(domain.AgentIngested)); err != nil {
		return nil, err
	}
	if err := o.state.Save(st); err != nil {
		return nil, err
	}

	o.record(ctx, ports.Event{Kind: ports.EventAgentIngested, AgentID: agent.ID})
	ingested := *agent
	return &ingested, nil
}

// findAgentByQuery locates an agent by exact id or unique id prefix.
func findAgentByQuery(st *domain.WorkspaceState, query string) (*domain.Agent, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty agent id", domain.ErrAgentNotFound)
	}
	if agent := st.FindAgent(query); agent != nil {
		return agent, nil
	}

	var matches []*domain.Agent
	for i := range st.Agents {
		if len(query) >= 4 && len(st.Agents[i].ID) >= len(query) && st.Agents[i].ID[:len(query)] == query {
			matches = append(matches, &st.Agents[i])
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, query)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("agent id prefix %q is ambiguous (%d matches)", query, len(matches))
	}
}

// Attach returns the tmux target for a session, recreating its window
// first if it has gone away. A paused session comes back as active.
func (o *Orchestrator) Attach(ctx context.Context, name string) (string, error) {
	st, err := o.state.Load()
	if err != nil {
		return "", err
	}

	session := st.FindSession(domain.SanitizeSessionName(name))
	if session == nil {
		return "", fmt.Errorf("%w: %s", domain.ErrSessionNotFound, name)
	}

	alive := false
	if tmuxSession, window, ok := splitWindowHandle(session.TmuxWindow); ok {
		alive, err = o.tmux.WindowExists(tmuxSession, window)
		if err != nil {
			return "", fmt.Errorf("failed to probe session window: %w", err)
		}
	}
	if alive {
		return session.TmuxWindow, nil
	}

	logging.Logger.Info("Reviving session window", "session", session.Name)

	if err := o.tmux.EnsureSession(st.TmuxSessionName, st.Workspace.Root); err != nil {
		return "", fmt.Errorf("failed to ensure tmux session: %w", err)
	}
	startDir := session.WorktreePath
	if startDir == "" {
		startDir = st.Workspace.Root
	}
	handle, err := o.tmux.CreateWindow(st.TmuxSessionName, session.Name, startDir)
	if err != nil {
		return "", fmt.Errorf("failed to recreate session window: %w", err)
	}

	session.TmuxWindow = handle
	if session.Status.Is(domain.SessionPaused) {
		session.SetStatus(domain.SessionStatusOf(domain.SessionActive))
	}
	if err := o.state.Save(st); err != nil {
		return "", err
	}
	return handle, nil
}

// PeekAgent captures the tail of an agent's pane so its screen can be
// inspected without attaching. Headless agents have no pane to read.
func (o *Orchestrator) PeekAgent(ctx context.Context, query string, lines int) (string, error) {
	st, err := o.state.Load()
	if err != nil {
		return "", err
	}

	agent, err := findAgentByQuery(st, query)
	if err != nil {
		return "", err
	}
	if agent.TmuxPane == "" {
		return "", fmt.Errorf("agent %s has no pane to capture", agent.Name)
	}

	output, err := o.tmux.Capture(agent.TmuxPane, lines)
	if err != nil {
		return "", fmt.Errorf("failed to capture agent pane: %w", err)
	}
	return output, nil
}

// EnsureMainSession inserts or repairs the protected main session: a
// window on the workspace root itself, no worktree, never killable.
func (o *Orchestrator) EnsureMainSession(ctx context.Context) (*domain.Session, error) {
	st, err := o.state.Load()
	if err != nil {
		return nil, err
	}

	if main := st.MainSession(); main != nil {
		alive := false
		if tmuxSession, window, ok := splitWindowHandle(main.TmuxWindow); ok {
			if exists, err := o.tmux.WindowExists(tmuxSession, window); err == nil {
				alive = exists
			}
		}
		if alive {
			existing := *main
			return &existing, nil
		}

		if err := o.tmux.EnsureSession(st.TmuxSessionName, st.Workspace.Root); err != nil {
			return nil, fmt.Errorf("failed to ensure tmux session: %w", err)
		}
		handle, err := o.tmux.CreateWindow(st.TmuxSessionName, main.Name, st.Workspace.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to recreate main window: %w", err)
		}
		main.TmuxWindow = handle
		main.SetStatus(domain.SessionStatusOf(domain.SessionActive))
		if err := o.state.Save(st); err != nil {
			return nil, err
		}
		repaired := *main
		return &repaired, nil
	}

	if err := o.tmux.EnsureSession(st.TmuxSessionName, st.Workspace.Root); err != nil {
		return nil, fmt.Errorf("failed to ensure tmux session: %w", err)
	}
	handle, err := o.tmux.CreateWindow(st.TmuxSessionName, "main", st.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to create main window: %w", err)
	}

	main := domain.NewSession("main", st.Workspace.DefaultBranch, "", handle)
	main.IsMain = true
	main.SetStatus(domain.SessionStatusOf(domain.SessionActive))
	st.Sessions = append([]domain.Session{main}, st.Sessions...)
	if err := o.state.Save(st); err != nil {
		return nil, err
	}

	logging.Logger.Info("Main session created", "window", handle)
	created := *st.MainSession()
	return &created, nil
}

// RefreshRepos rediscovers the repositories of a multi-repo workspace
// and updates the persisted list, reporting what changed.
func (o *Orchestrator) RefreshRepos(ctx context.Context) (added, removed []string, err error) {
	st, err := o.state.Load()
	if err != nil {
		return nil, nil, err
	}
	if !st.Workspace.IsMultiRepo() {
		return nil, nil, fmt.Errorf("workspace %s is single-repo; refresh-repos applies to multi-repo workspaces", st.Workspace.Name)
	}

	discovered, err := o.git.DiscoverRepos(st.Workspace.Root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover repositories: %w", err)
	}

	before := make(map[string]bool, len(st.Workspace.Repos))
	for _, repo := range st.Workspace.Repos {
		before[repo.Name] = true
	}
	after := make(map[string]bool, len(discovered))
	for _, repo := range discovered {
		after[repo.Name] = true
		if !before[repo.Name] {
			added = append(added, repo.Name)
		}
	}
	for _, repo := range st.Workspace.Repos {
		if !after[repo.Name] {
			removed = append(removed, repo.Name)
		}
	}

	if len(added) == 0 && len(removed) == 0 {
		return nil, nil, nil
	}

	st.Workspace.Repos = discovered
	if err := o.state.Save(st); err != nil {
		return nil, nil, err
	}

	logging.Logger.Info("Repositories refreshed", "added", added, "removed", removed)
	return added, removed, nil
}

// FoldAgentOutput applies a parsed output artifact to its agent:
// result stored, status advanced, parent session completed once all
// its agents are done. Terminal agents are left alone so the watcher,
// the exit callback, and the reconciler can all deliver the same
// completion without fighting.
func (o *Orchestrator) FoldAgentOutput(ctx context.Context, agentID string, output *domain.AgentOutput) error {
	if output == nil {
		return fmt.Errorf("agent %s reported no output", agentID)
	}

	st, err := o.state.Load()
	if err != nil {
		return err
	}
	agent := st.FindAgent(agentID)
	if agent == nil {
		return fmt.Errorf("%w: %s", domain.ErrAgentNotFound, agentID)
	}
	if agent.IsDone() {
		logging.Logger.Debug("Agent already terminal, ignoring output", "agent_id", agentID)
		return nil
	}

	// An artifact for a still-queued agent means the running stamp was
	// lost; move it forward so the transition below is legal.
	if agent.Status.Is(domain.AgentQueued) {
		if err := agent.TransitionTo(domain.AgentStatusOf(domain.AgentRunning)); err != nil {
			return err
		}
	}

	result := domain.ResultFromOutput(*output)
	agent.Result = &result

	eventKind := ports.EventAgentCompleted
	status := domain.AgentStatusOf(domain.AgentCompleted)
	if output.IsError {
		eventKind = ports.EventAgentFailed
		status = domain.AgentFailure(truncateMessage(output.Result))
	}
	if err := agent.TransitionTo(status); err != nil {
		return err
	}

	if parent := st.FindSessionByID(agent.ParentSession); parent != nil && !parent.IsMain && parent.Status.Is(domain.SessionActive) {
		if allAgentsDone(st, parent) {
			parent.SetStatus(domain.SessionStatusOf(domain.SessionCompleted))
			logging.Logger.Info("Session completed", "session", parent.Name)
		}
	}

	if err := o.state.Save(st); err != nil {
		return err
	}

	o.record(ctx, ports.Event{
		Kind:    eventKind,
		AgentID: agentID,
		Detail:  truncateMessage(output.Result),
	})
	logging.Logger.Info("Agent output folded into state",
		"agent_id", agentID, "is_error", output.IsError, "duration_ms", output.DurationMS)
	return nil
}

// allAgentsDone reports whether every agent of a session is terminal.
func allAgentsDone(st *domain.WorkspaceState, session *domain.Session) bool {
	for _, id := range session.AgentIDs {
		if agent := st.FindAgent(id); agent != nil && !agent.IsDone() {
			return false
		}
	}
	return true
}

// HandleOutputEvent folds a watcher notification into state. Events
// that cannot be applied are logged and dropped; the reconciliation
// sweep re-derives anything missed.
func (o *Orchestrator) HandleOutputEvent(ctx context.Context, ev ports.OutputEvent) {
	switch ev.Kind {
	case ports.AgentCompleted:
		if err := o.FoldAgentOutput(ctx, ev.AgentID, ev.Output); err != nil {
			if errors.Is(err, domain.ErrAgentNotFound) {
				logging.Logger.Debug("Output artifact for unknown agent", "agent_id", ev.AgentID, "path", ev.Path)
				return
			}
			logging.Logger.Warn("Could not fold output event", "agent_id", ev.AgentID, "error", err)
		}
	case ports.OutputWritten:
		logging.Logger.Debug("Unattributed output write", "path", ev.Path)
	}
}

// record appends a history event, best-effort.
func (o *Orchestrator) record(ctx context.Context, event ports.Event) {
	if o.history == nil {
		return
	}
	if err := o.history.Record(ctx, event); err != nil {
		logging.Logger.Warn("Failed to record history event", "kind", event.Kind, "error", err)
	}
}
