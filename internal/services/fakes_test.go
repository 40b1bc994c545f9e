package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"kiln/internal/adapters/state"
	"kiln/internal/domain"
	"kiln/internal/ports"
)

// The service layer is tested against hand-rolled fakes of the ports:
// in-memory tmux and git doubles that record what was asked of them,
// plus the real state store on a temp directory so persistence
// behavior is exercised for real.

type fakeGit struct {
	attach          bool
	base            string
	counter         int
	deletedBranches []string
	failCreate      bool
	failRepos       map[string]bool
	orphans         []string
	pruned          []string
	removed         []string
	repos           []domain.RepoInfo
}

var _ ports.GitClient = (*fakeGit)(nil)

func (g *fakeGit) Available() error { return nil }

func (g *fakeGit) SanitizeBranchName(name string) (string, error) {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-")), nil
}

func (g *fakeGit) ValidateBranchName(name string) error {
	if strings.ContainsAny(name, " ~^:") {
		return fmt.Errorf("invalid branch name: %s", name)
	}
	return nil
}

func (g *fakeGit) IsGitRepo(path string) (bool, string) { return true, path }
func (g *fakeGit) DefaultBranch(repoRoot string) string { return "main" }
func (g *fakeGit) RemoteURL(repoRoot string) string     { return "" }

func (g *fakeGit) DiscoverRepos(root string) ([]domain.RepoInfo, error) {
	return g.repos, nil
}

func (g *fakeGit) ListOrphanWorktrees(worktreeBase, prefix string, referenced []string) ([]string, error) {
	return g.orphans, nil
}

func (g *fakeGit) WorktreePathFor(name string) string {
	g.counter++
	return filepath.Join(g.base, fmt.Sprintf("%s-kiln-%04d", name, g.counter))
}

func (g *fakeGit) CreateWorktree(ctx context.Context, repoRoot, branch, baseRef string) (*ports.WorktreeResult, error) {
	if g.failCreate {
		return nil, fmt.Errorf("worktree creation refused")
	}
	path := g.WorktreePathFor(branch)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return &ports.WorktreeResult{Path: path, Branch: branch, Attached: g.attach}, nil
}

func (g *fakeGit) CreateWorktreeAt(ctx context.Context, repoRoot, branch, baseRef, path string) (*ports.WorktreeResult, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return &ports.WorktreeResult{Path: path, Branch: branch}, nil
}

func (g *fakeGit) CreateMultiRepoWorktrees(ctx context.Context, repos []domain.RepoInfo, branch, baseRef, sessionRoot string) (*ports.MultiWorktreeResult, error) {
	if err := os.MkdirAll(sessionRoot, 0o755); err != nil {
		return nil, err
	}
	worktrees := make(map[string]string)
	var warnings []string
	for _, repo := range repos {
		if g.failRepos[repo.Name] {
			warnings = append(warnings, fmt.Sprintf("%s: provisioning refused", repo.Name))
			continue
		}
		path := filepath.Join(sessionRoot, repo.Name)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
		worktrees[repo.Name] = path
	}
	if len(worktrees) == 0 {
		os.RemoveAll(sessionRoot)
		return nil, fmt.Errorf("failed to provision any repository: %s", strings.Join(warnings, "; "))
	}
	return &ports.MultiWorktreeResult{SessionRoot: sessionRoot, Warnings: warnings, Worktrees: worktrees}, nil
}

func (g *fakeGit) RemoveWorktree(ctx context.Context, repoRoot, path string) error {
	g.removed = append(g.removed, path)
	return os.RemoveAll(path)
}

func (g *fakeGit) DeleteBranch(ctx context.Context, repoRoot, branch string) error {
	g.deletedBranches = append(g.deletedBranches, branch)
	return nil
}

func (g *fakeGit) PruneWorktrees(ctx context.Context, repoRoot string) error {
	g.pruned = append(g.pruned, repoRoot)
	return nil
}

type fakeTmux struct {
	applied      []string
	captured     []string
	captureLines int
	captureOut   string
	failCreate   bool
	failSend     bool
	killedPanes  []string
	killedWins   []string
	panes        map[string]bool
	paneSeq      int
	removed      []string
	sent         map[string][]string
	sessions     map[string]bool
	verified     []string
	windows      map[string]bool
}

var _ ports.TmuxClient = (*fakeTmux)(nil)

func newFakeTmux() *fakeTmux {
	return &fakeTmux{
		panes:    make(map[string]bool),
		sent:     make(map[string][]string),
		sessions: make(map[string]bool),
		windows:  make(map[string]bool),
	}
}

func (f *fakeTmux) Available() error { return nil }

func (f *fakeTmux) EnsureSession(name, startDir string) error {
	f.sessions[name] = true
	return nil
}

func (f *fakeTmux) SessionExists(name string) (bool, error) { return f.sessions[name], nil }

func (f *fakeTmux) KillSession(name string) error {
	delete(f.sessions, name)
	return nil
}

func (f *fakeTmux) CreateWindow(session, window, startDir string) (string, error) {
	if f.failCreate {
		return "", fmt.Errorf("window creation refused")
	}
	handle := session + ":" + window
	f.windows[handle] = true
	return handle, nil
}

func (f *fakeTmux) WindowExists(session, window string) (bool, error) {
	return f.windows[session+":"+window], nil
}

func (f *fakeTmux) KillWindow(session, window string) error {
	handle := session + ":" + window
	f.killedWins = append(f.killedWins, handle)
	delete(f.windows, handle)
	return nil
}

func (f *fakeTmux) ListWindows(session string) ([]string, error) {
	var names []string
	for handle, alive := range f.windows {
		if alive && strings.HasPrefix(handle, session+":") {
			names = append(names, strings.TrimPrefix(handle, session+":"))
		}
	}
	return names, nil
}

func (f *fakeTmux) SplitPane(target, startDir string) (string, error) {
	f.paneSeq++
	id := fmt.Sprintf("%%%d", f.paneSeq)
	f.panes[id] = true
	return id, nil
}

// PaneExists accepts both "%id" pane handles and "session:window"
// targets, like the real client where tmux resolves a window target
// to its active pane.
func (f *fakeTmux) PaneExists(paneID string) (bool, error) {
	if strings.HasPrefix(paneID, "%") {
		return f.panes[paneID], nil
	}
	return f.windows[paneID], nil
}

func (f *fakeTmux) KillPane(paneID string) error {
	f.killedPanes = append(f.killedPanes, paneID)
	delete(f.panes, paneID)
	return nil
}

func (f *fakeTmux) PanePID(paneID string) (int, error) { return 0, nil }

func (f *fakeTmux) SendText(target, text string) error {
	if f.failSend {
		return fmt.Errorf("send refused")
	}
	f.sent[target] = append(f.sent[target], text)
	return nil
}

func (f *fakeTmux) Capture(target string, lines int) (string, error) {
	f.captured = append(f.captured, target)
	f.captureLines = lines
	return f.captureOut, nil
}

func (f *fakeTmux) Apply(session string) error {
	f.applied = append(f.applied, session)
	return nil
}

func (f *fakeTmux) Remove(session string) error {
	f.removed = append(f.removed, session)
	return nil
}

func (f *fakeTmux) Verify(session string) error {
	f.verified = append(f.verified, session)
	return nil
}

type fakeRunner struct {
	failStart bool
	mu        sync.Mutex
	onExits   map[string]func(*domain.AgentOutput, error)
	started   []domain.Agent
}

var _ ports.AgentRunner = (*fakeRunner)(nil)

func newFakeRunner() *fakeRunner {
	return &fakeRunner{onExits: make(map[string]func(*domain.AgentOutput, error))}
}

func (r *fakeRunner) Available() error { return nil }

func (r *fakeRunner) StartHeadless(ctx context.Context, agent domain.Agent, tmpl domain.AgentTemplate, onExit func(*domain.AgentOutput, error)) (*ports.HeadlessHandle, error) {
	if r.failStart {
		return nil, fmt.Errorf("agent binary missing")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, agent)
	r.onExits[agent.ID] = onExit
	return &ports.HeadlessHandle{PID: 4242}, nil
}

func (r *fakeRunner) InteractiveCommand(agent domain.Agent, tmpl domain.AgentTemplate) string {
	return fmt.Sprintf("claude %q", agent.Prompt)
}

// finish simulates the detached process exiting with the given output.
func (r *fakeRunner) finish(agentID string, output *domain.AgentOutput) {
	r.mu.Lock()
	onExit := r.onExits[agentID]
	r.mu.Unlock()
	if onExit != nil {
		onExit(output, nil)
	}
}

type fakeClipboard struct {
	fail  bool
	texts []string
}

var _ ports.Clipboard = (*fakeClipboard)(nil)

func (c *fakeClipboard) Write(text string) error {
	if c.fail {
		return fmt.Errorf("no clipboard available")
	}
	c.texts = append(c.texts, text)
	return nil
}

type fakeRecorder struct {
	events []ports.Event
}

var _ ports.EventRecorder = (*fakeRecorder)(nil)

func (r *fakeRecorder) Record(ctx context.Context, event ports.Event) error {
	r.events = append(r.events, event)
	return nil
}

func (r *fakeRecorder) Recent(ctx context.Context, limit int) ([]ports.Event, error) {
	if len(r.events) <= limit {
		return r.events, nil
	}
	return r.events[len(r.events)-limit:], nil
}

func (r *fakeRecorder) Close() error { return nil }

func (r *fakeRecorder) kinds() []string {
	var kinds []string
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type fakeProcs struct {
	alive      map[int]bool
	terminated []int
}

var _ ports.ProcessInspector = (*fakeProcs)(nil)

func newFakeProcs() *fakeProcs {
	return &fakeProcs{alive: make(map[int]bool)}
}

func (p *fakeProcs) PIDAlive(pid int) bool { return p.alive[pid] }

func (p *fakeProcs) Terminate(pid int) error {
	p.terminated = append(p.terminated, pid)
	delete(p.alive, pid)
	return nil
}

type fakeTemplates struct {
	byName map[string]*domain.AgentTemplate
}

var _ ports.TemplateResolver = (*fakeTemplates)(nil)

func (f *fakeTemplates) Resolve(name string) (*domain.AgentTemplate, error) {
	if tmpl, ok := f.byName[name]; ok {
		return tmpl, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, name)
}

func (f *fakeTemplates) List() ([]domain.AgentTemplate, error) {
	var all []domain.AgentTemplate
	for _, tmpl := range f.byName {
		all = append(all, *tmpl)
	}
	return all, nil
}

type fakeWatcher struct {
	ch   chan ports.OutputEvent
	once sync.Once
}

var _ ports.OutputWatcher = (*fakeWatcher)(nil)

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{ch: make(chan ports.OutputEvent, 16)}
}

func (w *fakeWatcher) Events() <-chan ports.OutputEvent { return w.ch }

func (w *fakeWatcher) Close() error {
	w.once.Do(func() { close(w.ch) })
	return nil
}

// fixture wires an Orchestrator against the fakes and a real state
// store seeded with a single-repo workspace.
type fixture struct {
	clip   *fakeClipboard
	git    *fakeGit
	hist   *fakeRecorder
	orch   *Orchestrator
	procs  *fakeProcs
	root   string
	runner *fakeRunner
	store  *state.Store
	tmpl   *fakeTemplates
	tmux   *fakeTmux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	store := state.NewStore(root)

	ws := domain.Workspace{
		Root:          root,
		Name:          "demo",
		DefaultBranch: "main",
	}
	ws.Normalize()
	require.NoError(t, store.Save(domain.NewWorkspaceState(ws, "kiln-demo")))

	f := &fixture{
		clip:   &fakeClipboard{},
		git:    &fakeGit{base: t.TempDir()},
		hist:   &fakeRecorder{},
		procs:  newFakeProcs(),
		root:   root,
		runner: newFakeRunner(),
		store:  store,
		tmpl:   &fakeTemplates{byName: make(map[string]*domain.AgentTemplate)},
		tmux:   newFakeTmux(),
	}
	f.orch = NewOrchestrator(store, f.git, f.tmux, f.runner, f.tmpl, f.clip, f.procs, f.hist)
	return f
}

// multiRepo switches the seeded workspace to multi-repo with the given
// repository names.
func (f *fixture) multiRepo(t *testing.T, names ...string) {
	t.Helper()
	st := f.load(t)
	st.Workspace.Kind = domain.MultiRepo
	for _, name := range names {
		repoRoot := filepath.Join(f.root, name)
		require.NoError(t, os.MkdirAll(repoRoot, 0o755))
		st.Workspace.Repos = append(st.Workspace.Repos, domain.RepoInfo{
			Root: repoRoot, Name: name, DefaultBranch: "main",
		})
	}
	f.save(t, st)
}

func (f *fixture) load(t *testing.T) *domain.WorkspaceState {
	t.Helper()
	st, err := f.store.Load()
	require.NoError(t, err)
	return st
}

func (f *fixture) save(t *testing.T, st *domain.WorkspaceState) {
	t.Helper()
	require.NoError(t, f.store.Save(st))
}

// createSession is the shorthand most tests start from.
func (f *fixture) createSession(t *testing.T, name string) *domain.Session {
	t.Helper()
	sess, warnings, err := f.orch.CreateSession(context.Background(), CreateSessionOptions{Name: name})
	require.NoError(t, err)
	require.Empty(t, warnings)
	return sess
}

// writeArtifact drops a parsed output artifact on disk for an agent,
// the way a finished headless run would.
func (f *fixture) writeArtifact(t *testing.T, agent *domain.Agent, output domain.AgentOutput) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(agent.OutputFile), 0o755))
	data := fmt.Sprintf(`{"type":%q,"subtype":%q,"is_error":%v,"duration_ms":%d,"num_turns":%d,"result":%q,"session_id":%q}`,
		output.Type, output.Subtype, output.IsError, output.DurationMS, output.NumTurns, output.Result, output.SessionID)
	require.NoError(t, os.WriteFile(agent.OutputFile, []byte(data), 0o644))
}
