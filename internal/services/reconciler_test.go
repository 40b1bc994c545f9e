package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiln/internal/domain"
	"kiln/internal/ports"
)

func newReconciler(f *fixture) *Reconciler {
	return NewReconciler(f.tmux, f.procs, f.hist)
}

func TestFullSweep_HealthySessionUntouched(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "feat")

	st := f.load(t)
	corrections := newReconciler(f).FullSweep(context.Background(), st)

	assert.Empty(t, corrections)
	assert.True(t, st.FindSession("feat").Status.Is(domain.SessionActive))
}

func TestFullSweep_SessionStateTable(t *testing.T) {
	f := newFixture(t)
	intactDir := t.TempDir()
	missingDir := filepath.Join(t.TempDir(), "gone")

	mkSession := func(name, worktree string, withWindow bool) domain.Session {
		window := ""
		if withWindow {
			var err error
			window, err = f.tmux.CreateWindow("kiln-demo", name, worktree)
			require.NoError(t, err)
		} else {
			window = "kiln-demo:" + name
		}
		s := domain.NewSession(name, "b", worktree, window)
		s.SetStatus(domain.SessionStatusOf(domain.SessionActive))
		return s
	}

	st := f.load(t)
	st.Sessions = append(st.Sessions,
		mkSession("ok", intactDir, true),
		mkSession("lost-worktree", missingDir, true),
		mkSession("lost-window", intactDir, false),
		mkSession("lost-both", missingDir, false),
	)
	f.save(t, st)

	st = f.load(t)
	corrections := newReconciler(f).FullSweep(context.Background(), st)
	require.Len(t, corrections, 3)

	assert.True(t, st.FindSession("ok").Status.Is(domain.SessionActive))

	failed := st.FindSession("lost-worktree")
	assert.True(t, failed.Status.Is(domain.SessionFailed))
	assert.Equal(t, "working copy missing", failed.Status.Message)

	assert.True(t, st.FindSession("lost-window").Status.Is(domain.SessionPaused))
	assert.True(t, st.FindSession("lost-both").Status.Is(domain.SessionArchived))

	fixes := 0
	for _, e := range f.hist.events {
		if e.Kind == ports.EventReconcileFix {
			fixes++
		}
	}
	assert.Equal(t, 3, fixes)
}

func TestFullSweep_SecondPassIsQuiet(t *testing.T) {
	f := newFixture(t)
	missingDir := filepath.Join(t.TempDir(), "gone")

	st := f.load(t)
	s := domain.NewSession("drifted", "b", missingDir, "kiln-demo:drifted")
	s.SetStatus(domain.SessionStatusOf(domain.SessionActive))
	st.Sessions = append(st.Sessions, s)
	f.save(t, st)

	rec := newReconciler(f)
	st = f.load(t)
	require.NotEmpty(t, rec.FullSweep(context.Background(), st))
	f.save(t, st)

	st = f.load(t)
	assert.Empty(t, rec.FullSweep(context.Background(), st),
		"an already-corrected session must not be corrected again")
}

func TestFullSweep_MainSessionWorktreeVacuouslyIntact(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.EnsureMainSession(context.Background())
	require.NoError(t, err)

	// Main has no worktree; losing its window can only pause it,
	// never archive it.
	delete(f.tmux.windows, "kiln-demo:main")

	st := f.load(t)
	newReconciler(f).FullSweep(context.Background(), st)

	assert.True(t, st.MainSession().Status.Is(domain.SessionPaused))
}

func TestFullSweep_PrimaryAgentWindowHandleStaysRunning(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "feat")

	st := f.load(t)
	sess := st.FindSession("feat")
	require.NotEmpty(t, sess.AgentIDs)
	primary := st.FindAgent(sess.AgentIDs[0])

	// The primary agent runs in the window's own pane, so its handle is
	// the "session:window" target, which tmux resolves to a "%id" that
	// never equals the handle. The sweep must still see it as alive.
	require.Equal(t, sess.TmuxWindow, primary.TmuxPane)
	require.NotContains(t, f.tmux.panes, primary.TmuxPane, "window handles are not pane ids")

	assert.Empty(t, newReconciler(f).FullSweep(context.Background(), st))
	assert.True(t, st.FindAgent(primary.ID).Status.Is(domain.AgentRunning))
}

func TestFullSweep_PaneLostFailsInteractiveAgent(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "feat")
	agent, _, err := f.orch.SpawnAgent(context.Background(), SpawnAgentOptions{Interactive: true})
	require.NoError(t, err)

	delete(f.tmux.panes, agent.TmuxPane)

	st := f.load(t)
	corrections := newReconciler(f).FullSweep(context.Background(), st)
	require.NotEmpty(t, corrections)

	got := st.FindAgent(agent.ID)
	assert.True(t, got.Status.Is(domain.AgentFailed))
	assert.Equal(t, "pane lost", got.Status.Message)
	assert.Empty(t, got.TmuxPane, "stale handle must be cleared")
}

func TestFullSweep_ClosedShellAgentIsRemoved(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "feat")
	shell, _, err := f.orch.SpawnAgent(context.Background(), SpawnAgentOptions{Shell: true})
	require.NoError(t, err)

	delete(f.tmux.windows, shell.TmuxPane)

	st := f.load(t)
	corrections := newReconciler(f).FullSweep(context.Background(), st)
	require.NotEmpty(t, corrections)

	assert.Nil(t, st.FindAgent(shell.ID), "closed shells are removed, not failed")
	assert.NotContains(t, st.FindSession("feat").AgentIDs, shell.ID)
	assert.True(t, st.FindSession("feat").Status.Is(domain.SessionActive))
}

func TestFullSweep_ArtifactBackstopCompletesAgent(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "feat")
	agent, _, err := f.orch.SpawnAgent(context.Background(), SpawnAgentOptions{Prompt: "task"})
	require.NoError(t, err)

	// The process is gone and the completion event was never seen,
	// but the artifact it wrote survives.
	st := f.load(t)
	f.writeArtifact(t, st.FindAgent(agent.ID), domain.AgentOutput{
		Type: "result", Result: "all tests green", DurationMS: 900,
	})

	corrections := newReconciler(f).FullSweep(context.Background(), st)
	require.NotEmpty(t, corrections)

	got := st.FindAgent(agent.ID)
	assert.True(t, got.Status.Is(domain.AgentCompleted))
	require.NotNil(t, got.Result)
	assert.Equal(t, "all tests green", got.Result.Summary)
}

func TestFullSweep_ErrorArtifactFailsAgent(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "feat")
	agent, _, err := f.orch.SpawnAgent(context.Background(), SpawnAgentOptions{Prompt: "task"})
	require.NoError(t, err)

	st := f.load(t)
	f.writeArtifact(t, st.FindAgent(agent.ID), domain.AgentOutput{
		Type: "result", Subtype: "error", IsError: true, Result: "ran out of turns",
	})

	newReconciler(f).FullSweep(context.Background(), st)

	got := st.FindAgent(agent.ID)
	assert.True(t, got.Status.Is(domain.AgentFailed))
	assert.Equal(t, "ran out of turns", got.Status.Message)
}

func TestFullSweep_DeadProcessWithoutArtifactFails(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "feat")
	agent, _, err := f.orch.SpawnAgent(context.Background(), SpawnAgentOptions{Prompt: "task"})
	require.NoError(t, err)
	// PID 4242 is not in the alive set.

	st := f.load(t)
	corrections := newReconciler(f).FullSweep(context.Background(), st)
	require.NotEmpty(t, corrections)

	got := st.FindAgent(agent.ID)
	assert.True(t, got.Status.Is(domain.AgentFailed))
	assert.Equal(t, "agent process exited without a result", got.Status.Message)
}

func TestFullSweep_LiveHeadlessAgentUntouched(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "feat")
	agent, _, err := f.orch.SpawnAgent(context.Background(), SpawnAgentOptions{Prompt: "task"})
	require.NoError(t, err)
	f.procs.alive[4242] = true

	st := f.load(t)
	assert.Empty(t, newReconciler(f).FullSweep(context.Background(), st))
	assert.True(t, st.FindAgent(agent.ID).Status.Is(domain.AgentRunning))
}

func TestTickOne_ChecksOneAgentPerCall(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "feat")
	a1, _, err := f.orch.SpawnAgent(context.Background(), SpawnAgentOptions{Interactive: true})
	require.NoError(t, err)
	a2, _, err := f.orch.SpawnAgent(context.Background(), SpawnAgentOptions{Interactive: true})
	require.NoError(t, err)

	delete(f.tmux.panes, a1.TmuxPane)
	delete(f.tmux.panes, a2.TmuxPane)

	rec := newReconciler(f)
	st := f.load(t)

	// Agents in state order: healthy primary, then the two lost panes.
	assert.False(t, rec.TickOne(context.Background(), st), "primary agent is healthy")
	assert.True(t, rec.TickOne(context.Background(), st), "first lost pane corrected")
	assert.True(t, st.FindAgent(a1.ID).Status.Is(domain.AgentFailed))
	assert.True(t, st.FindAgent(a2.ID).Status.Is(domain.AgentRunning), "one agent per tick")

	assert.True(t, rec.TickOne(context.Background(), st), "second lost pane corrected")
	assert.True(t, st.FindAgent(a2.ID).Status.Is(domain.AgentFailed))
}

func TestTickOne_NoAgents(t *testing.T) {
	f := newFixture(t)
	st := f.load(t)

	assert.False(t, newReconciler(f).TickOne(context.Background(), st))
}

func TestTickOne_SkipsTerminalAgents(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "feat")
	agent, _, err := f.orch.SpawnAgent(context.Background(), SpawnAgentOptions{Prompt: "task"})
	require.NoError(t, err)
	f.runner.finish(agent.ID, &domain.AgentOutput{Type: "result", Result: "done"})

	rec := newReconciler(f)
	st := f.load(t)
	// Primary agent is healthy, spawned agent is terminal: a full
	// cursor loop finds nothing to correct.
	assert.False(t, rec.TickOne(context.Background(), st))
	assert.False(t, rec.TickOne(context.Background(), st))
}

func TestFullSweep_ArchivedSessionLeftAlone(t *testing.T) {
	f := newFixture(t)

	st := f.load(t)
	s := domain.NewSession("relic", "b", filepath.Join(t.TempDir(), "gone"), "kiln-demo:relic")
	s.SetStatus(domain.SessionStatusOf(domain.SessionArchived))
	st.Sessions = append(st.Sessions, s)
	f.save(t, st)

	st = f.load(t)
	assert.Empty(t, newReconciler(f).FullSweep(context.Background(), st))
	assert.True(t, st.FindSession("relic").Status.Is(domain.SessionArchived))
}
