package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"kiln/internal/domain"
	"kiln/internal/logging"
	"kiln/internal/ports"
)

const msgWorktreeMissing = "working copy missing"

// Reconciler audits persisted state against what actually exists: the
// worktree directories, the tmux windows and panes, the headless agent
// processes. It repairs drift by rewriting statuses; it never raises
// its findings as errors.
type Reconciler struct {
	cursor  int
	history ports.EventRecorder
	procs   ports.ProcessInspector
	tmux    ports.TmuxClient
}

// NewReconciler creates a reconciler. The round-robin cursor for
// incremental ticks lives on the instance and survives across calls.
func NewReconciler(tmux ports.TmuxClient, procs ports.ProcessInspector, history ports.EventRecorder) *Reconciler {
	return &Reconciler{
		history: history,
		procs:   procs,
		tmux:    tmux,
	}
}

// FullSweep checks every non-archived session and every non-terminal
// agent, mutating state in place. It returns a description per applied
// correction; the caller persists once iff any were made.
func (r *Reconciler) FullSweep(ctx context.Context, state *domain.WorkspaceState) []string {
	var corrections []string

	for i := range state.Sessions {
		if desc, ok := r.checkSession(ctx, &state.Sessions[i]); ok {
			corrections = append(corrections, desc)
		}
	}

	// Collect agent removals first; dropping entries while ranging over
	// the slice would skip neighbors.
	var removals []string
	for i := range state.Agents {
		agent := &state.Agents[i]
		if agent.IsDone() {
			continue
		}
		desc, remove, ok := r.checkAgent(ctx, state, agent)
		if ok {
			corrections = append(corrections, desc)
		}
		if remove {
			removals = append(removals, agent.ID)
		}
	}
	for _, id := range removals {
		state.RemoveAgent(id)
	}

	if len(corrections) > 0 {
		logging.Logger.Info("Reconciliation corrected drift", "corrections", len(corrections))
	}
	return corrections
}

// TickOne advances the round-robin cursor past terminal agents and
// checks exactly one eligible agent, bounding per-tick work. Returns
// true when a correction was applied and state needs persisting.
func (r *Reconciler) TickOne(ctx context.Context, state *domain.WorkspaceState) bool {
	n := len(state.Agents)
	if n == 0 {
		r.cursor = 0
		return false
	}
	if r.cursor >= n {
		r.cursor %= n
	}

	for i := 0; i < n; i++ {
		idx := (r.cursor + i) % n
		agent := &state.Agents[idx]
		if agent.IsDone() {
			continue
		}

		r.cursor = (idx + 1) % n
		_, remove, ok := r.checkAgent(ctx, state, agent)
		if remove {
			state.RemoveAgent(agent.ID)
			return true
		}
		return ok
	}

	r.cursor = 0
	return false
}

// checkSession applies the status-correction table to one session,
// driven by W (working copy exists) and T (window exists).
func (r *Reconciler) checkSession(ctx context.Context, s *domain.Session) (string, bool) {
	if s.Status.Is(domain.SessionArchived) {
		return "", false
	}

	w := worktreeIntact(s)
	t, known := r.windowAlive(s)
	if !known {
		// tmux unreachable; better to leave state alone than to guess.
		return "", false
	}

	var desc string
	switch {
	case !w && !t:
		desc = fmt.Sprintf("session %s: worktree and window both gone, archived", s.Name)
		s.SetStatus(domain.SessionStatusOf(domain.SessionArchived))
	case !w && t:
		if s.Status.Is(domain.SessionFailed) && s.Status.Message == msgWorktreeMissing {
			return "", false
		}
		desc = fmt.Sprintf("session %s: worktree gone but window alive, marked failed", s.Name)
		s.SetStatus(domain.SessionFailure(msgWorktreeMissing))
	case w && !t:
		if !s.Status.Is(domain.SessionActive) {
			return "", false
		}
		desc = fmt.Sprintf("session %s: window gone, paused", s.Name)
		s.SetStatus(domain.SessionStatusOf(domain.SessionPaused))
	default:
		return "", false
	}

	logging.Logger.Info("Reconciled session", "session", s.Name, "status", s.Status.String())
	r.record(ctx, ports.Event{Kind: ports.EventReconcileFix, SessionName: s.Name, Detail: desc})
	return desc, true
}

// checkAgent audits one non-terminal agent. Shell agents whose window
// is gone are removed rather than failed: a closed shell is not an
// outcome worth keeping.
func (r *Reconciler) checkAgent(ctx context.Context, state *domain.WorkspaceState, agent *domain.Agent) (desc string, remove bool, corrected bool) {
	sessionName := ""
	if parent := state.FindSessionByID(agent.ParentSession); parent != nil {
		sessionName = parent.Name
	}

	if agent.TmuxPane != "" {
		exists, err := r.tmux.PaneExists(agent.TmuxPane)
		if err != nil {
			logging.Logger.Warn("Could not probe agent pane",
				"agent_id", agent.ID, "pane", agent.TmuxPane, "error", err)
			return "", false, false
		}
		if exists {
			return "", false, false
		}

		if agent.Mode == domain.ModeShell {
			desc = fmt.Sprintf("agent %s: shell window closed, removed", agent.Name)
			logging.Logger.Info("Reconciled agent", "agent_id", agent.ID, "action", "removed shell")
			r.record(ctx, ports.Event{Kind: ports.EventReconcileFix, SessionName: sessionName, AgentID: agent.ID, Detail: desc})
			return desc, true, true
		}

		if err := agent.TransitionTo(domain.AgentFailure("pane lost")); err != nil {
			logging.Logger.Warn("Could not fail agent with lost pane", "agent_id", agent.ID, "error", err)
			return "", false, false
		}
		agent.TmuxPane = ""
		agent.PID = 0
		desc = fmt.Sprintf("agent %s: pane lost, marked failed", agent.Name)
		logging.Logger.Info("Reconciled agent", "agent_id", agent.ID, "action", "pane lost")
		r.record(ctx, ports.Event{Kind: ports.EventReconcileFix, SessionName: sessionName, AgentID: agent.ID, Detail: desc})
		return desc, false, true
	}

	if agent.Mode == domain.ModeHeadless && agent.Status.Is(domain.AgentRunning) {
		// The watcher may have missed the artifact (dropped event,
		// orchestrator not running at the time). Re-derive from disk.
		if output, err := readOutputArtifact(agent.OutputFile); err == nil {
			result := domain.ResultFromOutput(*output)
			status := domain.AgentStatusOf(domain.AgentCompleted)
			if output.IsError {
				status = domain.AgentFailure(truncateMessage(output.Result))
			}
			if err := agent.TransitionTo(status); err != nil {
				return "", false, false
			}
			agent.Result = &result
			desc = fmt.Sprintf("agent %s: completion recovered from output artifact", agent.Name)
			logging.Logger.Info("Reconciled agent", "agent_id", agent.ID, "action", "recovered artifact")
			r.record(ctx, ports.Event{Kind: ports.EventReconcileFix, SessionName: sessionName, AgentID: agent.ID, Detail: desc})
			return desc, false, true
		}

		if agent.PID > 0 && !r.procs.PIDAlive(agent.PID) {
			if err := agent.TransitionTo(domain.AgentFailure("agent process exited without a result")); err != nil {
				return "", false, false
			}
			desc = fmt.Sprintf("agent %s: process %d gone without a result, marked failed", agent.Name, agent.PID)
			logging.Logger.Info("Reconciled agent", "agent_id", agent.ID, "action", "process gone")
			r.record(ctx, ports.Event{Kind: ports.EventReconcileFix, SessionName: sessionName, AgentID: agent.ID, Detail: desc})
			return desc, false, true
		}
	}

	return "", false, false
}

// worktreeIntact reports W for the correction table. Sessions that
// manage no worktree at all (the main session) count as intact; a
// multi-repo session counts as intact while at least one of its mapped
// paths survives.
func worktreeIntact(s *domain.Session) bool {
	paths := s.WorktreePaths()
	if len(paths) == 0 {
		return true
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// windowAlive reports T for the correction table, plus whether the
// answer is trustworthy.
func (r *Reconciler) windowAlive(s *domain.Session) (alive, known bool) {
	session, window, ok := splitWindowHandle(s.TmuxWindow)
	if !ok {
		return false, true
	}
	exists, err := r.tmux.WindowExists(session, window)
	if err != nil {
		logging.Logger.Warn("Could not probe session window",
			"session", s.Name, "window", s.TmuxWindow, "error", err)
		return false, false
	}
	return exists, true
}

// splitWindowHandle splits a "session:window" handle. tmux session
// names cannot contain colons, so the first colon is the separator.
func splitWindowHandle(handle string) (session, window string, ok bool) {
	session, window, ok = strings.Cut(handle, ":")
	if !ok || session == "" || window == "" {
		return "", "", false
	}
	return session, window, true
}

// readOutputArtifact parses an agent output artifact from disk.
func readOutputArtifact(path string) (*domain.AgentOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var output domain.AgentOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("failed to parse output artifact %s: %w", path, err)
	}
	return &output, nil
}

// truncateMessage keeps failure messages short enough for list output.
func truncateMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	if len(msg) > 120 {
		msg = msg[:117] + "..."
	}
	return msg
}

// record appends a history event, best-effort.
func (r *Reconciler) record(ctx context.Context, event ports.Event) {
	if r.history == nil {
		return
	}
	if err := r.history.Record(ctx, event); err != nil {
		logging.Logger.Warn("Failed to record history event", "kind", event.Kind, "error", err)
	}
}
