package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"kiln/internal/domain"
	"kiln/internal/logging"
	"kiln/internal/ports"
)

// CleanupReport lists what a cleanup pass found and, unless it was a
// dry run, removed.
type CleanupReport struct {
	AgentDirs []string
	DryRun    bool
	Orphans   []string
	Sessions  []string
	Worktrees []string
}

// Empty reports whether the pass found nothing to act on.
func (r *CleanupReport) Empty() bool {
	return len(r.AgentDirs) == 0 && len(r.Orphans) == 0 && len(r.Sessions) == 0
}

// Cleanup retires archived sessions (with all set, completed ones too)
// and sweeps the debris they leave behind: their worktrees, worktrees
// whose session no longer exists, and agent output directories nothing
// references anymore. With dryRun set it only reports.
func (o *Orchestrator) Cleanup(ctx context.Context, all, dryRun bool) (*CleanupReport, error) {
	st, err := o.state.Load()
	if err != nil {
		return nil, err
	}

	report := &CleanupReport{DryRun: dryRun}

	var doomed []domain.Session
	for i := range st.Sessions {
		s := st.Sessions[i]
		if s.IsMain {
			continue
		}
		if s.Status.Is(domain.SessionArchived) || (all && s.Status.Is(domain.SessionCompleted)) {
			doomed = append(doomed, s)
			report.Sessions = append(report.Sessions, s.Name)
			report.Worktrees = append(report.Worktrees, s.WorktreePaths()...)
		}
	}

	// Orphan detection measures against every session, live ones
	// included; only unreferenced worktrees may be reclaimed.
	var referenced []string
	for i := range st.Sessions {
		referenced = append(referenced, st.Sessions[i].WorktreePaths()...)
	}
	orphans, err := o.git.ListOrphanWorktrees(st.Workspace.WorktreeBaseDir, st.Workspace.WorktreePrefix, referenced)
	if err != nil {
		logging.Logger.Warn("Could not scan for orphan worktrees", "error", err)
	}
	report.Orphans = orphans
	report.AgentDirs = o.staleAgentDirs(st)

	if dryRun {
		return report, nil
	}
	if report.Empty() {
		return report, nil
	}

	logging.Logger.Info("Cleaning up",
		"sessions", len(report.Sessions), "orphans", len(orphans), "agent_dirs", len(report.AgentDirs))

	for i := range doomed {
		s := &doomed[i]
		for _, agent := range st.AgentsForSession(s.ID) {
			o.teardownAgent(agent)
		}
		if tmuxSession, window, ok := splitWindowHandle(s.TmuxWindow); ok {
			if err := o.tmux.KillWindow(tmuxSession, window); err != nil {
				logging.Logger.Warn("Could not kill session window", "window", s.TmuxWindow, "error", err)
			}
		}
		o.removeWorktrees(ctx, st, s, false)
		st.RemoveSession(s.Name)
	}

	for _, path := range orphans {
		if err := os.RemoveAll(path); err != nil {
			logging.Logger.Warn("Could not remove orphan worktree", "path", path, "error", err)
		}
	}
	if len(orphans) > 0 {
		o.pruneAll(ctx, &st.Workspace)
	}

	for _, dir := range report.AgentDirs {
		if err := os.RemoveAll(dir); err != nil {
			logging.Logger.Warn("Could not remove stale agent directory", "path", dir, "error", err)
		}
	}

	if err := o.state.Save(st); err != nil {
		return nil, err
	}

	o.record(ctx, ports.Event{
		Kind: ports.EventCleanupPerformed,
		Detail: fmt.Sprintf("%d sessions, %d orphan worktrees, %d agent dirs",
			len(report.Sessions), len(orphans), len(report.AgentDirs)),
	})
	return report, nil
}

// staleAgentDirs lists output directories under the agents dir whose
// agent no longer exists in state.
func (o *Orchestrator) staleAgentDirs(st *domain.WorkspaceState) []string {
	entries, err := os.ReadDir(o.state.AgentsDir())
	if err != nil {
		return nil
	}

	known := make(map[string]bool, len(st.Agents))
	for i := range st.Agents {
		known[st.Agents[i].ID] = true
	}

	var stale []string
	for _, entry := range entries {
		if !entry.IsDir() || known[entry.Name()] {
			continue
		}
		stale = append(stale, filepath.Join(o.state.AgentsDir(), entry.Name()))
	}
	return stale
}

// pruneAll drops stale worktree registrations in every repository of
// the workspace, best-effort.
func (o *Orchestrator) pruneAll(ctx context.Context, ws *domain.Workspace) {
	roots := []string{ws.Root}
	if ws.IsMultiRepo() {
		roots = roots[:0]
		for _, repo := range ws.Repos {
			roots = append(roots, repo.Root)
		}
	}
	for _, root := range roots {
		if err := o.git.PruneWorktrees(ctx, root); err != nil {
			logging.Logger.Warn("Could not prune worktrees", "repo", root, "error", err)
		}
	}
}
