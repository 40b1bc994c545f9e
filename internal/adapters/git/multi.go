package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"kiln/internal/domain"
	"kiln/internal/logging"
	"kiln/internal/ports"
)

// repoOutcome records the result of provisioning one repository within
// a multi-repo session.
type repoOutcome struct {
	err    error
	name   string
	result *ports.WorktreeResult
}

// CreateMultiRepoWorktrees provisions one worktree per repository under
// sessionRoot, all concurrently. Worktrees land at
// <sessionRoot>/<repoName> so the layout mirrors the workspace.
//
// The call fails only when every repository fails; the session root is
// then removed again. With at least one success the session proceeds
// and each failed repository contributes a warning instead.
func (c *Client) CreateMultiRepoWorktrees(ctx context.Context, repos []domain.RepoInfo, branch, baseRef, sessionRoot string) (*ports.MultiWorktreeResult, error) {
	if len(repos) == 0 {
		return nil, fmt.Errorf("no repositories to provision")
	}

	logging.Logger.Info("Creating multi-repo worktrees",
		"repos", len(repos), "branch", branch, "session_root", sessionRoot)

	if err := os.MkdirAll(sessionRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session root: %w", err)
	}

	// Fan out one provisioning task per repository. Tasks never return
	// an error to the group; each records its outcome in its own slot
	// so one failure cannot cancel the siblings.
	outcomes := make([]repoOutcome, len(repos))
	var g errgroup.Group
	for i, repo := range repos {
		i, repo := i, repo
		g.Go(func() error {
			path := filepath.Join(sessionRoot, repo.Name)
			result, err := c.CreateWorktreeAt(ctx, repo.Root, branch, baseRef, path)
			outcomes[i] = repoOutcome{err: err, name: repo.Name, result: result}
			return nil
		})
	}
	_ = g.Wait()

	worktrees := make(map[string]string)
	var warnings []string
	for _, o := range outcomes {
		if o.err != nil {
			logging.Logger.Warn("Repo provisioning failed", "repo", o.name, "error", o.err)
			warnings = append(warnings, fmt.Sprintf("%s: %v", o.name, o.err))
			continue
		}
		worktrees[o.name] = o.result.Path
	}

	if len(worktrees) == 0 {
		logging.Logger.Error("All repos failed to provision, rolling back session root",
			"session_root", sessionRoot)
		if err := os.RemoveAll(sessionRoot); err != nil {
			logging.Logger.Warn("Failed to remove session root during rollback", "error", err)
		}
		return nil, fmt.Errorf("failed to provision any repository: %s", strings.Join(warnings, "; "))
	}

	logging.Logger.Info("Multi-repo worktrees created",
		"succeeded", len(worktrees), "failed", len(warnings), "session_root", sessionRoot)

	return &ports.MultiWorktreeResult{
		SessionRoot: sessionRoot,
		Warnings:    warnings,
		Worktrees:   worktrees,
	}, nil
}
