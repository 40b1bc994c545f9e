// Package git provisions and inspects working copies by shelling out to
// the git CLI. It never links against libgit2; every operation is an
// `exec.Command("git", ...)` run in the right directory.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"kiln/internal/logging"
	"kiln/internal/ports"
)

// Client runs git commands to provision and tear down worktrees. All
// generated paths land under worktreeBase and embed suffix so they can
// be recognized later by the orphan scan.
type Client struct {
	suffix       string
	worktreeBase string
}

// Compile-time check that Client implements the full git port.
var _ ports.GitClient = (*Client)(nil)

// NewClient creates a git client that places generated worktrees under
// worktreeBase, naming them <name><suffix><8 hex chars>.
func NewClient(worktreeBase, suffix string) *Client {
	return &Client{
		suffix:       suffix,
		worktreeBase: worktreeBase,
	}
}

// Available reports whether the git binary can be found in PATH.
func (c *Client) Available() error {
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("git not found in PATH: %w", err)
	}
	return nil
}

// WorktreePathFor returns a fresh worktree path for name. The random
// tail makes repeated sessions on the same name collision-free.
func (c *Client) WorktreePathFor(name string) string {
	return filepath.Join(c.worktreeBase, name+c.suffix+shortID())
}

// shortID returns the first 8 hex characters of a random UUID.
func shortID() string {
	return uuid.New().String()[:8]
}

// CreateWorktree provisions a working copy for repoRoot at a generated
// path. The branch is created from baseRef when it does not exist yet;
// an existing branch is attached instead.
func (c *Client) CreateWorktree(ctx context.Context, repoRoot, branch, baseRef string) (*ports.WorktreeResult, error) {
	path := c.WorktreePathFor(filepath.Base(repoRoot))
	return c.CreateWorktreeAt(ctx, repoRoot, branch, baseRef, path)
}

// CreateWorktreeAt provisions a working copy at an explicit path.
func (c *Client) CreateWorktreeAt(ctx context.Context, repoRoot, branch, baseRef, path string) (*ports.WorktreeResult, error) {
	logging.Logger.Info("Creating worktree",
		"repo_root", repoRoot, "branch", branch, "base_ref", baseRef, "path", path)

	if err := ValidateBranchName(branch); err != nil {
		logging.Logger.Error("Invalid branch name", "branch", branch, "error", err)
		return nil, fmt.Errorf("invalid branch name: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logging.Logger.Error("Failed to create worktree base directory", "error", err, "path", filepath.Dir(path))
		return nil, fmt.Errorf("failed to create worktree base directory: %w", err)
	}

	// Fetch so the base ref reflects the remote. Failure is tolerated,
	// the user might be offline.
	fetchCmd := exec.CommandContext(ctx, "git", "fetch", "origin")
	fetchCmd.Dir = repoRoot
	if output, err := fetchCmd.CombinedOutput(); err != nil {
		logging.Logger.Warn("Git fetch origin failed (continuing anyway)", "error", err, "output", string(output))
	} else {
		logging.Logger.Debug("Git fetch origin succeeded")
	}

	base := baseRef
	if base == "" {
		base = c.resolveBaseRef(repoRoot)
	}
	logging.Logger.Debug("Resolved worktree base ref", "base", base)

	// Try to create the branch first. When the branch already exists
	// (picked up again after a crash, or pre-created by the user) fall
	// back to attaching the worktree to it.
	addCmd := exec.CommandContext(ctx, "git", "worktree", "add", "-b", branch, path, base)
	addCmd.Dir = repoRoot
	output, err := addCmd.CombinedOutput()
	if err == nil {
		logging.Logger.Info("Git worktree created", "path", path, "branch", branch)
		return &ports.WorktreeResult{
			Branch:   branch,
			Path:     path,
			RepoName: filepath.Base(repoRoot),
		}, nil
	}

	if !branchExists(repoRoot, branch) {
		logging.Logger.Error("Git worktree add failed", "error", err, "output", string(output))
		return nil, fmt.Errorf("failed to create worktree: %w\nOutput: %s", err, string(output))
	}

	logging.Logger.Info("Branch already exists, attaching worktree", "branch", branch, "path", path)
	attachCmd := exec.CommandContext(ctx, "git", "worktree", "add", path, branch)
	attachCmd.Dir = repoRoot
	if output, err := attachCmd.CombinedOutput(); err != nil {
		logging.Logger.Error("Git worktree attach failed", "error", err, "output", string(output))
		return nil, fmt.Errorf("failed to attach worktree to branch %s: %w\nOutput: %s", branch, err, string(output))
	}

	logging.Logger.Info("Git worktree attached to existing branch", "path", path, "branch", branch)
	return &ports.WorktreeResult{
		Attached: true,
		Branch:   branch,
		Path:     path,
		RepoName: filepath.Base(repoRoot),
	}, nil
}

// resolveBaseRef picks the ref new branches start from: the remote
// tracking ref of the default branch when it exists, the local default
// branch otherwise.
func (c *Client) resolveBaseRef(repoRoot string) string {
	def := c.DefaultBranch(repoRoot)
	remote := "origin/" + def
	if refExists(repoRoot, "refs/remotes/"+remote) {
		return remote
	}
	return def
}

// branchExists checks if a branch exists locally or remotely
func branchExists(repoRoot, branch string) bool {
	logging.Logger.Debug("Checking if branch exists", "repo_root", repoRoot, "branch", branch)

	if refExists(repoRoot, "refs/heads/"+branch) {
		logging.Logger.Debug("Branch exists locally", "branch", branch)
		return true
	}

	cmd := exec.Command("git", "ls-remote", "--heads", "origin", branch)
	cmd.Dir = repoRoot
	output, err := cmd.Output()
	if err == nil && len(strings.TrimSpace(string(output))) > 0 {
		logging.Logger.Debug("Branch exists remotely", "branch", branch)
		return true
	}

	logging.Logger.Debug("Branch does not exist", "branch", branch)
	return false
}

// refExists reports whether the fully qualified ref resolves.
func refExists(repoRoot, ref string) bool {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", ref)
	cmd.Dir = repoRoot
	return cmd.Run() == nil
}

// RemoveWorktree force-removes the worktree at path. A path that is
// already gone is not an error; kill and cleanup both converge on the
// same end state.
func (c *Client) RemoveWorktree(ctx context.Context, repoRoot, path string) error {
	logging.Logger.Info("Removing worktree", "repo_root", repoRoot, "path", path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logging.Logger.Warn("Worktree path does not exist", "path", path)
		return nil
	}

	// --force allows removal with uncommitted changes, which is the
	// normal case for throwaway session worktrees.
	cmd := exec.CommandContext(ctx, "git", "worktree", "remove", "--force", path)
	cmd.Dir = repoRoot

	if output, err := cmd.CombinedOutput(); err != nil {
		logging.Logger.Error("Git worktree remove failed", "error", err, "output", string(output))
		return fmt.Errorf("failed to remove worktree: %w\nOutput: %s", err, string(output))
	}

	logging.Logger.Info("Git worktree removed", "path", path)
	return nil
}

// DeleteBranch deletes a local branch. Callers treat failure as
// advisory since the branch may hold unmerged or already-pushed work.
func (c *Client) DeleteBranch(ctx context.Context, repoRoot, branch string) error {
	logging.Logger.Info("Deleting branch", "repo_root", repoRoot, "branch", branch)

	cmd := exec.CommandContext(ctx, "git", "branch", "-D", branch)
	cmd.Dir = repoRoot

	if output, err := cmd.CombinedOutput(); err != nil {
		logging.Logger.Warn("Git branch delete failed", "branch", branch, "error", err, "output", string(output))
		return fmt.Errorf("failed to delete branch %s: %w", branch, err)
	}

	logging.Logger.Debug("Branch deleted", "branch", branch)
	return nil
}

// PruneWorktrees drops worktree registrations whose directories are
// gone, so a repository does not accumulate stale entries after
// cleanup removed the directories directly.
func (c *Client) PruneWorktrees(ctx context.Context, repoRoot string) error {
	logging.Logger.Debug("Pruning worktrees", "repo_root", repoRoot)

	cmd := exec.CommandContext(ctx, "git", "worktree", "prune")
	cmd.Dir = repoRoot

	if output, err := cmd.CombinedOutput(); err != nil {
		logging.Logger.Error("Git worktree prune failed", "error", err, "output", string(output))
		return fmt.Errorf("failed to prune worktrees: %w\nOutput: %s", err, string(output))
	}

	return nil
}
