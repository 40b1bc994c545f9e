package git

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"kiln/internal/domain"
	"kiln/internal/logging"
)

// IsGitRepo checks if the given path is within a git repository.
// Returns true and the repository root path if it is, false and an
// empty string otherwise. For worktrees this returns the worktree
// path, not the main repository path.
func (c *Client) IsGitRepo(path string) (bool, string) {
	logging.Logger.Debug("Checking if directory is git repo", "path", path)

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = path

	output, err := cmd.Output()
	if err != nil {
		logging.Logger.Debug("Not a git repository", "path", path)
		return false, ""
	}

	repoRoot := strings.TrimSpace(string(output))
	logging.Logger.Debug("Found git repository", "repo_root", repoRoot)
	return true, repoRoot
}

// DefaultBranch returns the branch name the repository considers its
// default. It prefers the remote HEAD, falls back to a local main or
// master branch, and settles on "main" when nothing resolves.
func (c *Client) DefaultBranch(repoRoot string) string {
	cmd := exec.Command("git", "symbolic-ref", "refs/remotes/origin/HEAD")
	cmd.Dir = repoRoot
	if output, err := cmd.Output(); err == nil {
		ref := strings.TrimSpace(string(output))
		if branch := strings.TrimPrefix(ref, "refs/remotes/origin/"); branch != ref && branch != "" {
			logging.Logger.Debug("Default branch from origin HEAD", "branch", branch)
			return branch
		}
	}

	for _, branch := range []string{"main", "master"} {
		if refExists(repoRoot, "refs/heads/"+branch) {
			logging.Logger.Debug("Default branch from local ref", "branch", branch)
			return branch
		}
	}

	logging.Logger.Debug("Default branch not resolvable, assuming main", "repo_root", repoRoot)
	return "main"
}

// RemoteURL returns the origin remote URL, or an empty string when the
// repository has no origin remote.
func (c *Client) RemoteURL(repoRoot string) string {
	cmd := exec.Command("git", "remote", "get-url", "origin")
	cmd.Dir = repoRoot

	output, err := cmd.Output()
	if err != nil {
		logging.Logger.Debug("Failed to get remote URL", "repo_root", repoRoot, "error", err)
		return ""
	}

	return strings.TrimSpace(string(output))
}

// DiscoverRepos finds git repositories among the immediate
// subdirectories of root, in directory order. Used for multi-repo
// workspaces where root is the umbrella directory.
func (c *Client) DiscoverRepos(root string) ([]domain.RepoInfo, error) {
	logging.Logger.Debug("Discovering repositories", "root", root)

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace root: %w", err)
	}

	var repos []domain.RepoInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		repoRoot := filepath.Join(root, entry.Name())
		// .git may be a directory or, for worktrees and submodules, a
		// file. Stat covers both.
		if _, err := os.Stat(filepath.Join(repoRoot, ".git")); err != nil {
			continue
		}
		repos = append(repos, domain.RepoInfo{
			DefaultBranch: c.DefaultBranch(repoRoot),
			Name:          entry.Name(),
			RemoteURL:     c.RemoteURL(repoRoot),
			Root:          repoRoot,
		})
	}

	logging.Logger.Info("Discovered repositories", "root", root, "count", len(repos))
	return repos, nil
}

// ListOrphanWorktrees returns directories under worktreeBase that carry
// the managed suffix but are not referenced by any known session. These
// are leftovers from crashes or manual state edits.
func (c *Client) ListOrphanWorktrees(worktreeBase, suffix string, referenced []string) ([]string, error) {
	logging.Logger.Debug("Scanning for orphan worktrees", "base", worktreeBase, "suffix", suffix)

	entries, err := os.ReadDir(worktreeBase)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read worktree base: %w", err)
	}

	known := make(map[string]struct{}, len(referenced))
	for _, path := range referenced {
		known[filepath.Clean(path)] = struct{}{}
	}

	var orphans []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.Contains(entry.Name(), suffix) {
			continue
		}
		path := filepath.Join(worktreeBase, entry.Name())
		if _, ok := known[filepath.Clean(path)]; ok {
			continue
		}
		logging.Logger.Debug("Found orphan worktree", "path", path)
		orphans = append(orphans, path)
	}

	return orphans, nil
}
