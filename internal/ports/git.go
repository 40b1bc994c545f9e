package ports

import (
	"context"

	"kiln/internal/domain"
)

// WorktreeResult describes one provisioned working copy
type WorktreeResult struct {
	RepoName string
	Path     string
	Branch   string
	Attached bool // true when an existing branch was attached instead of created
}

// MultiWorktreeResult is the outcome of a multi-repo provisioning call.
// Worktrees may cover a strict subset of the requested repos; Warnings
// carries one message per repo that failed.
type MultiWorktreeResult struct {
	SessionRoot string
	Worktrees   map[string]string
	Warnings    []string
}

// WorktreeProvisioner creates and removes working copies
type WorktreeProvisioner interface {
	// WorktreePathFor returns a fresh collision-resistant worktree path
	// for the given name.
	WorktreePathFor(name string) string

	// CreateWorktree provisions a working copy for one repository at a
	// collision-resistant generated path.
	CreateWorktree(ctx context.Context, repoRoot, branch, baseRef string) (*WorktreeResult, error)

	// CreateWorktreeAt provisions a working copy at an explicit path.
	CreateWorktreeAt(ctx context.Context, repoRoot, branch, baseRef, path string) (*WorktreeResult, error)

	// CreateMultiRepoWorktrees provisions one working copy per repo
	// concurrently. Zero successes roll back the session root and fail;
	// partial success returns the successful subset with warnings.
	CreateMultiRepoWorktrees(ctx context.Context, repos []domain.RepoInfo, branch, baseRef, sessionRoot string) (*MultiWorktreeResult, error)

	// RemoveWorktree force-removes a working copy. A missing path is
	// not an error.
	RemoveWorktree(ctx context.Context, repoRoot, path string) error

	// DeleteBranch removes a branch, best-effort.
	DeleteBranch(ctx context.Context, repoRoot, branch string) error

	// PruneWorktrees drops stale worktree references.
	PruneWorktrees(ctx context.Context, repoRoot string) error
}

// RepoInspector answers questions about repositories on disk
type RepoInspector interface {
	IsGitRepo(path string) (bool, string)
	DefaultBranch(repoRoot string) string
	RemoteURL(repoRoot string) string
	DiscoverRepos(root string) ([]domain.RepoInfo, error)
	ListOrphanWorktrees(worktreeBase, prefix string, referenced []string) ([]string, error)
}

// BranchNamer derives and validates git branch names
type BranchNamer interface {
	SanitizeBranchName(name string) (string, error)
	ValidateBranchName(name string) error
}

// GitClient is the composite interface
type GitClient interface {
	BranchNamer
	RepoInspector
	WorktreeProvisioner

	// Available reports whether the git binary can be found in PATH.
	Available() error
}
