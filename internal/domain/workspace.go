package domain

import "path/filepath"

// WorkspaceKind distinguishes single-repository workspaces from
// multi-repository parents whose immediate subdirectories are repos
type WorkspaceKind string

const (
	SingleRepo WorkspaceKind = "single_repo"
	MultiRepo  WorkspaceKind = "multi_repo"
)

// RepoInfo describes one repository inside a multi-repo workspace
type RepoInfo struct {
	Root          string `json:"root"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
	RemoteURL     string `json:"remote_url,omitempty"`
}

// Workspace is the root directory the orchestrator manages.
// For SingleRepo this is the git repo root; for MultiRepo it is the
// parent directory containing multiple repos.
type Workspace struct {
	Root            string        `json:"root"`
	Name            string        `json:"name"`
	DefaultBranch   string        `json:"default_branch"`
	RemoteURL       string        `json:"remote_url,omitempty"`
	WorktreePrefix  string        `json:"worktree_prefix,omitempty"`
	WorktreeBaseDir string        `json:"worktree_base_dir"`
	Kind            WorkspaceKind `json:"kind,omitempty"`
	Repos           []RepoInfo    `json:"repos,omitempty"`
}

// IsMultiRepo reports whether this workspace tracks multiple repositories
func (w *Workspace) IsMultiRepo() bool {
	return w.Kind == MultiRepo
}

// Normalize applies defaults for documents written before kind/repos
// existed: missing kind becomes SingleRepo unless repos are present
func (w *Workspace) Normalize() {
	if w.Kind == "" {
		if len(w.Repos) > 0 {
			w.Kind = MultiRepo
		} else {
			w.Kind = SingleRepo
		}
	}
	if w.WorktreePrefix == "" {
		w.WorktreePrefix = "-kiln-"
	}
	if w.WorktreeBaseDir == "" {
		// Worktrees live next to the workspace root, not inside it
		w.WorktreeBaseDir = filepath.Dir(w.Root)
	}
}

// RepoByName returns the repo with the given name, or nil
func (w *Workspace) RepoByName(name string) *RepoInfo {
	for i := range w.Repos {
		if w.Repos[i].Name == name {
			return &w.Repos[i]
		}
	}
	return nil
}
