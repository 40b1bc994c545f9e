package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"kiln/internal/domain"
	"kiln/internal/logging"
	"kiln/internal/ports"
)

// ManagedDirName is the directory kiln owns inside the workspace root
const ManagedDirName = ".kiln"

const stateFileName = "workspace.json"

// Store persists the workspace state document as JSON under the
// managed directory. Saves are atomic: the document is written to a
// temp file in the same directory and renamed over the canonical
// path, so a reader never observes a partial write.
type Store struct {
	root string
	dir  string
}

// Compile-time interface verification
var _ ports.StateStore = (*Store)(nil)

// NewStore creates a store rooted at the given workspace directory
func NewStore(workspaceRoot string) *Store {
	return &Store{
		root: workspaceRoot,
		dir:  filepath.Join(workspaceRoot, ManagedDirName),
	}
}

// Dir returns the managed directory path
func (s *Store) Dir() string {
	return s.dir
}

// StatePath returns the canonical state file path
func (s *Store) StatePath() string {
	return filepath.Join(s.dir, stateFileName)
}

// AgentsDir returns the directory holding per-agent output artifacts
func (s *Store) AgentsDir() string {
	return filepath.Join(s.dir, "agents")
}

// PlansDir returns the directory holding shared plan documents
func (s *Store) PlansDir() string {
	return filepath.Join(s.dir, "plans")
}

// TemplatesDir returns the workspace-local template directory
func (s *Store) TemplatesDir() string {
	return filepath.Join(s.dir, "templates")
}

// AgentOutputPath returns agents/<agent-id>/output.json
func (s *Store) AgentOutputPath(agentID string) string {
	return filepath.Join(s.AgentsDir(), agentID, domain.OutputFileName)
}

// LockPath returns the path for a named lock file inside the managed
// directory
func (s *Store) LockPath(name string) string {
	return filepath.Join(s.dir, name)
}

// IsInitialized reports whether the workspace has a state document
func (s *Store) IsInitialized() bool {
	_, err := os.Stat(s.StatePath())
	return err == nil
}

// Load reads and normalizes the state document.
// A missing file means the workspace was never initialized; an
// unreadable or unparsable file is fatal and never repaired here.
func (s *Store) Load() (*domain.WorkspaceState, error) {
	data, err := os.ReadFile(s.StatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotInitialized
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state domain.WorkspaceState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("state file %s is corrupted: %w", s.StatePath(), err)
	}

	state.Normalize()
	return &state, nil
}

// Save writes the state document atomically. An exclusive flock on a
// sidecar file serializes concurrent writers; the rename provides the
// atomicity guarantee.
func (s *Store) Save(state *domain.WorkspaceState) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	lock, err := os.OpenFile(s.LockPath("state.lock"), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open state lock: %w", err)
	}
	defer lock.Close()

	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire state lock: %w", err)
	}
	defer unix.Flock(int(lock.Fd()), unix.LOCK_UN)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Temp file in the same directory so the rename stays on one
	// filesystem
	tmpPath := fmt.Sprintf("%s.tmp.%d", s.StatePath(), os.Getpid())
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.StatePath()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	logging.Logger.Debug("State saved",
		"path", s.StatePath(),
		"sessions", len(state.Sessions),
		"agents", len(state.Agents))
	return nil
}

// Init creates the on-disk skeleton (agents/, plans/, templates/),
// makes sure the workspace .gitignore lists the managed directory,
// and writes the initial state document. Idempotent: an already
// initialized workspace keeps its existing document.
func (s *Store) Init(state *domain.WorkspaceState) error {
	for _, dir := range []string{s.dir, s.AgentsDir(), s.PlansDir(), s.TemplatesDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if err := s.ensureGitignore(); err != nil {
		// Not fatal: the workspace parent may not even be a repo
		logging.Logger.Warn("Could not update .gitignore", "error", err)
	}

	if s.IsInitialized() {
		logging.Logger.Info("Workspace already initialized", "dir", s.dir)
		return nil
	}

	return s.Save(state)
}

// ensureGitignore appends the managed directory to the workspace
// .gitignore unless the marker line is already present
func (s *Store) ensureGitignore() error {
	marker := ManagedDirName + "/"
	gitignorePath := filepath.Join(s.root, ".gitignore")

	data, err := os.ReadFile(gitignorePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read .gitignore: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == marker {
			return nil
		}
	}

	f, err := os.OpenFile(gitignorePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open .gitignore: %w", err)
	}
	defer f.Close()

	entry := marker + "\n"
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		entry = "\n" + entry
	}
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("failed to append to .gitignore: %w", err)
	}

	logging.Logger.Info("Added managed directory to .gitignore", "path", gitignorePath)
	return nil
}
