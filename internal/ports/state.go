package ports

import "kiln/internal/domain"

// StateReader loads the persisted workspace state
type StateReader interface {
	// Load reads and normalizes the state document. Returns
	// domain.ErrNotInitialized when the workspace has never been
	// initialized; any parse failure is fatal and never retried.
	Load() (*domain.WorkspaceState, error)
	IsInitialized() bool
}

// StateWriter persists the workspace state
type StateWriter interface {
	// Save writes the document atomically: a reader never observes a
	// partially written file.
	Save(state *domain.WorkspaceState) error
}

// StateInitializer creates the on-disk skeleton for a workspace
type StateInitializer interface {
	Init(state *domain.WorkspaceState) error
}

// StatePaths exposes the managed directory layout
type StatePaths interface {
	Dir() string
	AgentsDir() string
	PlansDir() string
	TemplatesDir() string
	AgentOutputPath(agentID string) string
	LockPath(name string) string
}

// StateStore is the composite interface owning all persisted truth
type StateStore interface {
	StateReader
	StateWriter
	StateInitializer
	StatePaths
}
