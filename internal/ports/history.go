package ports

import (
	"context"
	"time"
)

// Event kinds recorded in the history log
const (
	EventSessionCreated   = "session_created"
	EventSessionKilled    = "session_killed"
	EventSessionArchived  = "session_archived"
	EventAgentSpawned     = "agent_spawned"
	EventAgentCompleted   = "agent_completed"
	EventAgentFailed      = "agent_failed"
	EventAgentIngested    = "agent_ingested"
	EventReconcileFix     = "reconcile_fix"
	EventCleanupPerformed = "cleanup_performed"
)

// Event is one append-only audit row
type Event struct {
	Kind        string
	SessionName string
	AgentID     string
	Detail      string
	CreatedAt   time.Time
}

// EventRecorder appends lifecycle events to the history log. Recording
// is best-effort everywhere: a failed write is logged, never surfaced.
type EventRecorder interface {
	Record(ctx context.Context, event Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
	Close() error
}
