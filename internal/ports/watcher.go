package ports

import "kiln/internal/domain"

// OutputEventKind tags the two watcher notifications
type OutputEventKind string

const (
	// AgentCompleted carries a parsed output artifact for a known agent
	AgentCompleted OutputEventKind = "agent_completed"
	// OutputWritten is a generic notification for writes that could not
	// be mapped to an agent
	OutputWritten OutputEventKind = "output_written"
)

// OutputEvent is pushed by the watcher when an agent output artifact
// appears or changes
type OutputEvent struct {
	Kind    OutputEventKind
	AgentID string
	Output  *domain.AgentOutput
	Path    string
}

// OutputWatcher observes the agents directory for completed output
// artifacts. Its channel is bounded: under event storms, events are
// dropped rather than buffered without bound, and the reconciliation
// sweep re-derives anything lost.
type OutputWatcher interface {
	Events() <-chan OutputEvent
	Close() error
}
