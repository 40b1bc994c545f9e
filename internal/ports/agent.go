package ports

import (
	"context"

	"kiln/internal/domain"
)

// HeadlessHandle identifies a started headless agent process
type HeadlessHandle struct {
	PID int
}

// AgentRunner starts agent CLI processes and builds the command lines
// injected into panes. The template carries the launch flags (tool
// lists, permission mode); it is resolved by the caller at spawn time.
type AgentRunner interface {
	// StartHeadless launches the agent detached. The runner writes the
	// structured output artifact to agent.OutputFile when the process
	// finishes, then invokes onExit from its goroutine. Only the
	// artifact and the onExit callback escape the task.
	StartHeadless(ctx context.Context, agent domain.Agent, tmpl domain.AgentTemplate, onExit func(output *domain.AgentOutput, runErr error)) (*HeadlessHandle, error)

	// InteractiveCommand renders the shell command line that starts the
	// agent attached to a pane.
	InteractiveCommand(agent domain.Agent, tmpl domain.AgentTemplate) string

	// Available reports whether the agent CLI can be found in PATH.
	Available() error
}
