package cmd

import (
	"context"
	"fmt"

	"kiln/internal/domain"
	"kiln/internal/services"
)

// SpawnCmd spawns an agent into an existing session. The default is a
// headless agent; --interactive attaches it to a pane instead, and
// --shell opens a plain shell window with no agent at all.
type SpawnCmd struct {
	Interactive  bool   `help:"Run attached to a new pane in the session window" short:"i"`
	Name         string `help:"Agent name (default: template name or a numbered fallback)"`
	Prompt       string `arg:"" optional:"" help:"Prompt for the agent"`
	Session      string `help:"Target session (default: most recently created active session)" short:"s"`
	Shell        bool   `help:"Open a plain shell window instead of an agent"`
	SystemPrompt string `help:"Extra system prompt for the agent"`
	Template     string `help:"Agent template" short:"t"`
	Wait         bool   `help:"Block until a headless agent finishes and print its result" short:"w"`
}

// Run executes the spawn command
func (s *SpawnCmd) Run(cli *CLI) error {
	agent, done, err := cli.Container.Orchestrator.SpawnAgent(context.Background(), services.SpawnAgentOptions{
		Interactive:  s.Interactive,
		Name:         s.Name,
		Prompt:       s.Prompt,
		Session:      s.Session,
		Shell:        s.Shell,
		SystemPrompt: s.SystemPrompt,
		Template:     s.Template,
	})
	if err != nil {
		return fmt.Errorf("failed to spawn agent: %w", err)
	}

	fmt.Printf("Agent '%s' spawned (%s)\n", agent.Name, agent.Mode)
	if agent.Mode != domain.ModeHeadless {
		return nil
	}

	fmt.Printf("Agent id: %s\n", agent.ID)
	if !s.Wait {
		fmt.Println("Check progress with 'kiln status'; collect the result with 'kiln ingest'")
		return nil
	}

	// Wait holds this process open so the exit handler can fold the
	// result in directly. Without it the artifact still lands on disk
	// and the run loop or the next sweep picks it up.
	output := <-done
	if output == nil {
		return fmt.Errorf("agent %s produced no output", agent.ID)
	}
	if output.Result != "" {
		fmt.Println(output.Result)
	}
	if output.IsError {
		return fmt.Errorf("agent '%s' failed", agent.Name)
	}
	fmt.Printf("Agent '%s' completed in %s\n", agent.Name, formatDurationMS(output.DurationMS))
	return nil
}
