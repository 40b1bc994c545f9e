package cmd

import (
	"encoding/json"
	"fmt"

	"kiln/internal/domain"
	"kiln/internal/theme"
)

// StatusCmd shows the workspace, its sessions, and their agents
type StatusCmd struct {
	Format string `help:"Output format: text or json" enum:"text,json" default:"text"`
}

// Run executes the status command
func (s *StatusCmd) Run(cli *CLI) error {
	st, err := cli.Container.State.Load()
	if err != nil {
		return err
	}

	if s.Format == "json" {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal state: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	ws := &st.Workspace
	fmt.Printf("%s %s\n", theme.TitleStyle.Render(ws.Name), theme.MutedStyle.Render("("+string(ws.Kind)+")"))
	fmt.Printf("  root: %s\n", ws.Root)
	if ws.IsMultiRepo() {
		for _, repo := range ws.Repos {
			fmt.Printf("  repo: %s (%s)\n", repo.Name, repo.DefaultBranch)
		}
	}

	active, done := 0, 0
	for i := range st.Sessions {
		if st.Sessions[i].IsActive() {
			active++
		} else {
			done++
		}
	}
	fmt.Printf("  sessions: %d active, %d finished; agents: %d running\n\n",
		active, done, len(st.RunningAgents()))

	for i := range st.Sessions {
		session := &st.Sessions[i]
		glyph := theme.StatusStyle(string(session.Status.Kind)).Render(session.Status.Symbol())
		name := session.Name
		if session.IsMain {
			name += theme.MutedStyle.Render(" (main)")
		}
		fmt.Printf("%s %s  %s  %s\n", glyph, name,
			theme.BranchStyle.Render(session.Branch), relativeTime(session.UpdatedAt))
		if session.Status.Message != "" {
			fmt.Printf("    %s\n", theme.ErrorStyle.Render(session.Status.Message))
		}
		for _, agent := range st.AgentsForSession(session.ID) {
			s.printAgent(agent)
		}
	}
	return nil
}

func (s *StatusCmd) printAgent(agent *domain.Agent) {
	glyph := theme.StatusStyle(string(agent.Status.Kind)).Render("·")
	line := fmt.Sprintf("    %s %s [%s] %s", glyph, agent.Name, agent.Mode, agent.Status.Kind)
	if agent.Status.Message != "" {
		line += ": " + agent.Status.Message
	}
	if agent.Result != nil && agent.Result.DurationMS > 0 {
		line += theme.MutedStyle.Render(" " + formatDurationMS(agent.Result.DurationMS))
	}
	fmt.Println(line)
}
