package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"kiln/internal/domain"
	"kiln/internal/theme"
)

// ListCmd lists sessions
type ListCmd struct {
	All    bool   `help:"Include archived sessions" short:"a"`
	Format string `help:"Output format: table or json" enum:"table,json" default:"table"`
}

// Run executes the list command
func (l *ListCmd) Run(cli *CLI) error {
	st, err := cli.Container.State.Load()
	if err != nil {
		return err
	}

	var sessions []domain.Session
	for i := range st.Sessions {
		if !l.All && st.Sessions[i].Status.Is(domain.SessionArchived) {
			continue
		}
		sessions = append(sessions, st.Sessions[i])
	}

	if l.Format == "json" {
		data, err := json.MarshalIndent(sessions, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal sessions: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, " \tNAME\tBRANCH\tSTATUS\tAGENTS\tUPDATED")
	for i := range sessions {
		session := &sessions[i]
		name := session.Name
		if session.IsMain {
			name += " (main)"
		}
		status := string(session.Status.Kind)
		if session.Status.Message != "" {
			status += ": " + session.Status.Message
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			theme.StatusStyle(string(session.Status.Kind)).Render(session.Status.Symbol()),
			name,
			session.Branch,
			status,
			len(session.AgentIDs),
			relativeTime(session.UpdatedAt))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d sessions\n", len(sessions))
	return nil
}
