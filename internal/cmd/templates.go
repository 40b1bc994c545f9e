package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
)

// TemplatesCmd lists the agent templates visible to this workspace
type TemplatesCmd struct{}

// Run executes the templates command
func (t *TemplatesCmd) Run(cli *CLI) error {
	templates, err := cli.Container.Templates.List()
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODE\tDESCRIPTION")
	for i := range templates {
		tmpl := &templates[i]
		fmt.Fprintf(w, "%s\t%s\t%s\n", tmpl.Name, tmpl.Mode, tmpl.Description)
	}
	w.Flush()
	return nil
}
