package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"kiln/internal/domain"
	"kiln/internal/theme"
)

// PlanCmd groups the plan document subcommands
type PlanCmd struct {
	New  PlanNewCmd  `cmd:"" help:"Create a draft plan document"`
	List PlanListCmd `cmd:"" help:"List plan documents"`
	View PlanViewCmd `cmd:"" help:"Print a plan document"`
	Set  PlanSetCmd  `cmd:"" help:"Change a plan's status"`
}

// PlanNewCmd creates a draft plan
type PlanNewCmd struct {
	Session string `help:"Session the plan belongs to" short:"s"`
	Title   string `arg:"" help:"Plan title"`
}

// Run executes the plan new command
func (p *PlanNewCmd) Run(cli *CLI) error {
	plan, err := cli.Container.Plans.Create(p.Title, p.Session)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	fmt.Printf("Plan '%s' created: %s\n", plan.Title, plan.FilePath)
	return nil
}

// PlanListCmd lists plan documents
type PlanListCmd struct{}

// Run executes the plan list command
func (p *PlanListCmd) Run(cli *CLI) error {
	plans, err := cli.Container.Plans.List()
	if err != nil {
		return fmt.Errorf("failed to list plans: %w", err)
	}
	if len(plans) == 0 {
		fmt.Println("No plans yet (create one with `kiln plan new`)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, " \tTITLE\tSESSION\tSTATUS\tUPDATED")
	for i := range plans {
		plan := &plans[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			theme.StatusStyle(string(plan.Status)).Render(plan.Status.Symbol()),
			plan.Title,
			plan.Session,
			plan.Status,
			relativeTime(plan.UpdatedAt))
	}
	w.Flush()
	return nil
}

// PlanSetCmd moves a plan through its lifecycle
type PlanSetCmd struct {
	Query  string `arg:"" help:"Plan id prefix or title substring"`
	Status string `arg:"" help:"New status" enum:"draft,active,completed,superseded"`
}

// Run executes the plan set command
func (p *PlanSetCmd) Run(cli *CLI) error {
	plan, err := cli.Container.Plans.Find(p.Query)
	if err != nil {
		return err
	}
	plan.Status = domain.PlanStatus(p.Status)
	if err := cli.Container.Plans.Save(plan); err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	fmt.Printf("Plan '%s' is now %s\n", plan.Title, plan.Status)
	return nil
}

// PlanViewCmd prints one plan document
type PlanViewCmd struct {
	Query string `arg:"" help:"Plan id prefix or title substring"`
}

// Run executes the plan view command
func (p *PlanViewCmd) Run(cli *CLI) error {
	plan, err := cli.Container.Plans.Find(p.Query)
	if err != nil {
		return err
	}
	content, err := cli.Container.Plans.Content(plan)
	if err != nil {
		return fmt.Errorf("failed to read plan: %w", err)
	}
	fmt.Print(content)
	return nil
}
