package cmd

import (
	"context"
	"fmt"

	"kiln/internal/theme"
)

// DoctorCmd checks the environment and repairs recorded state
type DoctorCmd struct{}

// Run executes the doctor command
func (d *DoctorCmd) Run(cli *CLI) error {
	report, err := cli.Container.Doctor.Run(context.Background())
	if err != nil {
		return err
	}

	fmt.Println(theme.TitleStyle.Render("Environment"))
	for _, check := range report.Checks {
		mark := theme.CheckOKStyle.Render("ok")
		if !check.OK {
			mark = theme.CheckFailStyle.Render("FAIL")
		}
		line := fmt.Sprintf("  %-10s %s", check.Name, mark)
		if check.Detail != "" {
			line += " " + theme.MutedStyle.Render(check.Detail)
		}
		fmt.Println(line)
	}

	if len(report.Corrections) > 0 {
		fmt.Println("\n" + theme.TitleStyle.Render("Repaired"))
		for _, correction := range report.Corrections {
			fmt.Printf("  %s\n", correction)
		}
	}

	if len(report.Orphans) > 0 {
		fmt.Println("\n" + theme.TitleStyle.Render("Orphan worktrees"))
		for _, path := range report.Orphans {
			fmt.Printf("  %s\n", path)
		}
		fmt.Println(theme.MutedStyle.Render("  remove them with: kiln cleanup"))
	}

	if len(report.Recent) > 0 {
		fmt.Println("\n" + theme.TitleStyle.Render("Recent activity"))
		for _, event := range report.Recent {
			line := fmt.Sprintf("  %s %s", relativeTime(event.CreatedAt), event.Kind)
			if event.SessionName != "" {
				line += " " + event.SessionName
			}
			if event.Detail != "" {
				line += theme.MutedStyle.Render(" " + event.Detail)
			}
			fmt.Println(line)
		}
	}

	if !report.Healthy() {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed")
	return nil
}
