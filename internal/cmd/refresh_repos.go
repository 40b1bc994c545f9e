package cmd

import (
	"context"
	"fmt"
)

// RefreshReposCmd re-scans a multi-repo workspace for repositories
// that appeared or disappeared since init
type RefreshReposCmd struct{}

// Run executes the refresh-repos command
func (r *RefreshReposCmd) Run(cli *CLI) error {
	added, removed, err := cli.Container.Orchestrator.RefreshRepos(context.Background())
	if err != nil {
		return err
	}

	if len(added) == 0 && len(removed) == 0 {
		fmt.Println("Repository list unchanged")
		return nil
	}
	for _, name := range added {
		fmt.Printf("Added repo %s\n", name)
	}
	for _, name := range removed {
		fmt.Printf("Removed repo %s\n", name)
	}
	return nil
}
