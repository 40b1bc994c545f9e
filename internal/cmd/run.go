package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kiln/internal/adapters/watcher"
	"kiln/internal/services"
)

// RunCmd runs the reconciliation loop in the foreground until
// interrupted: it watches agent output, ticks the reconciler, and
// keeps the nav keybindings alive
type RunCmd struct{}

// Run executes the run command
func (r *RunCmd) Run(cli *CLI) error {
	store := cli.Container.State
	if !store.IsInitialized() {
		return fmt.Errorf("workspace not initialized (run `kiln init`)")
	}

	w, err := watcher.New(store.AgentsDir())
	if err != nil {
		return fmt.Errorf("failed to start output watcher: %w", err)
	}
	defer w.Close()

	loop := services.NewLoop(
		cli.Container.Orchestrator,
		cli.Container.Reconciler,
		store,
		cli.Container.Tmux,
		w,
		cli.settings,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Run loop started; press Ctrl-C to stop")
	return loop.Run(ctx)
}
