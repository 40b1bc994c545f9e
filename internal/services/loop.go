package services

import (
	"context"
	"fmt"
	"time"

	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/ports"
)

// Loop is the long-running mode behind `kiln run`: it owns the nav
// keybindings, folds watcher events into state as they arrive, and
// ticks the reconciler so state converges even when events are lost.
type Loop struct {
	orchestrator *Orchestrator
	reconciler   *Reconciler
	settings     *config.Settings
	state        ports.StateStore
	tmux         ports.TmuxClient
	watcher      ports.OutputWatcher
}

// NewLoop wires the run loop.
func NewLoop(
	orchestrator *Orchestrator,
	reconciler *Reconciler,
	state ports.StateStore,
	tmux ports.TmuxClient,
	watcher ports.OutputWatcher,
	settings *config.Settings,
) *Loop {
	return &Loop{
		orchestrator: orchestrator,
		reconciler:   reconciler,
		settings:     settings,
		state:        state,
		tmux:         tmux,
		watcher:      watcher,
	}
}

// Run blocks until ctx is cancelled or the watcher dies. Startup does
// a full reconciliation sweep; after that each poll tick reloads state
// and checks a single agent, so one run loop and any number of
// concurrent one-shot CLI calls stay out of each other's way.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.tmux.Available(); err != nil {
		return err
	}

	if _, err := l.orchestrator.EnsureMainSession(ctx); err != nil {
		return fmt.Errorf("failed to ensure main session: %w", err)
	}

	st, err := l.state.Load()
	if err != nil {
		return err
	}
	sessionName := st.TmuxSessionName

	if corrections := l.reconciler.FullSweep(ctx, st); len(corrections) > 0 {
		if err := l.state.Save(st); err != nil {
			return fmt.Errorf("failed to persist startup sweep: %w", err)
		}
	}

	if err := l.tmux.Apply(sessionName); err != nil {
		logging.Logger.Warn("Could not apply nav keybindings", "error", err)
	}
	defer func() {
		if err := l.tmux.Remove(sessionName); err != nil {
			logging.Logger.Warn("Could not remove nav keybindings", "error", err)
		}
	}()

	poll := time.NewTicker(l.settings.PollInterval())
	defer poll.Stop()
	refresh := time.NewTicker(l.settings.RefreshInterval())
	defer refresh.Stop()

	logging.Logger.Info("Run loop started",
		"session", sessionName, "poll", l.settings.PollInterval(), "refresh", l.settings.RefreshInterval())

	for {
		select {
		case <-ctx.Done():
			logging.Logger.Info("Run loop stopping")
			return nil

		case ev, ok := <-l.watcher.Events():
			if !ok {
				return fmt.Errorf("output watcher closed")
			}
			l.orchestrator.HandleOutputEvent(ctx, ev)

		case <-poll.C:
			l.tick(ctx)

		case <-refresh.C:
			if err := l.tmux.Verify(sessionName); err != nil {
				logging.Logger.Warn("Could not verify nav keybindings", "error", err)
			}
		}
	}
}

// tick advances the reconciler by one agent. State is reloaded fresh
// every tick: the file lock serializes writers but does not merge
// them, so holding state across ticks would clobber whatever one-shot
// CLI calls wrote in between.
func (l *Loop) tick(ctx context.Context) {
	st, err := l.state.Load()
	if err != nil {
		logging.Logger.Warn("Tick could not load state", "error", err)
		return
	}
	if !l.reconciler.TickOne(ctx, st) {
		return
	}
	if err := l.state.Save(st); err != nil {
		logging.Logger.Warn("Tick could not persist correction", "error", err)
	}
}
