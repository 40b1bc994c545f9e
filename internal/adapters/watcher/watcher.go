// Package watcher turns filesystem activity under the agents directory
// into typed events. Headless agents signal completion by writing an
// output artifact into their private directory; watching for that file
// is cheaper and more reliable than polling every agent process.
package watcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"kiln/internal/domain"
	"kiln/internal/logging"
	"kiln/internal/ports"
)

// eventBuffer bounds the outgoing channel. When the consumer falls
// behind, events are dropped instead of buffered without limit; the
// reconciliation sweep re-derives anything lost from disk.
const eventBuffer = 64

// Watcher watches <managed>/agents recursively and emits an event per
// written output artifact.
type Watcher struct {
	agentsDir string
	closeOnce sync.Once
	done      chan struct{}
	events    chan ports.OutputEvent
	fsw       *fsnotify.Watcher
}

// Compile-time interface verification
var _ ports.OutputWatcher = (*Watcher)(nil)

// New starts watching agentsDir. Agent subdirectories that already
// exist are picked up immediately; ones created later are added as
// their create events arrive.
func New(agentsDir string) (*Watcher, error) {
	if err := os.MkdirAll(agentsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create agents directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := fsw.Add(agentsDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch agents directory: %w", err)
	}

	w := &Watcher{
		agentsDir: agentsDir,
		done:      make(chan struct{}),
		events:    make(chan ports.OutputEvent, eventBuffer),
		fsw:       fsw,
	}

	entries, err := os.ReadDir(agentsDir)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to read agents directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := fsw.Add(filepath.Join(agentsDir, entry.Name())); err != nil {
			logging.Logger.Warn("Failed to watch agent directory",
				"dir", entry.Name(), "error", err)
		}
	}

	go w.run()

	logging.Logger.Debug("Output watcher started", "agents_dir", agentsDir)
	return w, nil
}

// Events returns the channel the watcher emits on. The channel is
// never closed while the watcher runs; callers multiplex it with their
// own shutdown signal.
func (w *Watcher) Events() <-chan ports.OutputEvent {
	return w.events
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Logger.Warn("Filesystem watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				logging.Logger.Warn("Failed to watch new agent directory",
					"dir", event.Name, "error", err)
			}
			// The artifact may have landed before the watch took
			// effect; check for it directly.
			w.inspect(filepath.Join(event.Name, domain.OutputFileName))
			return
		}
	}

	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}
	if filepath.Base(event.Name) != domain.OutputFileName {
		return
	}
	w.inspect(event.Name)
}

// inspect parses the artifact at path and emits the matching event.
// The parent directory names the agent; anything that is not an agent
// id still produces a generic notification so callers can log it.
func (w *Watcher) inspect(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}

	agentID := filepath.Base(filepath.Dir(path))
	if uuid.Validate(agentID) != nil {
		logging.Logger.Debug("Output artifact outside an agent directory", "path", path)
		w.emit(ports.OutputEvent{Kind: ports.OutputWritten, Path: path})
		return
	}

	output, err := parseOutputFile(path)
	if err != nil {
		// Likely a partial write; the next write event or the sweep
		// will pick the artifact up once it is complete.
		logging.Logger.Warn("Dropping unparseable agent output", "path", path, "error", err)
		return
	}

	logging.Logger.Info("Agent output artifact detected",
		"agent_id", agentID, "is_error", output.IsError, "duration_ms", output.DurationMS)
	w.emit(ports.OutputEvent{
		AgentID: agentID,
		Kind:    ports.AgentCompleted,
		Output:  output,
		Path:    path,
	})
}

// emit never blocks. A full channel drops the event.
func (w *Watcher) emit(event ports.OutputEvent) {
	select {
	case w.events <- event:
	default:
		logging.Logger.Debug("Event channel full, dropping event",
			"kind", event.Kind, "path", event.Path)
	}
}

func parseOutputFile(path string) (*domain.AgentOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read output file: %w", err)
	}

	var output domain.AgentOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("output file is not valid JSON: %w", err)
	}
	return &output, nil
}
