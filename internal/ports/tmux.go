package ports

import "errors"

// Infrastructure sentinels for the multiplexer adapter
var (
	ErrTmuxNotAvailable = errors.New("tmux binary not found in PATH")
	ErrTmuxGaveUp       = errors.New("tmux command failed after retries")
)

// TmuxSessionLifecycle manages named server-side sessions
type TmuxSessionLifecycle interface {
	// Available reports whether the tmux binary can be found at all.
	Available() error
	// EnsureSession creates the session if absent; calling it twice
	// produces one session, not two.
	EnsureSession(name, startDir string) error
	SessionExists(name string) (bool, error)
	KillSession(name string) error
}

// TmuxWindowManager manages windows inside a session
type TmuxWindowManager interface {
	// CreateWindow returns a stable "session:window" target handle.
	CreateWindow(session, window, startDir string) (string, error)
	WindowExists(session, window string) (bool, error)
	KillWindow(session, window string) error
	ListWindows(session string) ([]string, error)
}

// TmuxPaneManager manages panes inside a window
type TmuxPaneManager interface {
	// SplitPane returns the new pane's unique "%id" handle.
	SplitPane(target, startDir string) (string, error)
	PaneExists(paneID string) (bool, error)
	KillPane(paneID string) error
	PanePID(paneID string) (int, error)
}

// TmuxIO injects input into panes and snapshots their contents
type TmuxIO interface {
	SendText(target, text string) error
	Capture(target string, lines int) (string, error)
}

// TmuxNavBindings owns the server-global keybindings that return
// focus to the dashboard window. They are shared mutable state across
// orchestrator processes, so setup and teardown are atomic batches and
// ownership is tracked through a PID lock file.
type TmuxNavBindings interface {
	Apply(session string) error
	Remove(session string) error
	// Verify re-reads live binding values, re-establishing them when
	// lost and reclaiming the lock from a dead owner.
	Verify(session string) error
}

// TmuxClient is the composite interface
type TmuxClient interface {
	TmuxSessionLifecycle
	TmuxWindowManager
	TmuxPaneManager
	TmuxIO
	TmuxNavBindings
}
