// Package tmux drives the tmux server through its CLI. Sessions get
// one window per kiln session and one pane per agent; handles returned
// to callers are "session:window" targets and "%id" pane ids.
package tmux

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"kiln/internal/logging"
	"kiln/internal/ports"
)

const (
	maxAttempts    = 3
	initialBackoff = 50 * time.Millisecond
)

// runnerFunc executes one tmux invocation and returns its combined
// output. Tests swap it out to script the server.
type runnerFunc func(args ...string) (string, error)

// Options configures the navigation bindings and where their ownership
// lock lives. Each action can carry several keys; every one of them is
// bound.
type Options struct {
	DashboardKeys []string
	EscapeTimeMS  int
	LockPath      string
	OverviewKeys  []string
}

// Client is the tmux-backed implementation of the multiplexer port.
type Client struct {
	opts  Options
	procs ports.ProcessInspector
	run   runnerFunc
}

// Compile-time interface verification
var _ ports.TmuxClient = (*Client)(nil)

// NewClient creates a tmux client. The process inspector is used to
// decide whether the recorded owner of the nav binding lock is alive.
func NewClient(opts Options, procs ports.ProcessInspector) *Client {
	return &Client{
		opts:  opts,
		procs: procs,
		run:   runTmux,
	}
}

// runTmux executes tmux with the given arguments. The combined output
// is folded into the error so callers can classify failures by text.
func runTmux(args ...string) (string, error) {
	cmd := exec.Command("tmux", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("tmux %s: %w: %s", args[0], err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// Available reports whether tmux can be found in PATH at all.
func (c *Client) Available() error {
	if _, err := exec.LookPath("tmux"); err != nil {
		return ports.ErrTmuxNotAvailable
	}
	return nil
}

// isMissingTarget reports whether err is tmux saying the probed
// session, window, or pane does not exist, as opposed to tmux being
// unreachable or misused. Probes treat these as a definitive "no".
func isMissingTarget(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"no server running",
		"server not found",
		"session not found",
		"can't find session",
		"can't find window",
		"can't find pane",
		"no such session",
		"no such window",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isTransient reports whether err looks like a momentary server
// connection failure worth retrying.
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"server exited",
		"lost server",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// withRetry runs fn up to maxAttempts times with exponential backoff,
// retrying only transient failures. Used for mutations; probes handle
// their errors directly.
func (c *Client) withRetry(op string, fn func() (string, error)) (string, error) {
	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, err := fn()
		if err == nil {
			return output, nil
		}
		if !isTransient(err) {
			return output, err
		}
		lastErr = err
		if attempt < maxAttempts {
			logging.Logger.Warn("Transient tmux failure, retrying",
				"op", op, "attempt", attempt, "backoff", backoff, "error", err)
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	return "", fmt.Errorf("%w: %s: %v", ports.ErrTmuxGaveUp, op, lastErr)
}

// SessionExists probes for a session. Missing server and missing
// session both mean "no"; anything else is a real error.
func (c *Client) SessionExists(name string) (bool, error) {
	// "=" pins exact matching, otherwise tmux matches name prefixes
	// and kiln-api would shadow kiln-api2.
	_, err := c.run("has-session", "-t", "="+name)
	if err == nil {
		return true, nil
	}
	if isMissingTarget(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to probe session %s: %w", name, err)
}

// EnsureSession creates the named session when it does not exist yet.
// Losing the creation race to another process counts as success.
func (c *Client) EnsureSession(name, startDir string) error {
	exists, err := c.SessionExists(name)
	if err != nil {
		return err
	}
	if exists {
		logging.Logger.Debug("Tmux session already exists", "name", name)
		return nil
	}

	logging.Logger.Info("Creating tmux session", "name", name, "start_dir", startDir)
	args := []string{"new-session", "-d", "-s", name}
	if startDir != "" {
		args = append(args, "-c", startDir)
	}
	if _, err := c.withRetry("new-session", func() (string, error) {
		return c.run(args...)
	}); err != nil {
		if !strings.Contains(err.Error(), "duplicate session") {
			return fmt.Errorf("failed to create tmux session: %w", err)
		}
		logging.Logger.Debug("Session created concurrently elsewhere", "name", name)
	}

	// Wait for the server to report the session before callers start
	// creating windows in it.
	timeout := time.After(2 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return fmt.Errorf("timeout waiting for session %s to be created", name)
		case <-ticker.C:
			if ok, err := c.SessionExists(name); err == nil && ok {
				return nil
			}
		}
	}
}

// KillSession terminates a session. A session that is already gone is
// not an error.
func (c *Client) KillSession(name string) error {
	logging.Logger.Info("Killing tmux session", "name", name)

	_, err := c.run("kill-session", "-t", "="+name)
	if err != nil && !isMissingTarget(err) {
		return fmt.Errorf("failed to kill session %s: %w", name, err)
	}
	return nil
}

// CreateWindow creates a detached window in session and returns its
// "session:window" handle as printed by the server.
func (c *Client) CreateWindow(session, window, startDir string) (string, error) {
	logging.Logger.Info("Creating tmux window", "session", session, "window", window, "start_dir", startDir)

	args := []string{"new-window", "-d", "-t", "=" + session + ":", "-n", window,
		"-P", "-F", "#{session_name}:#{window_name}"}
	if startDir != "" {
		args = append(args, "-c", startDir)
	}

	output, err := c.withRetry("new-window", func() (string, error) {
		return c.run(args...)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create window %s: %w", window, err)
	}

	handle := strings.TrimSpace(output)
	logging.Logger.Debug("Tmux window created", "handle", handle)
	return handle, nil
}

// WindowExists probes for a window by name within session.
func (c *Client) WindowExists(session, window string) (bool, error) {
	windows, err := c.ListWindows(session)
	if err != nil {
		return false, err
	}
	for _, w := range windows {
		if w == window {
			return true, nil
		}
	}
	return false, nil
}

// KillWindow removes a window. Missing windows are tolerated so kill
// and reconcile can both converge on the same end state.
func (c *Client) KillWindow(session, window string) error {
	logging.Logger.Info("Killing tmux window", "session", session, "window", window)

	_, err := c.run("kill-window", "-t", "="+session+":"+window)
	if err != nil && !isMissingTarget(err) {
		return fmt.Errorf("failed to kill window %s: %w", window, err)
	}
	return nil
}

// ListWindows returns the window names of a session. A missing session
// yields an empty list.
func (c *Client) ListWindows(session string) ([]string, error) {
	output, err := c.run("list-windows", "-t", "="+session, "-F", "#{window_name}")
	if err != nil {
		if isMissingTarget(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list windows of %s: %w", session, err)
	}

	var windows []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			windows = append(windows, line)
		}
	}
	return windows, nil
}

// SplitPane splits the target window and returns the new pane's unique
// "%id" handle. Pane ids stay stable however the layout changes.
func (c *Client) SplitPane(target, startDir string) (string, error) {
	logging.Logger.Info("Splitting tmux pane", "target", target, "start_dir", startDir)

	args := []string{"split-window", "-d", "-t", target, "-P", "-F", "#{pane_id}"}
	if startDir != "" {
		args = append(args, "-c", startDir)
	}

	output, err := c.withRetry("split-window", func() (string, error) {
		return c.run(args...)
	})
	if err != nil {
		return "", fmt.Errorf("failed to split pane in %s: %w", target, err)
	}

	paneID := strings.TrimSpace(output)
	logging.Logger.Debug("Tmux pane created", "pane_id", paneID)
	return paneID, nil
}

// PaneExists probes a pane. The target is either a "%id" pane handle
// or a "session:window" handle, whose window pane holds the primary
// agent.
func (c *Client) PaneExists(target string) (bool, error) {
	output, err := c.run("display-message", "-p", "-t", target, "#{pane_id}")
	if err == nil {
		if strings.HasPrefix(target, "%") {
			return strings.TrimSpace(output) == target, nil
		}
		// A window target resolves to its active pane, whose "%id"
		// never equals the handle; resolving at all means it is alive.
		return strings.TrimSpace(output) != "", nil
	}
	if isMissingTarget(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to probe pane %s: %w", target, err)
}

// KillPane removes a pane, tolerating panes that are already gone.
func (c *Client) KillPane(paneID string) error {
	logging.Logger.Info("Killing tmux pane", "pane_id", paneID)

	_, err := c.run("kill-pane", "-t", paneID)
	if err != nil && !isMissingTarget(err) {
		return fmt.Errorf("failed to kill pane %s: %w", paneID, err)
	}
	return nil
}

// PanePID returns the pid of the process running in a pane.
func (c *Client) PanePID(paneID string) (int, error) {
	output, err := c.run("display-message", "-p", "-t", paneID, "#{pane_pid}")
	if err != nil {
		return 0, fmt.Errorf("failed to read pane pid of %s: %w", paneID, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(output))
	if err != nil {
		return 0, fmt.Errorf("unexpected pane pid output %q: %w", strings.TrimSpace(output), err)
	}
	return pid, nil
}

// SendText types text into the target followed by Enter. The text is
// sent literally so prompts containing key names are not interpreted.
func (c *Client) SendText(target, text string) error {
	if _, err := c.withRetry("send-keys", func() (string, error) {
		return c.run("send-keys", "-t", target, "-l", "--", text)
	}); err != nil {
		return fmt.Errorf("failed to send text to %s: %w", target, err)
	}
	if _, err := c.run("send-keys", "-t", target, "Enter"); err != nil {
		return fmt.Errorf("failed to send Enter to %s: %w", target, err)
	}
	return nil
}

// Capture returns the last lines of the target pane's contents.
func (c *Client) Capture(target string, lines int) (string, error) {
	args := []string{"capture-pane", "-p", "-t", target}
	if lines > 0 {
		args = append(args, "-S", fmt.Sprintf("-%d", lines))
	}

	output, err := c.run(args...)
	if err != nil {
		return "", fmt.Errorf("failed to capture pane %s: %w", target, err)
	}
	return output, nil
}
