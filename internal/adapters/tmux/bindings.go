package tmux

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"kiln/internal/logging"
)

// Navigation keybindings are server-global state shared by every kiln
// process talking to the same tmux server. Ownership is tracked in a
// PID-stamped lock file so only the process that applied the bindings
// tears them down, and a crashed owner can be reclaimed.

// Apply installs the dashboard and overview keys plus the escape-time
// tweak in one tmux invocation, then records this process as owner.
func (c *Client) Apply(session string) error {
	if pid, ok := c.lockOwner(); ok && pid != os.Getpid() && c.procs.PIDAlive(pid) {
		logging.Logger.Warn("Nav bindings lock held by live process, taking over",
			"owner_pid", pid, "session", session)
	}

	// One invocation so the server never observes half the bindings.
	// ";" separates tmux sub-commands within a single client call.
	args := c.bindArgs(session)
	if _, err := c.withRetry("bind-keys", func() (string, error) {
		return c.run(args...)
	}); err != nil {
		return fmt.Errorf("failed to apply nav bindings: %w", err)
	}

	if err := c.writeLock(); err != nil {
		return fmt.Errorf("failed to record nav binding ownership: %w", err)
	}

	logging.Logger.Info("Nav bindings applied",
		"session", session, "dashboard_keys", c.opts.DashboardKeys, "overview_keys", c.opts.OverviewKeys)
	return nil
}

// bindArgs builds the batched sub-commands: dashboard keys return the
// client to the kiln session, overview keys open the session tree, and
// escape-time is lowered so the raw key sequences arrive promptly.
func (c *Client) bindArgs(session string) []string {
	var args []string
	for _, key := range c.opts.DashboardKeys {
		args = append(args, "bind-key", "-n", key, "switch-client", "-t", "="+session, ";")
	}
	for _, key := range c.opts.OverviewKeys {
		args = append(args, "bind-key", "-n", key, "choose-tree", "-s", ";")
	}
	return append(args, "set-option", "-gs", "escape-time", strconv.Itoa(c.opts.EscapeTimeMS))
}

// Remove unbinds the navigation keys if this process owns them. A lock
// held by another live process is left alone together with its
// bindings.
func (c *Client) Remove(session string) error {
	if pid, ok := c.lockOwner(); ok && pid != os.Getpid() && c.procs.PIDAlive(pid) {
		logging.Logger.Debug("Nav bindings owned by another live process, leaving in place",
			"owner_pid", pid)
		return nil
	}

	var args []string
	for _, key := range append(append([]string{}, c.opts.DashboardKeys...), c.opts.OverviewKeys...) {
		if len(args) > 0 {
			args = append(args, ";")
		}
		args = append(args, "unbind-key", "-n", key)
	}
	if _, err := c.run(args...); err != nil && !isMissingTarget(err) {
		return fmt.Errorf("failed to remove nav bindings: %w", err)
	}

	if err := os.Remove(c.opts.LockPath); err != nil && !os.IsNotExist(err) {
		logging.Logger.Warn("Failed to remove nav binding lock", "error", err)
	}

	logging.Logger.Info("Nav bindings removed", "session", session)
	return nil
}

// Verify checks that the bindings still carry the commands Apply put on
// them and are owned by someone alive, re-applying otherwise. The run
// loop calls this periodically because any tmux client can clobber
// global bindings or options at any time.
func (c *Client) Verify(session string) error {
	if c.bindingsIntact(session) {
		if pid, ok := c.lockOwner(); ok && (pid == os.Getpid() || c.procs.PIDAlive(pid)) {
			return nil
		}
		logging.Logger.Info("Nav bindings present but owner is gone, reclaiming", "session", session)
	} else {
		logging.Logger.Info("Nav bindings missing or rebound, re-applying", "session", session)
	}

	return c.Apply(session)
}

// bindingsIntact re-reads the live key table and escape-time and
// reports whether they all still match what Apply installs. A key that
// is present but rebound to another command counts as lost.
func (c *Client) bindingsIntact(session string) bool {
	output, err := c.run("list-keys", "-T", "root")
	if err != nil {
		return false
	}
	for _, key := range c.opts.DashboardKeys {
		if !keyBoundTo(output, key, "switch-client -t ="+session) {
			return false
		}
	}
	for _, key := range c.opts.OverviewKeys {
		if !keyBoundTo(output, key, "choose-tree") {
			return false
		}
	}

	escape, err := c.run("show-options", "-gqv", "escape-time")
	if err != nil {
		return false
	}
	return strings.TrimSpace(escape) == strconv.Itoa(c.opts.EscapeTimeMS)
}

// keyBoundTo scans list-keys output for the key's binding line and
// checks it still carries the expected command.
func keyBoundTo(listKeys, key, command string) bool {
	for _, line := range strings.Split(listKeys, "\n") {
		if strings.Contains(line, key) {
			return strings.Contains(line, command)
		}
	}
	return false
}

// lockOwner reads the PID recorded in the lock file. ok is false when
// the lock is missing or unreadable.
func (c *Client) lockOwner() (int, bool) {
	data, err := os.ReadFile(c.opts.LockPath)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		logging.Logger.Warn("Nav binding lock is garbled, ignoring", "path", c.opts.LockPath)
		return 0, false
	}
	return pid, true
}

func (c *Client) writeLock() error {
	return os.WriteFile(c.opts.LockPath, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
