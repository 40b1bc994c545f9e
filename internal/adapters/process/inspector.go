// Package process answers liveness questions about OS processes.
package process

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"kiln/internal/ports"
)

// Inspector probes processes with signal 0.
type Inspector struct{}

// Compile-time interface verification
var _ ports.ProcessInspector = (*Inspector)(nil)

// NewInspector creates a new process inspector
func NewInspector() *Inspector {
	return &Inspector{}
}

// PIDAlive reports whether a process with the given pid exists. Signal
// 0 performs the existence check without delivering anything; EPERM
// means the process exists but belongs to someone else, which still
// counts as alive.
func (i *Inspector) PIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}

// Terminate asks a process to exit with SIGTERM. A process that is
// already gone is not an error.
func (i *Inspector) Terminate(pid int) error {
	if pid <= 0 {
		return nil
	}
	err := unix.Kill(pid, unix.SIGTERM)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return fmt.Errorf("failed to terminate pid %d: %w", pid, err)
}
