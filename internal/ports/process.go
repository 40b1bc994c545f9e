package ports

// ProcessInspector answers liveness questions about OS processes
type ProcessInspector interface {
	// PIDAlive reports whether a process with the given pid exists.
	// It never returns an error: signal 0 probing either reaches the
	// process or it does not.
	PIDAlive(pid int) bool

	// Terminate sends SIGTERM. Signalling a process that is already
	// gone is not an error.
	Terminate(pid int) error
}
