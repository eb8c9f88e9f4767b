// Package supervisor spawns sox processes and owns their lifecycle: pipes,
// process group, exit status and termination.
package supervisor

// State represents the lifecycle state of a spawned process.
type State int

const (
	// StateStarting indicates the process is being spawned.
	StateStarting State = iota

	// StateRunning indicates the process is running.
	StateRunning

	// StateExited indicates the process exited on its own (any exit code)
	// or after a graceful signal.
	StateExited

	// StateKilled indicates the process was reaped after a forced kill.
	StateKilled
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// IsActive returns true while the process may still be running.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning
}

// IsTerminal returns true once the process has been reaped.
func (s State) IsTerminal() bool {
	return s == StateExited || s == StateKilled
}
