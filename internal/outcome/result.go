// Package outcome defines the terminal result of one sox run and the error
// taxonomy used to report it.
package outcome

import (
	"time"
)

// Kind identifies which terminal outcome a run reached.
type Kind int

const (
	// Success means sox exited 0 and every output byte reached the sink.
	Success Kind = iota
	// ProcessFailure means sox exited with a non-zero code.
	ProcessFailure
	// TimeoutFailure means the watchdog terminated the process.
	TimeoutFailure
	// WriteFailure means writing the in-memory source to stdin failed.
	WriteFailure
	// OverflowFailure means the in-memory sink ran out of capacity.
	OverflowFailure
	// InternalFailure means a pump goroutine panicked.
	InternalFailure
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case ProcessFailure:
		return "process_failure"
	case TimeoutFailure:
		return "timeout"
	case WriteFailure:
		return "write_failure"
	case OverflowFailure:
		return "overflow"
	case InternalFailure:
		return "internal_failure"
	default:
		return "unknown"
	}
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	return []Kind{Success, ProcessFailure, TimeoutFailure, WriteFailure, OverflowFailure, InternalFailure}
}

// RunResult is the single terminal result of a run. Which fields are
// meaningful depends on Kind.
type RunResult struct {
	Kind     Kind
	ExitCode int
	PID      int

	// Stderr is the diagnostic output captured up to settlement.
	// StderrTruncated counts the bytes dropped past the capture limit.
	Stderr          string
	StderrTruncated int64

	// CommandLine is the rendered argv, for reproduction.
	CommandLine []string

	// Err is the underlying cause for WriteFailure, OverflowFailure and
	// InternalFailure.
	Err error

	RunID    string
	Duration time.Duration

	// BytesIn is what was written to stdin; BytesOut is what was kept in
	// the in-memory sink.
	BytesIn  int64
	BytesOut int64
}

// OK reports whether the run succeeded.
func (r RunResult) OK() bool {
	return r.Kind == Success
}
