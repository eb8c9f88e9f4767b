package outcome

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/randomizedcoder/go-sox-chain/internal/membuf"
)

// Errors returned synchronously, before any process is spawned.
var (
	ErrMissingSource = errors.New("effects chain has no source")
	ErrMissingSink   = errors.New("effects chain has no sink")
	ErrSinkExists    = errors.New("sink file already exists and overwrite is not allowed")
	ErrSpawn         = errors.New("failed to start sox")
)

// ErrBufferOverflow is reported when sox produces more output than the
// in-memory sink can hold.
var ErrBufferOverflow = membuf.ErrBufferOverflow

// ProcessError reports a non-zero exit.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Cmd      []string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("sox exited with exit code %d: %s", e.ExitCode, e.Stderr)
}

// CommandLine returns the quoted command line of the failed run.
func (e *ProcessError) CommandLine() string { return QuoteCommandLine(e.Cmd) }

// TimeoutError reports a run that the watchdog terminated.
type TimeoutError struct {
	PID     int
	Elapsed time.Duration
	Stderr  string
	Cmd     []string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sox pid=%d process timeout after %s: %s", e.PID, e.Elapsed, e.Stderr)
}

// CommandLine returns the quoted command line of the failed run.
func (e *TimeoutError) CommandLine() string { return QuoteCommandLine(e.Cmd) }

// OverflowError reports an in-memory sink that ran out of capacity.
type OverflowError struct {
	Err    error
	Stderr string
	Cmd    []string
}

func (e *OverflowError) Error() string {
	return withStderr(fmt.Sprintf("sox output overflowed sink: %v", e.Err), e.Stderr)
}

func (e *OverflowError) Unwrap() error { return e.Err }

// CommandLine returns the quoted command line of the failed run.
func (e *OverflowError) CommandLine() string { return QuoteCommandLine(e.Cmd) }

// WriteError reports a failure writing the in-memory source to stdin.
type WriteError struct {
	Err    error
	Stderr string
	Cmd    []string
}

func (e *WriteError) Error() string {
	return withStderr(fmt.Sprintf("writing sox stdin: %v", e.Err), e.Stderr)
}

func (e *WriteError) Unwrap() error { return e.Err }

// CommandLine returns the quoted command line of the failed run.
func (e *WriteError) CommandLine() string { return QuoteCommandLine(e.Cmd) }

// InternalError reports a panic recovered inside a run goroutine.
type InternalError struct {
	Err    error
	Stderr string
	Cmd    []string
}

func (e *InternalError) Error() string {
	return withStderr(fmt.Sprintf("internal error running sox: %v", e.Err), e.Stderr)
}

func (e *InternalError) Unwrap() error { return e.Err }

// CommandLine returns the quoted command line of the failed run.
func (e *InternalError) CommandLine() string { return QuoteCommandLine(e.Cmd) }

// SpawnError reports that the process could not be started. It matches
// both ErrSpawn and the underlying cause (for example exec.ErrNotFound).
type SpawnError struct {
	Err error
	Cmd []string
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("%v: %v", ErrSpawn, e.Err)
}

func (e *SpawnError) Unwrap() []error { return []error{ErrSpawn, e.Err} }

// CommandLine returns the quoted command line that failed to start.
func (e *SpawnError) CommandLine() string { return QuoteCommandLine(e.Cmd) }

// CommandLiner is implemented by every run error.
type CommandLiner interface {
	CommandLine() string
}

// CommandLineOf returns the quoted command line carried by err, if any.
func CommandLineOf(err error) (string, bool) {
	var cl CommandLiner
	if errors.As(err, &cl) {
		return cl.CommandLine(), true
	}
	return "", false
}

// QuoteCommandLine renders argv with every argument double-quoted and
// separated by a single space, e.g. "sox" "-" "-t" "wav" "-".
func QuoteCommandLine(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = strconv.Quote(a)
	}
	return strings.Join(quoted, " ")
}

// Classify maps a result to its typed error. It returns nil for Success.
func Classify(r RunResult) error {
	switch r.Kind {
	case Success:
		return nil
	case ProcessFailure:
		return &ProcessError{ExitCode: r.ExitCode, Stderr: r.Stderr, Cmd: r.CommandLine}
	case TimeoutFailure:
		return &TimeoutError{PID: r.PID, Elapsed: r.Duration.Truncate(time.Millisecond), Stderr: r.Stderr, Cmd: r.CommandLine}
	case OverflowFailure:
		return &OverflowError{Err: causeOr(r.Err, ErrBufferOverflow), Stderr: r.Stderr, Cmd: r.CommandLine}
	case WriteFailure:
		return &WriteError{Err: causeOr(r.Err, errors.New("unknown write error")), Stderr: r.Stderr, Cmd: r.CommandLine}
	case InternalFailure:
		return &InternalError{Err: causeOr(r.Err, errors.New("unknown internal error")), Stderr: r.Stderr, Cmd: r.CommandLine}
	default:
		return &InternalError{Err: fmt.Errorf("unknown result kind %d", int(r.Kind)), Stderr: r.Stderr, Cmd: r.CommandLine}
	}
}

// withStderr appends sox's captured stderr to msg.
func withStderr(msg, stderr string) string {
	if stderr = strings.TrimSpace(stderr); stderr == "" {
		return msg
	}
	return msg + ": " + stderr
}

func causeOr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
