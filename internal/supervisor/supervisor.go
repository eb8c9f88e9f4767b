package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Pipes selects which standard streams are connected to the parent. Stderr
// is always piped. An unpiped stdin reads from the null device and an
// unpiped stdout is discarded.
type Pipes struct {
	Stdin  bool
	Stdout bool
}

// Callbacks contains optional callback functions for process events.
type Callbacks struct {
	// OnStateChange is called when the process state changes.
	OnStateChange func(pid int, oldState, newState State)

	// OnStart is called once the process has started.
	OnStart func(pid int)

	// OnExit is called once the process has been reaped.
	OnExit func(pid int, exitCode int, uptime time.Duration)
}

// Handle is a spawned process and the parent's ends of its pipes. It is
// owned by whoever called Spawn; nothing else mutates it.
type Handle struct {
	cmd       *exec.Cmd
	pid       int
	callbacks Callbacks
	startTime time.Time

	// Parent ends of the pipes. Stdin and Stdout are nil when not piped.
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	state   State
	stateMu sync.RWMutex

	waitOnce sync.Once
	exited   chan struct{}
	exitCode int
	waitErr  error
	uptime   time.Duration

	killed atomic.Bool
}

// Spawn starts cmd in a new process group with the requested pipes. The
// pipes are plain OS pipes owned by the Handle, so reaping the process does
// not close them under a reader.
func Spawn(cmd *exec.Cmd, pipes Pipes, callbacks Callbacks) (*Handle, error) {
	h := &Handle{
		cmd:       cmd,
		callbacks: callbacks,
		exited:    make(chan struct{}),
		state:     StateStarting,
	}

	// Child ends are closed in the parent once the child holds them.
	var childEnds []*os.File
	var parentEnds []io.Closer
	closeAll := func() {
		for _, f := range childEnds {
			f.Close()
		}
		for _, c := range parentEnds {
			c.Close()
		}
	}

	if pipes.Stdin {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		cmd.Stdin = r
		h.Stdin = w
		childEnds = append(childEnds, r)
		parentEnds = append(parentEnds, w)
	}

	if pipes.Stdout {
		r, w, err := os.Pipe()
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		cmd.Stdout = w
		h.Stdout = r
		childEnds = append(childEnds, w)
		parentEnds = append(parentEnds, r)
	}

	r, w, err := os.Pipe()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stderr = w
	h.Stderr = r
	childEnds = append(childEnds, w)
	parentEnds = append(parentEnds, r)

	// Set process group so termination reaches anything sox starts.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	h.startTime = time.Now()
	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, err
	}

	// IMPORTANT: close the parent's copy of the child ends after Start(),
	// otherwise readers never see EOF.
	for _, f := range childEnds {
		f.Close()
	}

	h.pid = cmd.Process.Pid
	h.setState(StateRunning)

	if h.callbacks.OnStart != nil {
		h.callbacks.OnStart(h.pid)
	}
	return h, nil
}

// PID returns the process id.
func (h *Handle) PID() int {
	return h.pid
}

// StartTime returns when the process was started.
func (h *Handle) StartTime() time.Time {
	return h.startTime
}

// Wait reaps the process and returns its exit code. It is safe to call from
// several goroutines; only the first call waits on the OS.
func (h *Handle) Wait() (int, error) {
	h.waitOnce.Do(func() {
		h.waitErr = h.cmd.Wait()
		h.uptime = time.Since(h.startTime)
		h.exitCode = extractExitCode(h.waitErr)

		if h.killed.Load() {
			h.setState(StateKilled)
		} else {
			h.setState(StateExited)
		}
		close(h.exited)

		if h.callbacks.OnExit != nil {
			h.callbacks.OnExit(h.pid, h.exitCode, h.uptime)
		}
	})
	<-h.exited
	return h.exitCode, h.waitErr
}

// Exited returns a channel that is closed once the process has been reaped.
func (h *Handle) Exited() <-chan struct{} {
	return h.exited
}

// Alive reports whether the process has not yet been reaped.
func (h *Handle) Alive() bool {
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}

// ExitCode returns the exit code after the process has been reaped.
// Signalled processes report 128 + signal number.
func (h *Handle) ExitCode() (int, bool) {
	if h.Alive() {
		return 0, false
	}
	return h.exitCode, true
}

// Terminate sends sig to the process group, falling back to the process
// itself. Signalling a reaped process is a no-op.
func (h *Handle) Terminate(sig syscall.Signal) error {
	if !h.Alive() {
		return nil
	}
	if sig == syscall.SIGKILL {
		h.killed.Store(true)
	}

	if pgid, err := unix.Getpgid(h.pid); err == nil {
		if err := unix.Kill(-pgid, sig); err == nil || errors.Is(err, unix.ESRCH) {
			return nil
		}
	}

	err := h.cmd.Process.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Stop sends SIGTERM, waits up to grace for the process to be reaped, then
// sends SIGKILL. It reports whether the forced kill was needed. Something
// else must be calling Wait for Stop to observe the exit.
func (h *Handle) Stop(grace time.Duration) (forced bool) {
	if !h.Alive() {
		return false
	}
	h.Terminate(syscall.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-h.exited:
		return false
	case <-timer.C:
	}

	h.Terminate(syscall.SIGKILL)
	return true
}

// CloseStdin closes the parent's end of stdin, signalling EOF to the
// process. It is a no-op when stdin is not piped.
func (h *Handle) CloseStdin() error {
	if h.Stdin == nil {
		return nil
	}
	err := h.Stdin.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// Close releases the parent's pipe ends. Pending reads return os.ErrClosed.
func (h *Handle) Close() {
	h.CloseStdin()
	if h.Stdout != nil {
		h.Stdout.Close()
	}
	h.Stderr.Close()
}

// State returns the current state of the process.
func (h *Handle) State() State {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.state
}

// Uptime returns how long the process ran, or has been running so far.
func (h *Handle) Uptime() time.Duration {
	if h.Alive() {
		return time.Since(h.startTime)
	}
	return h.uptime
}

// setState updates the state and calls the callback if registered.
func (h *Handle) setState(newState State) {
	h.stateMu.Lock()
	oldState := h.state
	h.state = newState
	h.stateMu.Unlock()

	if h.callbacks.OnStateChange != nil && oldState != newState {
		h.callbacks.OnStateChange(h.pid, oldState, newState)
	}
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
