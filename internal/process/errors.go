package process

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrProcessGone is returned by SendSignal when the target no longer exists.
	ErrProcessGone = errors.New("no such process")
	// ErrTimedOut matches every *TimeoutError.
	ErrTimedOut = errors.New("timed out waiting for process exit")
	// ErrNoExecutable is wrapped in a SpawnError when Spec.Executable is empty.
	ErrNoExecutable = errors.New("executable not configured")
)

// SpawnError reports that the OS refused or failed to create the process.
type SpawnError struct {
	Executable string
	Err        error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", e.Executable, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// SignalError reports a signal delivery failure other than "process already gone".
type SignalError struct {
	PID    int
	Signal Signal
	Err    error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("send %s to pid %d: %v", e.Signal, e.PID, e.Err)
}

func (e *SignalError) Unwrap() error { return e.Err }

// TimeoutError reports that a process was still alive when a wait expired.
type TimeoutError struct {
	PID     int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("pid %d still alive after %s", e.PID, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimedOut }

// ExitError describes a daemon that terminated on its own while it was
// expected to run indefinitely. A zero exit code is still unexpected.
type ExitError struct {
	Info ExitInfo
}

func (e *ExitError) Error() string {
	return "unexpected exit: " + e.Info.String()
}

func (e *ExitError) Unwrap() error { return e.Info.Err }
