package process

import (
	"context"
	"time"
)

// DefaultPollInterval is the liveness polling period used by WaitForExit.
const DefaultPollInterval = 100 * time.Millisecond

// AliveChecker reports whether a PID is alive.
type AliveChecker interface {
	IsAlive(pid int) bool
}

// WaitForExit polls p until pid is no longer alive. It returns a
// *TimeoutError (matching ErrTimedOut) if pid is still alive after timeout,
// or ctx.Err() if ctx ends first. A non-positive interval uses
// DefaultPollInterval.
func WaitForExit(ctx context.Context, p AliveChecker, pid int, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if !p.IsAlive(pid) {
		return nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if !p.IsAlive(pid) {
				return nil
			}
			return &TimeoutError{PID: pid, Timeout: timeout}
		case <-tick.C:
			if !p.IsAlive(pid) {
				return nil
			}
		}
	}
}
