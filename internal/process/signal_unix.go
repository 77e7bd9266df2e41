//go:build !windows

package process

import (
	"errors"
	"runtime"

	"golang.org/x/sys/unix"
)

func (s Signal) sys() unix.Signal {
	switch s {
	case SignalTerminate:
		return unix.SIGTERM
	case SignalKill:
		return unix.SIGKILL
	default:
		return 0
	}
}

// IsAlive checks pid with signal 0. EPERM means the process exists but
// belongs to someone else. Zombies are reported as dead on Linux.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if runtime.GOOS == "linux" && isZombieLinux(pid) {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// SendSignal delivers sig to the process group led by pid, falling back to
// the single process when the group cannot be signalled.
func SendSignal(pid int, sig Signal) error {
	if pid <= 0 {
		return &SignalError{PID: pid, Signal: sig, Err: unix.EINVAL}
	}
	s := sig.sys()
	if s != 0 {
		if err := unix.Kill(-pid, s); err == nil {
			return nil
		}
	}
	err := unix.Kill(pid, s)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ESRCH):
		return ErrProcessGone
	default:
		return &SignalError{PID: pid, Signal: sig, Err: err}
	}
}
