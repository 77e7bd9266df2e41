//go:build windows

package process

import (
	"errors"

	"golang.org/x/sys/windows"
)

const stillActive = 259

// IsAlive reports whether pid refers to a process that has not exited.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return errors.Is(err, windows.ERROR_ACCESS_DENIED)
	}
	defer func() { _ = windows.CloseHandle(h) }()
	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return true
	}
	return code == stillActive
}

// SendSignal terminates pid. Windows has no graceful signal for console-less
// processes, so SignalTerminate and SignalKill both call TerminateProcess.
func SendSignal(pid int, sig Signal) error {
	if pid <= 0 {
		return &SignalError{PID: pid, Signal: sig, Err: windows.ERROR_INVALID_PARAMETER}
	}
	if sig == SignalZero {
		if IsAlive(pid) {
			return nil
		}
		return ErrProcessGone
	}
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return ErrProcessGone
		}
		return &SignalError{PID: pid, Signal: sig, Err: err}
	}
	defer func() { _ = windows.CloseHandle(h) }()
	if err := windows.TerminateProcess(h, 1); err != nil {
		if !IsAlive(pid) {
			return ErrProcessGone
		}
		return &SignalError{PID: pid, Signal: sig, Err: err}
	}
	return nil
}

func isZombieLinux(int) bool { return false }
