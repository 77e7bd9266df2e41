package process

import (
	"errors"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Signal is the small set of signals the supervisor ever sends.
type Signal int

const (
	SignalZero Signal = iota
	SignalTerminate
	SignalKill
)

func (s Signal) String() string {
	switch s {
	case SignalTerminate:
		return "SIGTERM"
	case SignalKill:
		return "SIGKILL"
	default:
		return "signal 0"
	}
}

// waitDelay bounds how long Wait keeps copying stderr after the child exits,
// since grandchildren may hold the pipe open.
const waitDelay = time.Second

// Process is a handle on one spawned child. It is reaped by its own
// goroutine; exactly one of OnExit or OnError fires after that.
type Process struct {
	spec      Spec
	cmd       *exec.Cmd
	id        Identity
	listeners *Listeners

	mu       sync.Mutex
	exit     *ExitInfo
	waitDone chan struct{}
}

// Start spawns spec with stdin closed, stdout discarded (unless Spec.Stdout
// is set) and stderr delivered line by line to l.OnStderr.
// OS-level failures are returned synchronously as *SpawnError.
func Start(spec Spec, l *Listeners) (*Process, error) {
	if l == nil {
		l = &Listeners{}
	}
	cmd, err := spec.BuildCommand()
	if err != nil {
		return nil, &SpawnError{Executable: spec.Executable, Err: err}
	}
	configureSysProcAttr(cmd)
	stderr := &lineWriter{fn: l.stderr}
	cmd.Stdout = spec.Stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Executable: spec.Executable, Err: err}
	}
	pid := cmd.Process.Pid
	p := &Process{
		spec:      spec,
		cmd:       cmd,
		listeners: l,
		waitDone:  make(chan struct{}),
		id: Identity{
			PID:       pid,
			StartedAt: time.Now(),
			ProcStart: getProcStartUnix(pid),
		},
	}
	go p.reap(stderr)
	return p, nil
}

// Identity returns the record of the spawned process.
func (p *Process) Identity() Identity { return p.id }

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} { return p.waitDone }

// ExitInfo returns the exit record, or nil while the process is running.
func (p *Process) ExitInfo() *ExitInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exit
}

func (p *Process) reap(stderr *lineWriter) {
	err := p.cmd.Wait()
	stderr.flush()
	info := ExitInfo{PID: p.id.PID, At: time.Now(), Code: -1}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		info.Code = 0
	case errors.As(err, &exitErr):
		info.Code = exitErr.ExitCode()
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			info.Signal = ws.Signal().String()
		}
	default:
		info.Err = err
		if ps := p.cmd.ProcessState; ps != nil {
			info.Code = ps.ExitCode()
		}
	}

	p.mu.Lock()
	p.exit = &info
	p.mu.Unlock()
	close(p.waitDone)

	if info.Err != nil && !errors.Is(info.Err, exec.ErrWaitDelay) {
		p.listeners.fail(info.Err)
		return
	}
	p.listeners.exit(info)
}
