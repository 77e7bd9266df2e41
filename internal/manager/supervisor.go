// Package manager keeps exactly one recollindex daemon running per host.
//
// Lifecycle requests are serialized on a Queue; unexpected exits and spawn
// failures are fed to a driver goroutine that owns the retry budget.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/recollsup/internal/config"
	"github.com/loykin/recollsup/internal/env"
	"github.com/loykin/recollsup/internal/history"
	"github.com/loykin/recollsup/internal/metrics"
	"github.com/loykin/recollsup/internal/notify"
	"github.com/loykin/recollsup/internal/process"
)

// ErrTerminationGaveUp is returned when the previous daemon survived SIGKILL.
// No replacement is spawned while it may still be running.
var ErrTerminationGaveUp = errors.New("previous daemon could not be terminated")

const historyTimeout = 5 * time.Second

// ConfigProvider yields the settings for the next start. *config.Store
// satisfies it.
type ConfigProvider interface {
	Snapshot() (config.Snapshot, error)
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSystem replaces the operating system process layer.
func WithSystem(sys process.System) Option {
	return func(s *Supervisor) { s.sys = sys }
}

// WithHistory records lifecycle events to h.
func WithHistory(h history.Sink) Option {
	return func(s *Supervisor) { s.history = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLockFile overrides the exclusivity lock path from the configuration.
// "-" disables locking.
func WithLockFile(path string) Option {
	return func(s *Supervisor) { s.lockPath = path }
}

// WithBaseEnv sets the environment the daemon environment is built on.
// The default is the supervisor's own environment.
func WithBaseEnv(base []string) Option {
	return func(s *Supervisor) { s.baseEnv = slices.Clone(base) }
}

// WithStdout sends daemon stdout to w instead of discarding it.
func WithStdout(w io.Writer) Option {
	return func(s *Supervisor) { s.stdout = w }
}

// WithStderr copies daemon stderr lines to w.
func WithStderr(w io.Writer) Option {
	return func(s *Supervisor) { s.stderr = w }
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	Running     bool       `json:"running"`
	PID         int        `json:"pid,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	GaveUp      bool       `json:"failed"`
	LastError   string     `json:"failure,omitempty"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
	Extra       []string   `json:"extra,omitempty"`
	HostKey     string     `json:"host_key,omitempty"`
	Pending     int        `json:"pending"`
}

// Supervisor owns the daemon identity and its restart policy.
type Supervisor struct {
	provider ConfigProvider
	notifier notify.Notifier
	sys      process.System
	history  history.Sink
	logger   *slog.Logger
	lockPath string
	baseEnv  []string
	stdout   io.Writer
	stderr   io.Writer
	runID    string

	queue *Queue

	identity atomic.Pointer[process.Identity]
	// gen changes on every start and stop; events and retries carrying an
	// older value are ignored.
	gen atomic.Uint64

	mu        sync.Mutex
	listeners *process.Listeners
	lastExtra []string
	stable    *time.Timer
	lock      *indexLock
	settings  config.SupervisorConfig
	hostKey   string
	retry     RetryState

	events     chan event
	driverStop chan struct{}
	driverDone chan struct{}
	closeOnce  sync.Once
}

// New builds a Supervisor and starts its queue and driver goroutines.
// The daemon is not started until Start is called.
func New(provider ConfigProvider, notifier notify.Notifier, opts ...Option) *Supervisor {
	s := &Supervisor{
		provider:   provider,
		notifier:   notifier,
		sys:        process.OS{},
		logger:     slog.Default(),
		runID:      uuid.NewString(),
		events:     make(chan event, 64),
		driverStop: make(chan struct{}),
		driverDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "supervisor")
	if snap, err := provider.Snapshot(); err == nil {
		s.settings = snap.Supervisor
		s.hostKey = snap.HostKey
	} else {
		s.settings = config.Default().Supervisor
	}
	s.retry.Policy = PolicyFrom(s.settings)
	s.queue = NewQueue()
	go s.drive()
	return s
}

// DaemonArgs returns the recollindex command line for a monitoring daemon.
func DaemonArgs(confDir string, extra []string) []string {
	args := []string{"-m", "-D", "-x", "-w", "0"}
	if confDir != "" {
		args = append(args, "-c", confDir)
	}
	return append(args, extra...)
}

// Start replaces any running daemon with a new one started with extra
// arguments. It resets the retry budget.
func (s *Supervisor) Start(extra []string) <-chan error {
	extra = slices.Clone(extra)
	return s.queue.Enqueue(func(ctx context.Context) error {
		return s.startOp(ctx, extra, true, 0)
	})
}

// Restart starts the daemon again with the arguments of the last start.
func (s *Supervisor) Restart() <-chan error {
	return s.queue.Enqueue(func(ctx context.Context) error {
		s.mu.Lock()
		extra := slices.Clone(s.lastExtra)
		s.mu.Unlock()
		return s.startOp(ctx, extra, true, 0)
	})
}

// Reindex restarts the daemon with a full index reset.
func (s *Supervisor) Reindex() <-chan error {
	return s.Start([]string{"-z"})
}

// Stop terminates the daemon and cancels any pending automatic restart.
func (s *Supervisor) Stop() <-chan error {
	return s.queue.Enqueue(s.stopOp)
}

// IsRunning reports whether the recorded daemon is alive. It does not wait
// for queued operations and may be momentarily stale.
func (s *Supervisor) IsRunning() bool {
	id := s.identity.Load()
	return id != nil && s.sys.IsAlive(id.PID) && !id.Reused()
}

// PID returns the daemon's process id, or 0.
func (s *Supervisor) PID() int {
	if id := s.identity.Load(); id != nil {
		return id.PID
	}
	return 0
}

func (s *Supervisor) Status() Status {
	st := Status{Running: s.IsRunning(), Pending: s.queue.Pending()}
	if id := s.identity.Load(); id != nil {
		st.PID = id.PID
		t := id.StartedAt
		st.StartedAt = &t
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st.Attempts = s.retry.Attempts
	st.MaxAttempts = s.retry.Policy.MaxAttempts
	st.GaveUp = s.retry.GaveUp
	st.LastError = s.retry.LastError
	if !s.retry.LastFailure.IsZero() {
		t := s.retry.LastFailure
		st.LastFailure = &t
	}
	st.Extra = slices.Clone(s.lastExtra)
	st.HostKey = s.hostKey
	return st
}

// Close stops the daemon, then the driver and the queue. Operations
// enqueued afterwards fail with ErrQueueClosed.
func (s *Supervisor) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		select {
		case err = <-s.Stop():
		case <-ctx.Done():
			err = ctx.Err()
		}
		close(s.driverStop)
		<-s.driverDone
		s.queue.Close()
	})
	return err
}

func (s *Supervisor) startOp(ctx context.Context, extra []string, manual bool, forGen uint64) error {
	trigger := "manual"
	if !manual {
		if s.gen.Load() != forGen {
			s.logger.Debug("skipping superseded restart")
			return nil
		}
		trigger = "retry"
	} else {
		s.mu.Lock()
		s.gen.Add(1)
		s.retry.Reset()
		s.mu.Unlock()
		s.post(event{kind: evCancel})
		metrics.SetRetryAttempts(0)
	}

	if err := s.stopCurrent(ctx); err != nil {
		return err
	}
	gen := s.gen.Add(1)

	s.mu.Lock()
	s.lastExtra = extra
	s.mu.Unlock()

	snap, err := s.provider.Snapshot()
	if err != nil {
		err = fmt.Errorf("resolve configuration: %w", err)
		s.spawnFailed(gen, err)
		return err
	}
	s.mu.Lock()
	s.settings = snap.Supervisor
	s.hostKey = snap.HostKey
	s.retry.Policy = PolicyFrom(snap.Supervisor)
	s.mu.Unlock()

	lock, err := s.acquireLock(snap)
	if err != nil {
		s.spawnFailed(gen, err)
		return err
	}

	spec := process.Spec{
		Name:       "recollindex",
		Executable: snap.RecollIndex,
		Args:       DaemonArgs(snap.ConfDir, extra),
		Env:        env.ForRecoll(snap, s.baseEnv),
		Stdout:     s.stdout,
	}
	l := s.listen(gen, snap.Debug)
	id, err := s.sys.Spawn(spec, l)
	if err != nil {
		if rerr := lock.release(); rerr != nil {
			s.logger.Warn("failed to release index lock", "error", rerr)
		}
		s.spawnFailed(gen, err)
		return err
	}
	s.identity.Store(&id)

	s.mu.Lock()
	s.listeners = l
	s.lock = lock
	s.stable = time.AfterFunc(snap.Supervisor.SuccessWindow, func() {
		s.post(event{kind: evStable, gen: gen})
	})
	s.mu.Unlock()

	s.logger.Info("indexing daemon started", "pid", id.PID, "trigger", trigger, "args", spec.Args)
	metrics.IncStart(trigger)
	metrics.SetRunning(true)
	s.record(history.EventStart, history.Record{PID: id.PID, StartedAt: id.StartedAt, Outcome: trigger})
	return nil
}

func (s *Supervisor) stopOp(ctx context.Context) error {
	s.gen.Add(1)
	s.post(event{kind: evCancel})
	return s.stopCurrent(ctx)
}

// stopCurrent detaches and terminates the recorded daemon, then releases
// the lock. On GaveUp the identity and lock are kept.
func (s *Supervisor) stopCurrent(ctx context.Context) error {
	s.mu.Lock()
	if s.stable != nil {
		s.stable.Stop()
		s.stable = nil
	}
	l := s.listeners
	s.listeners = nil
	settings := s.settings
	s.mu.Unlock()
	l.Detach()

	if id := s.identity.Load(); id != nil {
		if id.Reused() {
			s.logger.Warn("recorded pid belongs to another process, not signalling", "pid", id.PID)
		} else {
			t := &process.Terminator{
				Sys:          s.sys,
				GraceTimeout: settings.GraceTimeout,
				KillTimeout:  settings.KillTimeout,
				PollInterval: settings.PollInterval,
				Logger:       s.logger,
			}
			res, err := t.Terminate(ctx, id)
			metrics.ObserveTermination(res.Elapsed.Seconds())
			if res.Outcome == process.GaveUp {
				metrics.IncStop("gave_up")
				s.logger.Error("refusing to start a second daemon", "pid", id.PID, "error", err)
				s.record(history.EventStop, history.Record{PID: id.PID, StartedAt: id.StartedAt, Outcome: res.Outcome.String(), Error: errString(err)})
				if err == nil {
					return fmt.Errorf("%w: pid %d", ErrTerminationGaveUp, id.PID)
				}
				return fmt.Errorf("%w: pid %d: %w", ErrTerminationGaveUp, id.PID, err)
			}
			metrics.IncStop(stopLabel(res))
			s.record(history.EventStop, history.Record{PID: id.PID, StartedAt: id.StartedAt, Outcome: stopLabel(res)})
		}
		s.identity.CompareAndSwap(id, nil)
	}
	metrics.SetRunning(false)

	s.mu.Lock()
	lock := s.lock
	s.lock = nil
	s.mu.Unlock()
	if err := lock.release(); err != nil {
		s.logger.Warn("failed to release index lock", "path", lock.Path(), "error", err)
	}
	return nil
}

func (s *Supervisor) acquireLock(snap config.Snapshot) (*indexLock, error) {
	path := s.lockPath
	if path == "" {
		path = snap.LockPath()
	}
	if path == "" || path == "-" {
		return nil, nil
	}
	return acquireIndexLock(path)
}

func (s *Supervisor) listen(gen uint64, debug bool) *process.Listeners {
	return &process.Listeners{
		OnExit: func(info process.ExitInfo) {
			if cur := s.identity.Load(); cur != nil && cur.PID == info.PID {
				s.identity.CompareAndSwap(cur, nil)
			}
			metrics.SetRunning(false)
			metrics.IncFailure("exit")
			s.logger.Warn("indexing daemon exited unexpectedly", "pid", info.PID, "code", info.Code, "signal", info.Signal)
			s.record(history.EventExit, history.Record{PID: info.PID, Outcome: info.String()})
			s.post(event{kind: evFailure, gen: gen, err: &process.ExitError{Info: info}})
		},
		OnError: func(err error) {
			metrics.SetRunning(false)
			metrics.IncFailure("error")
			s.logger.Error("indexing daemon failed", "error", err)
			s.record(history.EventExit, history.Record{Error: err.Error()})
			s.post(event{kind: evFailure, gen: gen, err: err})
		},
		OnStderr: func(line []byte) {
			if s.stderr != nil {
				_, _ = s.stderr.Write(append(line, '\n'))
			}
			if debug {
				s.logger.Debug("recollindex", "stderr", string(line))
			}
		},
	}
}

func (s *Supervisor) spawnFailed(gen uint64, err error) {
	metrics.IncFailure("spawn")
	s.logger.Error("failed to start indexing daemon", "error", err)
	s.record(history.EventSpawnFailed, history.Record{Error: err.Error()})
	s.post(event{kind: evFailure, gen: gen, err: err})
}

func (s *Supervisor) record(t history.EventType, r history.Record) {
	if s.history == nil {
		return
	}
	s.mu.Lock()
	r.HostKey = s.hostKey
	s.mu.Unlock()
	r.RunID = s.runID
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := s.history.Send(ctx, history.NewEvent(t, r)); err != nil {
		s.logger.Warn("failed to record history event", "type", t, "error", err)
	}
}

func stopLabel(r process.Result) string {
	switch {
	case r.AlreadyGone:
		return "gone"
	case r.Forced:
		return "forced"
	default:
		return "graceful"
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
