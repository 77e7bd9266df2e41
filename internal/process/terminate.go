package process

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	DefaultGraceTimeout = 2100 * time.Millisecond
	DefaultKillTimeout  = time.Second
)

// Outcome is the final state of a termination attempt.
type Outcome int

const (
	Terminated Outcome = iota
	GaveUp
)

func (o Outcome) String() string {
	if o == GaveUp {
		return "gave_up"
	}
	return "terminated"
}

// Result describes how a termination went.
type Result struct {
	Outcome     Outcome
	Forced      bool
	AlreadyGone bool
	Elapsed     time.Duration
}

// Terminator escalates from SIGTERM to SIGKILL. SIGKILL is only sent after
// GraceTimeout has fully elapsed with the process still alive.
type Terminator struct {
	Sys          Signaler
	GraceTimeout time.Duration
	KillTimeout  time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Terminate stops the process described by id. A nil id is a no-op.
// When the outcome is GaveUp the process may still be running and the
// returned error says why.
func (t *Terminator) Terminate(ctx context.Context, id *Identity) (Result, error) {
	if id == nil {
		return Result{Outcome: Terminated}, nil
	}
	log := t.logger().With("pid", id.PID)
	start := time.Now()
	done := func(r Result) Result {
		r.Elapsed = time.Since(start)
		return r
	}

	if err := t.sys().SendSignal(id.PID, SignalTerminate); err != nil {
		if errors.Is(err, ErrProcessGone) {
			log.Debug("process already gone")
			return done(Result{Outcome: Terminated, AlreadyGone: true}), nil
		}
		log.Error("failed to send SIGTERM", "error", err)
		return done(Result{Outcome: GaveUp}), err
	}

	grace := valOr(t.GraceTimeout, DefaultGraceTimeout)
	err := WaitForExit(ctx, t.sys(), id.PID, grace, t.PollInterval)
	if err == nil {
		r := done(Result{Outcome: Terminated})
		log.Info("process terminated gracefully", "elapsed", r.Elapsed)
		return r, nil
	}
	if !errors.Is(err, ErrTimedOut) {
		return done(Result{Outcome: GaveUp}), err
	}

	log.Warn("process ignored SIGTERM, sending SIGKILL", "grace", grace)
	if err := t.sys().SendSignal(id.PID, SignalKill); err != nil {
		if errors.Is(err, ErrProcessGone) {
			return done(Result{Outcome: Terminated, Forced: true, AlreadyGone: true}), nil
		}
		log.Error("failed to send SIGKILL", "error", err)
		return done(Result{Outcome: GaveUp, Forced: true}), err
	}

	err = WaitForExit(ctx, t.sys(), id.PID, valOr(t.KillTimeout, DefaultKillTimeout), t.PollInterval)
	if err == nil {
		r := done(Result{Outcome: Terminated, Forced: true})
		log.Info("process terminated forcefully", "elapsed", r.Elapsed)
		return r, nil
	}
	log.Error("process survived SIGKILL, giving up", "error", err)
	return done(Result{Outcome: GaveUp, Forced: true}), err
}

func (t *Terminator) sys() Signaler {
	if t.Sys == nil {
		return OS{}
	}
	return t.Sys
}

func (t *Terminator) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

func valOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
