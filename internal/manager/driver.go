package manager

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/loykin/recollsup/internal/history"
	"github.com/loykin/recollsup/internal/metrics"
	"github.com/loykin/recollsup/internal/notify"
)

const notifyTimeout = 15 * time.Second

type eventKind int

const (
	evFailure eventKind = iota
	evStable
	evCancel
)

type event struct {
	kind eventKind
	gen  uint64
	err  error
}

// post hands an event to the driver. It never blocks once the driver has stopped.
func (s *Supervisor) post(e event) {
	select {
	case s.events <- e:
	case <-s.driverStop:
	}
}

// drive consumes failure and stability events and turns them into retry
// decisions. Retries are enqueued on the queue like any other start, so the
// driver never waits for a lifecycle operation.
func (s *Supervisor) drive() {
	defer close(s.driverDone)

	var cooldown *time.Timer
	cancel := func() {
		if cooldown != nil {
			cooldown.Stop()
			cooldown = nil
		}
	}
	defer cancel()
	// generation whose run has already failed; its stability timer must not
	// reset the budget.
	var failedGen uint64

	for {
		select {
		case <-s.driverStop:
			return
		case e := <-s.events:
			switch e.kind {
			case evCancel:
				cancel()

			case evStable:
				if e.gen != s.gen.Load() || e.gen == failedGen {
					continue
				}
				s.mu.Lock()
				had := s.retry.Attempts
				s.retry.Stable()
				s.mu.Unlock()
				if had > 0 {
					s.logger.Info("indexing daemon stable, retry budget restored", "previous_attempts", had)
				}
				metrics.SetRetryAttempts(0)

			case evFailure:
				s.mu.Lock()
				if e.gen != s.gen.Load() {
					s.mu.Unlock()
					s.logger.Debug("ignoring failure from a superseded run", "error", e.err)
					continue
				}
				failedGen = e.gen
				d := s.retry.Next(e.err)
				extra := slices.Clone(s.lastExtra)
				s.mu.Unlock()

				switch {
				case d.Retry:
					cancel()
					metrics.SetRetryAttempts(d.Attempt)
					s.logger.Warn("restarting indexing daemon", "attempt", d.Attempt, "delay", d.Delay, "reason", e.err)
					s.record(history.EventRetry, history.Record{Attempt: d.Attempt, Error: errString(e.err)})
					gen := e.gen
					cooldown = time.AfterFunc(d.Delay, func() {
						s.queue.Enqueue(func(ctx context.Context) error {
							return s.startOp(ctx, extra, false, gen)
						})
					})
				case d.Exhausted:
					s.giveUp(d, e.err, e.gen)
				default:
					s.logger.Debug("daemon already given up, ignoring failure", "error", e.err)
				}
			}
		}
	}
}

func (s *Supervisor) giveUp(d Decision, reason error, gen uint64) {
	metrics.IncGaveUp()
	s.record(history.EventGaveUp, history.Record{Attempt: d.Attempt, Error: errString(reason)})
	s.queue.Enqueue(func(context.Context) error {
		s.releaseIdleLock(gen)
		return nil
	})
	if s.notifier == nil {
		// nobody else reports it
		s.logger.Error("indexing daemon failed permanently, not restarting", "attempts", d.Attempt, "error", reason)
		return
	}
	s.logger.Info("retry budget exhausted, notifying", "attempts", d.Attempt)
	n := notify.Notification{
		Title:     "Recoll indexing stopped",
		Message:   fmt.Sprintf("recollindex kept failing after %d restarts and will not be started again until you start it manually.", d.Attempt),
		Attempts:  d.Attempt,
		LastError: errString(reason),
		At:        time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("failed to deliver failure notification", "error", err)
	}
}

// releaseIdleLock drops the index lock once the retry budget of run gen ran
// out and nothing is running. A newer run keeps its lock.
func (s *Supervisor) releaseIdleLock(gen uint64) {
	if s.gen.Load() != gen || s.IsRunning() {
		return
	}
	s.mu.Lock()
	lock := s.lock
	s.lock = nil
	s.mu.Unlock()
	if lock == nil {
		return
	}
	if err := lock.release(); err != nil {
		s.logger.Warn("failed to release index lock", "path", lock.Path(), "error", err)
		return
	}
	s.logger.Info("released index lock after giving up", "path", lock.Path())
}
