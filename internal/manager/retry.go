package manager

import (
	"time"

	"github.com/loykin/recollsup/internal/config"
)

// RetryPolicy bounds automatic restarts of the daemon.
type RetryPolicy struct {
	MaxAttempts   int
	Cooldown      time.Duration
	SuccessWindow time.Duration
}

// DefaultRetryPolicy allows three restarts five seconds apart; a run lasting
// thirty seconds restores the full budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Cooldown: 5 * time.Second, SuccessWindow: 30 * time.Second}
}

// PolicyFrom extracts the retry policy from supervisor settings.
func PolicyFrom(c config.SupervisorConfig) RetryPolicy {
	return RetryPolicy{MaxAttempts: c.MaxAttempts, Cooldown: c.Cooldown, SuccessWindow: c.SuccessWindow}
}

// Decision is the outcome of one failure.
type Decision struct {
	// Retry asks the driver to start the daemon again after Delay.
	Retry   bool
	Attempt int
	Delay   time.Duration
	// Exhausted is set exactly once per budget, on the failure that used it up.
	Exhausted bool
}

// RetryState counts consecutive failures. Spawn failures and unexpected
// exits share one budget.
type RetryState struct {
	Policy      RetryPolicy
	Attempts    int
	LastFailure time.Time
	LastError   string
	GaveUp      bool
}

// Next records a failure and decides what to do about it. Once the budget
// is exhausted every further failure is ignored until Reset.
func (s *RetryState) Next(reason error) Decision {
	s.LastFailure = time.Now()
	if reason != nil {
		s.LastError = reason.Error()
	}
	if s.GaveUp {
		return Decision{Attempt: s.Attempts}
	}
	if s.Attempts < s.Policy.MaxAttempts {
		s.Attempts++
		return Decision{Retry: true, Attempt: s.Attempts, Delay: s.Policy.Cooldown}
	}
	s.GaveUp = true
	return Decision{Attempt: s.Attempts, Exhausted: true}
}

// Stable restores the attempt budget after a run outlasted the success window.
func (s *RetryState) Stable() {
	s.Attempts = 0
}

// Reset clears everything, including the gave-up latch. Used on manual start.
func (s *RetryState) Reset() {
	p := s.Policy
	*s = RetryState{Policy: p}
}
