package manager

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryStateExhaustsOnce(t *testing.T) {
	s := RetryState{Policy: DefaultRetryPolicy()}
	reason := errors.New("spawn failed")

	for i := 1; i <= 3; i++ {
		d := s.Next(reason)
		assert.True(t, d.Retry)
		assert.Equal(t, i, d.Attempt)
		assert.Equal(t, 5*time.Second, d.Delay)
		assert.False(t, d.Exhausted)
	}

	d := s.Next(reason)
	assert.False(t, d.Retry)
	assert.True(t, d.Exhausted)
	assert.True(t, s.GaveUp)
	assert.Equal(t, "spawn failed", s.LastError)

	d = s.Next(reason)
	assert.False(t, d.Retry)
	assert.False(t, d.Exhausted)
}

func TestRetryStateStableAndReset(t *testing.T) {
	s := RetryState{Policy: RetryPolicy{MaxAttempts: 2, Cooldown: time.Millisecond}}
	s.Next(nil)
	s.Next(nil)
	s.Stable()
	assert.Equal(t, 1, s.Next(nil).Attempt)

	s.Next(nil)
	assert.True(t, s.Next(nil).Exhausted)
	s.Reset()
	assert.False(t, s.GaveUp)
	assert.Zero(t, s.Attempts)
	assert.Equal(t, 2, s.Policy.MaxAttempts)
	assert.True(t, s.Next(nil).Retry)
}

func TestRetryStateZeroBudget(t *testing.T) {
	s := RetryState{Policy: RetryPolicy{MaxAttempts: 0}}
	assert.True(t, s.Next(errors.New("x")).Exhausted)
}
