package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))

	IncStart("manual")
	IncStart("retry")
	IncFailure("exit")
	IncStop("forced")
	IncGaveUp()
	SetRunning(true)
	SetRetryAttempts(2)
	ObserveTermination(0.4)
	ObserveQuery(true, 0.02)
	ObserveQuery(false, 0.5)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got := map[string]bool{}
	for _, mf := range mfs {
		got[mf.GetName()] = true
	}
	for _, name := range []string{
		"recollsup_daemon_starts_total",
		"recollsup_daemon_failures_total",
		"recollsup_daemon_stops_total",
		"recollsup_daemon_gave_up_total",
		"recollsup_daemon_running",
		"recollsup_daemon_retry_attempts",
		"recollsup_daemon_termination_duration_seconds",
		"recollsup_query_total",
		"recollsup_query_duration_seconds",
	} {
		assert.True(t, got[name], "missing metric %s", name)
	}

	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), `recollsup_daemon_starts_total{trigger="retry"} 1`))
}

func TestResourceCollectorSamplesSelf(t *testing.T) {
	c := &ResourceCollector{Interval: 20 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, os.Getpid)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for c.Last() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	u := c.Last()
	require.NotNil(t, u)
	assert.Equal(t, os.Getpid(), u.PID)
	assert.Greater(t, u.RSSBytes, uint64(0))

	c.sample(0)
	assert.Nil(t, c.Last())
}

func TestResourceCollectorMeasuresInterval(t *testing.T) {
	c := &ResourceCollector{}
	c.sample(os.Getpid())
	require.NotNil(t, c.Last())
	assert.Zero(t, c.Last().CPUPercent, "first sample has no interval")
	first := c.proc
	require.NotNil(t, first)

	// burn some CPU between samples
	deadline := time.Now().Add(200 * time.Millisecond)
	n := 0
	for time.Now().Before(deadline) {
		n++
	}
	c.sample(os.Getpid())
	require.NotNil(t, c.Last())
	assert.Same(t, first, c.proc)
	assert.Greater(t, c.Last().CPUPercent, 0.0, "busy loop of %d iterations", n)

	c.sample(0)
	assert.Nil(t, c.proc)
}
