package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recollsup"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	daemonStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "daemon",
			Name:      "starts_total",
			Help:      "Number of successful daemon spawns by trigger (manual, retry).",
		}, []string{"trigger"},
	)
	daemonFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "daemon",
			Name:      "failures_total",
			Help:      "Number of daemon failures by kind (spawn, exit, error).",
		}, []string{"kind"},
	)
	daemonStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "daemon",
			Name:      "stops_total",
			Help:      "Number of terminations by result (graceful, forced, gone, gave_up).",
		}, []string{"result"},
	)
	daemonGaveUp = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "daemon",
			Name:      "gave_up_total",
			Help:      "Number of times the retry budget was exhausted.",
		},
	)
	daemonRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "daemon",
			Name:      "running",
			Help:      "1 while the indexing daemon is running.",
		},
	)
	retryAttempts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "daemon",
			Name:      "retry_attempts",
			Help:      "Consecutive restart attempts since the last stable run.",
		},
	)
	terminationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "daemon",
			Name:      "termination_duration_seconds",
			Help:      "Time from SIGTERM until the daemon was gone.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 3, 5},
		},
	)
	queries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "total",
			Help:      "Number of recollq invocations by result (ok, error).",
		}, []string{"result"},
	)
	queryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "recollq wall time.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		daemonStarts, daemonFailures, daemonStops, daemonGaveUp, daemonRunning,
		retryAttempts, terminationDuration, queries, queryDuration,
		daemonCPU, daemonRSS, daemonThreads,
	}
}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range collectors() {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// The helpers below no-op until Register has succeeded.

func IncStart(trigger string) {
	if regOK.Load() {
		daemonStarts.WithLabelValues(trigger).Inc()
	}
}

func IncFailure(kind string) {
	if regOK.Load() {
		daemonFailures.WithLabelValues(kind).Inc()
	}
}

func IncStop(result string) {
	if regOK.Load() {
		daemonStops.WithLabelValues(result).Inc()
	}
}

func IncGaveUp() {
	if regOK.Load() {
		daemonGaveUp.Inc()
	}
}

func SetRunning(running bool) {
	if regOK.Load() {
		if running {
			daemonRunning.Set(1)
		} else {
			daemonRunning.Set(0)
		}
	}
}

func SetRetryAttempts(n int) {
	if regOK.Load() {
		retryAttempts.Set(float64(n))
	}
}

func ObserveTermination(seconds float64) {
	if regOK.Load() {
		terminationDuration.Observe(seconds)
	}
}

func ObserveQuery(ok bool, seconds float64) {
	if !regOK.Load() {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	queries.WithLabelValues(result).Inc()
	queryDuration.Observe(seconds)
}
