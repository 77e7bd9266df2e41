// Package recollsup supervises a Recoll indexing daemon and runs searches
// against its index. It is the public facade over the internal packages.
package recollsup

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	cfg "github.com/loykin/recollsup/internal/config"
	"github.com/loykin/recollsup/internal/env"
	"github.com/loykin/recollsup/internal/history"
	"github.com/loykin/recollsup/internal/history/factory"
	"github.com/loykin/recollsup/internal/manager"
	"github.com/loykin/recollsup/internal/metrics"
	"github.com/loykin/recollsup/internal/notify"
	"github.com/loykin/recollsup/internal/process"
	"github.com/loykin/recollsup/internal/query"
	iapi "github.com/loykin/recollsup/internal/server"
	itls "github.com/loykin/recollsup/internal/tls"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.

type Config = cfg.Config

type Snapshot = cfg.Snapshot

type Status = manager.Status

type Record = query.Record

type FilterType = query.FilterType

type Notification = notify.Notification

type HistorySink = history.Sink

type HistoryEvent = history.Event

const (
	FilterMarkdown = query.FilterMarkdown
	FilterFiles    = query.FilterFiles
	FilterAll      = query.FilterAll
)

var (
	ErrTerminationGaveUp = manager.ErrTerminationGaveUp
	ErrLocked            = manager.ErrLocked
	ErrQueueClosed       = manager.ErrQueueClosed
)

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// Options customize a Supervisor.
type Options struct {
	Logger *slog.Logger
	// System replaces the OS process layer; used by tests.
	System process.System
	// Notifier receives the permanent failure notification in addition to
	// the notifiers built from the configuration.
	Notifier notify.Notifier
	// BaseEnv is the environment daemon and query environments build on.
	// Nil means the current process environment.
	BaseEnv []string
}

// Supervisor bundles the configuration store, the daemon supervisor, the
// history sinks and the notifier chain.
type Supervisor struct {
	store   *cfg.Store
	inner   *manager.Supervisor
	latch   *notify.Latch
	memory  *history.Memory
	closers []io.Closer
	logger  *slog.Logger
	baseEnv []string
}

// Open loads the configuration at path and builds a Supervisor. The daemon
// is not started.
func Open(path string, opts Options) (*Supervisor, error) {
	store, err := cfg.NewStore(path)
	if err != nil {
		return nil, err
	}
	return NewSupervisor(store, opts)
}

// NewSupervisor builds a Supervisor on an existing store.
func NewSupervisor(store *cfg.Store, opts Options) (*Supervisor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := store.Config()
	s := &Supervisor{
		store:   store,
		latch:   &notify.Latch{},
		memory:  history.NewMemory(256),
		logger:  logger,
		baseEnv: opts.BaseEnv,
	}

	sinks := history.Fanout{s.memory}
	if c.History.Enabled && c.History.DSN != "" {
		sink, err := factory.NewSinkFromDSN(c.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("open history sink: %w", err)
		}
		sinks = append(sinks, sink)
		if cl, ok := sink.(io.Closer); ok {
			s.closers = append(s.closers, cl)
		}
	}

	chain := notify.Multi{s.latch, notify.FromConfig(c.Notify, logger)}
	if opts.Notifier != nil {
		chain = append(chain, opts.Notifier)
	}

	mopts := []manager.Option{
		manager.WithLogger(logger),
		manager.WithHistory(sinks),
	}
	if opts.System != nil {
		mopts = append(mopts, manager.WithSystem(opts.System))
	}
	if opts.BaseEnv != nil {
		mopts = append(mopts, manager.WithBaseEnv(opts.BaseEnv))
	}
	if c.Log.File.Dir != "" || c.Log.File.StderrPath != "" {
		stdout, stderr, err := c.Log.ProcessWriters("recollindex")
		if err != nil {
			return nil, fmt.Errorf("open daemon log files: %w", err)
		}
		for _, w := range []io.WriteCloser{stdout, stderr} {
			if w != nil {
				s.closers = append(s.closers, w)
			}
		}
		if stdout != nil {
			mopts = append(mopts, manager.WithStdout(stdout))
		}
		if stderr != nil {
			mopts = append(mopts, manager.WithStderr(stderr))
		}
	}
	s.inner = manager.New(store, chain, mopts...)
	return s, nil
}

// Start replaces any running daemon and clears a previous failure.
func (s *Supervisor) Start(ctx context.Context, extra ...string) error {
	s.latch.Clear()
	return wait(ctx, s.inner.Start(extra))
}

func (s *Supervisor) Stop(ctx context.Context) error { return wait(ctx, s.inner.Stop()) }

func (s *Supervisor) Restart(ctx context.Context) error {
	s.latch.Clear()
	return wait(ctx, s.inner.Restart())
}

// Reindex restarts the daemon with a full index reset.
func (s *Supervisor) Reindex(ctx context.Context) error {
	s.latch.Clear()
	return wait(ctx, s.inner.Reindex())
}

func (s *Supervisor) IsRunning() bool { return s.inner.IsRunning() }

func (s *Supervisor) Status() Status { return s.inner.Status() }

// LastNotification returns the pending failure notification, or nil.
func (s *Supervisor) LastNotification() *Notification { return s.latch.Last() }

// History returns up to n recent lifecycle events, newest last.
func (s *Supervisor) History(n int) []HistoryEvent { return s.memory.Recent(n) }

// Reload rereads the configuration file; the next start uses it.
func (s *Supervisor) Reload() error { return s.store.Reload() }

// Env returns the environment the daemon would be started with now.
func (s *Supervisor) Env() ([]string, error) {
	snap, err := s.store.Snapshot()
	if err != nil {
		return nil, err
	}
	return env.ForRecoll(snap, s.baseEnv), nil
}

func (s *Supervisor) debugEnabled() bool {
	snap, err := s.store.Snapshot()
	return err == nil && snap.Debug
}

// Query runs a raw recollq query with the current configuration.
func (s *Supervisor) Query(ctx context.Context, q string) ([]Record, error) {
	r, err := s.runner()
	if err != nil {
		return nil, err
	}
	return r.Query(ctx, q)
}

// Search runs a filtered search; failures yield no results.
func (s *Supervisor) Search(ctx context.Context, input string, filter FilterType) []Record {
	r, err := s.runner()
	if err != nil {
		s.logger.Warn("search unavailable", "error", err)
		return []Record{}
	}
	return r.Search(ctx, input, filter)
}

func (s *Supervisor) runner() (*query.Runner, error) {
	snap, err := s.store.Snapshot()
	if err != nil {
		return nil, err
	}
	r := query.NewRunner(snap, s.baseEnv)
	r.Logger = s.logger
	return r, nil
}

// CollectResources samples the daemon's CPU and memory until ctx is done.
func (s *Supervisor) CollectResources(ctx context.Context, interval time.Duration) *metrics.ResourceCollector {
	rc := &metrics.ResourceCollector{Interval: interval, Logger: s.logger}
	go rc.Run(ctx, s.inner.PID)
	return rc
}

// Handler returns the HTTP API for this supervisor mounted at basePath.
func (s *Supervisor) Handler(basePath string, withMetrics bool) http.Handler {
	return s.router(basePath, withMetrics).Handler()
}

func (s *Supervisor) router(basePath string, withMetrics bool) *iapi.Router {
	r := iapi.NewRouter(s.inner, s, basePath).
		WithHistory(s.memory).
		WithEnv(s.Env, s.debugEnabled).
		WithLogger(s.logger)
	if withMetrics {
		r.WithMetrics(metrics.Handler())
	}
	return r
}

// Close stops the daemon and releases sinks and log files.
func (s *Supervisor) Close(ctx context.Context) error {
	errs := []error{s.inner.Close(ctx)}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func wait(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewHTTPServer starts an HTTP server exposing the API of s. A non-nil
// tlsCfg serves HTTPS.
func NewHTTPServer(addr, basePath string, s *Supervisor, withMetrics bool, tlsCfg *tls.Config) (*http.Server, error) {
	return iapi.NewServer(addr, s.router(basePath, withMetrics), tlsCfg)
}

// SetupTLS builds the API TLS configuration from the [server.tls] table.
func SetupTLS(c cfg.TLSConfig) (*tls.Config, error) { return itls.Setup(c) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics from the default registry on addr in the
// caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}

// HostKey returns the key used to select the per-host configuration.
func (s *Supervisor) HostKey() string { return s.store.HostKey() }
