package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/recollsup/internal/history"
	mng "github.com/loykin/recollsup/internal/manager"
	"github.com/loykin/recollsup/internal/query"
)

// Daemon is the lifecycle surface the router drives. *manager.Supervisor
// satisfies it.
type Daemon interface {
	Start(extra []string) <-chan error
	Stop() <-chan error
	Reindex() <-chan error
	Status() mng.Status
}

// Searcher runs a filtered search. Failures are reported as no results.
type Searcher interface {
	Search(ctx context.Context, input string, filter query.FilterType) []query.Record
}

// Router provides embeddable HTTP handlers for the indexing daemon.
// Endpoints:
//
//	GET  {basePath}/status
//	POST {basePath}/start      body: {"extra": [...]} (optional); query: async=1
//	POST {basePath}/stop       query: async=1
//	POST {basePath}/reindex    query: async=1
//	GET  {basePath}/search     query: q=...&filter=markdown|files|all
//	GET  {basePath}/history    query: n=50
//	GET  {basePath}/debug/env
//	GET  /metrics              when a metrics handler is set
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	daemon   Daemon
	search   Searcher
	basePath string

	history *history.Memory
	envFn   func() ([]string, error)
	debug   func() bool
	metrics http.Handler
	logger  *slog.Logger
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(d Daemon, s Searcher, basePath string) *Router {
	return &Router{daemon: d, search: s, basePath: sanitizeBase(basePath), logger: slog.Default()}
}

// WithHistory serves recent lifecycle events from h.
func (r *Router) WithHistory(h *history.Memory) *Router {
	r.history = h
	return r
}

// WithEnv exposes the daemon environment produced by fn on debug/env while
// enabled reports true. The route answers 404 otherwise.
func (r *Router) WithEnv(fn func() ([]string, error), enabled func() bool) *Router {
	r.envFn = fn
	r.debug = enabled
	return r
}

// WithMetrics mounts h at /metrics.
func (r *Router) WithMetrics(h http.Handler) *Router {
	r.metrics = h
	return r
}

func (r *Router) WithLogger(l *slog.Logger) *Router {
	if l != nil {
		r.logger = l
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	if r.metrics != nil {
		g.GET("/metrics", gin.WrapH(r.metrics))
	}
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/reindex", r.handleReindex)
	group.GET("/search", r.handleSearch)
	group.GET("/history", r.handleHistory)
	group.GET("/debug/env", r.handleDebugEnv)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Bind errors are returned; serve errors after that are logged.
func NewServer(addr string, r *Router, tlsCfg *tls.Config) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server stopped", "addr", server.Addr, "error", err)
		}
	}()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK      bool `json:"ok"`
	Pending bool `json:"pending,omitempty"`
}

type startReq struct {
	Extra []string `json:"extra"`
}

type searchResp struct {
	Query   string           `json:"query"`
	Filter  query.FilterType `json:"filter"`
	Results []query.Record   `json:"results"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.daemon.Status())
}

func (r *Router) handleStart(c *gin.Context) {
	var req startReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
	}
	if err := validateExtra(req.Extra); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	r.await(c, r.daemon.Start(req.Extra))
}

func (r *Router) handleStop(c *gin.Context) {
	r.await(c, r.daemon.Stop())
}

func (r *Router) handleReindex(c *gin.Context) {
	r.await(c, r.daemon.Reindex())
}

// await waits for a queued lifecycle operation unless async=1 was requested.
func (r *Router) await(c *gin.Context, done <-chan error) {
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		writeJSON(c, http.StatusAccepted, okResp{OK: true, Pending: true})
		return
	}
	select {
	case err := <-done:
		if err != nil {
			writeJSON(c, errorStatus(err), errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusOK, okResp{OK: true})
	case <-c.Request.Context().Done():
		writeJSON(c, http.StatusAccepted, okResp{OK: true, Pending: true})
	}
}

func (r *Router) handleSearch(c *gin.Context) {
	filter, err := query.ParseFilter(c.Query("filter"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	input, err := query.ScopeDir(c.Query("dir"), c.Query("q"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	q, _ := query.BuildQuery(input, filter)
	writeJSON(c, http.StatusOK, searchResp{
		Query:   q,
		Filter:  filter,
		Results: r.search.Search(c.Request.Context(), input, filter),
	})
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.history == nil {
		writeJSON(c, http.StatusOK, []history.Event{})
		return
	}
	n, err := strconv.Atoi(c.DefaultQuery("n", "50"))
	if err != nil || n < 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "n must be a non-negative integer"})
		return
	}
	writeJSON(c, http.StatusOK, r.history.Recent(n))
}

func (r *Router) handleDebugEnv(c *gin.Context) {
	if r.envFn == nil || r.debug == nil || !r.debug() {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "environment not available"})
		return
	}
	env, err := r.envFn()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, env)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, mng.ErrTerminationGaveUp), errors.Is(err, mng.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, mng.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
