// Package query runs recollq searches against the index.
package query

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/recollsup/internal/config"
	"github.com/loykin/recollsup/internal/env"
	"github.com/loykin/recollsup/internal/metrics"
	"github.com/loykin/recollsup/internal/process"
)

// QueryError reports a failed recollq invocation. Either Err (spawn
// failure) or ExitCode and Stderr are set.
type QueryError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return "recollq: " + e.Err.Error()
	}
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("recollq exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("recollq exited with code %d: %s", e.ExitCode, msg)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Runner runs one recollq process per query. Queries are independent of
// each other and of the daemon lifecycle.
type Runner struct {
	Exec    string
	ConfDir string
	Env     []string
	Logger  *slog.Logger
}

// NewRunner builds a Runner from a configuration snapshot.
func NewRunner(snap config.Snapshot, base []string) *Runner {
	return &Runner{
		Exec:    snap.RecollQ,
		ConfDir: snap.ConfDir,
		Env:     env.ForRecoll(snap, base),
	}
}

// Args returns the recollq command line for q.
func (r *Runner) Args(q string) []string {
	args := []string{"-F", strings.Join(Fields, " "), "-S", "relevancyrating"}
	if r.ConfDir != "" {
		args = append(args, "-c", r.ConfDir)
	}
	return append(args, q)
}

// Query runs recollq and parses its output.
func (r *Runner) Query(ctx context.Context, q string) (recs []Record, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery(err == nil, time.Since(start).Seconds()) }()

	exe := r.Exec
	if exe == "" {
		exe = "recollq"
	}
	spec := process.Spec{Name: "recollq", Executable: exe, Args: r.Args(q), Env: r.Env}
	cmd, err := spec.BuildCommandContext(ctx)
	if err != nil {
		return nil, &QueryError{ExitCode: -1, Err: err}
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && ctx.Err() == nil {
			return nil, &QueryError{ExitCode: ee.ExitCode(), Stderr: stderr.String()}
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &QueryError{ExitCode: -1, Stderr: stderr.String(), Err: err}
	}
	return Parse(stdout.Bytes())
}

// Search builds the query for input and filter and runs it. Any failure is
// logged and reported as no results.
func (r *Runner) Search(ctx context.Context, input string, filter FilterType) []Record {
	q, ok := BuildQuery(input, filter)
	if !ok {
		return []Record{}
	}
	recs, err := r.Query(ctx, q)
	if err != nil {
		r.logger().Warn("search failed", "query", q, "error", err)
		return []Record{}
	}
	return recs
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
