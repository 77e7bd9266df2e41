package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/loykin/recollsup/internal/config"
	"github.com/loykin/recollsup/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecollq writes a shell script standing in for recollq.
func fakeRecollq(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	p := filepath.Join(t.TempDir(), "recollq")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return p
}

func TestRunnerArgs(t *testing.T) {
	r := &Runner{ConfDir: "/conf"}
	assert.Equal(t, []string{"-F", "url mtype created modified tags relevancyrating", "-S", "relevancyrating", "-c", "/conf", "x y"}, r.Args("x y"))
	r.ConfDir = ""
	assert.Equal(t, []string{"-F", "url mtype created modified tags relevancyrating", "-S", "relevancyrating", "x"}, r.Args("x"))
}

func TestQueryParsesOutput(t *testing.T) {
	line := resultLine("file:///v/a.md", "text/markdown", "1", "2", "t", "50%")
	exe := fakeRecollq(t, `echo "$@" >&2
echo "query"
echo "1 results"
echo "`+line+`"`)
	r := &Runner{Exec: exe, Env: []string{"PATH=/usr/bin:/bin"}}
	recs, err := r.Query(context.Background(), "a mime:text/markdown")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a.md", recs[0].Name)
}

func TestQueryNonZeroExit(t *testing.T) {
	exe := fakeRecollq(t, `echo "no index at /conf" >&2; exit 2`)
	r := &Runner{Exec: exe, Env: []string{"PATH=/usr/bin:/bin"}}
	_, err := r.Query(context.Background(), "x")
	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 2, qe.ExitCode)
	assert.Contains(t, qe.Stderr, "no index")
	assert.Contains(t, err.Error(), "code 2")

	assert.Empty(t, r.Search(context.Background(), "x", FilterAll))
	assert.NotNil(t, r.Search(context.Background(), "x", FilterAll))
}

func TestQuerySpawnFailure(t *testing.T) {
	r := &Runner{Exec: filepath.Join(t.TempDir(), "missing-recollq")}
	_, err := r.Query(context.Background(), "x")
	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	require.Error(t, qe.Err)
	assert.Equal(t, -1, qe.ExitCode)
}

func TestQueryEmptyExecutableDefaultsToRecollq(t *testing.T) {
	r := &Runner{Env: []string{"PATH=" + t.TempDir()}}
	_, err := r.Query(context.Background(), "x")
	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.False(t, errors.Is(err, process.ErrNoExecutable))
}

func TestSearchSkipsBlankInput(t *testing.T) {
	exe := fakeRecollq(t, `touch "$0.called"`)
	r := &Runner{Exec: exe}
	assert.Empty(t, r.Search(context.Background(), "  ", FilterMarkdown))
	_, err := os.Stat(exe + ".called")
	assert.True(t, os.IsNotExist(err))
}

func TestNewRunnerFromSnapshot(t *testing.T) {
	snap := config.Snapshot{RecollQ: "/opt/recollq", ConfDir: "/c", DataDir: "/d"}
	r := NewRunner(snap, []string{"PATH=/bin"})
	assert.Equal(t, "/opt/recollq", r.Exec)
	assert.Equal(t, "/c", r.ConfDir)
	joined := strings.Join(r.Env, "\n")
	assert.Contains(t, joined, "RECOLL_CONFDIR=/c")
	assert.Contains(t, joined, "RECOLL_DATADIR=/d")
}
