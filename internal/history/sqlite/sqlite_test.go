package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/recollsup/internal/history"
)

func TestSQLiteSink_FileRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	sink, err := New("sqlite://" + dbPath)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	rec := history.Record{RunID: "run-1", HostKey: "aa:bb", PID: 4242, StartedAt: time.Now().Add(-time.Minute)}
	require.NoError(t, sink.Send(ctx, history.NewEvent(history.EventStart, rec)))
	rec.Outcome = "terminated"
	require.NoError(t, sink.Send(ctx, history.NewEvent(history.EventStop, rec)))
	require.NoError(t, sink.Send(ctx, history.NewEvent(history.EventStop, history.Record{RunID: "run-1"})))

	n, err := sink.CountByType(ctx, history.EventStop)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// schema creation is idempotent
	again, err := New(dbPath)
	require.NoError(t, err)
	n, err = again.CountByType(ctx, history.EventStart)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_ = again.Close()
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, history.NewEvent(history.EventGaveUp, history.Record{RunID: "r", Attempt: 3, Error: "exit code 1"})))
	n, err := sink.CountByType(ctx, history.EventGaveUp)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteSink_ContextCancellation(t *testing.T) {
	sink, err := New(":memory:")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = sink.Send(ctx, history.NewEvent(history.EventStart, history.Record{RunID: "r"}))
	assert.Error(t, err)
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
