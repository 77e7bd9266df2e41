package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/recollsup/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	pgc, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}
	defer func() {
		if err := pgc.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := pgc.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sink, err := New(connStr)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	rec := history.Record{RunID: "run-pg", PID: 12345, StartedAt: time.Now().UTC()}
	require.NoError(t, sink.Send(ctx, history.NewEvent(history.EventStart, rec)))
	rec.Outcome = "terminated"
	require.NoError(t, sink.Send(ctx, history.NewEvent(history.EventStop, rec)))

	var count int
	require.NoError(t, sink.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM daemon_history WHERE run_id = $1", rec.RunID).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestPostgresSink_EmptyDSN(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
