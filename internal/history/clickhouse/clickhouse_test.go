package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/recollsup/internal/history"
)

// setupClickHouseContainer starts a ClickHouse container and returns its native address.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()
	c, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("ClickHouse container unavailable: %v", err)
	}
	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "9000")
	require.NoError(t, err)
	return c, host + ":" + port.Port()
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	c, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := c.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink, err := New(addr, "daemon_history")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	rec := history.Record{RunID: "run-ch", PID: 12345, StartedAt: time.Now().Add(-time.Minute)}
	require.NoError(t, sink.Send(ctx, history.NewEvent(history.EventStart, rec)))
	require.NoError(t, sink.Send(ctx, history.NewEvent(history.EventExit, history.Record{RunID: rec.RunID, Error: "exit code 1"})))

	var count uint64
	require.NoError(t, sink.conn.QueryRow(ctx, "SELECT COUNT(*) FROM daemon_history WHERE run_id = ?", rec.RunID).Scan(&count))
	assert.Equal(t, uint64(2), count)
}

func TestClickHouseSink_ConnectionError(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping network test in short mode")
	}
	_, err := New("invalid-host.invalid:9000", "test_table")
	assert.Error(t, err)
}

func TestClickHouseSink_RejectsBadTableName(t *testing.T) {
	_, err := Open(Options{Addr: "localhost:9000", Table: "x; DROP TABLE y"})
	assert.ErrorContains(t, err, "invalid ClickHouse table name")
}
