package clickhouse

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/loykin/recollsup/internal/history"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Options configures the ClickHouse connection.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to addr with the default user and database.
func New(addr, table string) (*Sink, error) {
	return Open(Options{Addr: addr, Table: table})
}

// Open connects, pings and creates the history table when missing.
func Open(o Options) (*Sink, error) {
	if o.Table == "" {
		o.Table = "daemon_history"
	}
	if !tableName.MatchString(o.Table) {
		return nil, fmt.Errorf("invalid ClickHouse table name %q", o.Table)
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{o.Addr},
		Auth: clickhouse.Auth{
			Database: valOr(o.Database, "default"),
			Username: valOr(o.Username, "default"),
			Password: o.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	s := &Sink{conn: conn, table: o.Table}
	if err := s.ensureTable(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureTable(ctx context.Context) error {
	err := s.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		id String,
		occurred_at DateTime64(6),
		type LowCardinality(String),
		run_id String,
		host_key String,
		pid Int64,
		started_at Nullable(DateTime64(6)),
		attempt Int32,
		outcome String,
		error String
	) ENGINE = MergeTree()
	ORDER BY (occurred_at, run_id)`)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse table: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	r := e.Record
	var started *time.Time
	if !r.StartedAt.IsZero() {
		t := r.StartedAt.UTC()
		started = &t
	}
	query := `INSERT INTO ` + s.table + ` (` + history.Columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	err := s.conn.Exec(ctx, query,
		e.ID, e.OccurredAt.UTC(), string(e.Type), r.RunID, r.HostKey,
		int64(r.PID), started, int32(r.Attempt), r.Outcome, r.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}

func valOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
