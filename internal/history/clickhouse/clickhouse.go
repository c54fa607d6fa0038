package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/respawn/internal/history"
)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create ClickHouse table: %w", err)
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			event String,
			occurred_at DateTime64(6),
			name String,
			pid Int64,
			started_at DateTime64(6),
			ended_at Nullable(DateTime64(6)),
			outcome Nullable(String),
			exit_code Nullable(Int64),
			detail Nullable(String),
			uniq String
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, uniq)`, s.table)
	return s.conn.Exec(ctx, query)
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	rec := e.Record

	var endedAt *time.Time
	if rec.EndedAt.Valid {
		t := rec.EndedAt.Time.UTC()
		endedAt = &t
	}
	var outcome *string
	if rec.Outcome.Valid {
		outcome = &rec.Outcome.String
	}
	var exitCode *int64
	if rec.ExitCode.Valid {
		exitCode = &rec.ExitCode.Int64
	}
	var detail *string
	if rec.Detail.Valid {
		detail = &rec.Detail.String
	}

	query := fmt.Sprintf(`INSERT INTO %s (event, occurred_at, name, pid, started_at, ended_at, outcome, exit_code, detail, uniq) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt.UTC(),
		rec.Name,
		int64(rec.PID),
		rec.StartedAt.UTC(),
		endedAt,
		outcome,
		exitCode,
		detail,
		rec.Key(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
