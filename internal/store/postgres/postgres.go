package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/respawn/internal/store"
)

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS process_runs(
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NULL,
			running BOOLEAN NOT NULL,
			outcome TEXT NULL,
			exit_code INTEGER NULL,
			detail TEXT NULL,
			uniq TEXT NOT NULL UNIQUE,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_process_runs_name ON process_runs(name);`,
		`CREATE INDEX IF NOT EXISTS idx_process_runs_running ON process_runs(running);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) RecordStart(ctx context.Context, rec store.Record) error {
	rec.Running = true
	rec.UpdatedAt = time.Now().UTC()
	uniq := rec.Key()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO process_runs(name, pid, started_at, ended_at, running, outcome, exit_code, detail, uniq, updated_at)
		VALUES($1,$2,$3,NULL,true,NULL,NULL,NULL,$4,$5)
		ON CONFLICT(uniq) DO UPDATE SET
			name=EXCLUDED.name,
			pid=EXCLUDED.pid,
			started_at=EXCLUDED.started_at,
			running=EXCLUDED.running,
			ended_at=NULL,
			outcome=NULL,
			exit_code=NULL,
			detail=NULL,
			updated_at=EXCLUDED.updated_at;`,
		rec.Name, rec.PID, rec.StartedAt.UTC(), uniq, rec.UpdatedAt)
	return err
}

func (p *DB) RecordExit(ctx context.Context, uniq string, endedAt time.Time, outcome string, exitCode int, detail string) error {
	var det sql.NullString
	if detail != "" {
		det = sql.NullString{String: detail, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE process_runs
		SET running=false, ended_at=$1, outcome=$2, exit_code=$3, detail=$4, updated_at=$5
		WHERE uniq=$6;`,
		endedAt.UTC(), outcome, exitCode, det, time.Now().UTC(), uniq)
	return err
}

func (p *DB) GetByName(ctx context.Context, name string, limit int) ([]store.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, pid, started_at, ended_at, running, outcome, exit_code, detail, uniq, updated_at
		FROM process_runs
		WHERE name=$1
		ORDER BY started_at DESC
		LIMIT $2;`, name, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

func (p *DB) GetRunning(ctx context.Context, namePrefix string) ([]store.Record, error) {
	like := strings.TrimSpace(namePrefix) + "%"
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, pid, started_at, ended_at, running, outcome, exit_code, detail, uniq, updated_at
		FROM process_runs
		WHERE running=true AND name LIKE $1
		ORDER BY updated_at DESC;`, like)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

func (p *DB) PurgeOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM process_runs WHERE running=false AND updated_at < $1;`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRecords(rows *sql.Rows) ([]store.Record, error) {
	out := make([]store.Record, 0)
	for rows.Next() {
		var r store.Record
		if err := rows.Scan(&r.ID, &r.Name, &r.PID, &r.StartedAt, &r.EndedAt, &r.Running, &r.Outcome, &r.ExitCode, &r.Detail, &r.Uniq, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
