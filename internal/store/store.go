package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Record is one persisted run of a supervised process. A new record is
// created per launch; the exit columns stay NULL until the run ends.
type Record struct {
	ID        int64
	Name      string
	PID       int
	StartedAt time.Time
	EndedAt   sql.NullTime
	Running   bool
	Outcome   sql.NullString // exited, signaled or stopped
	ExitCode  sql.NullInt64
	Detail    sql.NullString // rendered status, e.g. "exit status 1"
	Uniq      string
	UpdatedAt time.Time
}

// Key returns the stable unique key identifying one run. A launch is
// identified by name, pid and start time so restarts never collide.
func (r Record) Key() string {
	if r.Uniq != "" {
		return r.Uniq
	}
	return fmt.Sprintf("%s|%d|%d", r.Name, r.PID, r.StartedAt.UTC().UnixNano())
}

// Store persists run state for supervised processes. Implementations
// must be safe for concurrent use; writers treat failures as
// non-fatal so persistence never delays the restart loop.
type Store interface {
	EnsureSchema(ctx context.Context) error
	RecordStart(ctx context.Context, rec Record) error
	RecordExit(ctx context.Context, uniq string, endedAt time.Time, outcome string, exitCode int, detail string) error
	GetByName(ctx context.Context, name string, limit int) ([]Record, error)
	GetRunning(ctx context.Context, namePrefix string) ([]Record, error)
	PurgeOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
	Close() error
}
