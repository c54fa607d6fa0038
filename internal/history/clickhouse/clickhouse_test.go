package clickhouse

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/respawn/internal/history"
	"github.com/loykin/respawn/internal/store"
)

// setupClickHouseContainer starts a ClickHouse container for testing.
// It skips the test if Docker is unavailable.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	clickHouseContainer, err := clickhouse.Run(ctx,
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
		t.Skipf("Failed to start ClickHouse container: %v", err)
		return nil, ""
	}

	host, err := clickHouseContainer.Host(ctx)
	if err != nil {
		_ = clickHouseContainer.Terminate(ctx)
		t.Skipf("Failed to get container host: %v", err)
		return nil, ""
	}

	port, err := clickHouseContainer.MappedPort(ctx, "9000")
	if err != nil {
		_ = clickHouseContainer.Terminate(ctx)
		t.Skipf("Failed to get mapped port: %v", err)
		return nil, ""
	}

	return clickHouseContainer, host + ":" + port.Port()
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	clickHouseContainer, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := clickHouseContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	// New creates the table on connect.
	sink, err := New(addr, "process_history")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	started := time.Now().Add(-time.Minute).UTC()
	rec := store.Record{
		Name:      "test-process",
		PID:       12345,
		StartedAt: started,
		Running:   true,
		Uniq:      "test-unique-key",
	}

	startEvent := history.Event{
		Type:       history.EventStart,
		OccurredAt: time.Now().UTC(),
		Record:     rec,
	}
	if err := sink.Send(ctx, startEvent); err != nil {
		t.Fatalf("Failed to send start event: %v", err)
	}

	ended := time.Now().UTC()
	rec.Running = false
	rec.EndedAt = sql.NullTime{Time: ended, Valid: true}
	rec.Outcome = sql.NullString{String: "exited", Valid: true}
	rec.ExitCode = sql.NullInt64{Int64: 1, Valid: true}
	rec.Detail = sql.NullString{String: "exit status 1", Valid: true}

	exitEvent := history.Event{
		Type:       history.EventExit,
		OccurredAt: ended,
		Record:     rec,
	}
	if err := sink.Send(ctx, exitEvent); err != nil {
		t.Fatalf("Failed to send exit event: %v", err)
	}

	// Wait a moment for data to be written
	time.Sleep(100 * time.Millisecond)

	row := sink.conn.QueryRow(ctx, "SELECT COUNT(*) FROM process_history WHERE uniq = ?", rec.Uniq)
	var count uint64
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Failed to query count: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 events, got %d", count)
	}

	row = sink.conn.QueryRow(ctx,
		"SELECT outcome, exit_code FROM process_history WHERE uniq = ? AND event = ?",
		rec.Uniq, string(history.EventExit))
	var outcome *string
	var exitCode *int64
	if err := row.Scan(&outcome, &exitCode); err != nil {
		t.Fatalf("Failed to query exit row: %v", err)
	}
	if outcome == nil || *outcome != "exited" {
		t.Errorf("Expected outcome exited, got %v", outcome)
	}
	if exitCode == nil || *exitCode != 1 {
		t.Errorf("Expected exit code 1, got %v", exitCode)
	}
}

func TestClickHouseSink_Send_ContextCancellation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	clickHouseContainer, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := clickHouseContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink, err := New(addr, "process_history")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()

	event := history.Event{
		Type:       history.EventStart,
		OccurredAt: time.Now().UTC(),
		Record: store.Record{
			Name:      "cancelled-process",
			PID:       99999,
			StartedAt: time.Now().UTC(),
			Running:   true,
			Uniq:      "cancelled-unique-key",
		},
	}

	// Send with a cancelled context; an error here is acceptable.
	if err := sink.Send(cancelCtx, event); err != nil {
		t.Logf("Expected error with cancelled context: %v", err)
	}
}
