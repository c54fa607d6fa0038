package supervisor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/respawn/internal/history"
	"github.com/loykin/respawn/internal/logger"
	"github.com/loykin/respawn/internal/process"
	"github.com/loykin/respawn/internal/store"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer collects notice lines across goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type memExit struct {
	uniq    string
	endedAt time.Time
	outcome string
	code    int
	detail  string
}

// memStore records calls without persistence.
type memStore struct {
	mu     sync.Mutex
	starts []store.Record
	exits  []memExit
}

func (m *memStore) EnsureSchema(context.Context) error { return nil }

func (m *memStore) RecordStart(_ context.Context, rec store.Record) error {
	m.mu.Lock()
	m.starts = append(m.starts, rec)
	m.mu.Unlock()
	return nil
}

func (m *memStore) RecordExit(_ context.Context, uniq string, endedAt time.Time, outcome string, code int, detail string) error {
	m.mu.Lock()
	m.exits = append(m.exits, memExit{uniq: uniq, endedAt: endedAt, outcome: outcome, code: code, detail: detail})
	m.mu.Unlock()
	return nil
}

func (m *memStore) GetByName(context.Context, string, int) ([]store.Record, error) { return nil, nil }
func (m *memStore) GetRunning(context.Context, string) ([]store.Record, error)     { return nil, nil }
func (m *memStore) PurgeOlderThan(context.Context, time.Time) (int64, error)       { return 0, nil }
func (m *memStore) Close() error                                                   { return nil }

func (m *memStore) startCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.starts)
}

func (m *memStore) startList() []store.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Record(nil), m.starts...)
}

func (m *memStore) exitList() []memExit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]memExit(nil), m.exits...)
}

// memSink records history events in order.
type memSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (m *memSink) Send(_ context.Context, e history.Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return nil
}

func (m *memSink) eventList() []history.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Event(nil), m.events...)
}

func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestNewRejectsInvalidSpec(t *testing.T) {
	_, err := New(process.Spec{Name: "x"}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires command")

	_, err = New(process.Spec{Command: "true"}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires name")
}

func TestRunRestartsAfterExit(t *testing.T) {
	requireUnix(t)

	tests := []struct {
		name        string
		command     string
		wantOutcome string
		wantCode    int
		wantDetail  string
	}{
		{"clean exit restarts", "true", "exited", 0, "exit status 0"},
		{"nonzero exit restarts", "sh -c 'exit 3'", "exited", 3, "exit status 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf syncBuffer
			st := &memStore{}
			sink := &memSink{}
			sup, err := New(process.Spec{
				Name:     "loop-test",
				Command:  tt.command,
				Interval: 50 * time.Millisecond,
			}, Options{Notices: &buf, Logger: discardLogger(), Store: st, History: sink})
			require.NoError(t, err)

			require.NoError(t, sup.Start(context.Background()))
			waitFor(t, 10*time.Second, func() bool { return st.startCount() >= 3 }, "three launches")
			require.NoError(t, sup.Stop())

			status := sup.Status()
			assert.Equal(t, StateStopped, status.State)
			assert.GreaterOrEqual(t, status.Restarts, 2)

			exits := st.exitList()
			require.NotEmpty(t, exits)
			first := exits[0]
			assert.Equal(t, tt.wantOutcome, first.outcome)
			assert.Equal(t, tt.wantCode, first.code)
			assert.Equal(t, tt.wantDetail, first.detail)

			events := sink.eventList()
			require.GreaterOrEqual(t, len(events), 2)
			assert.Equal(t, history.EventStart, events[0].Type)
			assert.Equal(t, history.EventExit, events[1].Type)
			assert.Equal(t, events[0].Record.Key(), events[1].Record.Key())

			out := buf.String()
			assert.Contains(t, out, "respawn: starting loop-test")
			assert.Contains(t, out, "crashed ("+tt.wantDetail+"); restarting in 50ms")
		})
	}
}

func TestRunSpacesLaunchesByInterval(t *testing.T) {
	requireUnix(t)
	interval := 150 * time.Millisecond
	st := &memStore{}
	sup, err := New(process.Spec{
		Name:     "spacing",
		Command:  "true",
		Interval: interval,
	}, Options{Notices: io.Discard, Logger: discardLogger(), Store: st})
	require.NoError(t, err)

	require.NoError(t, sup.Start(context.Background()))
	waitFor(t, 10*time.Second, func() bool { return st.startCount() >= 4 }, "four launches")
	require.NoError(t, sup.Stop())

	starts := st.startList()
	exits := st.exitList()
	require.GreaterOrEqual(t, len(starts), 4)
	require.GreaterOrEqual(t, len(exits), 3)

	// Runs never overlap, and each relaunch waits out the full interval
	// after the previous exit.
	for i := 0; i+1 < len(starts) && i < len(exits); i++ {
		gap := starts[i+1].StartedAt.Sub(exits[i].endedAt)
		assert.GreaterOrEqual(t, gap, time.Duration(0),
			"run %d started before run %d ended", i+1, i)
		assert.GreaterOrEqual(t, gap, interval,
			"run %d launched before the pause elapsed (gap=%s)", i+1, gap)
	}
}

func TestSpawnFailureRetries(t *testing.T) {
	var buf syncBuffer
	st := &memStore{}
	sink := &memSink{}
	sup, err := New(process.Spec{
		Name:     "ghost",
		Command:  "/definitely/not/a/binary-zz",
		Interval: 30 * time.Millisecond,
	}, Options{Notices: &buf, Logger: discardLogger(), Store: st, History: sink})
	require.NoError(t, err)

	require.NoError(t, sup.Start(context.Background()))
	waitFor(t, 10*time.Second, func() bool {
		return strings.Count(buf.String(), "respawn: starting ghost") >= 3
	}, "repeated spawn attempts")
	require.NoError(t, sup.Stop())

	out := buf.String()
	assert.Contains(t, out, "crashed (spawn failed:")

	// No child ever ran, so no run rows and no history events.
	assert.Zero(t, st.startCount())
	assert.Empty(t, sink.eventList())

	status := sup.Status()
	require.NotNil(t, status.LastExit)
	assert.Equal(t, process.ExitKindSpawnFailed, status.LastExit.Kind)
}

func TestCancelDuringBackoffReturnsPromptly(t *testing.T) {
	requireUnix(t)
	st := &memStore{}
	sup, err := New(process.Spec{
		Name:     "backoff-cancel",
		Command:  "true",
		Interval: 10 * time.Second,
	}, Options{Notices: io.Discard, Logger: discardLogger(), Store: st})
	require.NoError(t, err)

	require.NoError(t, sup.Start(context.Background()))
	waitFor(t, 5*time.Second, func() bool { return sup.Status().State == StateBackoff }, "backoff state")

	begin := time.Now()
	require.NoError(t, sup.Stop())
	assert.Less(t, time.Since(begin), 2*time.Second, "stop must interrupt the backoff sleep")
	assert.Equal(t, StateStopped, sup.Status().State)
}

func TestCancelWhileRunningStopsChild(t *testing.T) {
	requireUnix(t)
	var buf syncBuffer
	st := &memStore{}
	sup, err := New(process.Spec{
		Name:     "term-child",
		Command:  "sleep 5",
		Interval: 50 * time.Millisecond,
		StopWait: 2 * time.Second,
	}, Options{Notices: &buf, Logger: discardLogger(), Store: st})
	require.NoError(t, err)

	require.NoError(t, sup.Start(context.Background()))
	waitFor(t, 5*time.Second, func() bool {
		s := sup.Status()
		return s.State == StateRunning && s.PID > 0
	}, "running child")

	begin := time.Now()
	require.NoError(t, sup.Stop())
	assert.Less(t, time.Since(begin), 3*time.Second)

	exits := st.exitList()
	require.Len(t, exits, 1)
	assert.Equal(t, "stopped", exits[0].outcome, "cancellation is not a crash")
	assert.Contains(t, buf.String(), "respawn: term-child stopped (")
	assert.NotContains(t, buf.String(), "term-child crashed")
}

func TestStopEscalatesToKill(t *testing.T) {
	requireUnix(t)
	st := &memStore{}
	sup, err := New(process.Spec{
		Name:     "stubborn",
		Command:  `sh -c 'trap "" TERM; while :; do sleep 0.2; done'`,
		Interval: 50 * time.Millisecond,
		StopWait: 200 * time.Millisecond,
	}, Options{Notices: io.Discard, Logger: discardLogger(), Store: st})
	require.NoError(t, err)

	require.NoError(t, sup.Start(context.Background()))
	waitFor(t, 5*time.Second, func() bool {
		s := sup.Status()
		return s.State == StateRunning && s.PID > 0
	}, "running child")
	// Give the shell a moment to install its trap.
	time.Sleep(100 * time.Millisecond)

	begin := time.Now()
	require.NoError(t, sup.Stop())
	assert.Less(t, time.Since(begin), 5*time.Second)

	exits := st.exitList()
	require.Len(t, exits, 1)
	assert.Equal(t, "stopped", exits[0].outcome)
	assert.Equal(t, "signal: killed", exits[0].detail, "TERM was trapped, so KILL must have ended the child")
}

func TestStartStopErrors(t *testing.T) {
	requireUnix(t)
	sup, err := New(process.Spec{Name: "once", Command: "sleep 5"},
		Options{Notices: io.Discard, Logger: discardLogger()})
	require.NoError(t, err)

	err = sup.Stop()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotRunning))

	require.NoError(t, sup.Start(context.Background()))
	err = sup.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyRunning))

	require.NoError(t, sup.Stop())
	err = sup.Stop()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotRunning))
}

func TestStatusWhileRunning(t *testing.T) {
	requireUnix(t)
	sup, err := New(process.Spec{Name: "snap", Command: "sleep 5"},
		Options{Notices: io.Discard, Logger: discardLogger()})
	require.NoError(t, err)

	require.NoError(t, sup.Start(context.Background()))
	defer func() { _ = sup.Stop() }()

	waitFor(t, 5*time.Second, func() bool { return sup.Status().State == StateRunning }, "running state")
	status := sup.Status()
	assert.Equal(t, "snap", status.Name)
	assert.Greater(t, status.PID, 0)
	assert.False(t, status.StartedAt.IsZero())
}

func TestChildOutputAppendsAcrossRuns(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	logPath := filepath.Join(dir, "out.log")
	st := &memStore{}
	sup, err := New(process.Spec{
		Name:     "appender",
		Command:  "sh -c 'echo run-line'",
		Interval: 50 * time.Millisecond,
		Log:      logger.Config{File: logger.FileConfig{Path: logPath}},
	}, Options{Notices: io.Discard, Logger: discardLogger(), Store: st})
	require.NoError(t, err)

	require.NoError(t, sup.Start(context.Background()))
	waitFor(t, 10*time.Second, func() bool { return st.startCount() >= 3 }, "three launches")
	require.NoError(t, sup.Stop())

	data, err := os.ReadFile(logPath) // #nosec G304
	require.NoError(t, err)
	assert.GreaterOrEqual(t, strings.Count(string(data), "run-line"), 2,
		"output of consecutive runs must accumulate in one sink")
}
