package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/loykin/respawn/internal/env"
	"github.com/loykin/respawn/internal/history"
	"github.com/loykin/respawn/internal/metrics"
	"github.com/loykin/respawn/internal/process"
	"github.com/loykin/respawn/internal/store"
)

// ErrAlreadyRunning reports a Start on a loop that is running.
var ErrAlreadyRunning = errors.New("already running")

// ErrNotRunning reports a Stop on a loop that is not running.
var ErrNotRunning = errors.New("not running")

// State is the loop's position in its cycle.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateBackoff  State = "backoff"
)

// Status is a point-in-time snapshot of one supervised process.
type Status struct {
	Name       string              `json:"name"`
	State      State               `json:"state"`
	PID        int                 `json:"pid"`
	StartedAt  time.Time           `json:"started_at"`
	Restarts   int                 `json:"restarts"`
	LastExit   *process.ExitStatus `json:"last_exit,omitempty"`
	CPUPercent float64             `json:"cpu_percent"`
	MemoryRSS  uint64              `json:"memory_rss"`
}

// Options configures a Supervisor. The zero value is usable: notices go
// to stdout, logging to slog's default, and nothing is persisted.
type Options struct {
	Notices io.Writer                   // start/crash notices; default os.Stdout
	Logger  *slog.Logger                // ambient logging; default slog.Default()
	Store   store.Store                 // optional run recording
	History history.Sink                // optional event export (use history.Multi to fan out)
	Env     func(process.Spec) []string // merged child env; default OS env overlaid with spec.Env
}

// Supervisor keeps one spec's command running. Run restarts the child
// after every exit, separated by the spec's interval, until the context
// is cancelled. Exit code zero restarts exactly like a crash; a spawn
// failure counts as an immediate crash and is retried the same way.
type Supervisor struct {
	spec    process.Spec
	notices io.Writer
	logger  *slog.Logger
	st      store.Store
	hist    history.Sink
	envFor  func(process.Spec) []string

	mu       sync.Mutex
	state    State
	child    *process.Child
	started  bool
	restarts int
	lastExit *process.ExitStatus

	cancel context.CancelFunc
	done   chan struct{}
}

// New validates the spec and prepares a supervisor for it.
func New(spec process.Spec, opts Options) (*Supervisor, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	s := &Supervisor{
		spec:    spec.Normalized(),
		notices: opts.Notices,
		logger:  opts.Logger,
		st:      opts.Store,
		hist:    opts.History,
		envFor:  opts.Env,
		state:   StateStopped,
	}
	if s.notices == nil {
		s.notices = os.Stdout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.envFor == nil {
		e := env.New()
		e.FromOS()
		s.envFor = func(sp process.Spec) []string { return e.Merge(sp.Env) }
	}
	return s, nil
}

// Spec returns the normalized spec this supervisor runs.
func (s *Supervisor) Spec() process.Spec { return s.spec }

// Run executes the restart loop until ctx is cancelled. It blocks.
// While the child runs, cancellation terminates its process group,
// waits up to the spec's stop grace and then kills; during backoff it
// wakes the sleep immediately. Run must not be called concurrently.
func (s *Supervisor) Run(ctx context.Context) {
	spec := s.spec
	defer s.transition(StateStopped)

	// One sink for the whole loop: child output appends across
	// restarts, rotation permitting.
	sink, err := spec.Log.Sink(spec.Name)
	if err != nil {
		s.logger.Warn("log sink unavailable, discarding child output", "name", spec.Name, "error", err)
		sink = nil
	}
	if sink != nil {
		defer func() { _ = sink.Close() }()
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.transition(StateStarting)
		_, _ = fmt.Fprintf(s.notices, "respawn: starting %s\n", spec.Name)

		var sinkW io.Writer
		if sink != nil {
			sinkW = sink
		}
		child, err := process.StartChild(spec, sinkW, s.envFor(spec))
		if err != nil {
			st := process.SpawnFailed(err)
			s.noteExit(st)
			metrics.IncSpawnFailure(spec.Name)
			metrics.IncExit(spec.Name, string(st.Kind))
			_, _ = fmt.Fprintf(s.notices, "respawn: %s crashed (%s); restarting in %s\n", spec.Name, st.String(), spec.Interval)
			if !s.sleep(ctx, spec.Interval) {
				return
			}
			continue
		}

		pid := child.PID()
		startedAt := child.StartedAt().UTC()
		s.setChild(child)
		s.transition(StateRunning)
		s.logger.Debug("child started", "name", spec.Name, "pid", pid)

		first := s.markStarted()
		metrics.IncStart(spec.Name)
		if !first {
			metrics.IncRestart(spec.Name)
		}
		metrics.SetStartTime(spec.Name, float64(startedAt.Unix()))

		rec := store.Record{Name: spec.Name, PID: pid, StartedAt: startedAt, Running: true}
		s.recordStart(rec)

		waitCh := make(chan process.ExitStatus, 1)
		go func() { waitCh <- child.Wait() }()

		var st process.ExitStatus
		stopping := false
		select {
		case st = <-waitCh:
		case <-ctx.Done():
			stopping = true
			st = s.stopChild(child, waitCh)
		}
		endedAt := time.Now().UTC()
		s.setChild(nil)
		s.noteExit(st)

		metrics.IncExit(spec.Name, string(st.Kind))
		metrics.ObserveRunDuration(spec.Name, endedAt.Sub(startedAt).Seconds())
		s.recordExit(rec, endedAt, st, stopping)

		if stopping {
			_, _ = fmt.Fprintf(s.notices, "respawn: %s stopped (%s)\n", spec.Name, st.String())
			return
		}
		_, _ = fmt.Fprintf(s.notices, "respawn: %s crashed (%s); restarting in %s\n", spec.Name, st.String(), spec.Interval)

		if !s.sleep(ctx, spec.Interval) {
			return
		}
	}
}

// Start launches Run in a goroutine. Starting an already-running
// supervisor is an error.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("supervisor %q %w", s.spec.Name, ErrAlreadyRunning)
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		s.Run(runCtx)
		s.mu.Lock()
		if s.done == done {
			s.cancel = nil
			s.done = nil
		}
		s.mu.Unlock()
		close(done)
	}()
	return nil
}

// Stop cancels the loop started by Start and waits for it to return.
// Stopping a supervisor that is not running is an error.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return fmt.Errorf("supervisor %q %w", s.spec.Name, ErrNotRunning)
	}
	cancel()
	<-done
	return nil
}

// Status snapshots the loop. CPU and RSS are sampled live when a child
// is running.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{
		Name:     s.spec.Name,
		State:    s.state,
		Restarts: s.restarts,
		LastExit: s.lastExit,
	}
	if s.child != nil {
		st.PID = s.child.PID()
		st.StartedAt = s.child.StartedAt()
	}
	s.mu.Unlock()
	if st.PID > 0 {
		st.CPUPercent, st.MemoryRSS = process.ResourceUsage(st.PID)
	}
	return st
}

// stopChild terminates the child's process group, escalating to kill
// after the spec's grace period, and returns the reaped status.
func (s *Supervisor) stopChild(child *process.Child, waitCh <-chan process.ExitStatus) process.ExitStatus {
	_ = child.Terminate()
	t := time.NewTimer(s.spec.StopWait)
	select {
	case st := <-waitCh:
		if !t.Stop() {
			<-t.C
		}
		return st
	case <-t.C:
		_ = child.Kill()
		return <-waitCh
	}
}

// sleep pauses for d, returning false when ctx ends the wait early.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	s.transition(StateBackoff)
	t := time.NewTimer(d)
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		if !t.Stop() {
			<-t.C
		}
		return false
	}
}

func (s *Supervisor) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from == to {
		return
	}
	metrics.RecordStateTransition(s.spec.Name, string(from), string(to))
	metrics.SetCurrentState(s.spec.Name, string(from), false)
	metrics.SetCurrentState(s.spec.Name, string(to), true)
}

func (s *Supervisor) setChild(c *process.Child) {
	s.mu.Lock()
	s.child = c
	s.mu.Unlock()
}

// markStarted bumps the restart counter and reports whether this was
// the supervisor's first launch.
func (s *Supervisor) markStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := !s.started
	if first {
		s.started = true
	} else {
		s.restarts++
	}
	return first
}

func (s *Supervisor) noteExit(st process.ExitStatus) {
	s.mu.Lock()
	cp := st
	s.lastExit = &cp
	s.mu.Unlock()
}

// recordStart writes the run's start to the store and history sinks.
// Persistence is best-effort and never delays the loop.
func (s *Supervisor) recordStart(rec store.Record) {
	ctx := context.Background()
	if s.st != nil {
		if err := s.st.RecordStart(ctx, rec); err != nil {
			s.logger.Warn("record start failed", "name", rec.Name, "error", err)
		}
	}
	if s.hist != nil {
		evt := history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), Record: rec}
		if err := s.hist.Send(ctx, evt); err != nil {
			s.logger.Warn("history start event failed", "name", rec.Name, "error", err)
		}
	}
}

// recordExit closes the run's row and emits the exit event. A stop
// requested by cancellation is recorded as "stopped", not as a crash.
func (s *Supervisor) recordExit(rec store.Record, endedAt time.Time, st process.ExitStatus, stopping bool) {
	outcome := string(st.Kind)
	if stopping {
		outcome = "stopped"
	}
	ctx := context.Background()
	if s.st != nil {
		if err := s.st.RecordExit(ctx, rec.Key(), endedAt, outcome, st.Code, st.String()); err != nil {
			s.logger.Warn("record exit failed", "name", rec.Name, "error", err)
		}
	}
	if s.hist != nil {
		rec.Running = false
		rec.EndedAt.Time = endedAt
		rec.EndedAt.Valid = true
		rec.Outcome.String = outcome
		rec.Outcome.Valid = true
		rec.ExitCode.Int64 = int64(st.Code)
		rec.ExitCode.Valid = true
		rec.Detail.String = st.String()
		rec.Detail.Valid = true
		evt := history.Event{Type: history.EventExit, OccurredAt: endedAt, Record: rec}
		if err := s.hist.Send(ctx, evt); err != nil {
			s.logger.Warn("history exit event failed", "name", rec.Name, "error", err)
		}
	}
}
