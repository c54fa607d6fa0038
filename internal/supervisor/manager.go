package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/loykin/respawn/internal/env"
	"github.com/loykin/respawn/internal/history"
	"github.com/loykin/respawn/internal/process"
	"github.com/loykin/respawn/internal/store"
)

var (
	// ErrUnknownProcess reports a name that was never registered.
	ErrUnknownProcess = errors.New("unknown process")
	// ErrNoStore reports that no run-record store is configured.
	ErrNoStore = errors.New("no store configured")
)

// Manager is a named registry of supervisors. Configure the store,
// history sinks and global env before registering specs: a supervisor
// captures them when it is created by Supervise.
type Manager struct {
	mu      sync.RWMutex
	envM    *env.Env
	st      store.Store
	sinks   history.Multi
	logger  *slog.Logger
	notices io.Writer
	sups    map[string]*Supervisor
}

func NewManager() *Manager {
	e := env.New()
	e.FromOS()
	return &Manager{
		envM: e,
		sups: make(map[string]*Supervisor),
	}
}

// SetStore configures a persistence store used to record runs.
// It ensures the schema and stores the instance for subsequent writes.
func (m *Manager) SetStore(s store.Store) error {
	m.mu.Lock()
	m.st = s
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.EnsureSchema(context.Background())
}

// SetHistorySinks configures external history sinks (OpenSearch, ClickHouse, etc.).
// Passing nil or no sinks clears the list.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) {
	m.mu.Lock()
	m.sinks = append(history.Multi(nil), sinks...)
	m.mu.Unlock()
}

// SetGlobalEnv sets global environment variables affecting all processes
// managed by this Manager. kvs must be in the form "KEY=VALUE".
func (m *Manager) SetGlobalEnv(kvs []string) {
	m.mu.Lock()
	m.envM.SetPairs(kvs)
	m.mu.Unlock()
}

// SetLogger routes the supervisors' ambient logging.
func (m *Manager) SetLogger(l *slog.Logger) {
	m.mu.Lock()
	m.logger = l
	m.mu.Unlock()
}

// SetNotices routes the supervisors' start/crash notice lines.
// The default is stdout.
func (m *Manager) SetNotices(w io.Writer) {
	m.mu.Lock()
	m.notices = w
	m.mu.Unlock()
}

// Supervise registers a spec. Names are unique; registering a name
// twice is an error. The supervisor is created stopped.
func (m *Manager) Supervise(spec process.Spec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sups[spec.Name]; ok {
		return fmt.Errorf("process %q already supervised", spec.Name)
	}
	var hist history.Sink
	if len(m.sinks) > 0 {
		hist = m.sinks
	}
	sup, err := New(spec, Options{
		Notices: m.notices,
		Logger:  m.logger,
		Store:   m.st,
		History: hist,
		Env:     m.mergedEnvFor,
	})
	if err != nil {
		return err
	}
	m.sups[spec.Name] = sup
	return nil
}

// Start launches the named supervisor's loop.
func (m *Manager) Start(name string) error {
	sup, err := m.get(name)
	if err != nil {
		return err
	}
	return sup.Start(context.Background())
}

// StartAll launches every registered loop under ctx. Supervisors that
// are already running are left alone.
func (m *Manager) StartAll(ctx context.Context) error {
	var firstErr error
	for _, sup := range m.all() {
		err := sup.Start(ctx)
		if err != nil && !errors.Is(err, ErrAlreadyRunning) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stop cancels the named loop and waits for it to finish.
func (m *Manager) Stop(name string) error {
	sup, err := m.get(name)
	if err != nil {
		return err
	}
	return sup.Stop()
}

// StopAll stops every running loop. Loops already stopped are skipped.
func (m *Manager) StopAll() {
	var wg sync.WaitGroup
	for _, sup := range m.all() {
		wg.Add(1)
		go func(s *Supervisor) {
			defer wg.Done()
			_ = s.Stop()
		}(sup)
	}
	wg.Wait()
}

// Status snapshots one supervised process.
func (m *Manager) Status(name string) (Status, error) {
	sup, err := m.get(name)
	if err != nil {
		return Status{}, err
	}
	return sup.Status(), nil
}

// StatusAll snapshots every supervised process, ordered by name.
func (m *Manager) StatusAll() []Status {
	sups := m.all()
	res := make([]Status, 0, len(sups))
	for _, sup := range sups {
		res = append(res, sup.Status())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// Runs returns recent run records for the named process, newest
// first. Names need not be registered; historical records survive
// their process.
func (m *Manager) Runs(ctx context.Context, name string, limit int) ([]store.Record, error) {
	m.mu.RLock()
	st := m.st
	m.mu.RUnlock()
	if st == nil {
		return nil, ErrNoStore
	}
	return st.GetByName(ctx, name, limit)
}

// Specs returns the registered specs, ordered by name.
func (m *Manager) Specs() []process.Spec {
	sups := m.all()
	res := make([]process.Spec, 0, len(sups))
	for _, sup := range sups {
		res = append(res, sup.Spec())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// Close stops all loops and releases the store and history sinks.
func (m *Manager) Close() error {
	m.StopAll()
	m.mu.Lock()
	st := m.st
	sinks := m.sinks
	m.st = nil
	m.sinks = nil
	m.mu.Unlock()
	var firstErr error
	if st != nil {
		if err := st.Close(); err != nil {
			firstErr = err
		}
	}
	if err := sinks.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (m *Manager) get(name string) (*Supervisor, error) {
	m.mu.RLock()
	sup := m.sups[name]
	m.mu.RUnlock()
	if sup == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcess, name)
	}
	return sup, nil
}

func (m *Manager) all() []*Supervisor {
	m.mu.RLock()
	res := make([]*Supervisor, 0, len(m.sups))
	for _, sup := range m.sups {
		res = append(res, sup)
	}
	m.mu.RUnlock()
	return res
}

// mergedEnvFor merges manager globals with per-process env.
func (m *Manager) mergedEnvFor(spec process.Spec) []string {
	m.mu.RLock()
	e := m.envM
	m.mu.RUnlock()
	return e.Merge(spec.Env)
}
