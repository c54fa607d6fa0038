// Package respawn keeps commands running. Each supervised process is a
// loop that launches the command, waits for it to exit, announces the
// exit and starts it again after a fixed pause. Exits are never
// interpreted: success and failure restart alike, until the loop is
// cancelled.
package respawn

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/respawn/internal/config"
	"github.com/loykin/respawn/internal/history"
	historyfactory "github.com/loykin/respawn/internal/history/factory"
	"github.com/loykin/respawn/internal/logger"
	"github.com/loykin/respawn/internal/metrics"
	"github.com/loykin/respawn/internal/process"
	"github.com/loykin/respawn/internal/server"
	"github.com/loykin/respawn/internal/store"
	storefactory "github.com/loykin/respawn/internal/store/factory"
	"github.com/loykin/respawn/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type ExitStatus = process.ExitStatus

type Status = supervisor.Status

type State = supervisor.State

type LogConfig = logger.Config

type Config = config.Config

type Record = store.Record

type HistorySink = history.Sink

type HistoryEvent = history.Event

// States reported by Status.
const (
	StateStopped  = supervisor.StateStopped
	StateStarting = supervisor.StateStarting
	StateRunning  = supervisor.StateRunning
	StateBackoff  = supervisor.StateBackoff
)

// Defaults applied to specs that leave the durations unset.
const (
	DefaultInterval = process.DefaultInterval
	DefaultStopWait = process.DefaultStopWait
)

// Sentinel errors surfaced by Manager operations.
var (
	ErrAlreadyRunning = supervisor.ErrAlreadyRunning
	ErrNotRunning     = supervisor.ErrNotRunning
	ErrUnknownProcess = supervisor.ErrUnknownProcess
	ErrNoStore        = supervisor.ErrNoStore
)

// Manager is a thin facade over internal/supervisor.Manager.
// It provides a stable public API for embedding.

type Manager struct{ inner *supervisor.Manager }

func New() *Manager { return &Manager{inner: supervisor.NewManager()} }

func (m *Manager) SetGlobalEnv(kvs []string)            { m.inner.SetGlobalEnv(kvs) }
func (m *Manager) SetLogger(l *slog.Logger)             { m.inner.SetLogger(l) }
func (m *Manager) SetNotices(w io.Writer)               { m.inner.SetNotices(w) }
func (m *Manager) SetHistorySinks(sinks ...HistorySink) { m.inner.SetHistorySinks(sinks...) }
func (m *Manager) Supervise(s Spec) error               { return m.inner.Supervise(s) }
func (m *Manager) Start(name string) error              { return m.inner.Start(name) }
func (m *Manager) StartAll(ctx context.Context) error   { return m.inner.StartAll(ctx) }
func (m *Manager) Stop(name string) error               { return m.inner.Stop(name) }
func (m *Manager) StopAll()                             { m.inner.StopAll() }
func (m *Manager) Status(name string) (Status, error)   { return m.inner.Status(name) }
func (m *Manager) StatusAll() []Status                  { return m.inner.StatusAll() }
func (m *Manager) Close() error                         { return m.inner.Close() }

// SetStoreDSN configures run recording from a DSN
// ("sqlite://file.db", a bare sqlite path, or "postgres://...").
func (m *Manager) SetStoreDSN(dsn string) error {
	st, err := storefactory.NewFromDSN(dsn)
	if err != nil {
		return err
	}
	return m.inner.SetStore(st)
}

// SetHistoryDSNs configures one event sink per DSN, replacing any
// previous set.
func (m *Manager) SetHistoryDSNs(dsns ...string) error {
	sinks := make([]history.Sink, 0, len(dsns))
	for _, dsn := range dsns {
		sink, err := historyfactory.NewSinkFromDSN(dsn)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}
	m.inner.SetHistorySinks(sinks...)
	return nil
}

// Runs returns recorded runs for name, newest first.
func (m *Manager) Runs(ctx context.Context, name string, limit int) ([]Record, error) {
	return m.inner.Runs(ctx, name, limit)
}

// LoadConfig loads the unified daemon configuration from a TOML file.
func LoadConfig(path string) (*Config, error) { return config.LoadConfig(path) }

// LoadSpecs loads only the [[processes]] entries from a TOML file.
func LoadSpecs(path string) ([]Spec, error) { return config.LoadSpecsFromTOML(path) }

// LoadEnv reads KEY=VALUE pairs from an env file.
func LoadEnv(path string) ([]string, error) { return config.LoadEnvFile(path) }

// NewHTTPServer starts an HTTP server exposing the management API using
// the given manager.
func NewHTTPServer(addr, basePath string, m *Manager) (*http.Server, error) {
	return server.NewServer(addr, basePath, m.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// MetricsHandler returns the exposition handler for the default
// registry, for callers that mount it on their own mux.
func MetricsHandler() http.Handler { return metrics.Handler() }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
