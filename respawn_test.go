package respawn

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func quiet(m *Manager) *Manager {
	m.SetNotices(io.Discard)
	m.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return m
}

func TestManagerFacadeSuperviseStatusStop(t *testing.T) {
	requireUnix(t)
	m := quiet(New())
	defer func() { _ = m.Close() }()

	s := Spec{Name: "pf1", Command: "sleep 10", Interval: 50 * time.Millisecond}
	if err := m.Supervise(s); err != nil {
		t.Fatalf("supervise: %v", err)
	}
	if err := m.Start("pf1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		st, err := m.Status("pf1")
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if st.State == StateRunning && st.PID > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("never reached running: %+v", st)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := m.Stop("pf1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	st, err := m.Status("pf1")
	if err != nil {
		t.Fatalf("status after stop: %v", err)
	}
	if st.State != StateStopped {
		t.Fatalf("expected stopped, got %s", st.State)
	}
}

func TestManagerFacadeUnknownName(t *testing.T) {
	m := quiet(New())
	defer func() { _ = m.Close() }()

	if _, err := m.Status("ghost"); err == nil {
		t.Fatal("expected error for unknown name")
	}
	if err := m.Start("ghost"); err == nil {
		t.Fatal("expected error for unknown start")
	}
}

func TestManagerFacadeRunsViaStore(t *testing.T) {
	requireUnix(t)
	m := quiet(New())
	defer func() { _ = m.Close() }()

	dbPath := filepath.Join(t.TempDir(), "runs.db")
	if err := m.SetStoreDSN("sqlite://" + dbPath); err != nil {
		t.Fatalf("store dsn: %v", err)
	}
	if err := m.Supervise(Spec{Name: "blip", Command: "true", Interval: 50 * time.Millisecond}); err != nil {
		t.Fatalf("supervise: %v", err)
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("start all: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		recs, err := m.Runs(context.Background(), "blip", 10)
		if err != nil {
			t.Fatalf("runs: %v", err)
		}
		if len(recs) > 0 {
			if recs[0].Name != "blip" {
				t.Fatalf("unexpected record: %+v", recs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no run recorded")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRunsWithoutStore(t *testing.T) {
	m := quiet(New())
	defer func() { _ = m.Close() }()

	if _, err := m.Runs(context.Background(), "any", 1); err == nil {
		t.Fatal("expected no-store error")
	}
}

func TestConfigHelpers(t *testing.T) {
	dir := t.TempDir()
	cfg := `
[[processes]]
name = "c1"
command = "sleep 0.1"
interval = "100ms"

[[processes]]
name = "c2"
command = "sleep 0.2"
`
	p := filepath.Join(dir, "cfg.toml")
	if err := os.WriteFile(p, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	config, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(config.Specs) != 2 {
		t.Fatalf("LoadConfig specs: len=%d", len(config.Specs))
	}
	specs, err := LoadSpecs(p)
	if err != nil {
		t.Fatalf("LoadSpecs: %v", err)
	}
	if len(specs) != 2 || specs[0].Name != "c1" {
		t.Fatalf("LoadSpecs: %+v", specs)
	}

	envPath := filepath.Join(dir, "app.env")
	if err := os.WriteFile(envPath, []byte("A=1\nB=2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pairs, err := LoadEnv(envPath)
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("LoadEnv pairs: %v", pairs)
	}
}

func TestNewHTTPServerServesStatus(t *testing.T) {
	m := quiet(New())
	defer func() { _ = m.Close() }()

	srv, err := NewHTTPServer("127.0.0.1:0", "/api", m)
	if err != nil {
		t.Fatalf("NewHTTPServer: %v", err)
	}
	defer func() { _ = srv.Close() }()

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status code %d", rr.Code)
	}
}

func TestMetricsHelpers(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("RegisterMetrics: %v", err)
	}
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("RegisterMetricsDefault: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics handler status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatal("metrics output missing runtime metrics")
	}
}
