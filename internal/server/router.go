package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/respawn/internal/metrics"
	"github.com/loykin/respawn/internal/store"
	"github.com/loykin/respawn/internal/supervisor"
)

// Router provides embeddable HTTP handlers for managing restart loops.
// Endpoints:
//
//	GET  {basePath}/status       all statuses, or one with ?name=...
//	POST {basePath}/start        body: {"name": "..."}
//	POST {basePath}/stop         body: {"name": "..."}
//	GET  {basePath}/runs         query: name=...&limit=N (store required)
//	GET  /healthz                liveness
//	GET  /metrics                prometheus exposition
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *supervisor.Manager
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/start, /api/stop, /api/status.
func NewRouter(mgr *supervisor.Manager, basePath string) *Router {
	bp := sanitizeBase(basePath)
	return &Router{mgr: mgr, basePath: bp}
}

// Handler returns an http.Handler powered by gin that can be mounted
// in any server/mux. Healthz and metrics live at the root regardless
// of basePath.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/healthz", r.handleHealthz)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.GET("/runs", r.handleRuns)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The returned server is already listening; call Close to shut it down.
func NewServer(addr, basePath string, mgr *supervisor.Manager) (*http.Server, error) {
	r := NewRouter(mgr, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type nameReq struct {
	Name string `json:"name"`
}

// Run is the wire shape of one stored run record. Exit columns are
// omitted while the run is still going.
type Run struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	PID       int        `json:"pid"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Running   bool       `json:"running"`
	Outcome   string     `json:"outcome,omitempty"`
	ExitCode  *int64     `json:"exit_code,omitempty"`
	Detail    string     `json:"detail,omitempty"`
}

func runFromRecord(rec store.Record) Run {
	r := Run{
		ID:        rec.ID,
		Name:      rec.Name,
		PID:       rec.PID,
		StartedAt: rec.StartedAt,
		Running:   rec.Running,
	}
	if rec.EndedAt.Valid {
		t := rec.EndedAt.Time
		r.EndedAt = &t
	}
	if rec.Outcome.Valid {
		r.Outcome = rec.Outcome.String
	}
	if rec.ExitCode.Valid {
		code := rec.ExitCode.Int64
		r.ExitCode = &code
	}
	if rec.Detail.Valid {
		r.Detail = rec.Detail.String
	}
	return r
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusOK, r.mgr.StatusAll())
		return
	}
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	st, err := r.mgr.Status(name)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleStart(c *gin.Context) {
	name, ok := bindName(c)
	if !ok {
		return
	}
	if err := r.mgr.Start(name); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	name, ok := bindName(c)
	if !ok {
		return
	}
	if err := r.mgr.Stop(name); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRuns(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid limit: " + err.Error()})
			return
		}
		limit = n
	}
	recs, err := r.mgr.Runs(c.Request.Context(), name, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	runs := make([]Run, 0, len(recs))
	for _, rec := range recs {
		runs = append(runs, runFromRecord(rec))
	}
	writeJSON(c, http.StatusOK, runs)
}

func bindName(c *gin.Context) (string, bool) {
	var req nameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return "", false
	}
	if req.Name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name required"})
		return "", false
	}
	if !isSafeName(req.Name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return "", false
	}
	return req.Name, true
}

// writeError maps manager errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	code := http.StatusBadRequest
	switch {
	case errors.Is(err, supervisor.ErrUnknownProcess):
		code = http.StatusNotFound
	case errors.Is(err, supervisor.ErrAlreadyRunning), errors.Is(err, supervisor.ErrNotRunning):
		code = http.StatusConflict
	case errors.Is(err, supervisor.ErrNoStore):
		code = http.StatusServiceUnavailable
	}
	writeJSON(c, code, errorResp{Error: err.Error()})
}
