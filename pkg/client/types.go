package client

import "time"

// ProcessStatus mirrors the daemon's status payload.
type ProcessStatus struct {
	Name       string      `json:"name"`
	State      string      `json:"state"`
	PID        int         `json:"pid"`
	StartedAt  time.Time   `json:"started_at"`
	Restarts   int         `json:"restarts"`
	LastExit   *ExitStatus `json:"last_exit,omitempty"`
	CPUPercent float64     `json:"cpu_percent"`
	MemoryRSS  uint64      `json:"memory_rss"`
}

// ExitStatus describes how the last child run ended.
type ExitStatus struct {
	Kind   string `json:"kind"`
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Run is one stored run record. Exit fields are empty while the run
// is still going.
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

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
