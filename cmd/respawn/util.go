package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/loykin/respawn/pkg/client"
	"github.com/olekukonko/tablewriter"
)

// newAPIClient builds a daemon client from CLI connection flags.
func newAPIClient(apiURL string, timeout time.Duration) *client.Client {
	cc := client.DefaultConfig()
	if apiURL != "" {
		cc.BaseURL = apiURL
	}
	if timeout > 0 {
		cc.Timeout = timeout
	}
	return client.New(cc)
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

// renderStatusTable prints one row per process, like the daemon sees it.
func renderStatusTable(w io.Writer, statuses []client.ProcessStatus) {
	if len(statuses) == 0 {
		_, _ = fmt.Fprintln(w, "No processes supervised")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("NAME", "STATE", "PID", "UPTIME", "RESTARTS", "LAST EXIT")
	for _, st := range statuses {
		table.Append(st.Name, st.State, formatPID(st.PID), formatUptime(st), strconv.Itoa(st.Restarts), formatExit(st.LastExit))
	}
	table.Render()
}

// renderRunsTable prints stored runs, newest first.
func renderRunsTable(w io.Writer, runs []client.Run) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs recorded")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "PID", "STARTED", "ENDED", "OUTCOME", "DETAIL")
	for _, r := range runs {
		table.Append(strconv.FormatInt(r.ID, 10), strconv.Itoa(r.PID), r.StartedAt.Local().Format(time.DateTime), formatEnded(r.EndedAt), formatOutcome(r), orDash(r.Detail))
	}
	table.Render()
}

func formatPID(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return strconv.Itoa(pid)
}

func formatUptime(st client.ProcessStatus) string {
	if st.State != "running" || st.StartedAt.IsZero() {
		return "-"
	}
	return time.Since(st.StartedAt).Round(time.Second).String()
}

func formatExit(e *client.ExitStatus) string {
	if e == nil {
		return "-"
	}
	switch e.Kind {
	case "exited":
		return fmt.Sprintf("exit %d", e.Code)
	case "signaled":
		return "signal " + e.Signal
	case "spawn_failed":
		return "spawn failed"
	default:
		return e.Kind
	}
}

func formatEnded(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func formatOutcome(r client.Run) string {
	if r.Running {
		return "running"
	}
	if r.ExitCode != nil {
		return fmt.Sprintf("%s (%d)", r.Outcome, *r.ExitCode)
	}
	return orDash(r.Outcome)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
