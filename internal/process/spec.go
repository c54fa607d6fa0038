package process

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/respawn/internal/logger"
)

const (
	// DefaultInterval is the pause between a child exiting and the next
	// launch attempt when the spec does not set one.
	DefaultInterval = 5 * time.Second
	// DefaultStopWait is how long a stop waits after SIGTERM before
	// escalating to SIGKILL.
	DefaultStopWait = 3 * time.Second
)

// Spec describes a command to keep running.
type Spec struct {
	Name     string        `json:"name"`
	Command  string        `json:"command"`             // command line to launch (shell semantics when needed)
	WorkDir  string        `json:"work_dir,omitempty"`  // optional working dir
	Env      []string      `json:"env,omitempty"`       // optional extra env (KEY=VALUE)
	PIDFile  string        `json:"pid_file,omitempty"`  // optional pidfile for the current child
	Interval time.Duration `json:"interval"`            // pause between exit and restart; 0 means DefaultInterval
	StopWait time.Duration `json:"stop_wait,omitempty"` // grace period before SIGKILL on stop; 0 means DefaultStopWait
	Log      logger.Config `json:"log"`                 // child output sink configuration
}

// Validate reports spec errors a caller should fix before supervising.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("process requires name")
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("process %q requires command", s.Name)
	}
	if s.Interval < 0 {
		return fmt.Errorf("process %q: interval cannot be negative", s.Name)
	}
	if s.StopWait < 0 {
		return fmt.Errorf("process %q: stop_wait cannot be negative", s.Name)
	}
	return nil
}

// Normalized returns a copy with zero durations replaced by defaults.
func (s Spec) Normalized() Spec {
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	if s.StopWait <= 0 {
		s.StopWait = DefaultStopWait
	}
	return s
}

// BuildCommand constructs an *exec.Cmd for the given spec.Command.
// It avoids invoking a shell when not necessary, and it also respects
// an explicit shell invocation already present in the command string
// (e.g., "sh -c 'echo hi'"), avoiding double-wrapping with another shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return getTrueCommand()
	}
	// If the command already explicitly uses a shell, honor it without adding another layer.
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		return getShellCommand(afterC)
	}
	// Fallback: when metacharacters are present, hand the whole line to the shell.
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return getShellCommand(cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// beginning of cmdStr. It returns (shellPath, afterCArg, true) when matched.
// It preserves the substring after "-c " verbatim to avoid breaking quoting.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			// If after is wrapped in single or double quotes, strip one pair so that
			// we pass the actual script to the shell (the outer quotes would otherwise
			// inhibit parsing/redirection inside the script).
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}
