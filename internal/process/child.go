package process

import (
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Child is one running instance of a spec's command. It does not watch
// the process on its own: the owner calls Wait exactly once to reap it
// and may use Terminate/Kill to signal the child's process group in the
// meantime.
type Child struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	pidFile   string

	waitOnce sync.Once
	waited   ExitStatus
}

// StartChild launches the spec's command with stdout and stderr both
// attached to sink. env is the fully merged child environment; an empty
// env inherits the parent's. A nil sink discards child output.
func StartChild(spec Spec, sink io.Writer, env []string) (*Child, error) {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(env) > 0 {
		cmd.Env = env
	}
	// Leaving Stdout/Stderr nil lets os/exec attach the null device and
	// close it again when the child is reaped.
	if sink != nil {
		cmd.Stdout = sink
		cmd.Stderr = sink
	}
	configureSysProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	c := &Child{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		pidFile:   spec.PIDFile,
	}
	// Best-effort: the child is already running, so a pidfile failure
	// must not abort the launch.
	_ = WritePIDFile(spec.PIDFile, c.pid)
	return c, nil
}

// PID returns the child's process id.
func (c *Child) PID() int { return c.pid }

// StartedAt returns when the child was launched.
func (c *Child) StartedAt() time.Time { return c.startedAt }

// Wait blocks until the child exits and returns the classified outcome.
// The first call reaps the process and removes the pidfile; subsequent
// calls return the cached outcome.
func (c *Child) Wait() ExitStatus {
	c.waitOnce.Do(func() {
		c.waited = classifyWait(c.cmd.Wait())
		RemovePIDFile(c.pidFile)
	})
	return c.waited
}

// Terminate asks the child's process group to exit.
func (c *Child) Terminate() error {
	return signalGroup(c.pid, syscall.SIGTERM)
}

// Kill forcibly ends the child's process group.
func (c *Child) Kill() error {
	return signalGroup(c.pid, syscall.SIGKILL)
}
