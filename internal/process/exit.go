package process

import (
	"errors"
	"fmt"
	"os/exec"
)

// ExitKind classifies how one run of a child ended.
type ExitKind string

const (
	// ExitKindExited means the child terminated on its own with an exit code.
	ExitKindExited ExitKind = "exited"
	// ExitKindSignaled means the child was terminated by a signal.
	ExitKindSignaled ExitKind = "signaled"
	// ExitKindSpawnFailed means the child could not be launched at all.
	ExitKindSpawnFailed ExitKind = "spawn_failed"
)

// ExitStatus is the typed outcome of a single child run. Exactly one of
// Code, Signal or Err is meaningful depending on Kind.
type ExitStatus struct {
	Kind   ExitKind `json:"kind"`
	Code   int      `json:"code"`
	Signal string   `json:"signal,omitempty"`
	Err    string   `json:"error,omitempty"`
}

// Exited builds the outcome for a child that returned an exit code.
func Exited(code int) ExitStatus {
	return ExitStatus{Kind: ExitKindExited, Code: code}
}

// Signaled builds the outcome for a child killed by a signal.
func Signaled(sig string) ExitStatus {
	return ExitStatus{Kind: ExitKindSignaled, Code: -1, Signal: sig}
}

// SpawnFailed builds the outcome for a launch that never produced a child.
func SpawnFailed(err error) ExitStatus {
	st := ExitStatus{Kind: ExitKindSpawnFailed, Code: -1}
	if err != nil {
		st.Err = err.Error()
	}
	return st
}

// Success reports whether the run ended as a clean zero exit.
func (e ExitStatus) Success() bool {
	return e.Kind == ExitKindExited && e.Code == 0
}

func (e ExitStatus) String() string {
	switch e.Kind {
	case ExitKindSignaled:
		return "signal: " + e.Signal
	case ExitKindSpawnFailed:
		return "spawn failed: " + e.Err
	default:
		if e.Err != "" {
			return fmt.Sprintf("exit status %d (%s)", e.Code, e.Err)
		}
		return fmt.Sprintf("exit status %d", e.Code)
	}
}

// classifyWait turns the error from cmd.Wait into a typed outcome.
func classifyWait(err error) ExitStatus {
	if err == nil {
		return Exited(0)
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if sig, ok := signalFromState(ee.ProcessState); ok {
			return Signaled(sig)
		}
		return Exited(ee.ExitCode())
	}
	// Wait itself failed; surface the error but treat the run as exited.
	st := Exited(-1)
	st.Err = err.Error()
	return st
}
