//go:build !windows

package process

import (
	"os"
	"syscall"
)

// signalFromState extracts the terminating signal, if any, from a wait status.
func signalFromState(st *os.ProcessState) (string, bool) {
	if st == nil {
		return "", false
	}
	ws, ok := st.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return "", false
	}
	return ws.Signal().String(), true
}
