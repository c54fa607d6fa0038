//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// Windows creation flags
const CREATE_NEW_PROCESS_GROUP = 0x00000200

// configureSysProcAttr creates a new process group on Windows so group
// termination can target the child and its descendants.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: CREATE_NEW_PROCESS_GROUP}
}
