//go:build windows

package process

import "os"

// signalFromState has no POSIX signals to report on Windows; terminations
// always surface as exit codes.
func signalFromState(_ *os.ProcessState) (string, bool) {
	return "", false
}
