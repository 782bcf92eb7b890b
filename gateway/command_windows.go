//go:build windows

package gateway

import "os/exec"

// Windows has no POSIX process groups; the direct child is killed and
// WaitDelay reaps any lingering pipe readers.
func setProcessGroup(_ *exec.Cmd) {}

func terminateProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
