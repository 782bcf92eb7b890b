//go:build unix

package gateway

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places the child in its own process group so a timeout
// can kill the whole tree, not just the direct child.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateProcessGroup kills the child's entire process group. Called by
// the exec cancel hook when the command context expires.
func terminateProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		// Fall back to killing the direct child if the group is already gone.
		return cmd.Process.Kill()
	}
	return nil
}
