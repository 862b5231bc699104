//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// setProcAttr puts the child in its own process group so the whole tree can
// be signaled together.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// Terminate sends SIGTERM to a process group.
func Terminate(pid int) error {
	if pid <= 0 {
		return nil
	}
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// Kill sends SIGKILL to a process group.
func Kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	return syscall.Kill(-pid, syscall.SIGKILL)
}
