//go:build windows

package executor

import (
	"os"
	"os/exec"
)

func setProcAttr(cmd *exec.Cmd) {}

// Terminate kills the process; Windows has no SIGTERM equivalent here.
func Terminate(pid int) error {
	return Kill(pid)
}

// Kill forcibly ends the process.
func Kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
