//go:build !windows

package cli

import "syscall"

// detachAttr puts a child in its own session so it survives the parent.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// signalStop asks a supervisor process to shut down gracefully.
func signalStop(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
