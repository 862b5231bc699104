//go:build windows

package cli

import (
	"fmt"
	"syscall"
)

func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

func signalStop(pid int) error {
	return fmt.Errorf("stopping supervisors is not supported on windows")
}
