package executor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// firstChildPID returns the first child of pid, or 0. Used to narrow from a
// pane's shell PID to the assistant it launched. Linux-only; elsewhere it
// degrades to 0 and the shell PID stands in.
func firstChildPID(pid int) int {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/task/%d/children", pid, pid))
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	child, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return child
}

// discoverPort finds a TCP port the process listens on, polling until the
// wait budget runs out. Returns 0 when nothing is found; callers treat that
// as "no port", never as an error.
func discoverPort(pid int, wait time.Duration) int {
	deadline := time.Now().Add(wait)
	for {
		if port := listeningPort(pid); port != 0 {
			return port
		}
		if !time.Now().Before(deadline) {
			return 0
		}
		time.Sleep(250 * time.Millisecond)
	}
}

// listeningPort matches the process's socket fds against listening TCP
// sockets in /proc/net.
func listeningPort(pid int) int {
	inodes := socketInodes(pid)
	if len(inodes) == 0 {
		return 0
	}
	for _, table := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		if port := matchListener(table, inodes); port != 0 {
			return port
		}
	}
	return 0
}

func socketInodes(pid int) map[string]bool {
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/fd", pid))
	if err != nil {
		return nil
	}
	inodes := make(map[string]bool)
	for _, e := range entries {
		target, err := os.Readlink(fmt.Sprintf("/proc/%d/fd/%s", pid, e.Name()))
		if err != nil {
			continue
		}
		if strings.HasPrefix(target, "socket:[") && strings.HasSuffix(target, "]") {
			inodes[target[len("socket:["):len(target)-1]] = true
		}
	}
	return inodes
}

// matchListener scans a /proc/net table for a LISTEN (0A) socket whose inode
// is in the set, returning its local port.
func matchListener(table string, inodes map[string]bool) int {
	data, err := os.ReadFile(table)
	if err != nil {
		return 0
	}
	lines := strings.Split(string(data), "\n")
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) < 10 || fields[3] != "0A" || !inodes[fields[9]] {
			continue
		}
		local := fields[1]
		colon := strings.LastIndexByte(local, ':')
		if colon < 0 {
			continue
		}
		port, err := strconv.ParseInt(local[colon+1:], 16, 32)
		if err != nil {
			continue
		}
		return int(port)
	}
	return 0
}
