// Package state persists runner state to disk and probes child liveness.
//
// Each project's supervisor owns three files under the state directory:
// runner-<project>.json (the full runner state), runner-<project>.pid (the
// supervisor's own PID), and running-<project>.json (just the running task
// entries, for cheap external consumers). All writes are atomic.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/brainsh/brain/internal/util"
)

// RunnerStatus is the supervisor state machine value.
type RunnerStatus string

const (
	StatusIdle    RunnerStatus = "idle"
	StatusRunning RunnerStatus = "running"
	StatusPaused  RunnerStatus = "paused"
	StatusStopped RunnerStatus = "stopped"
)

// RunningTask is one tracked child subprocess.
type RunningTask struct {
	TaskID       string    `json:"taskId"`
	PID          int       `json:"pid"`
	PaneID       string    `json:"paneId,omitempty"`
	WindowName   string    `json:"windowName,omitempty"`
	OpencodePort int       `json:"opencodePort,omitempty"`
	SpawnedAt    time.Time `json:"spawnedAt"`
}

// Stats accumulates per-project supervisor counters.
type Stats struct {
	Spawned   int `json:"spawned"`
	Completed int `json:"completed"`
	Blocked   int `json:"blocked"`
	Failed    int `json:"failed"`
}

// RunnerState is the persisted per-project supervisor state.
type RunnerState struct {
	Project      string        `json:"project"`
	Status       RunnerStatus  `json:"status"`
	StartedAt    time.Time     `json:"startedAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	RunningTasks []RunningTask `json:"runningTasks"`
	Stats        Stats         `json:"stats"`
}

// FindTask returns the running-task entry for id, or nil.
func (s *RunnerState) FindTask(id string) *RunningTask {
	for i := range s.RunningTasks {
		if s.RunningTasks[i].TaskID == id {
			return &s.RunningTasks[i]
		}
	}
	return nil
}

// RemoveTask drops the entry for id, if present.
func (s *RunnerState) RemoveTask(id string) {
	for i := range s.RunningTasks {
		if s.RunningTasks[i].TaskID == id {
			s.RunningTasks = append(s.RunningTasks[:i], s.RunningTasks[i+1:]...)
			return
		}
	}
}

// Manager reads and writes runner state files for one state directory.
type Manager struct {
	dir string
}

// NewManager creates a state manager rooted at dir.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Dir returns the state directory.
func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) statePath(project string) string {
	return filepath.Join(m.dir, "runner-"+project+".json")
}

func (m *Manager) pidPath(project string) string {
	return filepath.Join(m.dir, "runner-"+project+".pid")
}

func (m *Manager) runningPath(project string) string {
	return filepath.Join(m.dir, "running-"+project+".json")
}

// Load reads the persisted state for a project. A missing or unreadable file
// means no prior state: a fresh idle state is returned with ok=false.
func (m *Manager) Load(project string) (*RunnerState, bool) {
	data, err := os.ReadFile(m.statePath(project))
	if err != nil {
		return &RunnerState{Project: project, Status: StatusIdle}, false
	}
	var st RunnerState
	if err := json.Unmarshal(data, &st); err != nil {
		return &RunnerState{Project: project, Status: StatusIdle}, false
	}
	if st.Project == "" {
		st.Project = project
	}
	return &st, true
}

// Save persists the state, the supervisor PID file, and the running-tasks
// file for a project.
func (m *Manager) Save(st *RunnerState) error {
	st.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal runner state: %w", err)
	}
	if err := util.AtomicWriteFile(m.statePath(st.Project), data, 0644); err != nil {
		return fmt.Errorf("write runner state: %w", err)
	}

	pid := []byte(strconv.Itoa(os.Getpid()))
	if err := util.AtomicWriteFile(m.pidPath(st.Project), pid, 0644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	running, err := json.MarshalIndent(st.RunningTasks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal running tasks: %w", err)
	}
	if err := util.AtomicWriteFile(m.runningPath(st.Project), running, 0644); err != nil {
		return fmt.Errorf("write running tasks: %w", err)
	}
	return nil
}

// Delete removes all state files for a project. Best-effort.
func (m *Manager) Delete(project string) {
	os.Remove(m.statePath(project))
	os.Remove(m.pidPath(project))
	os.Remove(m.runningPath(project))
}

// SupervisorPID reads the recorded supervisor PID for a project.
// Returns 0 when no PID file exists or it does not parse.
func (m *Manager) SupervisorPID(project string) int {
	data, err := os.ReadFile(m.pidPath(project))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// ListProjects returns the projects that have a runner state file.
func (m *Manager) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state dir: %w", err)
	}
	var projects []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "runner-") && strings.HasSuffix(name, ".json") {
			projects = append(projects, strings.TrimSuffix(strings.TrimPrefix(name, "runner-"), ".json"))
		}
	}
	return projects, nil
}

// SweepStale deletes state files for projects whose recorded supervisor PID
// is no longer alive. Returns the projects swept.
func (m *Manager) SweepStale() ([]string, error) {
	projects, err := m.ListProjects()
	if err != nil {
		return nil, err
	}
	var swept []string
	for _, p := range projects {
		pid := m.SupervisorPID(p)
		if pid == 0 || !IsPIDAlive(pid) {
			m.Delete(p)
			swept = append(swept, p)
		}
	}
	return swept, nil
}

// IsPIDAlive reports whether a process with the given PID exists. Signal 0
// probes existence without delivering anything. EPERM means the process
// exists but belongs to someone else; that still counts as alive.
func IsPIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
