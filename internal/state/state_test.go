package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	m := NewManager(t.TempDir())

	st := &RunnerState{
		Project:   "api",
		Status:    StatusRunning,
		StartedAt: time.Now(),
		RunningTasks: []RunningTask{
			{TaskID: "a1b2c3d4", PID: 1234, SpawnedAt: time.Now()},
		},
		Stats: Stats{Spawned: 1},
	}
	if err := m.Save(st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, ok := m.Load("api")
	if !ok {
		t.Fatal("expected prior state")
	}
	if loaded.Status != StatusRunning || len(loaded.RunningTasks) != 1 {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.RunningTasks[0].TaskID != "a1b2c3d4" || loaded.RunningTasks[0].PID != 1234 {
		t.Errorf("running task = %+v", loaded.RunningTasks[0])
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("Save should stamp UpdatedAt")
	}
}

func TestLoadMissingMeansNoPriorState(t *testing.T) {
	m := NewManager(t.TempDir())
	st, ok := m.Load("nothing")
	if ok {
		t.Error("expected ok=false for missing file")
	}
	if st.Status != StatusIdle || st.Project != "nothing" {
		t.Errorf("fresh state = %+v", st)
	}
}

func TestLoadCorruptMeansNoPriorState(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	os.WriteFile(filepath.Join(dir, "runner-api.json"), []byte("{not json"), 0644)

	_, ok := m.Load("api")
	if ok {
		t.Error("corrupt file should read as no prior state")
	}
}

func TestFindAndRemoveTask(t *testing.T) {
	st := &RunnerState{
		RunningTasks: []RunningTask{
			{TaskID: "one", PID: 1},
			{TaskID: "two", PID: 2},
		},
	}
	if rt := st.FindTask("two"); rt == nil || rt.PID != 2 {
		t.Errorf("FindTask = %+v", rt)
	}
	if st.FindTask("three") != nil {
		t.Error("FindTask should miss")
	}
	st.RemoveTask("one")
	if len(st.RunningTasks) != 1 || st.RunningTasks[0].TaskID != "two" {
		t.Errorf("after remove: %+v", st.RunningTasks)
	}
}

func TestSupervisorPID(t *testing.T) {
	m := NewManager(t.TempDir())
	st := &RunnerState{Project: "api", Status: StatusRunning}
	if err := m.Save(st); err != nil {
		t.Fatal(err)
	}
	if got := m.SupervisorPID("api"); got != os.Getpid() {
		t.Errorf("SupervisorPID = %d, want %d", got, os.Getpid())
	}
	if got := m.SupervisorPID("nothing"); got != 0 {
		t.Errorf("missing pid file should read 0, got %d", got)
	}
}

func TestListProjectsAndSweep(t *testing.T) {
	m := NewManager(t.TempDir())

	// Alive: our own PID. Stale: a PID that cannot exist.
	if err := m.Save(&RunnerState{Project: "alive", Status: StatusRunning}); err != nil {
		t.Fatal(err)
	}
	if err := m.Save(&RunnerState{Project: "stale", Status: StatusRunning}); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(m.Dir(), "runner-stale.pid"), []byte("999999"), 0644)

	projects, err := m.ListProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 {
		t.Fatalf("projects = %v", projects)
	}

	swept, err := m.SweepStale()
	if err != nil {
		t.Fatal(err)
	}
	if len(swept) != 1 || swept[0] != "stale" {
		t.Errorf("swept = %v", swept)
	}
	if _, ok := m.Load("stale"); ok {
		t.Error("stale state should be deleted")
	}
	if _, ok := m.Load("alive"); !ok {
		t.Error("alive state should survive the sweep")
	}
}

func TestIsPIDAlive(t *testing.T) {
	if !IsPIDAlive(os.Getpid()) {
		t.Error("our own pid should be alive")
	}
	if IsPIDAlive(0) || IsPIDAlive(-1) {
		t.Error("non-positive pids are never alive")
	}
	if IsPIDAlive(999999) {
		t.Error("pid 999999 should not exist")
	}
}
