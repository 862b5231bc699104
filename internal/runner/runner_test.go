package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/brainsh/brain/internal/config"
	"github.com/brainsh/brain/internal/errors"
	"github.com/brainsh/brain/internal/executor"
	"github.com/brainsh/brain/internal/service"
	"github.com/brainsh/brain/internal/state"
	"github.com/brainsh/brain/internal/task"
)

type spawnCall struct {
	TaskID string
	Resume bool
}

type fakeSpawner struct {
	mu      sync.Mutex
	pid     int
	err     error
	spawned []spawnCall
	cleaned []string
}

func (f *fakeSpawner) SpawnBackground(_ context.Context, _ string, t *task.Task, _ string, resume bool) (*executor.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.spawned = append(f.spawned, spawnCall{TaskID: t.ID, Resume: resume})
	return &executor.Handle{TaskID: t.ID, PID: f.pid, Mode: executor.ModeBackground}, nil
}

func (f *fakeSpawner) SpawnTUI(ctx context.Context, project string, t *task.Task, workdir string, resume bool) (*executor.Handle, error) {
	return f.SpawnBackground(ctx, project, t, workdir, resume)
}

func (f *fakeSpawner) SpawnDashboard(ctx context.Context, project string, t *task.Task, workdir, _ string, resume bool) (*executor.Handle, error) {
	return f.SpawnBackground(ctx, project, t, workdir, resume)
}

func (f *fakeSpawner) Cleanup(_, taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, taskID)
}

func (f *fakeSpawner) calls() []spawnCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]spawnCall(nil), f.spawned...)
}

// indexEntry describes one task for the scripted index.
type indexEntry struct {
	ID     string
	Title  string
	Status task.Status
	Deps   []string
}

type scriptedIndexer struct {
	mu      sync.Mutex
	entries []indexEntry
}

func (s *scriptedIndexer) Query(_ context.Context, _ string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := "["
	for i, e := range s.entries {
		if i > 0 {
			out += ","
		}
		deps := ""
		for j, d := range e.Deps {
			if j > 0 {
				deps += ","
			}
			deps += fmt.Sprintf("%q", d)
		}
		out += fmt.Sprintf(`{"path":"projects/api/task/%s.md","id":%q,"title":%q,"status":%q,"depends_on":[%s]}`,
			e.ID, e.ID, e.Title, e.Status, deps)
	}
	return []byte(out + "]"), nil
}

// harness wires a runner against a temp store with the given tasks.
func harness(t *testing.T, entries []indexEntry, spawner *fakeSpawner) (*Runner, *service.Service, *config.Config) {
	t.Helper()

	cfg := config.Default()
	cfg.BrainDir = t.TempDir()
	cfg.DefaultWorkdir = cfg.BrainDir
	cfg.Runner.MaxConcurrent = 2
	cfg.Runner.SpawnFailureThreshold = 1

	for _, e := range entries {
		path := filepath.Join(cfg.BrainDir, "projects", "api", "task", e.ID+".md")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		content := fmt.Sprintf("---\nid: %s\ntitle: %s\nstatus: %s\n---\nbody\n", e.ID, e.Title, e.Status)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	svc := service.NewWithIndexer(cfg, &scriptedIndexer{entries: entries}, nil)
	r := New(Options{
		Project: "api",
		Config:  cfg,
		Service: svc,
		Spawner: spawner,
		States:  state.NewManager(cfg.StateDir()),
	})
	r.st, _ = r.states.Load("api")
	r.st.Status = state.StatusRunning
	return r, svc, cfg
}

func TestFillSlotsRespectsMaxConcurrent(t *testing.T) {
	sp := &fakeSpawner{pid: os.Getpid()}
	r, _, _ := harness(t, []indexEntry{
		{ID: "1712000000001-a", Title: "a", Status: task.StatusPending},
		{ID: "1712000000002-b", Title: "b", Status: task.StatusPending},
		{ID: "1712000000003-c", Title: "c", Status: task.StatusPending},
	}, sp)

	r.tick(context.Background())

	calls := sp.calls()
	if len(calls) != 2 {
		t.Fatalf("spawned %d tasks, want 2: %v", len(calls), calls)
	}
	if calls[0].TaskID != "1712000000001-a" || calls[1].TaskID != "1712000000002-b" {
		t.Errorf("spawn order = %v", calls)
	}
	st := r.State()
	if len(st.RunningTasks) != 2 || st.Stats.Spawned != 2 {
		t.Errorf("state = %+v", st)
	}
}

func TestSpawnMarksInProgressBeforeLaunch(t *testing.T) {
	sp := &fakeSpawner{pid: os.Getpid()}
	r, svc, _ := harness(t, []indexEntry{
		{ID: "1712000000001-a", Title: "a", Status: task.StatusPending},
	}, sp)

	r.tick(context.Background())

	tk, err := svc.GetTask(context.Background(), "1712000000001-a")
	if err != nil {
		t.Fatal(err)
	}
	if tk.Status != task.StatusInProgress {
		t.Errorf("status = %s, want in_progress", tk.Status)
	}
}

func TestSpawnFailureBlocksAfterThreshold(t *testing.T) {
	sp := &fakeSpawner{pid: os.Getpid(), err: errors.New(errors.CodeSpawnFailed, "boom")}
	r, svc, _ := harness(t, []indexEntry{
		{ID: "1712000000001-a", Title: "a", Status: task.StatusPending},
	}, sp)

	r.tick(context.Background())

	// Threshold 1: a single failure blocks the task.
	tk, err := svc.GetTask(context.Background(), "1712000000001-a")
	if err != nil {
		t.Fatal(err)
	}
	if tk.Status != task.StatusBlocked {
		t.Errorf("status = %s, want blocked", tk.Status)
	}
	st := r.State()
	if len(st.RunningTasks) != 0 {
		t.Errorf("no running entry expected: %+v", st.RunningTasks)
	}
	if st.Stats.Failed != 1 || st.Stats.Blocked != 1 {
		t.Errorf("stats = %+v", st.Stats)
	}
}

func TestLivenessSweepDropsCompleted(t *testing.T) {
	sp := &fakeSpawner{pid: os.Getpid()}
	r, _, _ := harness(t, []indexEntry{
		{ID: "1712000000001-a", Title: "a", Status: task.StatusCompleted},
	}, sp)

	r.st.RunningTasks = []state.RunningTask{{TaskID: "1712000000001-a", PID: 999999}}

	r.tick(context.Background())

	st := r.State()
	if len(st.RunningTasks) != 0 {
		t.Errorf("dead completed entry should be dropped: %+v", st.RunningTasks)
	}
	if st.Stats.Completed != 1 {
		t.Errorf("stats = %+v", st.Stats)
	}
	if len(sp.cleaned) != 1 || sp.cleaned[0] != "1712000000001-a" {
		t.Errorf("cleaned = %v", sp.cleaned)
	}
}

func TestLivenessSweepResumesInterrupted(t *testing.T) {
	sp := &fakeSpawner{pid: os.Getpid()}
	r, _, _ := harness(t, []indexEntry{
		{ID: "1712000000001-a", Title: "a", Status: task.StatusInProgress},
	}, sp)

	r.st.RunningTasks = []state.RunningTask{{TaskID: "1712000000001-a", PID: 999999}}

	r.tick(context.Background())

	calls := sp.calls()
	if len(calls) != 1 || !calls[0].Resume {
		t.Fatalf("expected one resume spawn, got %v", calls)
	}
	st := r.State()
	if rt := st.FindTask("1712000000001-a"); rt == nil || rt.PID != os.Getpid() {
		t.Errorf("re-spawned entry = %+v", st.RunningTasks)
	}
}

func TestLiveEntryIsKept(t *testing.T) {
	sp := &fakeSpawner{pid: os.Getpid()}
	r, _, _ := harness(t, []indexEntry{
		{ID: "1712000000001-a", Title: "a", Status: task.StatusInProgress},
	}, sp)

	r.st.RunningTasks = []state.RunningTask{{TaskID: "1712000000001-a", PID: os.Getpid()}}

	r.tick(context.Background())

	if len(sp.calls()) != 0 {
		t.Errorf("live child must not be re-spawned: %v", sp.calls())
	}
	st := r.State()
	if len(st.RunningTasks) != 1 {
		t.Errorf("entry should survive: %+v", st.RunningTasks)
	}
}

func TestNoDuplicateSpawnForTrackedTask(t *testing.T) {
	sp := &fakeSpawner{pid: os.Getpid()}
	r, _, _ := harness(t, []indexEntry{
		{ID: "1712000000001-a", Title: "a", Status: task.StatusPending},
	}, sp)

	// Entry already tracked with a live PID; classification says ready.
	r.st.RunningTasks = []state.RunningTask{{TaskID: "1712000000001-a", PID: os.Getpid()}}

	r.tick(context.Background())

	if len(sp.calls()) != 0 {
		t.Errorf("tracked task must not spawn twice: %v", sp.calls())
	}
}

func TestPausedRunnerNeverSpawns(t *testing.T) {
	sp := &fakeSpawner{pid: os.Getpid()}
	r, _, _ := harness(t, []indexEntry{
		{ID: "1712000000001-a", Title: "a", Status: task.StatusPending},
	}, sp)
	r.st.Status = state.StatusPaused

	r.tick(context.Background())

	if len(sp.calls()) != 0 {
		t.Errorf("paused runner spawned: %v", sp.calls())
	}
}

func TestPauseDerivedFromBlockedRootTask(t *testing.T) {
	sp := &fakeSpawner{pid: os.Getpid()}
	// Root task: title equals the project id, no deps, blocked.
	r, _, _ := harness(t, []indexEntry{
		{ID: "1712000000000-root", Title: "api", Status: task.StatusBlocked},
		{ID: "1712000000001-a", Title: "a", Status: task.StatusPending},
	}, sp)

	r.tick(context.Background())

	if len(sp.calls()) != 0 {
		t.Errorf("derived pause should inhibit spawns: %v", sp.calls())
	}
}

func TestRecoveryRespawnsDeadInProgress(t *testing.T) {
	sp := &fakeSpawner{pid: os.Getpid()}
	r, _, _ := harness(t, []indexEntry{
		{ID: "1712000000001-a", Title: "a", Status: task.StatusInProgress},
		{ID: "1712000000002-b", Title: "b", Status: task.StatusCompleted},
	}, sp)

	r.st.RunningTasks = []state.RunningTask{
		{TaskID: "1712000000001-a", PID: 999999}, // dead, in_progress: re-spawn
		{TaskID: "1712000000002-b", PID: 999999}, // dead, terminal: drop
	}

	r.recover(context.Background())

	calls := sp.calls()
	if len(calls) != 1 || calls[0].TaskID != "1712000000001-a" || !calls[0].Resume {
		t.Fatalf("recovery spawns = %v", calls)
	}
	st := r.State()
	if st.FindTask("1712000000002-b") != nil {
		t.Error("terminal entry should be dropped on recovery")
	}
}

func TestPauseResumeTransitions(t *testing.T) {
	sp := &fakeSpawner{pid: os.Getpid()}
	r, _, _ := harness(t, nil, sp)

	r.Pause()
	if r.State().Status != state.StatusPaused {
		t.Errorf("status = %s", r.State().Status)
	}
	r.Resume()
	if r.State().Status != state.StatusRunning {
		t.Errorf("status = %s", r.State().Status)
	}
}
