// Package runner supervises task execution for one project.
//
// Each Runner owns a cooperative poll loop: classify tasks, sweep child
// liveness, fill free slots with ready tasks, persist state. The loop is the
// single writer for its project's state; children run in parallel to it.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/brainsh/brain/internal/config"
	"github.com/brainsh/brain/internal/errors"
	"github.com/brainsh/brain/internal/events"
	"github.com/brainsh/brain/internal/executor"
	"github.com/brainsh/brain/internal/service"
	"github.com/brainsh/brain/internal/state"
	"github.com/brainsh/brain/internal/task"
)

// Spawner launches task subprocesses. *executor.Executor satisfies it; tests
// use a fake.
type Spawner interface {
	SpawnBackground(ctx context.Context, project string, t *task.Task, workdir string, resume bool) (*executor.Handle, error)
	SpawnTUI(ctx context.Context, project string, t *task.Task, workdir string, resume bool) (*executor.Handle, error)
	SpawnDashboard(ctx context.Context, project string, t *task.Task, workdir, targetPane string, resume bool) (*executor.Handle, error)
	Cleanup(project, taskID string)
}

// Worktrees materializes branch worktrees. *git.Manager satisfies it.
type Worktrees interface {
	EnsureWorktree(ctx context.Context, mainRepo, branch string) (string, error)
}

const cancelKillGrace = 5 * time.Second

// Runner is the per-project supervisor.
type Runner struct {
	project string
	cfg     *config.Config
	svc     *service.Service
	spawner Spawner
	wt      Worktrees
	states  *state.Manager
	pub     events.Publisher
	logger  *slog.Logger

	mode       executor.Mode
	targetPane string

	mu       sync.Mutex
	st       *state.RunnerState
	failures map[string]int
	cancel   context.CancelFunc
	done     chan struct{}
}

// Options bundles the runner's collaborators.
type Options struct {
	Project    string
	Config     *config.Config
	Service    *service.Service
	Spawner    Spawner
	Worktrees  Worktrees
	States     *state.Manager
	Publisher  events.Publisher
	Logger     *slog.Logger
	Mode       executor.Mode
	TargetPane string
}

// New creates a runner for one project.
func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mode := opts.Mode
	if mode == "" {
		mode = executor.ModeBackground
	}
	pub := opts.Publisher
	if pub == nil {
		pub = events.NewMemoryPublisher()
	}
	return &Runner{
		project:    opts.Project,
		cfg:        opts.Config,
		svc:        opts.Service,
		spawner:    opts.Spawner,
		wt:         opts.Worktrees,
		states:     opts.States,
		pub:        pub,
		logger:     logger.With("project", opts.Project),
		mode:       mode,
		targetPane: opts.TargetPane,
		failures:   make(map[string]int),
	}
}

// Project returns the project this runner supervises.
func (r *Runner) Project() string {
	return r.project
}

// State returns a copy of the current runner state.
func (r *Runner) State() state.RunnerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.st == nil {
		return state.RunnerState{Project: r.project, Status: state.StatusIdle}
	}
	st := *r.st
	st.RunningTasks = append([]state.RunningTask(nil), r.st.RunningTasks...)
	return st
}

// Start recovers persisted state, transitions to running, and launches the
// poll loop. It returns once the loop is scheduled.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.done != nil {
		r.mu.Unlock()
		return errors.New(errors.CodeRunnerBusy, "runner for %s already started", r.project)
	}

	st, _ := r.states.Load(r.project)
	r.st = st
	r.mu.Unlock()

	r.recover(ctx)

	r.mu.Lock()
	r.st.Status = state.StatusRunning
	if r.st.StartedAt.IsZero() {
		r.st.StartedAt = time.Now()
	}
	r.persistLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	r.publish(events.EventRunnerState, "", state.StatusRunning)
	go r.loop(loopCtx)
	return nil
}

// recover reconciles persisted running-task entries with reality. Entries
// with live PIDs are kept; dead entries are dropped or queued for re-spawn
// depending on the task's persisted status.
func (r *Runner) recover(ctx context.Context) {
	r.mu.Lock()
	entries := append([]state.RunningTask(nil), r.st.RunningTasks...)
	r.mu.Unlock()

	for _, rt := range entries {
		if state.IsPIDAlive(rt.PID) {
			continue
		}
		r.mu.Lock()
		r.st.RemoveTask(rt.TaskID)
		r.mu.Unlock()

		tk, err := r.svc.GetTask(ctx, rt.TaskID)
		if err != nil {
			r.logger.Warn("recovery: task vanished", "task", rt.TaskID, "error", err)
			continue
		}
		if tk.Status == task.StatusInProgress {
			r.logger.Info("recovery: re-spawning interrupted task", "task", tk.ID)
			if err := r.spawnTask(ctx, &tk, true); err != nil {
				r.handleSpawnFailure(&tk, err)
			}
		} else {
			r.spawner.Cleanup(r.project, rt.TaskID)
		}
	}

	r.mu.Lock()
	r.persistLocked()
	r.mu.Unlock()
}

// loop is the supervisor tick loop. One tick runs immediately on entry.
func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Runner.PollInterval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick runs one supervisor iteration. Liveness is swept before spawns so
// slots freed this tick are reusable immediately. Errors never escape.
func (r *Runner) tick(ctx context.Context) {
	if err := r.svc.Refresh(ctx); err != nil {
		// Indexer down: stay put, retry next tick.
		r.logger.Warn("index refresh failed", "error", err)
		return
	}

	r.sweepLiveness(ctx)
	r.sweepCancelled(ctx)

	r.mu.Lock()
	status := r.st.Status
	r.mu.Unlock()
	if status != state.StatusRunning {
		return
	}
	if r.derivedPaused(ctx) {
		return
	}

	r.fillSlots(ctx)
}

// sweepLiveness drops entries whose child died and re-spawns interrupted
// tasks.
func (r *Runner) sweepLiveness(ctx context.Context) {
	r.mu.Lock()
	entries := append([]state.RunningTask(nil), r.st.RunningTasks...)
	r.mu.Unlock()

	for _, rt := range entries {
		if state.IsPIDAlive(rt.PID) {
			continue
		}

		r.mu.Lock()
		r.st.RemoveTask(rt.TaskID)
		r.persistLocked()
		r.mu.Unlock()
		r.publish(events.EventTaskExited, rt.TaskID, nil)

		tk, err := r.svc.GetTask(ctx, rt.TaskID)
		if err != nil {
			continue
		}
		switch {
		case tk.Status.IsTerminal():
			r.mu.Lock()
			if tk.Status == task.StatusCompleted {
				r.st.Stats.Completed++
			}
			r.persistLocked()
			r.mu.Unlock()
			r.spawner.Cleanup(r.project, tk.ID)
		case tk.Status == task.StatusInProgress:
			// Child died mid-run: resume it.
			r.publish(events.EventTaskResumed, tk.ID, nil)
			if err := r.spawnTask(ctx, &tk, true); err != nil {
				r.handleSpawnFailure(&tk, err)
			}
		}
	}
}

// sweepCancelled terminates children whose task was cancelled in the store.
func (r *Runner) sweepCancelled(ctx context.Context) {
	r.mu.Lock()
	entries := append([]state.RunningTask(nil), r.st.RunningTasks...)
	r.mu.Unlock()

	for _, rt := range entries {
		tk, err := r.svc.GetTask(ctx, rt.TaskID)
		if err != nil || tk.Status != task.StatusCancelled {
			continue
		}
		r.logger.Info("terminating cancelled task", "task", rt.TaskID, "pid", rt.PID)
		_ = executor.Terminate(rt.PID)
		go func(pid int) {
			time.Sleep(cancelKillGrace)
			if state.IsPIDAlive(pid) {
				_ = executor.Kill(pid)
			}
		}(rt.PID)

		r.mu.Lock()
		r.st.RemoveTask(rt.TaskID)
		r.persistLocked()
		r.mu.Unlock()
		r.spawner.Cleanup(r.project, rt.TaskID)
	}
}

// derivedPaused reports whether the store signals a pause: a project-root
// task (title equals the project id, no dependencies) in blocked status.
func (r *Runner) derivedPaused(ctx context.Context) bool {
	tasks, err := r.svc.ListTasks(ctx, r.project)
	if err != nil {
		return false
	}
	for _, t := range tasks {
		if t.Title == r.project && len(t.DependsOn) == 0 && t.Status == task.StatusBlocked {
			return true
		}
	}
	return false
}

// fillSlots spawns ready tasks until the slots are full.
func (r *Runner) fillSlots(ctx context.Context) {
	res, err := r.svc.Classify(ctx, r.project)
	if err != nil {
		r.logger.Warn("classify failed", "error", err)
		return
	}

	for _, ready := range res.Ready() {
		r.mu.Lock()
		full := len(r.st.RunningTasks) >= r.cfg.Runner.MaxConcurrent
		already := r.st.FindTask(ready.ID) != nil
		r.mu.Unlock()
		if full {
			return
		}
		if already {
			continue // never two children for one task id
		}

		tk := ready.Task
		if err := r.spawnTask(ctx, &tk, false); err != nil {
			r.handleSpawnFailure(&tk, err)
		}
	}
}

// spawnTask marks the task in_progress, materializes its worktree, and
// launches the child in the configured mode. The in_progress write happens
// before the spawn so a crash between the two is recoverable.
func (r *Runner) spawnTask(ctx context.Context, tk *task.Task, resume bool) error {
	if err := r.svc.SetStatus(tk, task.StatusInProgress); err != nil {
		return err
	}

	workdir, err := r.resolveExecDir(ctx, tk)
	if err != nil {
		r.restorePending(tk)
		return err
	}

	var h *executor.Handle
	switch r.mode {
	case executor.ModeTUI:
		h, err = r.spawner.SpawnTUI(ctx, r.project, tk, workdir, resume)
	case executor.ModeDashboard:
		h, err = r.spawner.SpawnDashboard(ctx, r.project, tk, workdir, r.targetPane, resume)
	default:
		h, err = r.spawner.SpawnBackground(ctx, r.project, tk, workdir, resume)
	}
	if err != nil {
		r.restorePending(tk)
		return err
	}

	r.mu.Lock()
	r.st.RunningTasks = append(r.st.RunningTasks, state.RunningTask{
		TaskID:       tk.ID,
		PID:          h.PID,
		PaneID:       h.PaneID,
		WindowName:   h.WindowName,
		OpencodePort: h.Port,
		SpawnedAt:    time.Now(),
	})
	r.st.Stats.Spawned++
	delete(r.failures, tk.ID)
	r.persistLocked()
	r.mu.Unlock()

	r.publish(events.EventTaskSpawned, tk.ID, map[string]any{"pid": h.PID, "mode": string(h.Mode)})
	return nil
}

// resolveExecDir picks the child's working directory, creating a worktree
// when the task names a branch and its main repo exists.
func (r *Runner) resolveExecDir(ctx context.Context, tk *task.Task) (string, error) {
	if tk.GitBranch != "" && r.wt != nil {
		if repo := r.svc.MainRepo(tk); repo != "" {
			path, err := r.wt.EnsureWorktree(ctx, repo, tk.GitBranch)
			if err != nil {
				return "", err
			}
			if path == "" {
				return repo, nil
			}
			return path, nil
		}
	}
	return r.svc.ResolveWorkdir(tk), nil
}

// restorePending puts a task back to pending after a failed spawn attempt.
func (r *Runner) restorePending(tk *task.Task) {
	if err := r.svc.SetStatus(tk, task.StatusPending); err != nil {
		r.logger.Warn("could not restore task to pending", "task", tk.ID, "error", err)
	}
}

// handleSpawnFailure counts consecutive failures and blocks the task once
// the threshold is reached.
func (r *Runner) handleSpawnFailure(tk *task.Task, cause error) {
	r.logger.Error("spawn failed", "task", tk.ID, "error", cause)

	r.mu.Lock()
	r.failures[tk.ID]++
	count := r.failures[tk.ID]
	r.st.Stats.Failed++
	threshold := r.cfg.Runner.SpawnFailureThreshold
	r.persistLocked()
	r.mu.Unlock()

	if count >= threshold {
		if err := r.svc.SetStatus(tk, task.StatusBlocked); err != nil {
			r.logger.Warn("could not block task", "task", tk.ID, "error", err)
			return
		}
		r.mu.Lock()
		r.st.Stats.Blocked++
		delete(r.failures, tk.ID)
		r.persistLocked()
		r.mu.Unlock()
		r.publish(events.EventTaskBlocked, tk.ID, map[string]any{"error": cause.Error()})
	}
	r.publish(events.EventError, tk.ID, map[string]any{"error": cause.Error()})
}

// Pause inhibits new spawns without touching running children.
func (r *Runner) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.st == nil || r.st.Status != state.StatusRunning {
		return
	}
	r.st.Status = state.StatusPaused
	r.persistLocked()
	r.publish(events.EventRunnerState, "", state.StatusPaused)
}

// Resume re-enables spawning after a pause.
func (r *Runner) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.st == nil || r.st.Status != state.StatusPaused {
		return
	}
	r.st.Status = state.StatusRunning
	r.persistLocked()
	r.publish(events.EventRunnerState, "", state.StatusRunning)
}

// Stop halts the loop and terminates all tracked children: SIGTERM, a grace
// wait, then SIGKILL for survivors.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.st == nil {
		r.mu.Unlock()
		return
	}
	r.st.Status = state.StatusStopped
	entries := append([]state.RunningTask(nil), r.st.RunningTasks...)
	cancel := r.cancel
	done := r.done
	r.persistLocked()
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	for _, rt := range entries {
		_ = executor.Terminate(rt.PID)
	}

	deadline := time.Now().Add(r.cfg.Runner.StopGrace)
	for time.Now().Before(deadline) {
		alive := false
		for _, rt := range entries {
			if state.IsPIDAlive(rt.PID) {
				alive = true
				break
			}
		}
		if !alive {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	for _, rt := range entries {
		if state.IsPIDAlive(rt.PID) {
			_ = executor.Kill(rt.PID)
		}
	}

	r.publish(events.EventRunnerState, "", state.StatusStopped)
}

// persistLocked writes the state files; the caller holds r.mu. Write
// failures are logged, next tick retries.
func (r *Runner) persistLocked() {
	if err := r.states.Save(r.st); err != nil {
		r.logger.Warn("could not persist runner state", "error", err)
	}
}

func (r *Runner) publish(t events.EventType, taskID string, data any) {
	r.pub.Publish(events.NewEvent(t, r.project, taskID, data))
}
