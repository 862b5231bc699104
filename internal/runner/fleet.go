package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brainsh/brain/internal/config"
	"github.com/brainsh/brain/internal/errors"
	"github.com/brainsh/brain/internal/events"
	"github.com/brainsh/brain/internal/executor"
	"github.com/brainsh/brain/internal/service"
	"github.com/brainsh/brain/internal/state"
	"github.com/brainsh/brain/internal/task"
)

// Fleet starts and tracks runners across projects.
type Fleet struct {
	cfg     *config.Config
	svc     *service.Service
	spawner Spawner
	wt      Worktrees
	states  *state.Manager
	pub     events.Publisher
	logger  *slog.Logger

	mu      sync.Mutex
	runners map[string]*Runner
}

// NewFleet creates a fleet sharing one service, spawner, and state manager.
func NewFleet(cfg *config.Config, svc *service.Service, spawner Spawner, wt Worktrees, states *state.Manager, pub events.Publisher, logger *slog.Logger) *Fleet {
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = events.NewMemoryPublisher()
	}
	return &Fleet{
		cfg:     cfg,
		svc:     svc,
		spawner: spawner,
		wt:      wt,
		states:  states,
		pub:     pub,
		logger:  logger,
		runners: make(map[string]*Runner),
	}
}

// Runner returns the tracked runner for a project, or nil.
func (f *Fleet) Runner(project string) *Runner {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runners[project]
}

// Runners returns all tracked runners.
func (f *Fleet) Runners() []*Runner {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Runner, 0, len(f.runners))
	for _, r := range f.runners {
		out = append(out, r)
	}
	return out
}

// StartProject starts one project's runner in the given mode.
func (f *Fleet) StartProject(ctx context.Context, project string, mode executor.Mode) (*Runner, error) {
	f.mu.Lock()
	if r, ok := f.runners[project]; ok {
		f.mu.Unlock()
		return r, errors.New(errors.CodeRunnerBusy, "runner for %s already started", project)
	}
	f.mu.Unlock()

	r := New(Options{
		Project:   project,
		Config:    f.cfg,
		Service:   f.svc,
		Spawner:   f.spawner,
		Worktrees: f.wt,
		States:    f.states,
		Publisher: f.pub,
		Logger:    f.logger,
		Mode:      mode,
	})
	if err := r.Start(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.runners[project] = r
	f.mu.Unlock()
	return r, nil
}

// StartAll sweeps stale state files, then starts a runner for every project
// concurrently. The first start error aborts the remaining starts.
func (f *Fleet) StartAll(ctx context.Context, mode executor.Mode) error {
	if swept, err := f.states.SweepStale(); err != nil {
		f.logger.Warn("stale-state sweep failed", "error", err)
	} else if len(swept) > 0 {
		f.logger.Info("swept stale runner state", "projects", swept)
	}

	projects, err := f.svc.ListProjects()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, project := range projects {
		g.Go(func() error {
			_, err := f.StartProject(gctx, project, mode)
			return err
		})
	}
	return g.Wait()
}

// StopAll stops every tracked runner.
func (f *Fleet) StopAll() {
	for _, r := range f.Runners() {
		r.Stop()
	}
}

// RunOne executes the single highest-priority ready task of a project in the
// foreground: background spawn, wait for the child to exit, report the final
// persisted status.
func (f *Fleet) RunOne(ctx context.Context, project string) (task.Status, error) {
	if err := f.svc.Refresh(ctx); err != nil {
		return "", err
	}
	res, err := f.svc.Classify(ctx, project)
	if err != nil {
		return "", err
	}
	next := res.Next()
	if next == nil {
		return "", errors.New(errors.CodeTaskNotFound, "no ready task in %s", project)
	}

	r := New(Options{
		Project:   project,
		Config:    f.cfg,
		Service:   f.svc,
		Spawner:   f.spawner,
		Worktrees: f.wt,
		States:    f.states,
		Publisher: f.pub,
		Logger:    f.logger,
	})
	r.st, _ = f.states.Load(project)

	tk := next.Task
	if err := r.spawnTask(ctx, &tk, false); err != nil {
		return "", err
	}

	st := r.State()
	rt := st.FindTask(tk.ID)
	for rt != nil && state.IsPIDAlive(rt.PID) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	// The assistant wrote its final status to the store; re-index to see it.
	if err := f.svc.Refresh(ctx); err != nil {
		return "", err
	}
	final, err := f.svc.GetTask(ctx, tk.ID)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.st.RemoveTask(tk.ID)
	r.persistLocked()
	r.mu.Unlock()
	return final.Status, nil
}
