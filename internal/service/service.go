// Package service loads tasks from the note store and prepares them for the
// resolver and the runner.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/brainsh/brain/internal/config"
	"github.com/brainsh/brain/internal/errors"
	"github.com/brainsh/brain/internal/resolver"
	"github.com/brainsh/brain/internal/task"
)

// Indexer queries the external note index for task entries.
type Indexer interface {
	// Query returns a JSON array of entries under dir.
	Query(ctx context.Context, dir string) ([]byte, error)
}

// CommandIndexer shells out to the configured indexer binary.
type CommandIndexer struct {
	Command string
}

// Query runs `<command> list --json <dir>` and returns its stdout.
func (c *CommandIndexer) Query(ctx context.Context, dir string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Command, "list", "--json", dir)
	out, err := cmd.Output()
	if err != nil {
		var execErr *exec.Error
		if stderrors.As(err, &execErr) && stderrors.Is(execErr.Err, exec.ErrNotFound) {
			return nil, errors.ErrIndexerUnavailable(err)
		}
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			return nil, errors.Wrap(errors.CodeIndexerFailed, err, "indexer exited: %s",
				strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, errors.Wrap(errors.CodeIndexerFailed, err, "run indexer")
	}
	return out, nil
}

// Service is the task service. It indexes once and serves from the snapshot;
// Refresh re-runs the indexer.
type Service struct {
	cfg     *config.Config
	indexer Indexer
	logger  *slog.Logger

	mu      sync.RWMutex
	tasks   []task.Task // all projects, from the last index run
	indexed bool
}

// New creates a task service backed by the configured indexer command.
func New(cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		indexer: &CommandIndexer{Command: cfg.IndexerCommand},
		logger:  logger,
	}
}

// NewWithIndexer creates a task service with an explicit indexer.
func NewWithIndexer(cfg *config.Config, indexer Indexer, logger *slog.Logger) *Service {
	s := New(cfg, logger)
	s.indexer = indexer
	return s
}

// ListProjects returns the sorted names of all projects: subdirectories of
// <brainDir>/projects that contain a task/ subdirectory.
func (s *Service) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.ProjectsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read projects dir: %w", err)
	}

	var projects []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		taskDir := filepath.Join(s.cfg.ProjectsDir(), e.Name(), "task")
		if info, err := os.Stat(taskDir); err == nil && info.IsDir() {
			projects = append(projects, e.Name())
		}
	}
	sort.Strings(projects)
	return projects, nil
}

// Refresh re-runs the indexer and replaces the task snapshot.
func (s *Service) Refresh(ctx context.Context) error {
	out, err := s.indexer.Query(ctx, s.cfg.BrainDir)
	if err != nil {
		return err
	}

	tasks, err := parseIndex(out)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.tasks = tasks
	s.indexed = true
	s.mu.Unlock()
	return nil
}

// ensureIndexed indexes on first use.
func (s *Service) ensureIndexed(ctx context.Context) error {
	s.mu.RLock()
	done := s.indexed
	s.mu.RUnlock()
	if done {
		return nil
	}
	return s.Refresh(ctx)
}

// parseIndex extracts Task records from the indexer's JSON array. Entries
// without an id or outside projects/<p>/task/ are skipped. Empty output is a
// valid no-tasks result.
func parseIndex(data []byte) ([]task.Task, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}
	parsed := gjson.Parse(trimmed)
	if !parsed.IsArray() {
		return nil, errors.New(errors.CodeIndexerFailed, "indexer output is not a JSON array")
	}

	var tasks []task.Task
	parsed.ForEach(func(_, entry gjson.Result) bool {
		path := entry.Get("path").String()
		if !strings.HasPrefix(path, "projects/") || !strings.Contains(path, "/task/") {
			return true
		}
		t := task.Task{
			ID:            entry.Get("id").String(),
			Path:          path,
			Title:         entry.Get("title").String(),
			Priority:      task.Priority(entry.Get("priority").String()),
			Status:        task.Status(entry.Get("status").String()),
			ParentID:      entry.Get("parent_id").String(),
			Workdir:       entry.Get("workdir").String(),
			GitBranch:     entry.Get("git_branch").String(),
			TargetWorkdir: entry.Get("target_workdir").String(),
			DirectPrompt:  entry.Get("direct_prompt").String(),
			Agent:         entry.Get("agent").String(),
			Model:         entry.Get("model").String(),
			FeatureID:     entry.Get("feature_id").String(),
		}
		for _, dep := range entry.Get("depends_on").Array() {
			t.DependsOn = append(t.DependsOn, dep.String())
		}
		if t.ID == "" {
			return true
		}
		tasks = append(tasks, t)
		return true
	})
	return tasks, nil
}

// projectOf extracts the project name from a store path.
func projectOf(path string) string {
	rest := strings.TrimPrefix(path, "projects/")
	if i := strings.IndexByte(rest, '/'); i > 0 {
		return rest[:i]
	}
	return ""
}

// ListTasks returns the tasks of one project from the index snapshot.
func (s *Service) ListTasks(ctx context.Context, project string) ([]task.Task, error) {
	if err := s.ensureIndexed(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []task.Task
	for _, t := range s.tasks {
		if projectOf(t.Path) == project {
			out = append(out, t)
		}
	}
	return out, nil
}

// Classify resolves one project's tasks. Cross-project project:id references
// are rewritten to plain ids and the referenced foreign tasks are appended to
// the resolver input so their statuses propagate; the result is then filtered
// back to the project's own tasks and stats recomputed.
func (s *Service) Classify(ctx context.Context, project string) (resolver.Result, error) {
	tasks, err := s.ListTasks(ctx, project)
	if err != nil {
		return resolver.Result{}, err
	}

	own := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		own[t.ID] = true
	}

	input := append([]task.Task(nil), tasks...)
	foreign := make(map[string]bool)
	for i := range input {
		// The snapshot owns the original slices; never write through them.
		input[i].DependsOn = append([]string(nil), input[i].DependsOn...)
		for j, raw := range input[i].DependsOn {
			ref := task.ParseRef(raw)
			if ref.Project == "" || ref.Project == project {
				if ref.Project == project {
					input[i].DependsOn[j] = ref.Value
				}
				continue
			}
			ft, ok := s.lookup(ref.Project, ref.Value)
			if !ok {
				continue // stays raw, resolver reports it unresolved
			}
			input[i].DependsOn[j] = ft.ID
			if !own[ft.ID] && !foreign[ft.ID] {
				foreign[ft.ID] = true
				ft.DependsOn = nil // foreign graphs are not traversed
				ft.ParentID = ""
				input = append(input, ft)
			}
		}
	}

	res := resolver.Resolve(input)
	if len(foreign) == 0 {
		return res, nil
	}

	filtered := resolver.Result{Cycles: res.Cycles}
	for _, r := range res.Tasks {
		if !own[r.ID] {
			continue
		}
		filtered.Tasks = append(filtered.Tasks, r)
		filtered.Stats.Total++
		switch r.Classification {
		case task.ClassReady:
			filtered.Stats.Ready++
		case task.ClassWaiting, task.ClassWaitingOnParent:
			filtered.Stats.Waiting++
		case task.ClassBlocked, task.ClassBlockedByParent:
			filtered.Stats.Blocked++
		case task.ClassNotPending:
			filtered.Stats.NotPending++
		}
	}
	return filtered, nil
}

// lookup finds a task by id or title in another project's snapshot.
func (s *Service) lookup(project, ref string) (task.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tasks {
		if projectOf(t.Path) != project {
			continue
		}
		if t.ID == ref || t.Title == ref {
			return t, true
		}
	}
	return task.Task{}, false
}

// GetTask returns one task by id or store path, searching all projects.
func (s *Service) GetTask(ctx context.Context, ref string) (task.Task, error) {
	if err := s.ensureIndexed(ctx); err != nil {
		return task.Task{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	clean := strings.TrimSuffix(ref, ".md")
	for _, t := range s.tasks {
		if t.ID == ref || t.Path == ref || strings.TrimSuffix(t.Path, ".md") == clean {
			return t, nil
		}
	}
	return task.Task{}, errors.ErrTaskNotFound(ref)
}

// TaskFilePath returns the absolute path of a task's markdown file.
func (s *Service) TaskFilePath(t *task.Task) string {
	return filepath.Join(s.cfg.BrainDir, t.Path)
}

// SetStatus rewrites the status field of a task's file on disk.
func (s *Service) SetStatus(t *task.Task, status task.Status) error {
	path := s.TaskFilePath(t)
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.CodeStorageFailed, err, "read task file %s", t.Path)
	}
	out, err := task.RewriteStatus(data, status)
	if err != nil {
		return errors.Wrap(errors.CodeInvalidTask, err, "rewrite status of %s", t.Path)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return errors.Wrap(errors.CodeStorageFailed, err, "write task file %s", t.Path)
	}

	// Keep the snapshot in step so the next tick sees the transition even
	// before a re-index.
	s.mu.Lock()
	for i := range s.tasks {
		if s.tasks[i].ID == t.ID && projectOf(s.tasks[i].Path) == projectOf(t.Path) {
			s.tasks[i].Status = status
		}
	}
	s.mu.Unlock()
	t.Status = status
	return nil
}
