package service

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/brainsh/brain/internal/git"
	"github.com/brainsh/brain/internal/task"
)

// ResolveWorkdir picks the execution directory for a task. First existing
// candidate wins:
//
//  1. target_workdir (absolute override)
//  2. <HOME>/<workdir>/.worktrees/<sanitized-branch>
//  3. <HOME>/<workdir>
//  4. the configured default work directory
func (s *Service) ResolveWorkdir(t *task.Task) string {
	if t.TargetWorkdir != "" && dirExists(t.TargetWorkdir) {
		return t.TargetWorkdir
	}

	home, err := os.UserHomeDir()
	if err == nil && t.Workdir != "" {
		repo := filepath.Join(home, t.Workdir)
		if t.GitBranch != "" {
			wt := filepath.Join(repo, git.WorktreeDirName, git.SanitizeBranch(t.GitBranch))
			if dirExists(wt) {
				return wt
			}
		}
		if dirExists(repo) {
			return repo
		}
	}
	return s.cfg.DefaultWorkdir
}

// MainRepo returns the task's main repo path under HOME, or "" when the task
// carries no workdir or the directory is missing.
func (s *Service) MainRepo(t *task.Task) string {
	if t.Workdir == "" {
		return ""
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	repo := filepath.Join(home, t.Workdir)
	if !dirExists(repo) {
		return ""
	}
	return repo
}

// FilterByPath returns the tasks whose store paths match a glob pattern,
// e.g. "projects/*/task/17*.md" or "**/task/*.md".
func FilterByPath(tasks []task.Task, pattern string) ([]task.Task, error) {
	if pattern == "" {
		return tasks, nil
	}
	var out []task.Task
	for _, t := range tasks {
		ok, err := doublestar.Match(pattern, t.Path)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
