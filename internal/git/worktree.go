// Package git manages per-branch worktrees for task execution.
package git

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/brainsh/brain/internal/errors"
)

// WorktreeDirName is the subdirectory of the main repo holding worktrees.
const WorktreeDirName = ".worktrees"

// setupPrompt is the fixed instruction the setup agent receives after a
// worktree is created. The agent must answer with one of the sentinels.
const setupPrompt = `You are setting up a freshly created git worktree for development.
Install dependencies and run any project-specific setup steps you find
(package manifests, Makefile setup targets, .env examples). When everything
is ready, print exactly SETUP_SUCCESS on its own line. If setup cannot
succeed, print SETUP_FAILED: <one-line reason> and stop.`

var branchCharStrip = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeBranch converts a branch name to a filesystem-safe directory name:
// slashes become dashes, everything outside [A-Za-z0-9_-] is stripped.
func SanitizeBranch(branch string) string {
	s := strings.ReplaceAll(branch, "/", "-")
	return branchCharStrip.ReplaceAllString(s, "")
}

// Manager materializes worktrees and runs the post-create setup agent.
type Manager struct {
	runner       CommandRunner
	agentCommand string
	agentModel   string
	setupTimeout time.Duration
	logger       *slog.Logger
}

// NewManager creates a worktree manager. agentCommand is the assistant
// binary used for post-create setup; setupTimeout bounds its run.
func NewManager(runner CommandRunner, agentCommand, agentModel string, setupTimeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		runner:       runner,
		agentCommand: agentCommand,
		agentModel:   agentModel,
		setupTimeout: setupTimeout,
		logger:       logger,
	}
}

// EnsureWorktree returns a directory in which the given branch is checked
// out, creating a worktree (and the branch, if new) when necessary.
//
// The empty return path means the branch is already checked out in the main
// repo, so the caller should use mainRepo directly.
func (m *Manager) EnsureWorktree(ctx context.Context, mainRepo, branch string) (string, error) {
	current, err := m.checkedOutBranch(ctx, mainRepo)
	if err != nil {
		return "", errors.Wrap(errors.CodeWorktreeSetup, err, "inspect repo %s", mainRepo)
	}
	if current == branch {
		return "", nil
	}

	if path := m.existingWorktree(ctx, mainRepo, branch); path != "" {
		return path, nil
	}

	path := filepath.Join(mainRepo, WorktreeDirName, SanitizeBranch(branch))
	if err := m.ensureGitignore(mainRepo); err != nil {
		m.logger.Warn("could not update .gitignore", "repo", mainRepo, "error", err)
	}
	if err := os.MkdirAll(filepath.Join(mainRepo, WorktreeDirName), 0755); err != nil {
		return "", errors.Wrap(errors.CodeWorktreeSetup, err, "create worktrees dir")
	}

	if m.branchExists(ctx, mainRepo, branch) {
		if _, err := m.runner.Run(ctx, mainRepo, "git", "worktree", "add", path, branch); err != nil {
			return "", errors.Wrap(errors.CodeWorktreeSetup, err, "add worktree for %s", branch)
		}
	} else {
		base := m.defaultBranch(ctx, mainRepo)
		if _, err := m.runner.Run(ctx, mainRepo, "git", "worktree", "add", "-b", branch, path, base); err != nil {
			return "", errors.Wrap(errors.CodeWorktreeSetup, err, "create branch %s from %s", branch, base)
		}
	}

	if err := m.runSetupAgent(ctx, path); err != nil {
		return "", err
	}
	return path, nil
}

// checkedOutBranch returns the branch checked out in repo, or "" for a
// detached HEAD.
func (m *Manager) checkedOutBranch(ctx context.Context, repo string) (string, error) {
	out, err := m.runner.Run(ctx, repo, "git", "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// existingWorktree returns the registered worktree path for branch, or "".
func (m *Manager) existingWorktree(ctx context.Context, repo, branch string) string {
	out, err := m.runner.Run(ctx, repo, "git", "worktree", "list", "--porcelain")
	if err != nil {
		return ""
	}

	// Porcelain stanzas: "worktree <path>" ... "branch refs/heads/<name>".
	var path string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "worktree "):
			path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			if strings.TrimPrefix(ref, "refs/heads/") == branch && path != repo {
				return path
			}
		}
	}
	return ""
}

func (m *Manager) branchExists(ctx context.Context, repo, branch string) bool {
	_, err := m.runner.Run(ctx, repo, "git", "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// defaultBranch resolves the repo's default branch: origin/HEAD when set,
// falling back to main, then master.
func (m *Manager) defaultBranch(ctx context.Context, repo string) string {
	out, err := m.runner.Run(ctx, repo, "git", "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil {
		if i := strings.LastIndexByte(out, '/'); i >= 0 {
			return out[i+1:]
		}
	}
	if m.branchExists(ctx, repo, "main") {
		return "main"
	}
	return "master"
}

// ensureGitignore appends the worktrees directory to the repo's .gitignore
// when it is not already listed.
func (m *Manager) ensureGitignore(repo string) error {
	path := filepath.Join(repo, ".gitignore")
	entry := WorktreeDirName + "/"

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == entry {
			return nil
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	prefix := ""
	if len(data) > 0 && data[len(data)-1] != '\n' {
		prefix = "\n"
	}
	_, err = fmt.Fprintf(f, "%s%s\n", prefix, entry)
	return err
}

// runSetupAgent runs the assistant in the new worktree with the setup prompt
// and checks for the success sentinel. Timeout, nonzero exit, spawn failure,
// and an explicit SETUP_FAILED all count as setup failure.
func (m *Manager) runSetupAgent(ctx context.Context, worktree string) error {
	ctx, cancel := context.WithTimeout(ctx, m.setupTimeout)
	defer cancel()

	args := []string{"-p", setupPrompt}
	if m.agentModel != "" {
		args = append(args, "--model", m.agentModel)
	}

	out, err := m.runner.Run(ctx, worktree, m.agentCommand, args...)
	if err != nil {
		return errors.Wrap(errors.CodeWorktreeSetup, err, "setup agent failed in %s", worktree)
	}
	if idx := strings.Index(out, "SETUP_FAILED:"); idx >= 0 {
		reason := strings.TrimSpace(out[idx+len("SETUP_FAILED:"):])
		if nl := strings.IndexByte(reason, '\n'); nl >= 0 {
			reason = reason[:nl]
		}
		return errors.New(errors.CodeWorktreeSetup, "setup agent reported failure: %s", reason)
	}
	if !strings.Contains(out, "SETUP_SUCCESS") {
		return errors.New(errors.CodeWorktreeSetup, "setup agent produced no success sentinel")
	}
	return nil
}
