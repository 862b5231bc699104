// Package executor builds prompts and spawns assistant subprocesses.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	brainerrors "github.com/brainsh/brain/internal/errors"
	"github.com/brainsh/brain/internal/task"
)

// Mode selects how a task subprocess is spawned.
type Mode string

const (
	// ModeBackground runs the assistant headless with output to a log file.
	ModeBackground Mode = "background"
	// ModeTUI opens the assistant interactively in a new multiplexer window.
	ModeTUI Mode = "tui"
	// ModeDashboard splits an existing pane for the assistant.
	ModeDashboard Mode = "dashboard"
)

// Handle describes a spawned task subprocess.
type Handle struct {
	TaskID     string
	PID        int
	PaneID     string
	WindowName string
	Port       int
	Mode       Mode
}

const (
	paneReadyBudget   = 3 * time.Second
	paneReadyInterval = 100 * time.Millisecond
	splitRetries      = 3
	pidSettleWait     = 500 * time.Millisecond
	portDiscoverWait  = 2500 * time.Millisecond
	paneTitleMax      = 40
)

// Executor spawns assistant subprocesses for tasks.
type Executor struct {
	stateDir     string
	agentCommand string
	defaultModel string
	mux          Multiplexer
	logger       *slog.Logger

	paneBudget time.Duration
	settleWait time.Duration
	portWait   time.Duration
}

// New creates an executor. mux may be nil when only background mode is used.
func New(stateDir, agentCommand, defaultModel string, mux Multiplexer, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		stateDir:     stateDir,
		agentCommand: agentCommand,
		defaultModel: defaultModel,
		mux:          mux,
		logger:       logger,
		paneBudget:   paneReadyBudget,
		settleWait:   pidSettleWait,
		portWait:     portDiscoverWait,
	}
}

func (e *Executor) promptPath(project, taskID string) string {
	return filepath.Join(e.stateDir, fmt.Sprintf("prompt_%s_%s.txt", project, taskID))
}

func (e *Executor) wrapperPath(project, taskID string) string {
	return filepath.Join(e.stateDir, fmt.Sprintf("runner_%s_%s.sh", project, taskID))
}

// LogPath returns the output log file for a task.
func (e *Executor) LogPath(project, taskID string) string {
	return filepath.Join(e.stateDir, fmt.Sprintf("output_%s_%s.log", project, taskID))
}

// effective returns the agent command and model after task-level overrides.
func (e *Executor) effective(t *task.Task) (agent, model string) {
	agent, model = e.agentCommand, e.defaultModel
	if t.Agent != "" {
		agent = t.Agent
	}
	if t.Model != "" {
		model = t.Model
	}
	return agent, model
}

// writePrompt writes the task prompt to its scratch file and returns the path.
func (e *Executor) writePrompt(project string, t *task.Task, resume bool) (string, error) {
	path := e.promptPath(project, t.ID)
	if err := os.MkdirAll(e.stateDir, 0755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(BuildPrompt(t, resume)), 0644); err != nil {
		return "", fmt.Errorf("write prompt file: %w", err)
	}
	return path, nil
}

func agentArgs(promptPath, model string) []string {
	args := []string{"--prompt-file", promptPath}
	if model != "" {
		args = append(args, "--model", model)
	}
	return args
}

// SpawnBackground starts the assistant headless in workdir, output appended
// to the task's log file. Returns a handle carrying the child PID.
func (e *Executor) SpawnBackground(ctx context.Context, project string, t *task.Task, workdir string, resume bool) (*Handle, error) {
	promptPath, err := e.writePrompt(project, t, resume)
	if err != nil {
		return nil, brainerrors.Wrap(brainerrors.CodeSpawnFailed, err, "prepare prompt for %s", t.ID)
	}

	logFile, err := os.OpenFile(e.LogPath(project, t.ID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, brainerrors.Wrap(brainerrors.CodeSpawnFailed, err, "open log for %s", t.ID)
	}
	defer logFile.Close()

	agent, model := e.effective(t)
	cmd := exec.Command(agent, agentArgs(promptPath, model)...)
	cmd.Dir = workdir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, brainerrors.Wrap(brainerrors.CodeSpawnFailed, err, "start %s for %s", agent, t.ID)
	}
	pid := cmd.Process.Pid

	// Reap in the background so the child never zombies; the supervisor
	// watches liveness through the PID, not through Wait.
	go func() { _ = cmd.Wait() }()

	e.logger.Info("spawned task", "task", t.ID, "pid", pid, "mode", ModeBackground)
	return &Handle{TaskID: t.ID, PID: pid, Mode: ModeBackground}, nil
}

// writeWrapper writes the interactive wrapper script and returns its path.
func (e *Executor) writeWrapper(project string, t *task.Task, workdir, promptPath string) (string, error) {
	agent, model := e.effective(t)
	script := fmt.Sprintf("#!/bin/sh\ncd %q || exit 1\nexec %q", workdir, agent)
	for _, a := range agentArgs(promptPath, model) {
		script += fmt.Sprintf(" %q", a)
	}
	script += "\n"

	path := e.wrapperPath(project, t.ID)
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		return "", fmt.Errorf("write wrapper script: %w", err)
	}
	return path, nil
}

// SpawnTUI opens the assistant in a new multiplexer window. PID and port
// discovery are best-effort; their absence does not fail the spawn.
func (e *Executor) SpawnTUI(ctx context.Context, project string, t *task.Task, workdir string, resume bool) (*Handle, error) {
	if e.mux == nil {
		return nil, brainerrors.New(brainerrors.CodeSpawnFailed, "no multiplexer available for tui mode")
	}
	promptPath, err := e.writePrompt(project, t, resume)
	if err != nil {
		return nil, brainerrors.Wrap(brainerrors.CodeSpawnFailed, err, "prepare prompt for %s", t.ID)
	}
	wrapper, err := e.writeWrapper(project, t, workdir, promptPath)
	if err != nil {
		return nil, brainerrors.Wrap(brainerrors.CodeSpawnFailed, err, "prepare wrapper for %s", t.ID)
	}

	window := fmt.Sprintf("%s-%s", project, t.ID)
	if err := e.mux.NewWindow(ctx, window, workdir, wrapper); err != nil {
		return nil, brainerrors.Wrap(brainerrors.CodeSpawnFailed, err, "open window for %s", t.ID)
	}

	h := &Handle{TaskID: t.ID, WindowName: window, Mode: ModeTUI}
	e.discoverWindow(ctx, h, window)
	return h, nil
}

// discoverWindow fills PID, pane id, and port for a freshly opened window.
// Every step is best-effort.
func (e *Executor) discoverWindow(ctx context.Context, h *Handle, window string) {
	deadline := time.Now().Add(e.paneBudget)
	for time.Now().Before(deadline) {
		panes, err := e.mux.ListPanes(ctx)
		if err != nil {
			break
		}
		for _, p := range panes {
			if p.Window == window {
				h.PaneID = p.ID
				h.PID = p.PID
				break
			}
		}
		if h.PID != 0 {
			break
		}
		time.Sleep(paneReadyInterval)
	}
	if h.PID == 0 {
		e.logger.Warn("could not discover pane pid", "window", window)
		return
	}

	// The pane PID is the shell; the assistant is usually its child.
	time.Sleep(e.settleWait)
	if child := firstChildPID(h.PID); child != 0 {
		h.PID = child
	}
	if port := discoverPort(h.PID, e.portWait); port != 0 {
		h.Port = port
	}
}

// SpawnDashboard splits an existing pane for the assistant. The target pane
// must appear within the ready budget; the split is retried with exponential
// backoff.
func (e *Executor) SpawnDashboard(ctx context.Context, project string, t *task.Task, workdir, targetPane string, resume bool) (*Handle, error) {
	if e.mux == nil {
		return nil, brainerrors.New(brainerrors.CodeSpawnFailed, "no multiplexer available for dashboard mode")
	}
	promptPath, err := e.writePrompt(project, t, resume)
	if err != nil {
		return nil, brainerrors.Wrap(brainerrors.CodeSpawnFailed, err, "prepare prompt for %s", t.ID)
	}
	wrapper, err := e.writeWrapper(project, t, workdir, promptPath)
	if err != nil {
		return nil, brainerrors.Wrap(brainerrors.CodeSpawnFailed, err, "prepare wrapper for %s", t.ID)
	}

	if !e.waitForPane(ctx, targetPane) {
		return nil, brainerrors.New(brainerrors.CodeSpawnFailed, "target pane %s never appeared", targetPane)
	}

	var paneID string
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < splitRetries; attempt++ {
		paneID, err = e.mux.SplitPane(ctx, targetPane, workdir, wrapper)
		if err == nil {
			break
		}
		e.logger.Warn("split-pane failed", "attempt", attempt+1, "error", err)
		time.Sleep(backoff)
		backoff *= 2
	}
	if err != nil {
		return nil, brainerrors.Wrap(brainerrors.CodeSpawnFailed, err, "split pane for %s", t.ID)
	}
	if len(paneID) == 0 || paneID[0] != '%' {
		return nil, brainerrors.New(brainerrors.CodeSpawnFailed, "unexpected pane id %q", paneID)
	}

	title := t.Title
	if len(title) > paneTitleMax {
		title = title[:paneTitleMax]
	}
	if err := e.mux.SetPaneTitle(ctx, paneID, title); err != nil {
		e.logger.Warn("could not set pane title", "pane", paneID, "error", err)
	}

	h := &Handle{TaskID: t.ID, PaneID: paneID, Mode: ModeDashboard}
	if panes, err := e.mux.ListPanes(ctx); err == nil {
		for _, p := range panes {
			if p.ID == paneID {
				h.PID = p.PID
			}
		}
	}
	if h.PID != 0 {
		time.Sleep(e.settleWait)
		if child := firstChildPID(h.PID); child != 0 {
			h.PID = child
		}
		if port := discoverPort(h.PID, e.portWait); port != 0 {
			h.Port = port
		}
	}
	return h, nil
}

// waitForPane polls until the target pane exists, bounded by the ready budget.
func (e *Executor) waitForPane(ctx context.Context, paneID string) bool {
	deadline := time.Now().Add(e.paneBudget)
	for time.Now().Before(deadline) {
		panes, err := e.mux.ListPanes(ctx)
		if err != nil {
			return false
		}
		for _, p := range panes {
			if p.ID == paneID {
				return true
			}
		}
		time.Sleep(paneReadyInterval)
	}
	return false
}

// Cleanup deletes a task's scratch files. Best-effort: failures are logged.
func (e *Executor) Cleanup(project, taskID string) {
	for _, path := range []string{
		e.promptPath(project, taskID),
		e.wrapperPath(project, taskID),
		e.LogPath(project, taskID),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("could not remove scratch file", "path", path, "error", err)
		}
	}
}
