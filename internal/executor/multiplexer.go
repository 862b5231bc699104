package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Pane describes one terminal multiplexer pane.
type Pane struct {
	ID     string
	PID    int
	Window string
	Title  string
}

// Multiplexer abstracts the terminal multiplexer used by the interactive
// spawn modes. Injected so the executor is testable without a live tmux.
type Multiplexer interface {
	// NewWindow opens a new window named name running command in dir.
	NewWindow(ctx context.Context, name, dir, command string) error
	// SplitPane splits targetPane and runs command in dir; returns the new
	// pane id.
	SplitPane(ctx context.Context, targetPane, dir, command string) (string, error)
	// ListPanes returns all panes across windows.
	ListPanes(ctx context.Context) ([]Pane, error)
	// SetPaneTitle sets a pane's title.
	SetPaneTitle(ctx context.Context, paneID, title string) error
	// KillPane closes a pane.
	KillPane(ctx context.Context, paneID string) error
}

// Tmux is the tmux-backed Multiplexer.
type Tmux struct{}

// NewTmux creates a tmux multiplexer.
func NewTmux() *Tmux {
	return &Tmux{}
}

func (t *Tmux) run(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "tmux", args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("tmux %s: %s", args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("tmux %s: %w", args[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}

// NewWindow opens a named window running command.
func (t *Tmux) NewWindow(ctx context.Context, name, dir, command string) error {
	_, err := t.run(ctx, "new-window", "-n", name, "-c", dir, command)
	return err
}

// SplitPane splits the target pane horizontally and prints the new pane id.
func (t *Tmux) SplitPane(ctx context.Context, targetPane, dir, command string) (string, error) {
	return t.run(ctx, "split-window", "-h", "-t", targetPane, "-c", dir, "-P", "-F", "#{pane_id}", command)
}

// ListPanes lists panes of all windows with id, pid, window name, and title.
func (t *Tmux) ListPanes(ctx context.Context) ([]Pane, error) {
	out, err := t.run(ctx, "list-panes", "-a", "-F", "#{pane_id}\t#{pane_pid}\t#{window_name}\t#{pane_title}")
	if err != nil {
		return nil, err
	}
	var panes []Pane
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(line, "\t", 4)
		if len(fields) < 3 {
			continue
		}
		pid, _ := strconv.Atoi(fields[1])
		p := Pane{ID: fields[0], PID: pid, Window: fields[2]}
		if len(fields) == 4 {
			p.Title = fields[3]
		}
		panes = append(panes, p)
	}
	return panes, nil
}

// SetPaneTitle sets the pane title.
func (t *Tmux) SetPaneTitle(ctx context.Context, paneID, title string) error {
	_, err := t.run(ctx, "select-pane", "-t", paneID, "-T", title)
	return err
}

// KillPane closes a pane.
func (t *Tmux) KillPane(ctx context.Context, paneID string) error {
	_, err := t.run(ctx, "kill-pane", "-t", paneID)
	return err
}
