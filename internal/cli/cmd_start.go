package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
)

// newStartCmd creates the start command.
func newStartCmd() *cobra.Command {
	var (
		tui        bool
		background bool
	)

	cmd := &cobra.Command{
		Use:   "start <project|all>",
		Short: "Start the supervisor for a project",
		Long: `Start the task supervisor for one project, or for every project.

By default each spawned task gets a tmux pane next to the current one.
--tui gives each task its own tmux window; --background detaches the
children entirely and logs their output under the state directory.

Example:
  brain start api
  brain start all --background`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := resolveMode(tui, background)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fleet, _, err := buildFleet(cfg, nil, nil)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if args[0] == "all" {
				if err := fleet.StartAll(ctx, mode); err != nil {
					return err
				}
			} else {
				if _, err := fleet.StartProject(ctx, args[0], mode); err != nil {
					return err
				}
			}

			fmt.Println("Supervisor running. Press Ctrl+C to stop.")
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			fmt.Println("Stopping...")
			fleet.StopAll()
			return nil
		},
	}

	cmd.Flags().BoolVar(&tui, "tui", false, "one tmux window per task")
	cmd.Flags().BoolVar(&background, "background", false, "detach tasks, log to files")
	return cmd
}

// newStartBgCmd creates the start-bg command, which detaches a supervisor.
func newStartBgCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start-bg <project>",
		Short: "Start a detached background supervisor",
		Long: `Start the supervisor for a project as a detached process.

The supervisor runs "start <project> --background" in its own session;
its output goes to supervisor-<project>.log in the state directory.
Stop it with "brain stop <project>".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := args[0]
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.StateDir(), 0755); err != nil {
				return err
			}

			logPath := filepath.Join(cfg.StateDir(), "supervisor-"+project+".log")
			logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("open supervisor log: %w", err)
			}
			defer logFile.Close()

			self, err := os.Executable()
			if err != nil {
				return err
			}
			child := exec.Command(self, "start", project, "--background")
			child.Stdout = logFile
			child.Stderr = logFile
			child.SysProcAttr = detachAttr()
			if err := child.Start(); err != nil {
				return fmt.Errorf("start supervisor: %w", err)
			}

			fmt.Printf("Supervisor for %s started (pid %d), log %s\n", project, child.Process.Pid, logPath)
			return child.Process.Release()
		},
	}
}
