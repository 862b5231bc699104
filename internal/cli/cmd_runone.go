package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brainsh/brain/internal/task"
)

// newRunOneCmd creates the run-one command.
func newRunOneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-one <project>",
		Short: "Run the single highest-priority ready task and wait",
		Long: `Spawn the next ready task of a project in the foreground, wait for
the assistant to exit, and report the task's final status.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fleet, _, err := buildFleet(cfg, nil, nil)
			if err != nil {
				return err
			}

			status, err := fleet.RunOne(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Task finished with status %s\n", status)
			if status != task.StatusCompleted {
				return fmt.Errorf("task ended %s", status)
			}
			return nil
		},
	}
}
