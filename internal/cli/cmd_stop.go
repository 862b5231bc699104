package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brainsh/brain/internal/state"
)

// newStopCmd creates the stop command.
func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop [project]",
		Short: "Stop a running supervisor",
		Long: `Stop the supervisor for a project, or every supervisor when no
project is given. The supervisor terminates its children gracefully
before exiting.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			states := state.NewManager(cfg.StateDir())

			var projects []string
			if len(args) == 1 {
				projects = args
			} else {
				projects, err = states.ListProjects()
				if err != nil {
					return err
				}
			}

			stopped := 0
			for _, project := range projects {
				pid := states.SupervisorPID(project)
				if pid == 0 || !state.IsPIDAlive(pid) {
					continue
				}
				if err := signalStop(pid); err != nil {
					fmt.Printf("could not signal supervisor for %s (pid %d): %v\n", project, pid, err)
					continue
				}
				fmt.Printf("Stopping supervisor for %s (pid %d)\n", project, pid)
				stopped++
			}
			if stopped == 0 {
				fmt.Println("No running supervisor found.")
			}
			return nil
		},
	}
}
