package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brainsh/brain/internal/state"
)

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [project]",
		Short: "Show supervisor state",
		Args:  cobra.MaximumNArgs(1),
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
			if len(projects) == 0 {
				fmt.Println("No supervisor state found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROJECT\tSTATUS\tPID\tRUNNING\tSPAWNED\tCOMPLETED\tBLOCKED\tFAILED")
			for _, project := range projects {
				st, ok := states.Load(project)
				if !ok && len(args) == 1 {
					fmt.Fprintf(w, "%s\t%s\t-\t0\t0\t0\t0\t0\n", project, state.StatusIdle)
					continue
				}
				pid := states.SupervisorPID(project)
				pidCol := "-"
				if pid != 0 && state.IsPIDAlive(pid) {
					pidCol = fmt.Sprint(pid)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
					project, st.Status, pidCol, len(st.RunningTasks),
					st.Stats.Spawned, st.Stats.Completed, st.Stats.Blocked, st.Stats.Failed)
			}
			return w.Flush()
		},
	}
}
