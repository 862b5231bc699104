package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brainsh/brain/internal/service"
	"github.com/brainsh/brain/internal/task"
)

// newListCmd creates the list command.
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list [project]",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Long: `List the tasks of one project, or of every project when none is
given, with the resolver's classification for each.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc := service.New(cfg, nil)

			var projects []string
			if len(args) == 1 {
				projects = args
			} else {
				projects, err = svc.ListProjects()
				if err != nil {
					return err
				}
			}
			if len(projects) == 0 {
				fmt.Println("No projects found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROJECT\tID\tSTATUS\tCLASS\tPRIORITY\tTITLE")
			for _, project := range projects {
				result, err := svc.Classify(cmd.Context(), project)
				if err != nil {
					return err
				}
				for _, t := range result.Tasks {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						project, t.ID, t.Status, t.Classification, t.EffectivePriority(), truncate(t.Title, 48))
				}
			}
			return w.Flush()
		},
	}
}

// newSelectionCmd creates one of the ready/waiting/blocked commands.
func newSelectionCmd(selection, short string) *cobra.Command {
	return &cobra.Command{
		Use:   selection + " <project>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc := service.New(cfg, nil)

			result, err := svc.Classify(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var tasks []task.Resolved
			switch selection {
			case "ready":
				tasks = result.Ready()
			case "waiting":
				tasks = append(result.ByClassification(task.ClassWaiting),
					result.ByClassification(task.ClassWaitingOnParent)...)
			case "blocked":
				tasks = append(result.ByClassification(task.ClassBlocked),
					result.ByClassification(task.ClassBlockedByParent)...)
			}
			if len(tasks) == 0 {
				fmt.Printf("No %s tasks in %s.\n", selection, args[0])
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPRIORITY\tTITLE\tREASON")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					t.ID, t.EffectivePriority(), truncate(t.Title, 48), t.BlockedReason)
			}
			return w.Flush()
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
