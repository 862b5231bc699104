package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// newLogsCmd creates the logs command.
func newLogsCmd() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs [project]",
		Short: "Show task output logs",
		Long: `Print the most recent task output log, optionally filtered to one
project. With -f, keep streaming as the task writes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			project := ""
			if len(args) == 1 {
				project = args[0]
			}
			path, err := newestLog(cfg.StateDir(), project)
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Println("No logs found.")
				return nil
			}

			fmt.Fprintln(os.Stderr, "==>", path)
			if follow {
				return followLog(cmd, path)
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(os.Stdout, f)
			return err
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep streaming new output")
	return cmd
}

// newestLog picks the most recently modified output log, optionally filtered
// by project prefix.
func newestLog(stateDir, project string) (string, error) {
	pattern := "output_*.log"
	if project != "" {
		pattern = "output_" + project + "_*.log"
	}
	matches, err := filepath.Glob(filepath.Join(stateDir, pattern))
	if err != nil {
		return "", err
	}
	// Supervisor logs count too when no project filter narrows the set.
	if project == "" {
		more, _ := filepath.Glob(filepath.Join(stateDir, "supervisor-*.log"))
		matches = append(matches, more...)
	} else {
		if _, err := os.Stat(filepath.Join(stateDir, "supervisor-"+project+".log")); err == nil {
			matches = append(matches, filepath.Join(stateDir, "supervisor-"+project+".log"))
		}
	}
	if len(matches) == 0 {
		return "", nil
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, errI := os.Stat(matches[i])
		fj, errJ := os.Stat(matches[j])
		if errI != nil || errJ != nil {
			return strings.Compare(matches[i], matches[j]) < 0
		}
		return fi.ModTime().After(fj.ModTime())
	})
	return matches[0], nil
}

// followLog streams a file as it grows until the command context ends.
func followLog(cmd *cobra.Command, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for {
		if _, err := io.Copy(os.Stdout, f); err != nil {
			return err
		}
		select {
		case <-cmd.Context().Done():
			return nil
		case <-time.After(500 * time.Millisecond):
		}
	}
}
