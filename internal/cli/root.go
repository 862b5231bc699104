// Package cli implements the brain command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "brain",
	Short: "Task runner for markdown project stores",
	Long: `brain supervises AI assistant tasks defined as markdown notes.

Tasks live under <brain dir>/projects/<project>/task/ with YAML front matter;
brain resolves their dependencies, spawns an assistant per ready task, and
tracks the children until the project drains.

Quick start:
  brain api                  Start the supervisor for project "api"
  brain start all            Start supervisors for every project
  brain status               Show supervisor state
  brain ready api            Show which tasks would run next`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. An unknown first token that is not a flag is treated
// as "start <project>".
func Execute() error {
	rootCmd.SetArgs(normalizeArgs(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// normalizeArgs rewrites ["myproject", ...] to ["start", "myproject", ...]
// when the first token names no command.
func normalizeArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	first := args[0]
	if len(first) == 0 || first[0] == '-' {
		return args
	}
	for _, c := range rootCmd.Commands() {
		if c.Name() == first || c.HasAlias(first) {
			return args
		}
	}
	switch first {
	case "help", "completion":
		return args
	}
	return append([]string{"start"}, args...)
}

func init() {
	cobra.OnInitialize(initConfig, initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStartBgCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newSelectionCmd("ready", "Show tasks ready to run"))
	rootCmd.AddCommand(newSelectionCmd("waiting", "Show tasks waiting on dependencies"))
	rootCmd.AddCommand(newSelectionCmd("blocked", "Show blocked tasks"))
	rootCmd.AddCommand(newRunOneCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newServeCmd())
}

// initConfig wires viper to the brain config file and BRAIN_* environment.
func initConfig() {
	viper.AddConfigPath("$HOME/.brain")
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")
	viper.SetEnvPrefix("BRAIN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// initLogging installs the process-wide slog handler. Interactive terminals
// get the text handler; pipes get JSON for machine consumption.
func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
