package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/brainsh/brain/internal/config"
	"github.com/brainsh/brain/internal/events"
	"github.com/brainsh/brain/internal/executor"
	"github.com/brainsh/brain/internal/git"
	"github.com/brainsh/brain/internal/runner"
	"github.com/brainsh/brain/internal/service"
	"github.com/brainsh/brain/internal/state"
)

// loadConfig resolves the effective configuration: defaults, config file,
// BRAIN_* environment, then any viper-visible overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("host"); v != "" {
		cfg.Host = v
	}
	if v := viper.GetInt("port"); v != 0 {
		cfg.Port = v
	}
	if v := viper.GetString("api_url"); v != "" {
		cfg.APIURL = v
	}
	return cfg, nil
}

// buildFleet assembles the full supervisor stack.
func buildFleet(cfg *config.Config, pub events.Publisher, logger *slog.Logger) (*runner.Fleet, *service.Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = events.NewMemoryPublisher()
	}

	svc := service.New(cfg, logger)
	exec := executor.New(cfg.StateDir(), cfg.Agent.Command, cfg.Agent.Model, executor.NewTmux(), logger)
	worktrees := git.NewManager(git.NewExecRunner(), cfg.Agent.Command, cfg.Agent.Model, cfg.Agent.SetupTimeout, logger)
	states := state.NewManager(cfg.StateDir())

	return runner.NewFleet(cfg, svc, exec, worktrees, states, pub, logger), svc, nil
}

// resolveMode maps the --tui/--background flags to a spawn mode.
func resolveMode(tui, background bool) (executor.Mode, error) {
	if tui && background {
		return "", fmt.Errorf("--tui and --background are mutually exclusive")
	}
	switch {
	case tui:
		return executor.ModeTUI, nil
	case background:
		return executor.ModeBackground, nil
	default:
		return executor.ModeDashboard, nil
	}
}
