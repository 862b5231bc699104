// Package config provides configuration management for brain.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
	// BrainDirName is the default brain directory under HOME.
	BrainDirName = ".brain"
	// StateDirName is the runner state subdirectory under the brain dir.
	StateDirName = "runner"
	// DBFileName is the shared database file under the brain dir.
	DBFileName = "brain.db"
)

// RunnerConfig holds supervisor settings.
type RunnerConfig struct {
	// MaxConcurrent is the number of task slots per project (default: 2).
	MaxConcurrent int `yaml:"max_concurrent"`

	// PollInterval is the supervisor tick interval (default: 10s).
	PollInterval time.Duration `yaml:"poll_interval"`

	// SpawnFailureThreshold is the number of consecutive spawn failures
	// before a task is marked blocked (default: 1).
	SpawnFailureThreshold int `yaml:"spawn_failure_threshold"`

	// StopGrace is how long to wait after SIGTERM before SIGKILL on stop.
	StopGrace time.Duration `yaml:"stop_grace"`
}

// AgentConfig holds AI assistant settings.
type AgentConfig struct {
	// Command is the assistant binary (default: "claude").
	Command string `yaml:"command"`

	// Model is the default model override, empty for the binary's default.
	Model string `yaml:"model"`

	// SetupTimeout bounds the worktree setup agent run (default: 120s).
	SetupTimeout time.Duration `yaml:"setup_timeout"`
}

// Config represents the brain configuration.
type Config struct {
	// BrainDir is the root of the note store (default: ~/.brain).
	BrainDir string `yaml:"brain_dir"`

	// Host and Port configure the HTTP server.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// APIURL is the base URL CLI clients talk to.
	APIURL string `yaml:"api_url"`

	// DatabaseDSN selects the shared database. Empty means sqlite at
	// <brainDir>/brain.db; a postgres:// DSN selects postgres.
	DatabaseDSN string `yaml:"database_dsn,omitempty"`

	// IndexerCommand is the note indexer binary invoked for task queries.
	IndexerCommand string `yaml:"indexer_command"`

	// DefaultWorkdir is the fallback work directory when a task resolves
	// nothing else.
	DefaultWorkdir string `yaml:"default_workdir"`

	// EnableAuth turns on OAuth enforcement for the MCP endpoint.
	EnableAuth bool `yaml:"enable_auth"`

	Runner RunnerConfig `yaml:"runner"`
	Agent  AgentConfig  `yaml:"agent"`
}

// Default returns the default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		BrainDir:       filepath.Join(home, BrainDirName),
		Host:           "localhost",
		Port:           3333,
		APIURL:         "http://localhost:3333",
		IndexerCommand: "brain-index",
		DefaultWorkdir: home,
		Runner: RunnerConfig{
			MaxConcurrent:         2,
			PollInterval:          10 * time.Second,
			SpawnFailureThreshold: 1,
			StopGrace:             10 * time.Second,
		},
		Agent: AgentConfig{
			Command:      "claude",
			SetupTimeout: 120 * time.Second,
		},
	}
}

// Load reads config from <brainDir>/config.yaml if present, then applies
// environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	cfg := Default()
	cfg.applyEnv() // BRAIN_DIR may relocate the config file itself

	path := filepath.Join(cfg.BrainDir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Env wins over file.
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv applies BRAIN_* environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("BRAIN_DIR"); v != "" {
		c.BrainDir = expandHome(v)
	}
	if v := os.Getenv("BRAIN_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("BRAIN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("BRAIN_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("BRAIN_DB"); v != "" {
		c.DatabaseDSN = v
	}
	if v := os.Getenv("ENABLE_AUTH"); v != "" {
		c.EnableAuth = parseBool(v)
	}
}

// StateDir returns the runner state directory.
func (c *Config) StateDir() string {
	return filepath.Join(c.BrainDir, StateDirName)
}

// ProjectsDir returns the projects root directory.
func (c *Config) ProjectsDir() string {
	return filepath.Join(c.BrainDir, "projects")
}

// DSN returns the effective database DSN.
func (c *Config) DSN() string {
	if c.DatabaseDSN != "" {
		return c.DatabaseDSN
	}
	return filepath.Join(c.BrainDir, DBFileName)
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
