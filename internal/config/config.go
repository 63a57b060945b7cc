// Package config loads dataflow settings from ~/.dataflow/config.toml and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/maxkimambo/dataflow/internal/scheduler"
)

const (
	// ConfigDir is the name of the config directory in home
	ConfigDir = ".dataflow"

	// ConfigFileName is the name of the config file
	ConfigFileName = "config.toml"

	// DefaultServerHost is the default API server host
	DefaultServerHost = "localhost"

	// DefaultServerPort is the default API server port
	DefaultServerPort = 7480

	// EnvStore overrides the run store path
	EnvStore = "DATAFLOW_STORE"

	// EnvServerAddr overrides the API server address (host:port)
	EnvServerAddr = "DATAFLOW_SERVER_ADDR"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the resolved configuration
type Config struct {
	Scheduler SchedulerConfig
	Store     StoreConfig
	Server    ServerConfig
	Runner    RunnerConfig

	// Path is the file the configuration was loaded from, empty when defaults were used
	Path string
}

// SchedulerConfig holds the [scheduler] section
type SchedulerConfig struct {
	MaxParallel   int
	TaskTimeout   time.Duration
	Retries       int
	FailurePolicy string
	Artifacts     string
}

// StoreConfig holds the [store] section
type StoreConfig struct {
	Path string
}

// ServerConfig holds the [server] section
type ServerConfig struct {
	Host string
	Port int
}

// RunnerConfig holds the [runner] section
type RunnerConfig struct {
	Shell   string
	LogDir  string
	WorkDir string
}

// configFile represents the raw TOML structure. Pointers distinguish unset keys from zero values.
type configFile struct {
	Scheduler struct {
		MaxParallel   *int   `toml:"max_parallel"`
		TaskTimeout   string `toml:"task_timeout"`
		Retries       *int   `toml:"retries"`
		FailurePolicy string `toml:"failure_policy"`
		Artifacts     string `toml:"artifacts"`
	} `toml:"scheduler"`
	Store struct {
		Path string `toml:"path"`
	} `toml:"store"`
	Server struct {
		Host string `toml:"host"`
		Port *int   `toml:"port"`
	} `toml:"server"`
	Runner struct {
		Shell   string `toml:"shell"`
		LogDir  string `toml:"log_dir"`
		WorkDir string `toml:"workdir"`
	} `toml:"runner"`
}

// Default returns the built-in configuration rooted at homeDir
func Default(homeDir string) *Config {
	base := filepath.Join(homeDir, ConfigDir)
	return &Config{
		Scheduler: SchedulerConfig{
			MaxParallel:   4,
			FailurePolicy: string(scheduler.SkipDependents),
			Artifacts:     string(scheduler.ArtifactsDocument),
		},
		Store: StoreConfig{
			Path: filepath.Join(base, "dataflow.db"),
		},
		Server: ServerConfig{
			Host: DefaultServerHost,
			Port: DefaultServerPort,
		},
		Runner: RunnerConfig{
			Shell:  "sh",
			LogDir: filepath.Join(base, "logs"),
		},
	}
}

// Load resolves configuration from ~/.dataflow/config.toml and the environment
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return LoadFromDir(homeDir)
}

// LoadFromDir loads configuration using the specified directory as home.
// A missing file yields the defaults.
func LoadFromDir(homeDir string) (*Config, error) {
	return LoadFile(homeDir, filepath.Join(homeDir, ConfigDir, ConfigFileName), false)
}

// LoadFile loads configuration from an explicit path. When required is false
// a missing file yields the defaults.
func LoadFile(homeDir, path string, required bool) (*Config, error) {
	cfg := Default(homeDir)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.apply(data); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		cfg.Path = path
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply(data []byte) error {
	var raw configFile
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return err
	}

	if raw.Scheduler.MaxParallel != nil {
		c.Scheduler.MaxParallel = *raw.Scheduler.MaxParallel
	}
	if raw.Scheduler.TaskTimeout != "" {
		d, err := time.ParseDuration(raw.Scheduler.TaskTimeout)
		if err != nil {
			return fmt.Errorf("scheduler.task_timeout: %w", err)
		}
		c.Scheduler.TaskTimeout = d
	}
	if raw.Scheduler.Retries != nil {
		c.Scheduler.Retries = *raw.Scheduler.Retries
	}
	if raw.Scheduler.FailurePolicy != "" {
		c.Scheduler.FailurePolicy = raw.Scheduler.FailurePolicy
	}
	if raw.Scheduler.Artifacts != "" {
		c.Scheduler.Artifacts = raw.Scheduler.Artifacts
	}
	if raw.Store.Path != "" {
		c.Store.Path = raw.Store.Path
	}
	if raw.Server.Host != "" {
		c.Server.Host = raw.Server.Host
	}
	if raw.Server.Port != nil {
		c.Server.Port = *raw.Server.Port
	}
	if raw.Runner.Shell != "" {
		c.Runner.Shell = raw.Runner.Shell
	}
	if raw.Runner.LogDir != "" {
		c.Runner.LogDir = raw.Runner.LogDir
	}
	if raw.Runner.WorkDir != "" {
		c.Runner.WorkDir = raw.Runner.WorkDir
	}
	return nil
}

func (c *Config) applyEnv() error {
	if path := os.Getenv(EnvStore); path != "" {
		c.Store.Path = path
	}
	if addr := os.Getenv(EnvServerAddr); addr != "" {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvServerAddr, addr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: port must be a number", ErrInvalidConfig, EnvServerAddr, addr)
		}
		if host != "" {
			c.Server.Host = host
		}
		c.Server.Port = port
	}
	return nil
}

// Validate rejects values the scheduler, store or server cannot use
func (c *Config) Validate() error {
	if c.Scheduler.MaxParallel < 0 {
		return fmt.Errorf("%w: scheduler.max_parallel must not be negative, got %d", ErrInvalidConfig, c.Scheduler.MaxParallel)
	}
	if c.Scheduler.Retries < 0 {
		return fmt.Errorf("%w: scheduler.retries must not be negative, got %d", ErrInvalidConfig, c.Scheduler.Retries)
	}
	if c.Scheduler.TaskTimeout < 0 {
		return fmt.Errorf("%w: scheduler.task_timeout must not be negative", ErrInvalidConfig)
	}
	if _, err := scheduler.ParseFailurePolicy(c.Scheduler.FailurePolicy); err != nil {
		return fmt.Errorf("%w: scheduler.failure_policy: %v", ErrInvalidConfig, err)
	}
	if _, err := scheduler.ParseArtifactPolicy(c.Scheduler.Artifacts); err != nil {
		return fmt.Errorf("%w: scheduler.artifacts: %v", ErrInvalidConfig, err)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("%w: store.path must be set", ErrInvalidConfig)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be between 1 and 65535, got %d", ErrInvalidConfig, c.Server.Port)
	}
	return nil
}

// SchedulerOptions converts the [scheduler] section into a scheduler configuration
func (c *Config) SchedulerOptions() *scheduler.Config {
	sc := scheduler.DefaultConfig()
	sc.MaxParallel = c.Scheduler.MaxParallel
	sc.TaskTimeout = c.Scheduler.TaskTimeout
	sc.Retries = c.Scheduler.Retries
	if fp, err := scheduler.ParseFailurePolicy(c.Scheduler.FailurePolicy); err == nil {
		sc.FailurePolicy = fp
	}
	if ap, err := scheduler.ParseArtifactPolicy(c.Scheduler.Artifacts); err == nil {
		sc.ArtifactPolicy = ap
	}
	sc.ArtifactRoot = c.Runner.WorkDir
	return sc
}

// ServerAddr returns host:port for the API server
func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
