package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/dataflow/internal/scheduler"
)

func writeConfig(t *testing.T, home, content string) string {
	t.Helper()
	dir := filepath.Join(home, ConfigDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromDir_Defaults(t *testing.T) {
	t.Setenv(EnvStore, "")
	t.Setenv(EnvServerAddr, "")
	home := t.TempDir()

	cfg, err := LoadFromDir(home)
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Path)
	assert.Equal(t, 4, cfg.Scheduler.MaxParallel)
	assert.Equal(t, "skip-dependents", cfg.Scheduler.FailurePolicy)
	assert.Equal(t, "document", cfg.Scheduler.Artifacts)
	assert.Equal(t, filepath.Join(home, ".dataflow", "dataflow.db"), cfg.Store.Path)
	assert.Equal(t, filepath.Join(home, ".dataflow", "logs"), cfg.Runner.LogDir)
	assert.Equal(t, "localhost:7480", cfg.ServerAddr())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromDir_File(t *testing.T) {
	t.Setenv(EnvStore, "")
	t.Setenv(EnvServerAddr, "")
	home := t.TempDir()
	path := writeConfig(t, home, `
[scheduler]
max_parallel = 0
task_timeout = "90s"
retries = 2
failure_policy = "fail-fast"
artifacts = "verify"

[store]
path = "/var/lib/dataflow/runs.db"

[server]
host = "0.0.0.0"
port = 9000

[runner]
shell = "bash"
workdir = "/srv/pipelines"
`)

	cfg, err := LoadFromDir(home)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, 0, cfg.Scheduler.MaxParallel)
	assert.Equal(t, 90*time.Second, cfg.Scheduler.TaskTimeout)
	assert.Equal(t, "/var/lib/dataflow/runs.db", cfg.Store.Path)
	assert.Equal(t, "0.0.0.0:9000", cfg.ServerAddr())
	assert.Equal(t, "bash", cfg.Runner.Shell)
	assert.Equal(t, filepath.Join(home, ".dataflow", "logs"), cfg.Runner.LogDir)

	sc := cfg.SchedulerOptions()
	assert.Equal(t, 0, sc.MaxParallel)
	assert.Equal(t, 2, sc.Retries)
	assert.Equal(t, scheduler.FailFast, sc.FailurePolicy)
	assert.Equal(t, scheduler.ArtifactsVerify, sc.ArtifactPolicy)
	assert.Equal(t, "/srv/pipelines", sc.ArtifactRoot)
}

func TestLoadFromDir_EnvOverrides(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, "[store]\npath = \"/from/file.db\"\n")

	t.Setenv(EnvStore, "/from/env.db")
	t.Setenv(EnvServerAddr, "127.0.0.1:8123")

	cfg, err := LoadFromDir(home)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.Store.Path)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8123, cfg.Server.Port)

	t.Setenv(EnvServerAddr, "no-port")
	_, err = LoadFromDir(home)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadFile_Errors(t *testing.T) {
	t.Setenv(EnvStore, "")
	t.Setenv(EnvServerAddr, "")
	home := t.TempDir()

	_, err := LoadFile(home, filepath.Join(home, "missing.toml"), true)
	assert.Error(t, err)

	writeConfig(t, home, "this is not valid toml {{{")
	_, err = LoadFromDir(home)
	assert.Error(t, err)

	writeConfig(t, home, "[scheduler]\ntask_timeout = \"soon\"\n")
	_, err = LoadFromDir(home)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.task_timeout")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{"negative parallelism", func(c *Config) { c.Scheduler.MaxParallel = -1 }, "max_parallel"},
		{"negative retries", func(c *Config) { c.Scheduler.Retries = -2 }, "retries"},
		{"negative timeout", func(c *Config) { c.Scheduler.TaskTimeout = -time.Second }, "task_timeout"},
		{"unknown failure policy", func(c *Config) { c.Scheduler.FailurePolicy = "panic" }, "failure_policy"},
		{"unknown artifact policy", func(c *Config) { c.Scheduler.Artifacts = "hope" }, "artifacts"},
		{"empty store", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
