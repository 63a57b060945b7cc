package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/dataflow/internal/dag"
	flowerrors "github.com/maxkimambo/dataflow/internal/errors"
	"github.com/maxkimambo/dataflow/internal/progress"
	"github.com/maxkimambo/dataflow/internal/resolver"
	"github.com/maxkimambo/dataflow/internal/runner"
	"github.com/maxkimambo/dataflow/internal/scheduler"
	"github.com/maxkimambo/dataflow/internal/store"
	"github.com/maxkimambo/dataflow/internal/taskfile"
)

// loadPipeline reads a task file and resolves it into a dependency graph
func loadPipeline(path string) (*taskfile.Pipeline, *dag.Graph, error) {
	p, err := taskfile.Load(path)
	if err != nil {
		return nil, nil, flowerrors.NewTaskFileError(path, errors.Is(err, taskfile.ErrInvalidTaskFile), err)
	}

	g, err := resolver.Resolve(p.Tasks)
	if err != nil {
		return nil, nil, flowerrors.FromResolveError(err)
	}

	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, g, nil
}

func openStore() (*store.Store, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, flowerrors.NewStorageError("open run store", err).WithContext("path", cfg.Store.Path)
	}
	return st, nil
}

// validateConfig checks the resolved configuration after flag overrides
func validateConfig() error {
	if err := cfg.Validate(); err != nil {
		return flowerrors.NewFlowError(flowerrors.ErrorCategoryConfiguration, flowerrors.CodeConfigInvalid,
			"Configuration is invalid", "Configuration").
			WithOriginalError(err).
			WithTroubleshooting(
				"Check ~/.dataflow/config.toml and command line flags",
				"Use --help to see available options",
			)
	}
	return nil
}

// shellRunnerFactory returns runners that keep one log directory per run
func shellRunnerFactory(stream io.Writer) func(runID string) scheduler.Runner {
	return func(runID string) scheduler.Runner {
		logDir := ""
		if cfg.Runner.LogDir != "" {
			logDir = filepath.Join(cfg.Runner.LogDir, runID)
		}
		r := runner.NewShellRunner(cfg.Runner.Shell, cfg.Runner.WorkDir, logDir)
		r.Stdout = stream
		return r
	}
}

// out returns the writer for command results, discarding them in quiet mode
func out(cmd *cobra.Command) io.Writer {
	if quiet {
		return io.Discard
	}
	return cmd.OutOrStdout()
}

func handleError(err error) {
	fmt.Fprint(os.Stderr, flowerrors.FormatForCLI(err))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatSpan(start, end *time.Time) string {
	if start == nil || end == nil {
		return "-"
	}
	return progress.FormatDuration(end.Sub(*start))
}
