package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/dataflow/internal/dag"
	flowerrors "github.com/maxkimambo/dataflow/internal/errors"
	"github.com/maxkimambo/dataflow/internal/logger"
	"github.com/maxkimambo/dataflow/internal/progress"
	"github.com/maxkimambo/dataflow/internal/scheduler"
	"github.com/maxkimambo/dataflow/internal/service"
	"github.com/maxkimambo/dataflow/internal/taskfile"
	"github.com/maxkimambo/dataflow/internal/utils"
)

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Run a task file in dependency order",
	Long: `Resolves a task file and runs every task after all of its dependencies
have completed. Independent tasks run in parallel up to --max-parallel.

Each task's setup and run scripts are executed with the configured shell.
Output goes to one log file per task under the runner log directory, and
the run is recorded in the local store unless --no-store is given.

Example:
dataflow run pipeline.toml
dataflow run pipeline.toml --max-parallel 8 --retries 2 --timeout 10m
dataflow run pipeline.toml --failure-policy fail-fast --artifacts verify --stream
`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().String("name", "", "Run name (defaults to the task file's name)")
	runCmd.Flags().Int("max-parallel", 0, "Maximum tasks running at once, 0 for unlimited (default from config)")
	runCmd.Flags().Int("retries", 0, "Retries per failed task (default from config)")
	runCmd.Flags().Duration("timeout", 0, "Timeout per task attempt, 0 for none (default from config)")
	runCmd.Flags().String("failure-policy", "", "skip-dependents or fail-fast (default from config)")
	runCmd.Flags().String("artifacts", "", "document or verify declared artifacts (default from config)")
	runCmd.Flags().String("workdir", "", "Directory scripts run in (default from config)")
	runCmd.Flags().Bool("stream", false, "Stream task output to stdout")
	runCmd.Flags().Bool("no-store", false, "Do not record the run in the local store")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if err := applyRunFlags(cmd); err != nil {
		return err
	}

	p, g, err := loadPipeline(args[0])
	if err != nil {
		return err
	}
	if name, _ := cmd.Flags().GetString("name"); name != "" {
		p.Name = name
	}

	var stream io.Writer
	if s, _ := cmd.Flags().GetBool("stream"); s {
		stream = cmd.OutOrStdout()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := cfg.SchedulerOptions()
	opts.RunName = p.Name
	if quiet {
		opts.ProgressInterval = 0
	}

	var (
		runID  string
		result *scheduler.Result
	)
	if noStore, _ := cmd.Flags().GetBool("no-store"); noStore {
		runID = "local"
		sched := scheduler.New(g, shellRunnerFactory(stream)(runID), opts)
		result, err = sched.Run(ctx)
	} else {
		runID, result, err = executeRecorded(ctx, args[0], p, opts, stream)
	}
	if err != nil {
		return err
	}

	printRunResult(out(cmd), runID, g, result)
	return runOutcome(runID, g, result)
}

func applyRunFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("max-parallel") {
		cfg.Scheduler.MaxParallel, _ = flags.GetInt("max-parallel")
	}
	if flags.Changed("retries") {
		cfg.Scheduler.Retries, _ = flags.GetInt("retries")
	}
	if flags.Changed("timeout") {
		cfg.Scheduler.TaskTimeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("failure-policy") {
		cfg.Scheduler.FailurePolicy, _ = flags.GetString("failure-policy")
	}
	if flags.Changed("artifacts") {
		cfg.Scheduler.Artifacts, _ = flags.GetString("artifacts")
	}
	if flags.Changed("workdir") {
		cfg.Runner.WorkDir, _ = flags.GetString("workdir")
	}
	return validateConfig()
}

func executeRecorded(ctx context.Context, path string, p *taskfile.Pipeline, opts *scheduler.Config, stream io.Writer) (string, *scheduler.Result, error) {
	st, err := openStore()
	if err != nil {
		return "", nil, err
	}
	defer st.Close()

	request, err := os.ReadFile(path)
	if err != nil {
		return "", nil, flowerrors.NewTaskFileError(path, false, err)
	}

	svc := service.NewRunService(st, opts, shellRunnerFactory(stream))
	run, result, err := svc.Execute(ctx, service.Submission{
		Name:    p.Name,
		Tasks:   p.Tasks,
		Request: string(request),
	})
	if err != nil {
		if run == nil {
			return "", nil, flowerrors.FromResolveError(err)
		}
		return run.ID, nil, fmt.Errorf("run %s: %w", run.ID, err)
	}

	logger.Op.WithFields(map[string]interface{}{
		"run":    run.ID,
		"status": string(run.Status),
	}).Debug("Run recorded")
	return run.ID, result, nil
}

func printRunResult(w io.Writer, runID string, g *dag.Graph, result *scheduler.Result) {
	table := utils.NewTableFormatter("TASK", "STATE", "ATTEMPTS", "DURATION", "ERROR")
	for _, name := range g.TopologicalOrder() {
		r, ok := result.Tasks[name]
		if !ok {
			continue
		}
		errMsg := ""
		if r.Error != nil {
			errMsg = flowerrors.DisplayErrorSummary(r.Error)
		}
		duration := "-"
		if r.EndTime != nil {
			duration = progress.FormatDuration(r.Duration)
		}
		table.AddRow(name, string(r.State), fmt.Sprint(r.Attempts), duration, errMsg)
	}
	fmt.Fprint(w, table.String())

	done := result.Count(scheduler.StateDone)
	box := utils.NewBox(utils.SuccessMessage, "Run succeeded")
	switch {
	case result.Success:
	case result.Count(scheduler.StateFailed) > 0:
		box = utils.NewBox(utils.ErrorMessage, "Run failed")
	default:
		box = utils.NewBox(utils.WarningMessage, "Run did not complete")
	}
	box.AddKeyValue("Run", runID).
		AddKeyValue("Tasks", fmt.Sprintf("%d/%d done", done, g.Len())).
		AddKeyValue("Duration", progress.FormatDuration(result.ExecutionTime))
	if failed := result.Count(scheduler.StateFailed); failed > 0 {
		box.AddKeyValue("Failed", failed)
	}
	if skipped := result.Count(scheduler.StateSkipped); skipped > 0 {
		box.AddKeyValue("Skipped", skipped)
	}
	if cancelled := result.Count(scheduler.StateCancelled); cancelled > 0 {
		box.AddKeyValue("Cancelled", cancelled)
	}
	fmt.Fprintln(w, box.Render())
}

// runOutcome converts an unsuccessful result into a CLI error
func runOutcome(runID string, g *dag.Graph, result *scheduler.Result) error {
	if result.Success {
		return nil
	}

	var failed, skipped []string
	for _, name := range g.TopologicalOrder() {
		r, ok := result.Tasks[name]
		if !ok {
			continue
		}
		switch r.State {
		case scheduler.StateFailed:
			failed = append(failed, name)
		case scheduler.StateSkipped:
			skipped = append(skipped, name)
		}
	}

	if len(failed) == 0 {
		err := flowerrors.NewFlowError(flowerrors.ErrorCategoryExecution, flowerrors.CodeRunCancelled,
			fmt.Sprintf("Run %s was cancelled before all tasks finished", runID), "Pipeline run")
		if result.Error != nil && !errors.Is(result.Error, context.Canceled) {
			err = err.WithOriginalError(result.Error)
		}
		return err
	}

	first := result.Tasks[failed[0]]
	return flowerrors.NewRunFailedError(runID, failed, skipped).WithOriginalError(
		flowerrors.NewTaskFailedError(first.Name, first.Attempts, first.Error))
}
