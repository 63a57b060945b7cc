package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/maxkimambo/dataflow/internal/dag"
	"github.com/maxkimambo/dataflow/internal/task"
)

// Error codes, unique within a category
const (
	CodeCycleDetected     = "001"
	CodeUnknownDependency = "002"
	CodeDuplicateTask     = "003"

	CodeInvalidTask       = "001"
	CodeInvalidDependency = "002"

	CodeTaskFileRead  = "001"
	CodeTaskFileParse = "002"

	CodeTaskFailed    = "001"
	CodeRunFailed     = "002"
	CodeRunCancelled  = "003"
	CodeArtifactCheck = "004"

	CodeConfigInvalid = "001"
	CodeConfigRead    = "002"

	CodeStorageOpen  = "001"
	CodeStorageQuery = "002"
)

// NewCycleError creates an error for a dependency cycle
func NewCycleError(cycle []string, originalErr error) *FlowError {
	return NewFlowError(ErrorCategoryResolve, CodeCycleDetected,
		fmt.Sprintf("Dependency cycle detected: %s", strings.Join(cycle, " -> ")),
		"Dependency resolution").
		WithContext("cycle", strings.Join(cycle, " -> ")).
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Remove one of the dependencies listed in the cycle",
			"If two tasks exchange data, split the shared step into its own task",
			"Run 'dataflow graph <file>' on a smaller file to inspect the edges",
		)
}

// NewUnknownDependencyError creates an error for a reference to a missing task
func NewUnknownDependencyError(taskName, dependency string, originalErr error) *FlowError {
	return NewFlowError(ErrorCategoryResolve, CodeUnknownDependency,
		fmt.Sprintf("Task '%s' depends on unknown task '%s'", taskName, dependency),
		"Dependency resolution").
		WithContext("task", taskName).
		WithContext("dependency", dependency).
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Check the spelling of the upstream task name",
			"Make sure the upstream task is declared in the same pipeline",
			"Dependency strings use the form '<task_name>:<artifact_path>'",
		)
}

// NewInvalidTaskError creates an error for a malformed task definition
func NewInvalidTaskError(originalErr error) *FlowError {
	code := CodeInvalidTask
	if stderrors.Is(originalErr, task.ErrInvalidDependency) {
		code = CodeInvalidDependency
	}
	return NewFlowError(ErrorCategoryValidation, code,
		"Invalid task definition",
		"Task validation").
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Every task needs a unique name and a run command",
			"Task names may contain letters, digits, '_', '.' and '-'",
		)
}

// NewTaskFileError creates an error for a task file that cannot be loaded
func NewTaskFileError(path string, parse bool, originalErr error) *FlowError {
	code := CodeTaskFileRead
	msg := fmt.Sprintf("Cannot read task file '%s'", path)
	if parse {
		code = CodeTaskFileParse
		msg = fmt.Sprintf("Cannot parse task file '%s'", path)
	}
	return NewFlowError(ErrorCategoryTaskFile, code, msg, "Task file loading").
		WithContext("path", path).
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Task files are TOML with one [[task]] table per task",
			"Dependencies go under [task.dependson] as upstream = [\"artifact\", ...]",
		)
}

// NewTaskFailedError creates an error for a task that failed to run
func NewTaskFailedError(taskName string, attempts int, originalErr error) *FlowError {
	return NewFlowError(ErrorCategoryExecution, CodeTaskFailed,
		fmt.Sprintf("Task '%s' failed after %d attempt(s)", taskName, attempts),
		"Task execution").
		WithContext("task", taskName).
		WithContext("attempts", attempts).
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Inspect the task log file for the command's output",
			"Run the task's setup and run commands manually to reproduce",
		)
}

// NewRunFailedError summarizes a run in which some tasks did not succeed
func NewRunFailedError(runID string, failed, skipped []string) *FlowError {
	err := NewFlowError(ErrorCategoryExecution, CodeRunFailed,
		fmt.Sprintf("Run %s finished with %d failed task(s)", runID, len(failed)),
		"Pipeline run").
		WithContext("failed", strings.Join(failed, ", ")).
		WithTroubleshooting(
			"Use 'dataflow runs show " + runID + "' to see per-task status",
		)
	if len(skipped) > 0 {
		err = err.WithContext("skipped", strings.Join(skipped, ", "))
	}
	return err
}

// NewArtifactMissingError creates an error for a producer that did not leave an expected artifact
func NewArtifactMissingError(producer, consumer, artifact string) *FlowError {
	return NewFlowError(ErrorCategoryExecution, CodeArtifactCheck,
		fmt.Sprintf("Task '%s' did not produce '%s' expected by '%s'", producer, artifact, consumer),
		"Artifact verification").
		WithContext("producer", producer).
		WithContext("consumer", consumer).
		WithContext("artifact", artifact).
		WithTroubleshooting(
			"Check that the producer writes the artifact at exactly this path",
			"Relative paths are resolved against the runner's working directory",
		)
}

// NewConfigError creates an error for an invalid configuration value
func NewConfigError(field string, value interface{}, reason string) *FlowError {
	return NewFlowError(ErrorCategoryConfiguration, CodeConfigInvalid,
		fmt.Sprintf("Invalid value for %s: %v (%s)", field, value, reason),
		"Configuration").
		WithContext("field", field).
		WithTroubleshooting(
			"Check ~/.dataflow/config.toml and command line flags",
			"Use --help to see available options",
		)
}

// NewStorageError creates an error for run store failures
func NewStorageError(operation string, originalErr error) *FlowError {
	code := CodeStorageQuery
	if strings.Contains(strings.ToLower(operation), "open") {
		code = CodeStorageOpen
	}
	return NewFlowError(ErrorCategoryStorage, code,
		"Run store operation failed", operation).
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Check that the store path is writable",
			"Another process may hold a lock on the database; retry shortly",
		)
}

// FromResolveError converts resolver failures into user-facing errors.
// Errors it does not recognize are returned unchanged.
func FromResolveError(err error) error {
	if err == nil {
		return nil
	}

	var cycle *dag.CycleError
	if stderrors.As(err, &cycle) {
		return NewCycleError(cycle.Cycle, err)
	}

	var unknown *dag.UnknownDependencyError
	if stderrors.As(err, &unknown) {
		return NewUnknownDependencyError(unknown.Task, unknown.Dependency, err)
	}

	if stderrors.Is(err, dag.ErrDuplicateTask) {
		return NewFlowError(ErrorCategoryResolve, CodeDuplicateTask,
			"Two tasks share the same name", "Dependency resolution").
			WithOriginalError(err).
			WithTroubleshooting("Rename one of the tasks; names must be unique in a pipeline")
	}

	if stderrors.Is(err, task.ErrInvalidTask) || stderrors.Is(err, task.ErrInvalidDependency) {
		return NewInvalidTaskError(err)
	}

	return err
}
