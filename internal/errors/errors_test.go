package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/dataflow/internal/dag"
	"github.com/maxkimambo/dataflow/internal/task"
)

func TestFlowError_Error(t *testing.T) {
	original := stderrors.New("boom")
	err := NewFlowError(ErrorCategoryExecution, "001", "Task failed", "Task execution").
		WithContext("task", "train").
		WithContext("attempts", 2).
		WithTroubleshooting("Look at the logs").
		WithOriginalError(original)

	msg := err.Error()
	assert.Contains(t, msg, "EXECUTION-001: Task failed")
	assert.Contains(t, msg, "Operation: Task execution")
	assert.Contains(t, msg, "\n  attempts: 2\n  task: train")
	assert.Contains(t, msg, "1. Look at the logs")
	assert.Contains(t, msg, "Underlying error: boom")
	assert.True(t, stderrors.Is(err, original))
}

func TestFromResolveError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantUser bool
	}{
		{
			name:     "cycle",
			err:      fmt.Errorf("resolve: %w", &dag.CycleError{Cycle: []string{"a", "b", "a"}}),
			wantCode: "RESOLVE-001",
			wantUser: true,
		},
		{
			name:     "unknown dependency",
			err:      &dag.UnknownDependencyError{Task: "train", Dependency: "prep"},
			wantCode: "RESOLVE-002",
			wantUser: true,
		},
		{
			name:     "duplicate",
			err:      fmt.Errorf("%w: task with name a already exists", dag.ErrDuplicateTask),
			wantCode: "RESOLVE-003",
			wantUser: true,
		},
		{
			name:     "invalid dependency",
			err:      fmt.Errorf("task x: %w", task.ErrInvalidDependency),
			wantCode: "VALIDATION-002",
			wantUser: true,
		},
		{
			name:     "unrelated",
			err:      stderrors.New("disk full"),
			wantCode: "UNKNOWN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			converted := FromResolveError(tt.err)
			require.Error(t, converted)
			assert.Equal(t, tt.wantCode, GetErrorCode(converted))
			assert.Equal(t, tt.wantUser, IsUserError(converted))
		})
	}

	assert.NoError(t, FromResolveError(nil))
}

func TestFromResolveError_KeepsChain(t *testing.T) {
	converted := FromResolveError(&dag.CycleError{Cycle: []string{"a", "a"}})
	assert.ErrorIs(t, converted, dag.ErrCycleDetected)
	assert.Contains(t, converted.Error(), "a -> a")
}

func TestFormatForCLI(t *testing.T) {
	err := NewUnknownDependencyError("train", "prep", nil)
	out := FormatForCLI(err)

	assert.Contains(t, out, "Resolve Error [RESOLVE-002]")
	assert.Contains(t, out, "Task 'train' depends on unknown task 'prep'")
	assert.Contains(t, out, "Details:\n  dependency: prep\n  task: train\n")
	assert.Contains(t, out, "How to resolve:")

	assert.Equal(t, "\nError: plain\n", FormatForCLI(stderrors.New("plain")))
}

func TestDisplayErrorSummary(t *testing.T) {
	assert.Equal(t, "STORAGE-001: Run store operation failed",
		DisplayErrorSummary(NewStorageError("open database", stderrors.New("locked"))))

	long := stderrors.New(string(make([]byte, 150)))
	assert.Len(t, DisplayErrorSummary(long), 100)
}

func TestNewRunFailedError(t *testing.T) {
	err := NewRunFailedError("run-1", []string{"train_a"}, []string{"evaluate"})
	assert.Equal(t, "EXECUTION-002", GetErrorCode(err))
	assert.Equal(t, "train_a", err.Context["failed"])
	assert.Equal(t, "evaluate", err.Context["skipped"])
	assert.False(t, IsUserError(err))
}
