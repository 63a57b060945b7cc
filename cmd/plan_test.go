package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/dataflow/internal/dag"
	flowerrors "github.com/maxkimambo/dataflow/internal/errors"
	"github.com/maxkimambo/dataflow/internal/resolver"
	"github.com/maxkimambo/dataflow/internal/scheduler"
	"github.com/maxkimambo/dataflow/internal/task"
	"github.com/maxkimambo/dataflow/internal/utils"
)

func TestRenderPlan(t *testing.T) {
	pre := task.MustNew("preprocess", "true")
	a := task.MustNew("train_a", "true", task.WithCloud("gcp"), task.After(pre, "/data/a"))
	b := task.MustNew("train_b", "true", task.WithCloud("aws"), task.After(pre))
	eval := task.MustNew("evaluate", "true", task.After(a, "/models/a"), task.After(b))

	g, err := resolver.Resolve([]*task.Task{pre, a, b, eval})
	require.NoError(t, err)

	out := renderPlan("diamond", g, nil)
	assert.Contains(t, out, "Plan: diamond")
	assert.Contains(t, out, "Tasks: 4")
	assert.Contains(t, out, "Dependencies: 4")
	assert.Contains(t, out, "1. preprocess")
	assert.Contains(t, out, "2. train_a [gcp]")
	assert.Contains(t, out, "    after preprocess: /data/a")
	assert.Contains(t, out, "4. evaluate")
	assert.Contains(t, out, "Stage 2: train_a, train_b")

	filter, err := utils.ParseResourceFilter("cloud=aws")
	require.NoError(t, err)
	out = renderPlan("diamond", g, filter)
	assert.Contains(t, out, "Filter: cloud=aws")
	assert.Contains(t, out, "3. train_b [aws]")
	assert.NotContains(t, out, "1. preprocess")
	assert.NotContains(t, out, "2. train_a")
}

func TestRunOutcome(t *testing.T) {
	a := task.MustNew("a", "true")
	b := task.MustNew("b", "false", task.After(a))
	c := task.MustNew("c", "true", task.After(b))
	g, err := resolver.Resolve([]*task.Task{a, b, c})
	require.NoError(t, err)

	ok := &scheduler.Result{Success: true}
	assert.NoError(t, runOutcome("run-1", g, ok))

	failed := &scheduler.Result{
		Order: []string{"a", "b"},
		Tasks: map[string]*scheduler.TaskResult{
			"a": {Name: "a", State: scheduler.StateDone, Attempts: 1},
			"b": {Name: "b", State: scheduler.StateFailed, Attempts: 3, Error: errors.New("exit status 1")},
			"c": {Name: "c", State: scheduler.StateSkipped},
		},
	}
	err = runOutcome("run-1", g, failed)
	require.Error(t, err)
	assert.Equal(t, "EXECUTION-002", flowerrors.GetErrorCode(err))

	var flowErr *flowerrors.FlowError
	require.True(t, errors.As(err, &flowErr))
	assert.Equal(t, "b", flowErr.Context["failed"])
	assert.Equal(t, "c", flowErr.Context["skipped"])

	cancelled := &scheduler.Result{
		Tasks: map[string]*scheduler.TaskResult{
			"a": {Name: "a", State: scheduler.StateCancelled},
			"b": {Name: "b", State: scheduler.StateCancelled},
			"c": {Name: "c", State: scheduler.StateCancelled},
		},
		Error: context.Canceled,
	}
	err = runOutcome("run-2", g, cancelled)
	require.Error(t, err)
	assert.Equal(t, "EXECUTION-003", flowerrors.GetErrorCode(err))
}

func runWithFailingTask(t *testing.T, policy scheduler.FailurePolicy) (*dag.Graph, *scheduler.Result) {
	t.Helper()

	broken := task.MustNew("broken", "exit 3")
	after := task.MustNew("after", "true", task.After(broken))
	independent := task.MustNew("independent", "true")
	g, err := resolver.Resolve([]*task.Task{broken, after, independent})
	require.NoError(t, err)

	cfg := scheduler.DefaultConfig()
	cfg.MaxParallel = 1
	cfg.FailurePolicy = policy
	cfg.ProgressInterval = 0

	runner := scheduler.RunnerFunc(func(ctx context.Context, tk *task.Task) error {
		if tk.Name == "broken" {
			return errors.New("exit status 3")
		}
		return nil
	})

	result, err := scheduler.New(g, runner, cfg).Run(context.Background())
	require.NoError(t, err)
	require.NotContains(t, result.Order, "after")
	return g, result
}

func TestPrintRunResult_ListsUndispatchedTasks(t *testing.T) {
	tests := []struct {
		name   string
		policy scheduler.FailurePolicy
		rows   []string
		box    string
	}{
		{
			name:   "skip dependents",
			policy: scheduler.SkipDependents,
			rows:   []string{"after", "skipped", "independent", "done"},
			box:    "Skipped: 1",
		},
		{
			name:   "fail fast",
			policy: scheduler.FailFast,
			rows:   []string{"after", "independent", "cancelled"},
			box:    "Cancelled: 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, result := runWithFailingTask(t, tt.policy)

			var buf bytes.Buffer
			printRunResult(&buf, "run-1", g, result)
			out := buf.String()
			for _, want := range tt.rows {
				assert.Contains(t, out, want)
			}
			assert.Contains(t, out, tt.box)
		})
	}
}

func TestRunOutcome_NamesSkippedDependents(t *testing.T) {
	g, result := runWithFailingTask(t, scheduler.SkipDependents)

	err := runOutcome("run-1", g, result)
	require.Error(t, err)

	var flowErr *flowerrors.FlowError
	require.True(t, errors.As(err, &flowErr))
	assert.Equal(t, "broken", flowErr.Context["failed"])
	assert.Equal(t, "after", flowErr.Context["skipped"])
}
