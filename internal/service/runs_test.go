package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/dataflow/internal/dag"
	"github.com/maxkimambo/dataflow/internal/scheduler"
	"github.com/maxkimambo/dataflow/internal/store"
	"github.com/maxkimambo/dataflow/internal/task"
)

func setupService(t *testing.T, runner scheduler.Runner) (*RunService, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "dataflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		st.Close()
	})

	cfg := &scheduler.Config{MaxParallel: 2}
	svc := NewRunService(st, cfg, func(string) scheduler.Runner { return runner })
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})
	return svc, st
}

func pipeline() []*task.Task {
	fetch := task.MustNew("fetch", "echo fetch")
	train := task.MustNew("train", "echo train", task.After(fetch, "data/raw"))
	report := task.MustNew("report", "echo report", task.After(train))
	return []*task.Task{fetch, train, report}
}

func okRunner() scheduler.Runner {
	return scheduler.RunnerFunc(func(ctx context.Context, t *task.Task) error {
		return nil
	})
}

// blockingRunner blocks every task until its context is cancelled
type blockingRunner struct {
	started chan string
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan string, 8)}
}

func (b *blockingRunner) Run(ctx context.Context, t *task.Task) error {
	b.started <- t.Name
	<-ctx.Done()
	return ctx.Err()
}

func TestExecute_Succeeds(t *testing.T) {
	svc, st := setupService(t, okRunner())
	ctx := context.Background()

	run, result, err := svc.Execute(ctx, Submission{Name: "nightly", Tasks: pipeline()})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"fetch", "train", "report"}, result.Order)
	assert.Equal(t, store.RunSucceeded, run.Status)
	assert.Equal(t, "nightly", run.Name)
	assert.Equal(t, 3, run.TaskCount)
	assert.NotNil(t, run.FinishedAt)

	tasks, err := st.ListTaskRuns(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	for _, tr := range tasks {
		assert.Equal(t, string(scheduler.StateDone), tr.State, tr.Task)
		assert.Equal(t, 1, tr.Attempts, tr.Task)
	}
	assert.Empty(t, svc.Active())
}

func TestExecute_DefaultName(t *testing.T) {
	svc, _ := setupService(t, okRunner())

	run, _, err := svc.Execute(context.Background(), Submission{Tasks: pipeline()})
	require.NoError(t, err)
	assert.Equal(t, "pipeline", run.Name)
}

func TestExecute_TaskFailure(t *testing.T) {
	runner := scheduler.RunnerFunc(func(ctx context.Context, t *task.Task) error {
		if t.Name == "train" {
			return errors.New("out of memory")
		}
		return nil
	})
	svc, st := setupService(t, runner)
	ctx := context.Background()

	run, result, err := svc.Execute(ctx, Submission{Name: "nightly", Tasks: pipeline()})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, store.RunFailed, run.Status)
	assert.Contains(t, run.Error, "train")

	tasks, err := st.ListTaskRuns(ctx, run.ID)
	require.NoError(t, err)
	states := map[string]string{}
	for _, tr := range tasks {
		states[tr.Task] = tr.State
	}
	assert.Equal(t, map[string]string{
		"fetch":  string(scheduler.StateDone),
		"train":  string(scheduler.StateFailed),
		"report": string(scheduler.StateSkipped),
	}, states)
}

func TestExecute_ResolveErrorCreatesNoRun(t *testing.T) {
	svc, st := setupService(t, okRunner())
	ctx := context.Background()

	a := task.MustNew("a", "true", task.WithDependsOn("b"))
	b := task.MustNew("b", "true", task.WithDependsOn("a"))

	_, _, err := svc.Execute(ctx, Submission{Tasks: []*task.Task{a, b}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dag.ErrCycleDetected))

	_, total, err := st.ListRuns(ctx, store.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestSubmit_RunsInBackground(t *testing.T) {
	svc, st := setupService(t, okRunner())
	ctx := context.Background()

	run, err := svc.Submit(ctx, Submission{Name: "bg", Tasks: pipeline(), Request: `{"name":"bg"}`})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Wait(waitCtx, run.ID))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunSucceeded, got.Status)
	assert.Equal(t, `{"name":"bg"}`, got.Request)
}

func TestCancel_ActiveRun(t *testing.T) {
	runner := newBlockingRunner()
	svc, st := setupService(t, runner)
	ctx := context.Background()

	run, err := svc.Submit(ctx, Submission{Name: "slow", Tasks: pipeline()})
	require.NoError(t, err)

	select {
	case name := <-runner.started:
		assert.Equal(t, "fetch", name)
	case <-time.After(5 * time.Second):
		t.Fatal("task never started")
	}
	assert.Equal(t, []string{run.ID}, svc.Active())

	require.NoError(t, svc.Cancel(ctx, run.ID))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Wait(waitCtx, run.ID))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunAborted, got.Status)

	tasks, err := st.ListTaskRuns(ctx, run.ID)
	require.NoError(t, err)
	for _, tr := range tasks {
		assert.Equal(t, string(scheduler.StateCancelled), tr.State, tr.Task)
	}
}

func TestCancel_Errors(t *testing.T) {
	svc, _ := setupService(t, okRunner())
	ctx := context.Background()

	err := svc.Cancel(ctx, "run-missing")
	assert.True(t, errors.Is(err, store.ErrRunNotFound))

	run, _, err := svc.Execute(ctx, Submission{Tasks: pipeline()})
	require.NoError(t, err)

	err = svc.Cancel(ctx, run.ID)
	assert.True(t, errors.Is(err, ErrRunNotActive))
}

func TestShutdown_CancelsActiveRuns(t *testing.T) {
	runner := newBlockingRunner()
	svc, st := setupService(t, runner)
	ctx := context.Background()

	run, err := svc.Submit(ctx, Submission{Tasks: pipeline()})
	require.NoError(t, err)
	<-runner.started

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(shutdownCtx))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunAborted, got.Status)
	assert.Empty(t, svc.Active())
}
