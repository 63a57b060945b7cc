package store

import (
	"context"
	"time"

	"github.com/maxkimambo/dataflow/internal/logger"
	"github.com/maxkimambo/dataflow/internal/scheduler"
)

// Recorder persists scheduler state transitions for one run
type Recorder struct {
	store   *Store
	runID   string
	timeout time.Duration
}

// Recorder returns an observer that writes task transitions of runID to the store
func (s *Store) Recorder(runID string) *Recorder {
	return &Recorder{store: s, runID: runID, timeout: 5 * time.Second}
}

// TaskStateChanged implements scheduler.Observer
func (r *Recorder) TaskStateChanged(ev scheduler.Event) {
	u := TaskUpdate{
		State:    string(ev.State),
		Attempts: ev.Attempt,
		At:       ev.Time,
		Started:  ev.State == scheduler.StateRunning,
		Finished: ev.State.Terminal(),
	}
	if ev.Error != nil {
		u.Error = ev.Error.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.UpdateTaskRun(ctx, r.runID, ev.Task, u); err != nil {
		logger.Error("Failed to record task state",
			logger.WithRun(r.runID),
			logger.WithTask(ev.Task),
			logger.Field{Key: "state", Value: ev.State},
			logger.Field{Key: "error", Value: err})
	}
}

// Finish records the final status of the run from a scheduler result
func (r *Recorder) Finish(ctx context.Context, result *scheduler.Result) error {
	status := RunSucceeded
	errMsg := ""
	switch {
	case result.Success:
	case result.Count(scheduler.StateFailed) > 0:
		status = RunFailed
	default:
		status = RunAborted
	}
	if result.Error != nil {
		errMsg = result.Error.Error()
	}

	logger.Debug("Recording run status", logger.WithRun(r.runID), logger.Field{Key: "status", Value: status})
	return r.store.UpdateRunStatus(ctx, r.runID, status, errMsg)
}

var _ scheduler.Observer = (*Recorder)(nil)
