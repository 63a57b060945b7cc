package scheduler

import (
	"context"
	"time"

	"github.com/maxkimambo/dataflow/internal/dag"
	"github.com/maxkimambo/dataflow/internal/task"
)

// State is the execution state of a task within one run
type State string

const (
	StatePending   State = dag.StatusPending
	StateRunning   State = dag.StatusRunning
	StateDone      State = dag.StatusDone
	StateFailed    State = dag.StatusFailed
	StateSkipped   State = dag.StatusSkipped
	StateCancelled State = dag.StatusCancelled
)

// Terminal reports whether the state is final
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateFailed, StateSkipped, StateCancelled:
		return true
	}
	return false
}

// Runner executes a single task
type Runner interface {
	Run(ctx context.Context, t *task.Task) error
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, t *task.Task) error

// Run calls f(ctx, t)
func (f RunnerFunc) Run(ctx context.Context, t *task.Task) error {
	return f(ctx, t)
}

// Event describes a task state transition
type Event struct {
	Task    string
	State   State
	Attempt int
	Error   error
	Time    time.Time
}

// Observer receives task state transitions. Calls may come from several goroutines.
type Observer interface {
	TaskStateChanged(ev Event)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(ev Event)

// TaskStateChanged calls f(ev)
func (f ObserverFunc) TaskStateChanged(ev Event) {
	f(ev)
}

// TaskResult contains the result of a single task execution
type TaskResult struct {
	Name      string
	State     State
	Attempts  int
	Error     error
	StartTime *time.Time
	EndTime   *time.Time
	Duration  time.Duration
}

// Result contains the results of a run
type Result struct {
	// Success is true when every task finished in StateDone
	Success bool

	// Order lists tasks in the order they were dispatched
	Order []string

	Tasks map[string]*TaskResult

	ExecutionTime time.Duration

	// Error is the first failure in topological order
	Error error
}

// Count returns the number of tasks in the given state
func (r *Result) Count(state State) int {
	n := 0
	for _, tr := range r.Tasks {
		if tr.State == state {
			n++
		}
	}
	return n
}

// States converts the result into visualization states
func (r *Result) States() map[string]dag.NodeState {
	states := make(map[string]dag.NodeState, len(r.Tasks))
	for name, tr := range r.Tasks {
		st := dag.NodeState{
			Status:    string(tr.State),
			StartTime: tr.StartTime,
			EndTime:   tr.EndTime,
			Attempts:  tr.Attempts,
		}
		if tr.Error != nil {
			st.Error = tr.Error.Error()
		}
		states[name] = st
	}
	return states
}
