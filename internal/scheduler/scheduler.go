// Package scheduler executes a dependency graph, dispatching each task only
// after all of its upstream tasks have completed successfully.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/maxkimambo/dataflow/internal/dag"
	"github.com/maxkimambo/dataflow/internal/logger"
	"github.com/maxkimambo/dataflow/internal/progress"
	"github.com/maxkimambo/dataflow/internal/task"
)

var (
	// ErrAlreadyStarted is returned when Run is called more than once
	ErrAlreadyStarted = errors.New("scheduler already started")

	// ErrDependencyFailed is recorded on tasks skipped because an upstream task failed
	ErrDependencyFailed = errors.New("dependency failed")
)

type completion struct {
	name     string
	attempts int
	err      error
}

// Scheduler handles the execution of a Graph
type Scheduler struct {
	graph     *dag.Graph
	runner    Runner
	config    *Config
	observers []Observer
	reporter  *progress.Reporter

	mutex       sync.RWMutex
	results     map[string]*TaskResult
	remaining   map[string]int
	index       map[string]int
	ready       []string
	order       []string
	started     bool
	ctx         context.Context
	cancel      context.CancelFunc
	completions chan completion
	startTime   time.Time
	finished    chan struct{}
}

// New creates a scheduler for the graph. A nil config uses DefaultConfig.
func New(g *dag.Graph, runner Runner, config *Config) *Scheduler {
	s := &Scheduler{
		graph:     g,
		runner:    runner,
		config:    config.withDefaults(),
		results:   make(map[string]*TaskResult),
		remaining: make(map[string]int),
		index:     make(map[string]int),
		finished:  make(chan struct{}),
	}
	s.reporter = progress.NewReporter(s.config.ProgressInterval)
	return s
}

// Observe registers an observer for task state transitions
func (s *Scheduler) Observe(o Observer) *Scheduler {
	s.observers = append(s.observers, o)
	return s
}

// Run executes the graph to completion and returns the per-task results.
// A task failure is reported through Result, not through the returned error.
func (s *Scheduler) Run(ctx context.Context) (*Result, error) {
	if s.graph == nil || s.runner == nil {
		return nil, fmt.Errorf("scheduler needs a graph and a runner")
	}

	s.mutex.Lock()
	if s.started {
		s.mutex.Unlock()
		return nil, ErrAlreadyStarted
	}
	s.started = true
	s.startTime = time.Now()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.completions = make(chan completion, s.graph.Len())
	s.mutex.Unlock()

	defer s.cancel()

	s.initializeResults()

	limit := s.config.MaxParallel
	if limit == 0 {
		limit = s.graph.Len()
	}
	logger.User.Startingf("Starting execution of %d tasks (max %d parallel)", s.graph.Len(), limit)

	if s.config.ProgressInterval > 0 {
		go s.logProgress()
	}

	running := 0
	for {
		for running < limit && s.ctx.Err() == nil {
			name, ok := s.popReady()
			if !ok {
				break
			}
			s.dispatch(name)
			running++
		}
		if running == 0 {
			break
		}

		c := <-s.completions
		running--
		s.handleCompletion(c)
	}

	s.cancelPending()
	close(s.finished)

	result := s.buildResult()
	s.logFinalProgress(result)
	return result, nil
}

// Cancel cancels the run. Running tasks see their context cancelled and
// tasks that have not started are marked cancelled.
func (s *Scheduler) Cancel() {
	s.mutex.RLock()
	cancel := s.cancel
	s.mutex.RUnlock()

	if cancel != nil {
		cancel()
	}
}

// initializeResults creates result entries for all tasks and queues the roots
func (s *Scheduler) initializeResults() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, name := range s.graph.Names() {
		s.index[name] = i
		s.results[name] = &TaskResult{Name: name, State: StatePending}
		s.remaining[name] = len(s.graph.Dependencies(name))
	}
	for _, name := range s.graph.Roots() {
		s.pushReadyLocked(name)
	}
}

// pushReadyLocked inserts a task into the ready queue, keeping declaration order
func (s *Scheduler) pushReadyLocked(name string) {
	i := sort.Search(len(s.ready), func(i int) bool {
		return s.index[s.ready[i]] > s.index[name]
	})
	s.ready = append(s.ready, "")
	copy(s.ready[i+1:], s.ready[i:])
	s.ready[i] = name
}

func (s *Scheduler) popReady() (string, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.ready) == 0 {
		return "", false
	}
	name := s.ready[0]
	s.ready = s.ready[1:]
	return name, true
}

// dispatch marks a task running and starts it on its own goroutine
func (s *Scheduler) dispatch(name string) {
	s.mutex.Lock()
	now := time.Now()
	r := s.results[name]
	r.State = StateRunning
	r.StartTime = &now
	s.order = append(s.order, name)
	s.mutex.Unlock()

	go s.executeTask(name)
}

// executeTask runs one task with retries and reports back to the dispatch loop
func (s *Scheduler) executeTask(name string) {
	t, ok := s.graph.Task(name)
	if !ok {
		s.completions <- completion{name: name, err: fmt.Errorf("task %s not found in graph", name)}
		return
	}

	attempts, err := s.runWithRetries(t)
	if err == nil && s.config.ArtifactPolicy == ArtifactsVerify {
		err = s.verifyArtifacts(name)
	}
	s.completions <- completion{name: name, attempts: attempts, err: err}
}

func (s *Scheduler) runWithRetries(t *task.Task) (int, error) {
	attempts := 0

	operation := func() error {
		if err := s.ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		attempts++
		s.setAttempts(t.Name, attempts)
		s.notify(Event{Task: t.Name, State: StateRunning, Attempt: attempts})
		logger.User.Starting(s.reporter.ReportTaskStart(t.Name, attempts))

		taskCtx := s.ctx
		if s.config.TaskTimeout > 0 {
			var cancel context.CancelFunc
			taskCtx, cancel = context.WithTimeout(s.ctx, s.config.TaskTimeout)
			defer cancel()
		}

		err := s.runner.Run(taskCtx, t)
		if err != nil && s.ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.config.RetryInitialInterval
	exp.MaxInterval = s.config.RetryMaxInterval
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.config.Retries)), s.ctx)
	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		logger.User.Retryf("Task %s failed (attempt %d/%d), retrying in %s: %v",
			t.Name, attempts, s.config.Retries+1, wait.Round(time.Millisecond), err)
	})
	return attempts, err
}

// handleCompletion records a finished task and releases or skips its dependents
func (s *Scheduler) handleCompletion(c completion) {
	s.mutex.Lock()
	r := s.results[c.name]
	now := time.Now()
	r.EndTime = &now
	if r.StartTime != nil {
		r.Duration = now.Sub(*r.StartTime)
	}
	if c.attempts > r.Attempts {
		r.Attempts = c.attempts
	}
	r.Error = c.err

	switch {
	case c.err == nil:
		r.State = StateDone
		for _, e := range s.graph.Dependents(c.name) {
			s.remaining[e.To]--
			if s.remaining[e.To] == 0 && s.results[e.To].State == StatePending {
				s.pushReadyLocked(e.To)
			}
		}
	case s.ctx.Err() != nil:
		r.State = StateCancelled
	default:
		r.State = StateFailed
	}
	state, duration := r.State, r.Duration
	s.mutex.Unlock()

	s.notify(Event{Task: c.name, State: state, Attempt: c.attempts, Error: c.err})

	switch state {
	case StateDone:
		logger.User.Success(s.reporter.ReportTaskComplete(c.name, duration, true))
	case StateCancelled:
		logger.User.Warnf("Task cancelled: %s", c.name)
	case StateFailed:
		logger.User.Errorf("%s - %v", s.reporter.ReportTaskComplete(c.name, duration, false), c.err)
		if s.config.FailurePolicy == FailFast {
			logger.Op.WithFields(map[string]interface{}{
				"task": c.name,
			}).Warn("Cancelling run after task failure")
			s.cancel()
		} else {
			s.skipDependents(c.name)
		}
	}
}

// skipDependents marks every transitive dependent of a failed task as skipped
func (s *Scheduler) skipDependents(name string) {
	var skipped []string

	s.mutex.Lock()
	for _, dep := range s.graph.Descendants(name) {
		r := s.results[dep]
		if r.State != StatePending {
			continue
		}
		now := time.Now()
		r.State = StateSkipped
		r.EndTime = &now
		r.Error = fmt.Errorf("%w: %s", ErrDependencyFailed, name)
		skipped = append(skipped, dep)
	}
	s.mutex.Unlock()

	for _, dep := range skipped {
		s.notify(Event{Task: dep, State: StateSkipped, Error: fmt.Errorf("%w: %s", ErrDependencyFailed, name)})
		logger.User.Skipf("Skipping task %s: dependency %s failed", dep, name)
	}
}

// cancelPending marks every task that never started as cancelled
func (s *Scheduler) cancelPending() {
	var cancelled []string

	s.mutex.Lock()
	cause := s.ctx.Err()
	for _, name := range s.graph.Names() {
		r := s.results[name]
		if r.State != StatePending {
			continue
		}
		r.State = StateCancelled
		if cause != nil {
			r.Error = cause
		}
		cancelled = append(cancelled, name)
	}
	s.ready = nil
	s.mutex.Unlock()

	for _, name := range cancelled {
		s.notify(Event{Task: name, State: StateCancelled, Error: cause})
	}
}

func (s *Scheduler) setAttempts(name string, attempts int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.results[name].Attempts = attempts
}

func (s *Scheduler) notify(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	for _, o := range s.observers {
		o.TaskStateChanged(ev)
	}
}

// buildResult constructs the final execution result
func (s *Scheduler) buildResult() *Result {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := &Result{
		Order:         append([]string(nil), s.order...),
		Tasks:         make(map[string]*TaskResult, len(s.results)),
		ExecutionTime: time.Since(s.startTime),
		Success:       true,
	}

	for _, name := range s.graph.TopologicalOrder() {
		r := *s.results[name]
		result.Tasks[name] = &r

		if r.State != StateDone {
			result.Success = false
		}
		if r.State == StateFailed && result.Error == nil {
			result.Error = fmt.Errorf("task %s failed: %w", name, r.Error)
		}
	}
	if !result.Success && result.Error == nil {
		result.Error = fmt.Errorf("run did not complete: %w", context.Canceled)
		if err := s.ctx.Err(); err != nil {
			result.Error = fmt.Errorf("run did not complete: %w", err)
		}
	}

	return result
}

// logProgress provides periodic progress updates during execution
func (s *Scheduler) logProgress() {
	ticker := time.NewTicker(s.reporter.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-s.finished:
			return
		case <-ticker.C:
			logger.User.Info(s.reporter.Report(s.buildProgressInfo()))
		}
	}
}

// buildProgressInfo creates detailed progress information
func (s *Scheduler) buildProgressInfo() progress.ProgressInfo {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	info := progress.ProgressInfo{
		RunName:        s.config.RunName,
		TotalTasks:     len(s.results),
		ElapsedTime:    time.Since(s.startTime),
		CloudBreakdown: make(map[string]progress.TaskStats),
	}

	for _, name := range s.graph.Names() {
		r := s.results[name]
		t, _ := s.graph.Task(name)
		stats := info.CloudBreakdown[t.Resources.Cloud]
		stats.Total++

		switch r.State {
		case StateDone:
			info.CompletedTasks++
			stats.Completed++
		case StateFailed:
			info.FailedTasks++
			stats.Failed++
		case StateSkipped, StateCancelled:
			info.SkippedTasks++
			stats.Skipped++
		case StateRunning:
			info.RunningTasks++
			info.RunningNames = append(info.RunningNames, name)
			stats.Running++
		default:
			info.PendingTasks++
			stats.Pending++
		}
		info.CloudBreakdown[t.Resources.Cloud] = stats
	}

	info.EstimatedTimeLeft = progress.CalculateETA(info.Finished(), info.TotalTasks, info.ElapsedTime)
	return info
}

// logFinalProgress logs the final execution summary
func (s *Scheduler) logFinalProgress(result *Result) {
	info := progress.ProgressInfo{
		TotalTasks:     len(result.Tasks),
		CompletedTasks: result.Count(StateDone),
		FailedTasks:    result.Count(StateFailed),
		SkippedTasks:   result.Count(StateSkipped),
		PendingTasks:   result.Count(StateCancelled),
		ElapsedTime:    result.ExecutionTime,
	}

	if result.Success {
		logger.User.Success(s.reporter.ReportSummary(info))
	} else {
		logger.User.Error(s.reporter.ReportSummary(info))
	}
}
