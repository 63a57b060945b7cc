// Package service runs pipelines and records them in the run store.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/maxkimambo/dataflow/internal/dag"
	"github.com/maxkimambo/dataflow/internal/logger"
	"github.com/maxkimambo/dataflow/internal/resolver"
	"github.com/maxkimambo/dataflow/internal/scheduler"
	"github.com/maxkimambo/dataflow/internal/store"
	"github.com/maxkimambo/dataflow/internal/task"
)

// ErrRunNotActive is returned when cancelling a run that is not executing in this process
var ErrRunNotActive = errors.New("run is not active")

// RunnerFactory returns the runner used for one run
type RunnerFactory func(runID string) scheduler.Runner

// Submission is a pipeline to execute
type Submission struct {
	Name  string
	Tasks []*task.Task

	// Request is the raw submission kept with the run for auditing
	Request string
}

type activeRun struct {
	sched  *scheduler.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// RunService resolves, executes and records pipeline runs
type RunService struct {
	store   *store.Store
	config  scheduler.Config
	runners RunnerFactory

	mu     sync.Mutex
	active map[string]*activeRun
	wg     sync.WaitGroup
}

// NewRunService creates a run service. A nil config uses scheduler.DefaultConfig.
func NewRunService(st *store.Store, config *scheduler.Config, runners RunnerFactory) *RunService {
	if config == nil {
		config = scheduler.DefaultConfig()
	}
	return &RunService{
		store:   st,
		config:  *config,
		runners: runners,
		active:  make(map[string]*activeRun),
	}
}

// Prepare resolves the submission and records a pending run for it
func (s *RunService) Prepare(ctx context.Context, sub Submission) (*store.Run, *dag.Graph, error) {
	g, err := resolver.Resolve(sub.Tasks)
	if err != nil {
		return nil, nil, err
	}

	name := sub.Name
	if name == "" {
		name = "pipeline"
	}
	run := &store.Run{Name: name, Request: sub.Request}
	if err := s.store.CreateRun(ctx, run, g.Names()); err != nil {
		return nil, nil, err
	}

	logger.Op.WithFields(map[string]interface{}{
		"run":   run.ID,
		"name":  run.Name,
		"tasks": g.Len(),
	}).Info("Run created")
	return run, g, nil
}

// Submit records the run and executes it in the background
func (s *RunService) Submit(ctx context.Context, sub Submission) (*store.Run, error) {
	run, g, err := s.Prepare(ctx, sub)
	if err != nil {
		return nil, err
	}

	ar := s.track(context.Background(), run, g)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.execute(run, ar); err != nil {
			logger.Op.WithFields(map[string]interface{}{"run": run.ID, "error": err}).Error("Run execution failed")
		}
	}()
	return run, nil
}

// Execute records the run and executes it, blocking until it finishes
func (s *RunService) Execute(ctx context.Context, sub Submission) (*store.Run, *scheduler.Result, error) {
	run, g, err := s.Prepare(ctx, sub)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.execute(run, s.track(ctx, run, g))
	if err != nil {
		return run, nil, err
	}

	final, err := s.store.GetRun(context.Background(), run.ID)
	if err != nil {
		return run, result, err
	}
	return final, result, nil
}

// Cancel stops an active run
func (s *RunService) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	ar, ok := s.active[id]
	s.mu.Unlock()

	if !ok {
		if _, err := s.store.GetRun(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrRunNotActive, id)
	}

	logger.Op.WithFields(map[string]interface{}{"run": id}).Info("Cancelling run")
	ar.cancel()
	return nil
}

// Wait blocks until the run finishes or ctx is done
func (s *RunService) Wait(ctx context.Context, id string) error {
	s.mu.Lock()
	ar, ok := s.active[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-ar.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the IDs of runs executing in this process
func (s *RunService) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown cancels every active run and waits for them to be recorded
func (s *RunService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, ar := range s.active {
		ar.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RunService) track(ctx context.Context, run *store.Run, g *dag.Graph) *activeRun {
	cfg := s.config
	cfg.RunName = run.Name

	var runner scheduler.Runner
	if s.runners != nil {
		runner = s.runners(run.ID)
	}

	ar := &activeRun{
		sched: scheduler.New(g, runner, &cfg),
		done:  make(chan struct{}),
	}
	ar.ctx, ar.cancel = context.WithCancel(ctx)

	s.mu.Lock()
	s.active[run.ID] = ar
	s.mu.Unlock()
	return ar
}

func (s *RunService) execute(run *store.Run, ar *activeRun) (*scheduler.Result, error) {
	ctx := ar.ctx
	defer func() {
		ar.cancel()
		s.mu.Lock()
		delete(s.active, run.ID)
		s.mu.Unlock()
		close(ar.done)
	}()

	rec := s.store.Recorder(run.ID)
	ar.sched.Observe(rec)

	if err := s.store.UpdateRunStatus(context.Background(), run.ID, store.RunRunning, ""); err != nil {
		return nil, err
	}

	result, err := ar.sched.Run(ctx)
	if err != nil {
		if uerr := s.store.UpdateRunStatus(context.Background(), run.ID, store.RunFailed, err.Error()); uerr != nil {
			logger.Op.WithFields(map[string]interface{}{"run": run.ID, "error": uerr}).Error("Failed to record run failure")
		}
		return nil, err
	}

	if err := rec.Finish(context.Background(), result); err != nil {
		return result, err
	}

	logger.Op.WithFields(map[string]interface{}{
		"run":      run.ID,
		"success":  result.Success,
		"duration": result.ExecutionTime.String(),
	}).Info("Run finished")
	return result, nil
}
