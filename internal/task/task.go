// Package task defines the static description of a pipeline task: what it
// runs, what it needs, and which upstream tasks it depends on.
package task

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidTask is returned when a task definition is incomplete or malformed
	ErrInvalidTask = errors.New("invalid task")

	// ErrInvalidDependency is returned when a dependency reference cannot be parsed
	ErrInvalidDependency = errors.New("invalid dependency")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Resources describes what a task asks the launcher for.
// Cloud is carried as metadata only; nothing provisions it.
type Resources struct {
	Cloud string            `json:"cloud,omitempty" toml:"cloud,omitempty"`
	Extra map[string]string `json:"extra,omitempty" toml:"extra,omitempty"`
}

// Task is a single unit of work in a pipeline
type Task struct {
	Name      string
	Run       string
	Setup     string
	Resources Resources
	DependsOn []Dependency
}

// Option configures a Task during construction
type Option func(*Task) error

// New creates a task with the given name and run command.
// Construction fails if any option fails or the result does not validate.
func New(name, run string, opts ...Option) (*Task, error) {
	t := &Task{
		Name: name,
		Run:  run,
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, fmt.Errorf("task %q: %w", name, err)
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// MustNew is like New but panics on error
func MustNew(name, run string, opts ...Option) *Task {
	t, err := New(name, run, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// WithSetup sets the setup script run before the main command
func WithSetup(script string) Option {
	return func(t *Task) error {
		t.Setup = script
		return nil
	}
}

// WithCloud sets the cloud the task is meant to run on
func WithCloud(cloud string) Option {
	return func(t *Task) error {
		t.Resources.Cloud = cloud
		return nil
	}
}

// WithResources replaces the task's resource spec
func WithResources(r Resources) Option {
	return func(t *Task) error {
		t.Resources = r
		return nil
	}
}

// WithDependsOn declares dependencies in the "<task_name>:<artifact_path>" form.
// A bare "<task_name>" declares an edge without artifacts.
func WithDependsOn(refs ...string) Option {
	return func(t *Task) error {
		for _, ref := range refs {
			dep, err := ParseDependency(ref)
			if err != nil {
				return err
			}
			t.DependsOn = append(t.DependsOn, dep)
		}
		return nil
	}
}

// After declares a dependency on an already constructed task
func After(upstream *Task, artifacts ...string) Option {
	return func(t *Task) error {
		if upstream == nil {
			return fmt.Errorf("%w: upstream task is nil", ErrInvalidDependency)
		}
		t.DependsOn = append(t.DependsOn, Dependency{
			Task:      upstream.Name,
			Artifacts: append([]string(nil), artifacts...),
		})
		return nil
	}
}

// Validate checks that the task is complete enough to be scheduled.
// It does not check that dependencies refer to existing tasks; that is the resolver's job.
func (t *Task) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidTask)
	}
	if !namePattern.MatchString(t.Name) {
		return fmt.Errorf("%w: name %q must start with a letter or digit and contain only letters, digits, '_', '.' or '-'", ErrInvalidTask, t.Name)
	}
	if strings.TrimSpace(t.Run) == "" {
		return fmt.Errorf("%w: task %s has no run command", ErrInvalidTask, t.Name)
	}
	for _, dep := range t.DependsOn {
		if err := dep.Validate(); err != nil {
			return fmt.Errorf("task %s: %w", t.Name, err)
		}
	}
	return nil
}

// Dependencies returns the declared dependencies with repeated upstream tasks merged.
// Order follows first declaration; artifact lists are merged without duplicates.
func (t *Task) Dependencies() []Dependency {
	index := make(map[string]int)
	var merged []Dependency
	for _, dep := range t.DependsOn {
		i, seen := index[dep.Task]
		if !seen {
			index[dep.Task] = len(merged)
			merged = append(merged, Dependency{Task: dep.Task})
			i = len(merged) - 1
		}
		merged[i].Artifacts = appendUnique(merged[i].Artifacts, dep.Artifacts...)
	}
	return merged
}

// Clone returns a deep copy of the task
func (t *Task) Clone() *Task {
	c := *t
	if t.Resources.Extra != nil {
		c.Resources.Extra = make(map[string]string, len(t.Resources.Extra))
		for k, v := range t.Resources.Extra {
			c.Resources.Extra[k] = v
		}
	}
	c.DependsOn = make([]Dependency, len(t.DependsOn))
	for i, dep := range t.DependsOn {
		c.DependsOn[i] = Dependency{Task: dep.Task, Artifacts: append([]string(nil), dep.Artifacts...)}
	}
	return &c
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, existing := range dst {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
