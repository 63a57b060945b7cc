package resolver

import (
	"fmt"

	"github.com/maxkimambo/dataflow/internal/dag"
	"github.com/maxkimambo/dataflow/internal/task"
)

// Tracer infers dependencies from calls between task declarations.
//
// Each task is declared with a body that describes the task through a *Call.
// When a body calls another task's Handle, the called task becomes an upstream
// dependency of the task being declared:
//
//	tr := resolver.NewTracer()
//	pre := tr.Declare("preprocess", func(c *resolver.Call) {
//		c.Run("python3 preprocess.py")
//	})
//	tr.Declare("train_a", func(c *resolver.Call) {
//		pre.Call(c, "/data/train_a")
//		c.Run("python3 train_a.py")
//	})
//	g, err := tr.Resolve()
type Tracer struct {
	decls []*declaration
	names map[string]int
}

type declaration struct {
	name string
	body func(c *Call)
}

// Handle refers to a declared task and records calls to it
type Handle struct {
	name string
}

// Call is the recording context handed to a declaration body
type Call struct {
	task  *task.Task
	calls []task.Dependency
	err   error
}

// NewTracer creates an empty tracer
func NewTracer() *Tracer {
	return &Tracer{names: make(map[string]int)}
}

// Declare registers a task. The body runs once, during Resolve, after all
// tasks are declared, so it may refer to tasks declared later by name.
func (t *Tracer) Declare(name string, body func(c *Call)) *Handle {
	t.decls = append(t.decls, &declaration{name: name, body: body})
	t.names[name]++
	return &Handle{name: name}
}

// Name returns the declared task name
func (h *Handle) Name() string {
	return h.name
}

// Call records that the task being declared invokes this task and expects the given artifacts
func (h *Handle) Call(c *Call, artifacts ...string) {
	c.Invoke(h.name, artifacts...)
}

// Invoke records a call to a task by name
func (c *Call) Invoke(name string, artifacts ...string) {
	c.calls = append(c.calls, task.Dependency{
		Task:      name,
		Artifacts: append([]string(nil), artifacts...),
	})
}

// Run sets the task's run command
func (c *Call) Run(command string) {
	c.task.Run = command
}

// Setup sets the task's setup script
func (c *Call) Setup(script string) {
	c.task.Setup = script
}

// Cloud sets the cloud the task is meant to run on
func (c *Call) Cloud(cloud string) {
	c.task.Resources.Cloud = cloud
}

// Resource records an additional resource requirement
func (c *Call) Resource(key, value string) {
	if c.task.Resources.Extra == nil {
		c.task.Resources.Extra = make(map[string]string)
	}
	c.task.Resources.Extra[key] = value
}

// DependsOn adds explicit "<task_name>:<artifact_path>" references alongside traced calls
func (c *Call) DependsOn(refs ...string) {
	for _, ref := range refs {
		dep, err := task.ParseDependency(ref)
		if err != nil {
			if c.err == nil {
				c.err = err
			}
			continue
		}
		c.calls = append(c.calls, dep)
	}
}

// Tasks evaluates every declaration body and returns the traced tasks in declaration order
func (t *Tracer) Tasks() ([]*task.Task, error) {
	for _, d := range t.decls {
		if t.names[d.name] > 1 {
			return nil, fmt.Errorf("%w: %s declared %d times", dag.ErrDuplicateTask, d.name, t.names[d.name])
		}
	}

	tasks := make([]*task.Task, 0, len(t.decls))
	for _, d := range t.decls {
		c := &Call{task: &task.Task{Name: d.name}}
		if err := trace(d, c); err != nil {
			return nil, err
		}
		if c.err != nil {
			return nil, fmt.Errorf("task %s: %w", d.name, c.err)
		}
		c.task.DependsOn = c.calls
		tasks = append(tasks, c.task)
	}
	return tasks, nil
}

// Resolve traces all declarations and builds the graph
func (t *Tracer) Resolve() (*dag.Graph, error) {
	tasks, err := t.Tasks()
	if err != nil {
		return nil, err
	}
	return Resolve(tasks)
}

func trace(d *declaration, c *Call) (err error) {
	if d.body == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: declaration of %s panicked: %v", task.ErrInvalidTask, d.name, r)
		}
	}()
	d.body(c)
	return nil
}
