package dag

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/maxkimambo/dataflow/internal/task"
)

// Edge is a dependency from a producer task to a consumer task.
// Artifacts lists what the consumer expects the producer to leave behind.
type Edge struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// Graph is an immutable, validated DAG of tasks.
// It is safe for concurrent use since nothing mutates it after Build.
type Graph struct {
	names      []string
	index      map[string]int
	tasks      map[string]*task.Task
	upstream   map[string][]Edge
	downstream map[string][]Edge
	order      []string
}

// Builder collects tasks and edges and produces a validated Graph
type Builder struct {
	names []string
	tasks map[string]*task.Task
	edges []Edge
	err   error
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{
		tasks: make(map[string]*task.Task),
	}
}

// AddTask adds a task node. The task's own DependsOn list is not read here;
// edges are declared separately with AddEdge.
func (b *Builder) AddTask(t *task.Task) *Builder {
	if b.err != nil {
		return b
	}
	if t == nil {
		b.err = fmt.Errorf("task cannot be nil")
		return b
	}
	if t.Name == "" {
		b.err = fmt.Errorf("task name cannot be empty")
		return b
	}
	if _, exists := b.tasks[t.Name]; exists {
		b.err = fmt.Errorf("%w: task with name %s already exists", ErrDuplicateTask, t.Name)
		return b
	}
	b.tasks[t.Name] = t.Clone()
	b.names = append(b.names, t.Name)
	return b
}

// AddEdge declares that consumer depends on producer.
// Unknown task names are reported by Build, so edges may be declared before their tasks.
func (b *Builder) AddEdge(producer, consumer string, artifacts ...string) *Builder {
	if b.err != nil {
		return b
	}
	for i := range b.edges {
		e := &b.edges[i]
		if e.From == producer && e.To == consumer {
			for _, a := range artifacts {
				if !contains(e.Artifacts, a) {
					e.Artifacts = append(e.Artifacts, a)
				}
			}
			return b
		}
	}
	b.edges = append(b.edges, Edge{
		From:      producer,
		To:        consumer,
		Artifacts: append([]string(nil), artifacts...),
	})
	return b
}

// Build validates references and acyclicity and returns the Graph
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}

	g := &Graph{
		names:      append([]string(nil), b.names...),
		index:      make(map[string]int, len(b.names)),
		tasks:      make(map[string]*task.Task, len(b.names)),
		upstream:   make(map[string][]Edge, len(b.names)),
		downstream: make(map[string][]Edge, len(b.names)),
	}
	for i, name := range b.names {
		g.index[name] = i
		g.tasks[name] = b.tasks[name]
	}

	for _, e := range b.edges {
		if _, ok := g.index[e.To]; !ok {
			return nil, fmt.Errorf("%w: edge %s -> %s has no consumer task %s", ErrUnknownDependency, e.From, e.To, e.To)
		}
		if _, ok := g.index[e.From]; !ok {
			return nil, &UnknownDependencyError{Task: e.To, Dependency: e.From}
		}
		g.upstream[e.To] = append(g.upstream[e.To], e)
		g.downstream[e.From] = append(g.downstream[e.From], e)
	}

	// Dependents are visited in declaration order so traversal is deterministic
	for name, edges := range g.downstream {
		sort.SliceStable(edges, func(i, j int) bool {
			return g.index[edges[i].To] < g.index[edges[j].To]
		})
		g.downstream[name] = edges
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Cycle: cycle}
	}

	g.order = g.topologicalSort()
	return g, nil
}

// Len returns the number of tasks in the graph
func (g *Graph) Len() int {
	return len(g.names)
}

// Names returns all task names in declaration order
func (g *Graph) Names() []string {
	return append([]string(nil), g.names...)
}

// Task returns a copy of the named task
func (g *Graph) Task(name string) (*task.Task, bool) {
	t, ok := g.tasks[name]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Has reports whether the graph contains the named task
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Tasks returns copies of all tasks in declaration order
func (g *Graph) Tasks() []*task.Task {
	out := make([]*task.Task, 0, len(g.names))
	for _, name := range g.names {
		out = append(out, g.tasks[name].Clone())
	}
	return out
}

// Edges returns every edge, grouped by consumer in declaration order
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, name := range g.names {
		out = append(out, copyEdges(g.upstream[name])...)
	}
	return out
}

// Dependencies returns the edges into the named task (its producers)
func (g *Graph) Dependencies(name string) []Edge {
	return copyEdges(g.upstream[name])
}

// Dependents returns the edges out of the named task (its consumers)
func (g *Graph) Dependents(name string) []Edge {
	return copyEdges(g.downstream[name])
}

// Roots returns tasks with no dependencies, in declaration order
func (g *Graph) Roots() []string {
	var roots []string
	for _, name := range g.names {
		if len(g.upstream[name]) == 0 {
			roots = append(roots, name)
		}
	}
	return roots
}

// Leaves returns tasks nothing depends on, in declaration order
func (g *Graph) Leaves() []string {
	var leaves []string
	for _, name := range g.names {
		if len(g.downstream[name]) == 0 {
			leaves = append(leaves, name)
		}
	}
	return leaves
}

// Descendants returns every task that transitively depends on name, in topological order
func (g *Graph) Descendants(name string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for _, e := range g.downstream[n] {
			if !seen[e.To] {
				seen[e.To] = true
				walk(e.To)
			}
		}
	}
	walk(name)

	var out []string
	for _, n := range g.order {
		if seen[n] {
			out = append(out, n)
		}
	}
	return out
}

// TopologicalOrder returns an execution order respecting every edge.
// Among tasks that are ready at the same time, earlier declared tasks come first.
func (g *Graph) TopologicalOrder() []string {
	return append([]string(nil), g.order...)
}

// Levels groups tasks into stages: every task's producers are in earlier stages
func (g *Graph) Levels() [][]string {
	depth := make(map[string]int, len(g.names))
	maxDepth := -1
	for _, name := range g.order {
		d := 0
		for _, e := range g.upstream[name] {
			if depth[e.From]+1 > d {
				d = depth[e.From] + 1
			}
		}
		depth[name] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]string, maxDepth+1)
	for _, name := range g.order {
		levels[depth[name]] = append(levels[depth[name]], name)
	}
	return levels
}

// topologicalSort runs Kahn's algorithm with a declaration-order priority queue
func (g *Graph) topologicalSort() []string {
	inDegree := make(map[string]int, len(g.names))
	ready := &indexHeap{}
	for _, name := range g.names {
		inDegree[name] = len(g.upstream[name])
		if inDegree[name] == 0 {
			heap.Push(ready, g.index[name])
		}
	}

	order := make([]string, 0, len(g.names))
	for ready.Len() > 0 {
		current := g.names[heap.Pop(ready).(int)]
		order = append(order, current)
		for _, e := range g.downstream[current] {
			inDegree[e.To]--
			if inDegree[e.To] == 0 {
				heap.Push(ready, g.index[e.To])
			}
		}
	}
	return order
}

// findCycle returns the first cycle found by DFS, or nil
func (g *Graph) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.names))
	var stack []string

	var visit func(string) []string
	visit = func(n string) []string {
		color[n] = grey
		stack = append(stack, n)
		for _, e := range g.downstream[n] {
			switch color[e.To] {
			case grey:
				// Back edge: the cycle is the stack suffix starting at e.To
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == e.To {
						cycle := append([]string(nil), stack[i:]...)
						return append(cycle, e.To)
					}
				}
			case white:
				if cycle := visit(e.To); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}

	for _, name := range g.names {
		if color[name] == white {
			if cycle := visit(name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func copyEdges(edges []Edge) []Edge {
	if len(edges) == 0 {
		return nil
	}
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = Edge{From: e.From, To: e.To, Artifacts: append([]string(nil), e.Artifacts...)}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
