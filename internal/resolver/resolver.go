// Package resolver turns task declarations into a validated dependency graph.
//
// Dependencies can be declared explicitly, by listing upstream tasks in a
// task's DependsOn field, or implicitly, by having one task's declaration
// call another through a Tracer. Both styles produce the same edges.
package resolver

import (
	"fmt"

	"github.com/maxkimambo/dataflow/internal/dag"
	"github.com/maxkimambo/dataflow/internal/logger"
	"github.com/maxkimambo/dataflow/internal/task"
)

// Resolve validates the tasks and builds the DAG from their declared dependencies.
// It fails with a *dag.CycleError or *dag.UnknownDependencyError when the
// declarations do not form a DAG.
func Resolve(tasks []*task.Task) (*dag.Graph, error) {
	b := dag.NewBuilder()

	for _, t := range tasks {
		if t == nil {
			return nil, fmt.Errorf("%w: nil task in declarations", task.ErrInvalidTask)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		b.AddTask(t)
	}

	edges := 0
	for _, t := range tasks {
		for _, dep := range t.Dependencies() {
			b.AddEdge(dep.Task, t.Name, dep.Artifacts...)
			edges++
		}
	}

	g, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dependencies: %w", err)
	}

	logger.Op.WithFields(map[string]interface{}{
		"tasks": g.Len(),
		"edges": edges,
		"roots": g.Roots(),
	}).Debug("Resolved task graph")

	return g, nil
}
