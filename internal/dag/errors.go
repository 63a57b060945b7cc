package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycleDetected is matched by every *CycleError
	ErrCycleDetected = errors.New("cycle detected")

	// ErrUnknownDependency is matched by every *UnknownDependencyError
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrDuplicateTask is returned when two tasks share a name
	ErrDuplicateTask = errors.New("duplicate task")
)

// CycleError names the tasks forming a dependency cycle.
// Cycle starts and ends with the same task, in producer -> consumer order.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycleDetected, strings.Join(e.Cycle, " -> "))
}

// Is reports whether target is ErrCycleDetected
func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}

// UnknownDependencyError names a dependency that refers to a task missing from the graph
type UnknownDependencyError struct {
	Task       string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("%s: task %s depends on non-existent task %s", ErrUnknownDependency, e.Task, e.Dependency)
}

// Is reports whether target is ErrUnknownDependency
func (e *UnknownDependencyError) Is(target error) bool {
	return target == ErrUnknownDependency
}
