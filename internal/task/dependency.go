package task

import (
	"fmt"
	"strings"
)

// Dependency references an upstream task and the artifacts expected from it
type Dependency struct {
	Task      string   `json:"task"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// ParseDependency parses a "<task_name>:<artifact_path>" reference.
// Only the first ':' separates the task name, so artifact paths such as
// "gs://bucket/data" are kept intact.
func ParseDependency(ref string) (Dependency, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Dependency{}, fmt.Errorf("%w: empty reference", ErrInvalidDependency)
	}

	name, artifact, hasArtifact := strings.Cut(ref, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return Dependency{}, fmt.Errorf("%w: %q has no task name", ErrInvalidDependency, ref)
	}

	dep := Dependency{Task: name}
	if hasArtifact {
		artifact = strings.TrimSpace(artifact)
		if artifact == "" {
			return Dependency{}, fmt.Errorf("%w: %q has an empty artifact path", ErrInvalidDependency, ref)
		}
		dep.Artifacts = []string{artifact}
	}
	return dep, nil
}

// Validate checks the dependency is well formed
func (d Dependency) Validate() error {
	if d.Task == "" {
		return fmt.Errorf("%w: dependency has no task name", ErrInvalidDependency)
	}
	for _, a := range d.Artifacts {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("%w: dependency on %s has an empty artifact path", ErrInvalidDependency, d.Task)
		}
	}
	return nil
}

// Refs renders the dependency back into the "<task_name>:<artifact_path>" form,
// one reference per artifact.
func (d Dependency) Refs() []string {
	if len(d.Artifacts) == 0 {
		return []string{d.Task}
	}
	refs := make([]string, 0, len(d.Artifacts))
	for _, a := range d.Artifacts {
		refs = append(refs, d.Task+":"+a)
	}
	return refs
}

// String returns a human readable form of the dependency
func (d Dependency) String() string {
	if len(d.Artifacts) == 0 {
		return d.Task
	}
	return fmt.Sprintf("%s [%s]", d.Task, strings.Join(d.Artifacts, ", "))
}
