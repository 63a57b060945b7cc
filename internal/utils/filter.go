package utils

import (
	"fmt"
	"strings"

	"github.com/maxkimambo/dataflow/internal/task"
)

// ResourceFilter selects tasks by a resource key, optionally with a value
type ResourceFilter struct {
	Key   string
	Value string
	// Presence is true for a bare key, which matches any value
	Presence bool
}

// ParseResourceFilter parses "key=value" or a bare "key".
// An empty string yields a nil filter, which matches every task.
//   - "cloud=aws" matches tasks whose cloud is aws
//   - "gpu" matches tasks that set the extra resource gpu to anything
func ParseResourceFilter(s string) (*ResourceFilter, error) {
	if s == "" {
		return nil, nil
	}

	key, value, hasValue := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("invalid resource filter %q: key cannot be empty", s)
	}
	if !hasValue {
		return &ResourceFilter{Key: key, Presence: true}, nil
	}
	return &ResourceFilter{Key: key, Value: strings.TrimSpace(value)}, nil
}

// Matches reports whether the task's resources satisfy the filter.
// The key "cloud" refers to Resources.Cloud; any other key is looked up in Resources.Extra.
func (f *ResourceFilter) Matches(t *task.Task) bool {
	if f == nil {
		return true
	}

	var value string
	var exists bool
	if f.Key == "cloud" {
		value = t.Resources.Cloud
		exists = value != ""
	} else {
		value, exists = t.Resources.Extra[f.Key]
	}

	if f.Presence {
		return exists
	}
	return exists && value == f.Value
}

// String renders the filter in the form it was parsed from
func (f *ResourceFilter) String() string {
	if f == nil {
		return ""
	}
	if f.Presence {
		return f.Key
	}
	return f.Key + "=" + f.Value
}
