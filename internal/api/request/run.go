package request

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/maxkimambo/dataflow/internal/store"
	"github.com/maxkimambo/dataflow/internal/task"
)

// TaskSpec is one task in a run submission.
type TaskSpec struct {
	Name      string         `json:"name"`
	Run       string         `json:"run"`
	Setup     string         `json:"setup,omitempty"`
	Resources task.Resources `json:"resources,omitempty"`
	DependsOn []string       `json:"depends_on,omitempty"`
}

// CreateRunRequest represents a request to submit a pipeline run.
type CreateRunRequest struct {
	Name  string     `json:"name"`
	Tasks []TaskSpec `json:"tasks"`
}

// Validate validates the create run request.
func (r *CreateRunRequest) Validate() []string {
	var errors []string

	if len(r.Tasks) == 0 {
		errors = append(errors, "at least one task is required")
	}

	for i, t := range r.Tasks {
		if t.Name == "" {
			errors = append(errors, fmt.Sprintf("tasks[%d]: name is required", i))
		}
		if t.Run == "" {
			errors = append(errors, fmt.Sprintf("tasks[%d]: run is required", i))
		}
	}

	return errors
}

// ToTasks builds tasks in submission order.
func (r *CreateRunRequest) ToTasks() ([]*task.Task, error) {
	tasks := make([]*task.Task, 0, len(r.Tasks))
	for _, spec := range r.Tasks {
		t, err := task.New(spec.Name, spec.Run,
			task.WithSetup(spec.Setup),
			task.WithResources(spec.Resources),
			task.WithDependsOn(spec.DependsOn...),
		)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// DecodeJSON decodes JSON from request body into the given value.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Pagination contains pagination parameters.
type Pagination struct {
	Page    int
	PerPage int
}

// Offset returns the number of rows to skip for the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// DefaultPage is the default page number.
const DefaultPage = 1

// DefaultPerPage is the default items per page.
const DefaultPerPage = 50

// MaxPerPage is the maximum items per page.
const MaxPerPage = 100

// ParsePagination extracts pagination from query parameters.
func ParsePagination(r *http.Request) Pagination {
	page := DefaultPage
	perPage := DefaultPerPage

	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if pp := r.URL.Query().Get("per_page"); pp != "" {
		if v, err := strconv.Atoi(pp); err == nil && v > 0 {
			perPage = v
		}
	}

	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	return Pagination{Page: page, PerPage: perPage}
}

// ParseStatus extracts the run status filter from query parameters.
func ParseStatus(r *http.Request) (store.RunStatus, error) {
	s := r.URL.Query().Get("status")
	if s == "" {
		return "", nil
	}
	return store.ParseRunStatus(s)
}
