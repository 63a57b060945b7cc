package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maxkimambo/dataflow/internal/api/request"
	"github.com/maxkimambo/dataflow/internal/api/response"
	"github.com/maxkimambo/dataflow/internal/service"
	"github.com/maxkimambo/dataflow/internal/store"
)

// RunHandler handles pipeline run operations.
type RunHandler struct {
	runs  *service.RunService
	store *store.Store
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(runs *service.RunService, st *store.Store) *RunHandler {
	return &RunHandler{runs: runs, store: st}
}

// RunDetail is a run together with its per-task states.
type RunDetail struct {
	*store.Run
	Tasks []*store.TaskRun `json:"tasks"`
}

// CreateRun handles POST /v1/runs.
func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req request.CreateRunRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.Error(w, response.NewValidationError([]string{"Invalid JSON body: " + err.Error()}))
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		response.Error(w, response.NewValidationError(errors))
		return
	}

	tasks, err := req.ToTasks()
	if err != nil {
		response.Error(w, err)
		return
	}

	body, err := json.Marshal(req)
	if err != nil {
		response.Error(w, err)
		return
	}

	run, err := h.runs.Submit(r.Context(), service.Submission{
		Name:    req.Name,
		Tasks:   tasks,
		Request: string(body),
	})
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Accepted(w, run)
}

// ListRuns handles GET /v1/runs.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	status, err := request.ParseStatus(r)
	if err != nil {
		response.Error(w, response.NewValidationError([]string{err.Error()}))
		return
	}
	page := request.ParsePagination(r)

	runs, total, err := h.store.ListRuns(r.Context(), store.ListOptions{
		Status: status,
		Limit:  page.PerPage,
		Offset: page.Offset(),
	})
	if err != nil {
		response.Error(w, err)
		return
	}

	if runs == nil {
		runs = []*store.Run{}
	}

	response.Paginated(w, runs, page.Page, page.PerPage, total)
}

// GetRun handles GET /v1/runs/{id}.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}

	tasks, err := h.store.ListTaskRuns(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, RunDetail{Run: run, Tasks: tasks})
}

// ListTaskRuns handles GET /v1/runs/{id}/tasks.
func (h *RunHandler) ListTaskRuns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.store.GetRun(r.Context(), id); err != nil {
		response.Error(w, err)
		return
	}

	tasks, err := h.store.ListTaskRuns(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, tasks)
}

// CancelRun handles POST /v1/runs/{id}/cancel.
func (h *RunHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.runs.Cancel(r.Context(), id); err != nil {
		response.Error(w, err)
		return
	}

	response.Accepted(w, map[string]string{"id": id, "status": "cancelling"})
}
