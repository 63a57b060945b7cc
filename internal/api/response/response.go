package response

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	flowerrors "github.com/maxkimambo/dataflow/internal/errors"
	"github.com/maxkimambo/dataflow/internal/logger"
	"github.com/maxkimambo/dataflow/internal/service"
	"github.com/maxkimambo/dataflow/internal/store"
)

// Error codes returned in ErrorBody.Code that do not come from a FlowError
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeRunNotFound      = "RUN_NOT_FOUND"
	CodeRunNotActive     = "RUN_NOT_ACTIVE"
	CodeRunExists        = "RUN_EXISTS"
	CodeInternalError    = "INTERNAL_ERROR"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains error details.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// PaginationMeta contains pagination metadata.
type PaginationMeta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// PaginatedResponse wraps data with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// ValidationError reports a malformed request body.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// NewValidationError creates a ValidationError from a list of problems.
func NewValidationError(errs []string) *ValidationError {
	return &ValidationError{Errors: errs}
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Op.WithFields(map[string]interface{}{"error": err}).Warn("Failed to encode response")
	}
}

// Error sends an error response with a status derived from err.
func Error(w http.ResponseWriter, err error) {
	status, body := toBody(err)
	if status == http.StatusInternalServerError {
		logger.Op.WithFields(map[string]interface{}{"error": err}).Error("Request failed")
	}
	JSON(w, status, ErrorResponse{Error: body})
}

// Paginated sends a paginated JSON response.
func Paginated(w http.ResponseWriter, data interface{}, page, perPage, total int) {
	totalPages := total / perPage
	if total%perPage > 0 {
		totalPages++
	}

	JSON(w, http.StatusOK, PaginatedResponse{
		Data: data,
		Pagination: PaginationMeta{
			Page:       page,
			PerPage:    perPage,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

// Created sends a 201 Created response with JSON body.
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// Accepted sends a 202 Accepted response with JSON body.
func Accepted(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusAccepted, data)
}

// OK sends a 200 OK response with JSON body.
func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

func toBody(err error) (int, ErrorBody) {
	var verr *ValidationError
	if stderrors.As(err, &verr) {
		return http.StatusBadRequest, ErrorBody{
			Code:    CodeValidationFailed,
			Message: "Request validation failed",
			Context: map[string]interface{}{"errors": verr.Errors},
		}
	}

	switch {
	case stderrors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound, ErrorBody{Code: CodeRunNotFound, Message: err.Error()}
	case stderrors.Is(err, service.ErrRunNotActive):
		return http.StatusConflict, ErrorBody{Code: CodeRunNotActive, Message: err.Error()}
	case stderrors.Is(err, store.ErrRunExists):
		return http.StatusConflict, ErrorBody{Code: CodeRunExists, Message: err.Error()}
	}

	converted := flowerrors.FromResolveError(err)
	var flowErr *flowerrors.FlowError
	if flowerrors.IsUserError(converted) && stderrors.As(converted, &flowErr) {
		body := ErrorBody{
			Code:    flowerrors.GetErrorCode(flowErr),
			Message: flowErr.Message,
			Context: flowErr.Context,
		}
		if flowErr.OriginalError != nil {
			if body.Context == nil {
				body.Context = map[string]interface{}{}
			}
			body.Context["detail"] = flowErr.OriginalError.Error()
		}
		return http.StatusBadRequest, body
	}

	return http.StatusInternalServerError, ErrorBody{Code: CodeInternalError, Message: "internal server error"}
}
