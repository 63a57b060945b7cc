package errors

import (
	"fmt"
	"sort"
	"strings"
)

// ErrorCategory represents the category of error
type ErrorCategory string

const (
	// ErrorCategoryResolve represents dependency resolution errors
	ErrorCategoryResolve ErrorCategory = "RESOLVE"
	// ErrorCategoryValidation represents task definition errors
	ErrorCategoryValidation ErrorCategory = "VALIDATION"
	// ErrorCategoryTaskFile represents task file read or parse errors
	ErrorCategoryTaskFile ErrorCategory = "TASKFILE"
	// ErrorCategoryExecution represents task execution errors
	ErrorCategoryExecution ErrorCategory = "EXECUTION"
	// ErrorCategoryConfiguration represents configuration errors
	ErrorCategoryConfiguration ErrorCategory = "CONFIGURATION"
	// ErrorCategoryStorage represents run store errors
	ErrorCategoryStorage ErrorCategory = "STORAGE"
)

// FlowError represents a structured error with context and troubleshooting information
type FlowError struct {
	Category        ErrorCategory
	Code            string
	Message         string
	Operation       string
	Context         map[string]interface{}
	Troubleshooting []string
	OriginalError   error
}

// Error implements the error interface
func (e *FlowError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s-%s: %s", e.Category, e.Code, e.Message))

	if e.Operation != "" {
		sb.WriteString(fmt.Sprintf("\nOperation: %s", e.Operation))
	}

	if len(e.Context) > 0 {
		sb.WriteString("\nContext:")
		for _, key := range e.contextKeys() {
			sb.WriteString(fmt.Sprintf("\n  %s: %v", key, e.Context[key]))
		}
	}

	if len(e.Troubleshooting) > 0 {
		sb.WriteString("\nTroubleshooting:")
		for i, step := range e.Troubleshooting {
			sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, step))
		}
	}

	if e.OriginalError != nil {
		sb.WriteString(fmt.Sprintf("\nUnderlying error: %v", e.OriginalError))
	}

	return sb.String()
}

// Unwrap returns the original error for error chain compatibility
func (e *FlowError) Unwrap() error {
	return e.OriginalError
}

// NewFlowError creates a new error with the specified parameters
func NewFlowError(category ErrorCategory, code, message, operation string) *FlowError {
	return &FlowError{
		Category:        category,
		Code:            code,
		Message:         message,
		Operation:       operation,
		Context:         make(map[string]interface{}),
		Troubleshooting: []string{},
	}
}

// WithContext adds context information to the error
func (e *FlowError) WithContext(key string, value interface{}) *FlowError {
	e.Context[key] = value
	return e
}

// WithTroubleshooting adds troubleshooting steps to the error
func (e *FlowError) WithTroubleshooting(steps ...string) *FlowError {
	e.Troubleshooting = append(e.Troubleshooting, steps...)
	return e
}

// WithOriginalError adds the original error
func (e *FlowError) WithOriginalError(err error) *FlowError {
	e.OriginalError = err
	return e
}

func (e *FlowError) contextKeys() []string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
