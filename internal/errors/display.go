package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

func asFlowError(err error) (*FlowError, bool) {
	var flowErr *FlowError
	if stderrors.As(err, &flowErr) {
		return flowErr, true
	}
	return nil, false
}

// DisplayErrorSummary provides a brief summary of the error for logs
func DisplayErrorSummary(err error) string {
	if flowErr, ok := asFlowError(err); ok {
		return fmt.Sprintf("%s-%s: %s", flowErr.Category, flowErr.Code, flowErr.Message)
	}

	errStr := err.Error()
	if len(errStr) > 100 {
		return errStr[:97] + "..."
	}
	return errStr
}

// FormatForCLI formats an error for command-line display
func FormatForCLI(err error) string {
	flowErr, ok := asFlowError(err)
	if !ok {
		return fmt.Sprintf("\nError: %v\n", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\n%s Error [%s-%s]\n", categoryTitle(flowErr.Category), flowErr.Category, flowErr.Code))
	sb.WriteString(fmt.Sprintf("  %s\n", flowErr.Message))

	if flowErr.Operation != "" {
		sb.WriteString(fmt.Sprintf("\nFailed Operation: %s\n", flowErr.Operation))
	}

	if len(flowErr.Context) > 0 {
		sb.WriteString("\nDetails:\n")
		for _, key := range flowErr.contextKeys() {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", key, flowErr.Context[key]))
		}
	}

	if len(flowErr.Troubleshooting) > 0 {
		sb.WriteString("\nHow to resolve:\n")
		for i, step := range flowErr.Troubleshooting {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, step))
		}
	}

	if flowErr.OriginalError != nil {
		sb.WriteString(fmt.Sprintf("\nTechnical details: %v\n", flowErr.OriginalError))
	}

	return sb.String()
}

// IsUserError determines if an error is due to user input or configuration
func IsUserError(err error) bool {
	if flowErr, ok := asFlowError(err); ok {
		switch flowErr.Category {
		case ErrorCategoryResolve, ErrorCategoryValidation, ErrorCategoryTaskFile, ErrorCategoryConfiguration:
			return true
		}
	}
	return false
}

// GetErrorCode extracts the error code for reporting
func GetErrorCode(err error) string {
	if flowErr, ok := asFlowError(err); ok {
		return fmt.Sprintf("%s-%s", flowErr.Category, flowErr.Code)
	}
	return "UNKNOWN"
}

func categoryTitle(c ErrorCategory) string {
	s := strings.ToLower(string(c))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
