// Package errors provides structured error types for pxindex.
// All errors include a category, code and message so the command can
// report which step failed and map every failure to an exit status.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the kind of failure.
type ErrorCategory string

const (
	ErrCategoryUsage        ErrorCategory = "USAGE"
	ErrCategoryPrecondition ErrorCategory = "PRECONDITION"
	ErrCategoryTable        ErrorCategory = "TABLE"
	ErrCategoryAllocation   ErrorCategory = "ALLOCATION"
	ErrCategoryInternal     ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Usage codes
	CodeMissingOutput = "MISSING_OUTPUT"
	CodeMissingInput  = "MISSING_INPUT"
	CodeInvalidOption = "INVALID_OPTION"

	// Precondition codes
	CodeNoPrimaryKeys         = "NO_PRIMARY_KEYS"
	CodeInvalidSecondaryField = "INVALID_SECONDARY_FIELD"
	CodeUnresolvedField       = "UNRESOLVED_FIELD"
	CodeUnclassifiedFileType  = "UNCLASSIFIED_FILE_TYPE"

	// Table codes
	CodeOpenFailed    = "OPEN_FAILED"
	CodeCreateFailed  = "CREATE_FAILED"
	CodeWriteFailed   = "WRITE_FAILED"
	CodeCloseFailed   = "CLOSE_FAILED"
	CodePublishFailed = "PUBLISH_FAILED"

	// Allocation codes
	CodeOutOfMemory = "OUT_OF_MEMORY"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
	CodeCanceled   = "CANCELED"
)

// PxError is the structured error type used throughout the module.
type PxError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *PxError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PxError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PxError) Is(target error) bool {
	var t *PxError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PxError.
func New(category ErrorCategory, code, message string) *PxError {
	return &PxError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new PxError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *PxError {
	return &PxError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *PxError) WithDetails(details map[string]interface{}) *PxError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PxError.
func GetCategory(err error) ErrorCategory {
	var pe *PxError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a PxError.
func GetCode(err error) string {
	var pe *PxError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsUsage reports whether err is a usage error, for which the command
// prints its usage text.
func IsUsage(err error) bool {
	return GetCategory(err) == ErrCategoryUsage
}

// ExitCode maps an error to the process exit status. Every failure exits
// with 1; nil exits with 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// Convenience constructors for common errors.

func NewUsageError(code, message string) *PxError {
	return New(ErrCategoryUsage, code, message)
}

func NewPreconditionError(code, message string) *PxError {
	return New(ErrCategoryPrecondition, code, message)
}

func NewTableError(code, message string, cause error) *PxError {
	return Wrap(ErrCategoryTable, code, message, cause)
}

func NewAllocationError(message string, cause error) *PxError {
	return Wrap(ErrCategoryAllocation, CodeOutOfMemory, message, cause)
}

func NewInternalError(message string, cause error) *PxError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
