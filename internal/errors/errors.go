// Package errors provides structured error types for the replay and stomp
// tools. All errors include a category, code, message, and exit code for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by failure domain.
type ErrorCategory string

const (
	ErrCategoryUsage    ErrorCategory = "USAGE"
	ErrCategoryParse    ErrorCategory = "PARSE"
	ErrCategoryCapacity ErrorCategory = "CAPACITY"
	ErrCategoryTarget   ErrorCategory = "TARGET"
	ErrCategoryIO       ErrorCategory = "IO"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Usage codes
	CodeBadInvocation = "BAD_INVOCATION"

	// Parse codes
	CodeTerminalInput     = "TERMINAL_INPUT"
	CodeMissingField      = "MISSING_FIELD"
	CodeIllegalValue      = "ILLEGAL_VALUE"
	CodeInvalidValue      = "INVALID_VALUE"
	CodeTimeRegression    = "TIME_REGRESSION"
	CodeSourceUnavailable = "SOURCE_UNAVAILABLE"

	// Capacity codes
	CodeOffsetBeyondEnd = "OFFSET_BEYOND_END"
	CodeUnclampableSize = "UNCLAMPABLE_SIZE"
	CodePoolExhausted   = "POOL_EXHAUSTED"

	// Target codes
	CodeOpenFailed      = "OPEN_FAILED"
	CodeBufferedDevice  = "BUFFERED_DEVICE"
	CodeUnsupportedType = "UNSUPPORTED_TYPE"
	CodeTargetTooSmall  = "TARGET_TOO_SMALL"

	// I/O codes
	CodeShortTransfer  = "SHORT_TRANSFER"
	CodeTransferFailed = "TRANSFER_FAILED"
	CodeRecordFailed   = "RECORD_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Process exit codes. Usage errors exit 2, other fatal errors exit 1,
// recovered I/O warnings do not terminate the run.
const (
	ExitOK    = 0
	ExitFatal = 1
	ExitUsage = 2
)

// ToshError is the structured error type used throughout the tools.
type ToshError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
	ExitCode int
}

// Error returns a formatted error string.
func (e *ToshError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ToshError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *ToshError) Is(target error) bool {
	var t *ToshError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new ToshError.
func New(category ErrorCategory, code, message string) *ToshError {
	return &ToshError{
		Category: category,
		Code:     code,
		Message:  message,
		ExitCode: exitCode(category),
	}
}

// Wrap creates a new ToshError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *ToshError {
	return &ToshError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
		ExitCode: exitCode(category),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *ToshError) WithDetails(details map[string]interface{}) *ToshError {
	cp := *e
	cp.Details = details
	return &cp
}

// ExitCode extracts the process exit code from an error chain. A nil
// error maps to ExitOK, a non-ToshError to ExitFatal.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var te *ToshError
	if errors.As(err, &te) {
		return te.ExitCode
	}
	return ExitFatal
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a ToshError.
func GetCategory(err error) ErrorCategory {
	var te *ToshError
	if errors.As(err, &te) {
		return te.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a ToshError.
func GetCode(err error) string {
	var te *ToshError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// exitCode maps an error category to the exit status the tools use.
func exitCode(category ErrorCategory) int {
	switch category {
	case ErrCategoryUsage:
		return ExitUsage
	case ErrCategoryIO:
		return ExitOK
	default:
		return ExitFatal
	}
}

// Convenience constructors for common errors.

func NewUsageError(message string) *ToshError {
	return New(ErrCategoryUsage, CodeBadInvocation, message)
}

func NewParseError(code, message string) *ToshError {
	return New(ErrCategoryParse, code, message)
}

func NewCapacityError(code, message string) *ToshError {
	return New(ErrCategoryCapacity, code, message)
}

func NewTargetError(code, message string, cause error) *ToshError {
	return Wrap(ErrCategoryTarget, code, message, cause)
}

func NewIOError(code, message string, cause error) *ToshError {
	return Wrap(ErrCategoryIO, code, message, cause)
}

func NewInternalError(message string, cause error) *ToshError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
