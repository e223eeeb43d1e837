package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the code of the outermost AppError in the chain, otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeNumericalError     = "NUMERICAL_ERROR"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeExternalDependency = "EXTERNAL_DEPENDENCY"
	CodeFitFailed          = "FIT_FAILED"
	CodeInvalidInput       = "INVALID_INPUT"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

// Validation builds a VALIDATION_ERROR whose cause is the given sentinel.
func Validation(sentinel error, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    CodeValidationError,
		Message: fmt.Sprintf(format, args...),
		Cause:   sentinel,
	}
}

// NotFound builds a NOT_FOUND error for an unknown key.
func NotFound(sentinel error, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf(format, args...),
		Cause:   sentinel,
	}
}

// Numerical builds a NUMERICAL_ERROR for non-stochastic rows and invalid weights.
func Numerical(sentinel error, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    CodeNumericalError,
		Message: fmt.Sprintf(format, args...),
		Cause:   sentinel,
	}
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

// ExternalDependency reports a missing optional runtime or package.
func ExternalDependency(dependency string, cause error) *AppError {
	return &AppError{
		Code:    CodeExternalDependency,
		Message: fmt.Sprintf("%s is unavailable", dependency),
		Cause:   cause,
	}
}

// FitFailed wraps a model fitting failure with gene and lineage context.
func FitFailed(model, gene, lineage string, cause error) *AppError {
	return &AppError{
		Code:    CodeFitFailed,
		Message: fmt.Sprintf("unable to fit %s for gene %q in lineage %q", model, gene, lineage),
		Cause:   cause,
	}
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}
