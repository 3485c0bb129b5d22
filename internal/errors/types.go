package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a failure class.
type ErrorCode string

const (
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"

	// ingestion
	ErrCodeUnprocessable     ErrorCode = "UNPROCESSABLE_DOCUMENT"
	ErrCodeInvalidFileFormat ErrorCode = "INVALID_FILE_FORMAT"
	ErrCodeFileTooLarge      ErrorCode = "FILE_TOO_LARGE"
	ErrCodeIndexingFailed    ErrorCode = "INDEXING_FAILED"

	// retrieval and generation
	ErrCodeNoContext ErrorCode = "NO_CONTEXT"

	// backends
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeDatabaseError   ErrorCode = "DATABASE_ERROR"
)

// ErrorType classifies an AppError.
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// Sentinels. Compare with errors.Is; matching is by code so a sentinel
// matches any AppError carrying the same code.
var (
	ErrUnprocessable      = NewBusinessError(ErrCodeUnprocessable, "document could not be processed")
	ErrUnsupportedType    = NewBusinessError(ErrCodeInvalidFileFormat, "file type not supported")
	ErrFileTooLarge       = NewBusinessError(ErrCodeFileTooLarge, "file exceeds size limit")
	ErrIndexingFailed     = NewExternalError(ErrCodeIndexingFailed, "document could not be indexed")
	ErrNoContext          = NewBusinessError(ErrCodeNoContext, "no relevant content found for notebook")
	ErrBackendUnavailable = NewExternalError(ErrCodeExternalService, "backend unavailable")
	ErrInvalidInput       = NewValidationError("invalid input")
)

// AppError is the error value crossing package boundaries.
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Type     ErrorType   `json:"type"`
	HTTPCode int         `json:"-"`
	Details  interface{} `json:"details,omitempty"`
	Cause    error       `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithDetails returns a copy of e carrying details.
func (e *AppError) WithDetails(details interface{}) *AppError {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy of e wrapping cause. Sentinels stay untouched.
func (e *AppError) WithCause(cause error) *AppError {
	c := *e
	c.Cause = cause
	return &c
}

// NewSystemError wraps an infrastructure failure.
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// NewBusinessError builds a domain error with a code.
func NewBusinessError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeBusiness,
		HTTPCode: getHTTPCodeForError(code),
	}
}

// NewExternalError wraps a failing dependency.
func NewExternalError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
	}
}

// NewValidationError reports a field that failed validation.
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidInput,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewInvalidInputError reports malformed caller input.
func NewInvalidInputError(field, reason string) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("invalid input for field '%s': %s", field, reason),
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

func getHTTPCodeForError(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeUnprocessable, ErrCodeInvalidFileFormat:
		return http.StatusUnprocessableEntity
	case ErrCodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeNoContext:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// GetAppError unwraps err to an AppError, wrapping unknown errors as system
// errors.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewSystemError(ErrCodeInternalServer, "internal server error").WithCause(err)
}
