package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies gateway failures for logging and metrics.
type ErrorCode string

const (
	ErrCodeDuplicate          ErrorCode = "DUPLICATE"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeResourceExhausted  ErrorCode = "RESOURCE_EXHAUSTED"
	ErrCodeLinkFailure        ErrorCode = "LINK_FAILURE"
	ErrCodeParse              ErrorCode = "PARSE_ERROR"
	ErrCodeNegotiation        ErrorCode = "NEGOTIATION_FAILURE"
	ErrCodeTransport          ErrorCode = "TRANSPORT_ERROR"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError carries a classification code and optional structured context.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair to the error.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates an AppError with the given code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Context: make(map[string]interface{})}
}

// Wrap annotates an existing error with a code.
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err, Context: make(map[string]interface{})}
}

func NewDuplicateError(message string) *AppError {
	return New(ErrCodeDuplicate, message)
}

func NewNotFoundError(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func NewResourceExhaustedError(message string) *AppError {
	return New(ErrCodeResourceExhausted, message)
}

func NewLinkFailureError(message string) *AppError {
	return New(ErrCodeLinkFailure, message)
}

func NewParseError(message string) *AppError {
	return New(ErrCodeParse, message)
}

func NewNegotiationError(message string) *AppError {
	return New(ErrCodeNegotiation, message)
}

func NewInternalError(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// CodeOf extracts the classification code from an error chain, or
// ErrCodeInternal when the chain carries no AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether the error chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
