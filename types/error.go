package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the module.
type ErrorCode string

// Transport error codes. All of them are terminal for an extraction run.
const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrForbidden       ErrorCode = "FORBIDDEN"
	ErrRateLimited     ErrorCode = "RATE_LIMITED"
	ErrQuotaExceeded   ErrorCode = "QUOTA_EXCEEDED"
	ErrModelOverloaded ErrorCode = "MODEL_OVERLOADED"
	ErrUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError   ErrorCode = "UPSTREAM_ERROR"
)

// Stream decoding error codes
const (
	ErrStreamRead        ErrorCode = "STREAM_READ"
	ErrStreamLineTooLong ErrorCode = "STREAM_LINE_TOO_LONG"
)

// Extraction error codes
const (
	ErrFragmentParse    ErrorCode = "FRAGMENT_PARSE"
	ErrExtractionEmpty  ErrorCode = "EXTRACTION_EMPTY"
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCallbackFailed   ErrorCode = "CALLBACK_FAILED"
)

// transportCodes 是不会被编排器重试的传输层错误码集合。
var transportCodes = map[ErrorCode]struct{}{
	ErrInvalidRequest:    {},
	ErrUnauthorized:      {},
	ErrForbidden:         {},
	ErrRateLimited:       {},
	ErrQuotaExceeded:     {},
	ErrModelOverloaded:   {},
	ErrUpstreamTimeout:   {},
	ErrUpstreamError:     {},
	ErrStreamRead:        {},
	ErrStreamLineTooLong: {},
}

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the upstream condition as transient.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether the upstream condition behind err is transient.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}

// IsTransportFailure reports whether err is a connection, HTTP or stream read
// failure.
func IsTransportFailure(err error) bool {
	_, ok := transportCodes[GetErrorCode(err)]
	return ok
}
