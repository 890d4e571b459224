package types

import "fmt"

// ErrorCode represents a unified error code across SubLLM.
type ErrorCode string

// Routing error codes
const (
	ErrUnknownBackend    ErrorCode = "UNKNOWN_BACKEND"
	ErrUnknownModelAlias ErrorCode = "UNKNOWN_MODEL_ALIAS"
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
)

// Backend execution error codes
const (
	ErrSpawnFailure      ErrorCode = "SPAWN_FAILURE"
	ErrAbnormalExit      ErrorCode = "ABNORMAL_EXIT"
	ErrMalformedOutput   ErrorCode = "MALFORMED_OUTPUT"
	ErrBrokenPipe        ErrorCode = "BROKEN_PIPE"
	ErrTimeout           ErrorCode = "TIMEOUT"
	ErrAuthNotConfigured ErrorCode = "AUTH_NOT_CONFIGURED"
	ErrPartialStream     ErrorCode = "PARTIAL_STREAM_ERROR"
	ErrInternalError     ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and request context.
// Backend and Model identify the originating request when known; lower layers
// leave them empty and the router fills them in without changing the code.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Backend   string    `json:"backend,omitempty"`
	Model     string    `json:"model,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
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

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithBackend sets the backend name.
func (e *Error) WithBackend(backend string) *Error {
	e.Backend = backend
	return e
}

// WithModel sets the model alias.
func (e *Error) WithModel(model string) *Error {
	e.Model = model
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
