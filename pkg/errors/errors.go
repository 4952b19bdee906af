package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown       ErrorCode = "UNKNOWN"
	ErrInternal      ErrorCode = "INTERNAL"
	ErrInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Rule file errors
	ErrMalformedRule ErrorCode = "MALFORMED_RULE"

	// Resolution errors
	ErrKeyUnresolved  ErrorCode = "KEY_UNRESOLVED"
	ErrNoResolution   ErrorCode = "NO_RESOLUTION"
	ErrAmbiguousBound ErrorCode = "AMBIGUOUS_BOUND"

	// OS support errors
	ErrUnsupportedOS ErrorCode = "UNSUPPORTED_OS"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"

	// Source and cache errors
	ErrSourceLoad  ErrorCode = "SOURCE_LOAD"
	ErrSourceParse ErrorCode = "SOURCE_PARSE"
	ErrCacheRead   ErrorCode = "CACHE_READ"
	ErrCacheWrite  ErrorCode = "CACHE_WRITE"
)

// XylemError represents a structured error with code and details
type XylemError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *XylemError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *XylemError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *XylemError) Is(target error) bool {
	var targetErr *XylemError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new XylemError with the given code and message
func New(code ErrorCode, message string) *XylemError {
	return &XylemError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new XylemError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *XylemError {
	return &XylemError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a XylemError
func Wrap(err error, code ErrorCode, message string) *XylemError {
	if err == nil {
		return nil
	}
	return &XylemError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *XylemError {
	if err == nil {
		return nil
	}
	return &XylemError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *XylemError) WithDetail(key string, value interface{}) *XylemError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithDetails adds multiple details to the error
func (e *XylemError) WithDetails(details map[string]interface{}) *XylemError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var xylemErr *XylemError
	if errors.As(err, &xylemErr) {
		return xylemErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a XylemError
func GetErrorCode(err error) ErrorCode {
	var xylemErr *XylemError
	if errors.As(err, &xylemErr) {
		return xylemErr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not a XylemError
func GetErrorDetails(err error) map[string]interface{} {
	var xylemErr *XylemError
	if errors.As(err, &xylemErr) {
		return xylemErr.Details
	}
	return nil
}
