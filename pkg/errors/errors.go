package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeAuth         ErrorType = "auth"
	ErrorTypeAccessDenied ErrorType = "access_denied"
	ErrorTypeParsing      ErrorType = "parsing"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeServerError  ErrorType = "server_error"
	ErrorTypeUnknown      ErrorType = "unknown"
)

// Error represents an upstream or domain error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("%s error: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, code int, message string) *Error {
	return &Error{Type: t, Code: code, Message: message}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, err error, message string) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// TypeOf returns the type of the first *Error in err's chain, or
// ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given type.
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsRetryable checks if an error type should be retried locally.
// Rate limiting is surfaced to the user rather than retried.
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch {
	case statusCode == 0:
		return true
	case statusCode >= 500:
		return true
	default:
		return false
	}
}

// UserMessage renders err the way it is shown to a user polling a session.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !stderrors.As(err, &e) {
		return err.Error()
	}
	switch e.Type {
	case ErrorTypeNotFound, ErrorTypeAccessDenied:
		return e.Message
	case ErrorTypeRateLimit:
		return "Rate limited by Instagram. Please wait a few minutes and try again."
	case ErrorTypeNetwork, ErrorTypeServerError:
		return "Connection error: " + e.Message
	case ErrorTypeAuth:
		return "Instagram rejected the request: " + e.Message + ". Check your login credentials."
	default:
		return e.Message
	}
}
