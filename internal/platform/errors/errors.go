// Package errors provides structured errors for the gateway: a small taxonomy
// of failure classes, context fields for logging and HTTP status code mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error for metrics, logging and response formatting.
type ErrorType string

const (
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeNotFound indicates resource not found (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeAuthentication indicates a request whose origin could not be verified (HTTP 403)
	TypeAuthentication ErrorType = "authentication"
	// TypeMalformedEvent indicates a webhook event the gateway does not understand (HTTP 400)
	TypeMalformedEvent ErrorType = "malformed_event"
	// TypePlatform indicates a non-2xx answer from the messaging platform (HTTP 502)
	TypePlatform ErrorType = "platform"
	// TypeTransport indicates a network failure talking to the messaging platform (HTTP 502)
	TypeTransport ErrorType = "transport"
	// TypeInternal indicates server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation, TypeMalformedEvent:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeAuthentication:
		return http.StatusForbidden
	case TypePlatform, TypeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    t,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

func ValidationError(message string) *Error {
	return newError(TypeValidation, message, nil)
}

func NotFoundError(message string) *Error {
	return newError(TypeNotFound, message, nil)
}

// AuthenticationError marks a request rejected because its signature did not verify.
func AuthenticationError(message string, cause error) *Error {
	return newError(TypeAuthentication, message, cause)
}

// MalformedEventError marks an event or change the gateway cannot route.
func MalformedEventError(message string) *Error {
	return newError(TypeMalformedEvent, message, nil)
}

// PlatformError wraps a non-2xx platform response.
func PlatformError(message string, status int) *Error {
	return newError(TypePlatform, message, nil).WithContext("status", status)
}

// TransportError wraps a network-level failure of an outbound call.
func TransportError(message string, cause error) *Error {
	return newError(TypeTransport, message, cause)
}

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// WithContext adds context fields to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged.
// Otherwise wraps it as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}

// IsType reports whether err carries a structured error of type t.
func IsType(err error, t ErrorType) bool {
	var structuredErr *Error
	return errors.As(err, &structuredErr) && structuredErr.Type == t
}
