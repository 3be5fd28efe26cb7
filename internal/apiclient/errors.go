package apiclient

import (
	"errors"
	"fmt"
)

// Error codes for normalized client failures. Raw transport, storage and
// cipher errors never cross the package boundary; callers branch on these.
const (
	// CodeNetworkError means no connectivity or no response was received.
	CodeNetworkError = "NETWORK_ERROR"
	// CodeAuthRequired means the session could not be refreshed, or a
	// replayed request was still unauthorized. The stored session has been
	// deleted by the time a caller sees this code.
	CodeAuthRequired = "AUTH_REQUIRED"
	// CodeAPIError means the server returned a structured error body.
	CodeAPIError = "API_ERROR"
	// CodeClientError means a local failure unrelated to transport.
	CodeClientError = "CLIENT_ERROR"
)

// Error is the normalized error every Client operation returns on failure.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"status,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes two Errors match when their codes match, so callers can use
// errors.Is with the package sentinels below.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// Sentinels for errors.Is checks against the taxonomy.
var (
	ErrNetwork      = &Error{Code: CodeNetworkError, Message: "network unavailable"}
	ErrAuthRequired = &Error{Code: CodeAuthRequired, Message: "authentication required"}
)

// NewNetworkError creates a NETWORK_ERROR.
func NewNetworkError(message string) *Error {
	return &Error{Code: CodeNetworkError, Message: message}
}

// NewAuthRequiredError creates an AUTH_REQUIRED error.
func NewAuthRequiredError(message string) *Error {
	return &Error{Code: CodeAuthRequired, Message: message}
}

// NewAPIError creates an API_ERROR carrying the HTTP status and any
// structured detail the server returned.
func NewAPIError(status int, message string, details map[string]any) *Error {
	return &Error{Code: CodeAPIError, Message: message, Status: status, Details: details}
}

// NewClientError creates a CLIENT_ERROR.
func NewClientError(message string) *Error {
	return &Error{Code: CodeClientError, Message: message}
}

// CodeOf returns the taxonomy code of err, or empty when err is not a
// normalized client error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
