// Package errors defines application errors that carry their HTTP
// rendering alongside the business meaning.
package errors

import "net/http"

// AppError defines the interface for application-specific errors
type AppError interface {
	error
	HTTPCode() int     // HTTP status code
	ErrorCode() string // Business error code
	Message() string   // User-friendly error message
	Details() string   // Detailed error information (optional)
}

// BaseError is a basic error structure that implements the AppError interface
type BaseError struct {
	httpCode  int
	errorCode string
	message   string
	details   string
}

// NewBaseError creates a new base error
func NewBaseError(httpCode int, errorCode, message, details string) *BaseError {
	return &BaseError{
		httpCode:  httpCode,
		errorCode: errorCode,
		message:   message,
		details:   details,
	}
}

// Error implements the error interface
func (e *BaseError) Error() string {
	return e.message
}

// HTTPCode returns the HTTP status code
func (e *BaseError) HTTPCode() int {
	return e.httpCode
}

// ErrorCode returns the business error code
func (e *BaseError) ErrorCode() string {
	return e.errorCode
}

// Message returns the user-friendly error message
func (e *BaseError) Message() string {
	return e.message
}

// Details returns the detailed error information
func (e *BaseError) Details() string {
	return e.details
}

// Predefined application errors of the storefront core.
var (
	// ErrConversationNotFound is returned for an unknown conversation key.
	ErrConversationNotFound = NewBaseError(http.StatusNotFound,
		"CONVERSATION_NOT_FOUND", "No such conversation", "")

	// ErrHistoryUnavailable is returned when the chat history backend
	// could not be reached.
	ErrHistoryUnavailable = NewBaseError(http.StatusServiceUnavailable,
		"HISTORY_FAILED", "Could not load chat history", "")

	// ErrMessageUndeliverable is returned when an accepted message could
	// not be published; the optimistic entry has been rolled back.
	ErrMessageUndeliverable = NewBaseError(http.StatusServiceUnavailable,
		"SEND_FAILED", "Message could not be delivered", "")

	// ErrRefreshFailed is returned when the authoritative notification
	// fetch could not be completed.
	ErrRefreshFailed = NewBaseError(http.StatusServiceUnavailable,
		"REFRESH_FAILED", "Could not refresh notifications", "")
)
