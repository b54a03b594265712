package api

import "fmt"

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeUnauthenticated  ErrorType = "unauthenticated"
	ErrorTypePermissionDenied ErrorType = "permission_denied"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeTooManyRequests  ErrorType = "too_many_requests"
	ErrorTypeServerError      ErrorType = "server_error"
	ErrorTypeBadGateway       ErrorType = "bad_gateway"
)

// APIError represents a structured API error with type, code and message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewUnauthenticatedError creates an APIError for requests without a usable credential.
func NewUnauthenticatedError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeUnauthenticated,
		Message: message,
	}
}

// NewPermissionDeniedError creates an APIError for requests whose credential
// was present but not accepted.
func NewPermissionDeniedError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypePermissionDenied,
		Message: message,
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTooManyRequests,
		Message: message,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewBadGatewayError creates an APIError for upstream failures.
func NewBadGatewayError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeBadGateway,
		Message: message,
	}
}
