package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeMisconfigured   ErrorType = "misconfigured"
	ErrorTypeUpstream        ErrorType = "upstream"
	ErrorTypeUnexpectedShape ErrorType = "unexpected_shape"
	ErrorTypeInternal        ErrorType = "internal"
)

// Public response bodies. Clients match on these exact strings.
const (
	MessageNoImage         = "No image provided"
	MessageInvalidBody     = "Invalid request body"
	MessageBodyTooLarge    = "Request entity too large"
	MessageMissingAPIKey   = "Server missing API Key"
	MessageAnalysisFailed  = "Error analyzing image."
	MessageInternal        = "Internal Server Error"
	upstreamMessagePrefix  = "AI Error: "
	unknownUpstreamMessage = "Unknown"
)

// AppError represents a structured application error.
// Message is the exact plain-text body sent to the client.
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new InvalidInput error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewMisconfiguredError reports a deployment missing required configuration.
func NewMisconfiguredError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeMisconfigured,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewUpstreamError wraps a failed generation call. An empty upstreamMessage
// is reported as "Unknown".
func NewUpstreamError(upstreamMessage string, cause error) *AppError {
	if upstreamMessage == "" {
		upstreamMessage = unknownUpstreamMessage
	}
	return &AppError{
		Type:       ErrorTypeUpstream,
		Message:    upstreamMessagePrefix + upstreamMessage,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewUnexpectedShapeError is used when the upstream succeeded but returned
// no usable candidate text.
func NewUnexpectedShapeError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeUnexpectedShape,
		Message:    MessageAnalysisFailed,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if appErr, ok := As(err); ok {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the client-facing body for err. Errors that are not
// AppErrors never leak their text.
func PublicMessage(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Message
	}
	return MessageAnalysisFailed
}
