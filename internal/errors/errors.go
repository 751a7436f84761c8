package errors

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// ErrorType tags a product-level failure. The pipeline attaches exactly one
// of these to every failed measurement.
type ErrorType string

const (
	ErrorTypeAllURLsInvalid      ErrorType = "all_urls_invalid"
	ErrorTypeImageDownloadFailed ErrorType = "image_download_failed"
	ErrorTypeInvalidImageFormat  ErrorType = "invalid_image_format"
	ErrorTypeRateLimited         ErrorType = "rate_limited"
	ErrorTypeVisionModel         ErrorType = "vision_model_error"
	ErrorTypeParse               ErrorType = "parse_error"
	ErrorTypeUnknown             ErrorType = "unknown_error"

	// Transport-level types for request handling, outside the
	// per-product taxonomy.
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeTimeout    ErrorType = "timeout"
)

// AppError represents a structured application error
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

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    message,
		StatusCode: http.StatusGatewayTimeout,
		Cause:      cause,
	}
}

// NewRateLimitError creates an error for a rate-limited vision call
func NewRateLimitError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimited,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Cause:      cause,
	}
}

// NewVisionModelError creates an error for a non-rate-limit model failure
func NewVisionModelError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeVisionModel,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRateLimitShaped reports whether an error message looks like an upstream
// rate limit. Classification is purely textual; the vision service exposes
// no structured error codes.
func IsRateLimitShaped(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate", "quota", "limit"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var retryDelayPattern = regexp.MustCompile(`(?i)retry in (\d+)`)

// ParseRetryDelay extracts a retry-after duration in seconds from a
// rate-limit error message (e.g. "Please retry in 37.395680969s").
// Returns 60 when the message carries no parseable delay.
func ParseRetryDelay(message string) int {
	if m := retryDelayPattern.FindStringSubmatch(message); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil {
			return secs
		}
	}
	return 60
}
