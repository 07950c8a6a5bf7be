package errors

import (
	"fmt"
)

// ErrorCode represents a specific error type for engine operations.
type ErrorCode string

const (
	// ErrCodeUnauthorized indicates the caller does not own the resource.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeInvalidTransition indicates a disallowed action status change.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	// ErrCodeInvalidEpisodeState indicates resolving a missing or already
	// resolved episode.
	ErrCodeInvalidEpisodeState ErrorCode = "INVALID_EPISODE_STATE"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeGenerationTimeout indicates content generation exceeded its deadline.
	ErrCodeGenerationTimeout ErrorCode = "GENERATION_TIMEOUT"
	// ErrCodeGenerationFailed indicates content generation failed.
	ErrCodeGenerationFailed ErrorCode = "GENERATION_FAILED"
	// ErrCodeDeliveryFailed indicates the delivery collaborator reported failure.
	ErrCodeDeliveryFailed ErrorCode = "DELIVERY_FAILED"
	// ErrCodeRateLimitExceeded indicates the per-user request rate was exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeNotFound indicates the requested resource does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// EngineError represents a structured error for engine operations.
type EngineError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *EngineError) WithContext(key string, value any) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Convenience constructors for common error types.

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *EngineError {
	return &EngineError{Code: ErrCodeUnauthorized, Message: msg}
}

// InvalidTransition creates an invalid-transition error.
func InvalidTransition(msg string) *EngineError {
	return &EngineError{Code: ErrCodeInvalidTransition, Message: msg}
}

// InvalidEpisodeState creates an invalid-episode-state error.
func InvalidEpisodeState(msg string) *EngineError {
	return &EngineError{Code: ErrCodeInvalidEpisodeState, Message: msg}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *EngineError {
	return &EngineError{Code: ErrCodeInvalidArgument, Message: msg}
}

// GenerationTimeout creates a generation-timeout error.
func GenerationTimeout(cause error) *EngineError {
	return &EngineError{Code: ErrCodeGenerationTimeout, Message: "content generation timed out", Cause: cause}
}

// GenerationFailed creates a generation-failed error.
func GenerationFailed(msg string, cause error) *EngineError {
	return &EngineError{Code: ErrCodeGenerationFailed, Message: msg, Cause: cause}
}

// DeliveryFailed creates a delivery-failed error.
func DeliveryFailed(msg string, cause error) *EngineError {
	return &EngineError{Code: ErrCodeDeliveryFailed, Message: msg, Cause: cause}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *EngineError {
	return &EngineError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// NotFound creates a not-found error.
func NotFound(msg string) *EngineError {
	return &EngineError{Code: ErrCodeNotFound, Message: msg}
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code ErrorCode, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if engineErr, ok := err.(*EngineError); ok {
		return engineErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an EngineError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if engineErr, ok := err.(*EngineError); ok {
		return engineErr.Code
	}
	return defaultCode
}
