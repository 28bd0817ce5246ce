package apperrors

import (
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Domain Error Constructors ---

// PayloadTooLarge creates a new AppError for a payload exceeding the admission limit.
func PayloadTooLarge(size, limit int64) *AppError {
	return &AppError{
		Code: ErrCodePayloadTooLarge, Message: "payload too large",
		HTTPStatus: http.StatusRequestEntityTooLarge, Retryable: false,
		Details: map[string]any{"size_bytes": size, "limit_bytes": limit},
	}
}

// UnsupportedFormat creates a new AppError for media in an unrecognized format.
func UnsupportedFormat(detail string) *AppError {
	return &AppError{
		Code: ErrCodeUnsupportedFormat, Message: "unsupported media format",
		HTTPStatus: http.StatusUnsupportedMediaType, Retryable: false,
		Details: map[string]any{"detail": detail},
	}
}

// CorruptMedia creates a new AppError for media that cannot be decoded.
func CorruptMedia(detail string) *AppError {
	return &AppError{
		Code: ErrCodeCorruptMedia, Message: "corrupt media",
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
		Details: map[string]any{"detail": detail},
	}
}

// DeviceUnavailable creates a new AppError for a compute device that cannot be initialized.
func DeviceUnavailable(device string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeDeviceUnavailable, Message: fmt.Sprintf("compute device %q unavailable", device),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: false,
		Details: map[string]any{"device": device}, Cause: cause,
	}
}

// ModelLoadFailed creates a new AppError for a model that failed to load.
func ModelLoadFailed(variant string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeModelLoadFailed, Message: fmt.Sprintf("failed to load model %q", variant),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: false,
		Details: map[string]any{"model": variant}, Cause: cause,
	}
}

// InferenceFailed creates a new AppError for an engine failure during transcription.
func InferenceFailed(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInferenceFailed, Message: "transcription failed. Please try again.",
		HTTPStatus: http.StatusBadGateway, Retryable: true, Cause: cause,
	}
}

// TranscriptionTimeout creates a new AppError for a job exceeding its wall-clock budget.
func TranscriptionTimeout(budget string) *AppError {
	return &AppError{
		Code: ErrCodeTranscriptionTimeout, Message: "transcription timed out. Please try again.",
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"budget": budget},
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// Unauthorized creates a new AppError for unauthorized access.
func Unauthorized(reason string) *AppError {
	if reason == "" {
		reason = "Authentication required."
	}
	return &AppError{
		Code: ErrCodeUnauthorized, Message: reason,
		HTTPStatus: http.StatusUnauthorized, Retryable: false,
	}
}

// Internal creates a new AppError for an internal server error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred. Please try again.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}
