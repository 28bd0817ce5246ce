package apperrors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Admission and media errors (fail fast, never retryable)
const (
	// ErrCodePayloadTooLarge indicates the declared payload exceeds the ceiling.
	ErrCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrCodeUnsupportedFormat indicates the media container or codec is not recognized.
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	// ErrCodeCorruptMedia indicates the media could not be decoded or has no content.
	ErrCodeCorruptMedia ErrorCode = "CORRUPT_MEDIA"
)

// Engine lifecycle errors (startup-fatal)
const (
	// ErrCodeDeviceUnavailable indicates the configured compute device could not be initialized.
	ErrCodeDeviceUnavailable ErrorCode = "DEVICE_UNAVAILABLE"
	// ErrCodeModelLoadFailed indicates the recognition model could not be loaded.
	ErrCodeModelLoadFailed ErrorCode = "MODEL_LOAD_FAILED"
)

// Per-request engine errors (recoverable, caller may retry)
const (
	// ErrCodeInferenceFailed indicates the engine failed while transcribing.
	ErrCodeInferenceFailed ErrorCode = "INFERENCE_FAILED"
	// ErrCodeTranscriptionTimeout indicates the job exceeded its wall-clock budget.
	ErrCodeTranscriptionTimeout ErrorCode = "TRANSCRIPTION_TIMEOUT"
)

// Gateway errors
const (
	// ErrCodeInvalidInput indicates the request is malformed.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeUnauthorized indicates the request is unauthorized.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeInferenceFailed:      true,
	ErrCodeTranscriptionTimeout: true,
	ErrCodePayloadTooLarge:      false,
	ErrCodeUnsupportedFormat:    false,
	ErrCodeCorruptMedia:         false,
	ErrCodeDeviceUnavailable:    false,
	ErrCodeModelLoadFailed:      false,
	ErrCodeInvalidInput:         false,
	ErrCodeUnauthorized:         false,
	ErrCodeInternal:             false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

var fatalCodes = map[ErrorCode]bool{
	ErrCodeDeviceUnavailable: true,
	ErrCodeModelLoadFailed:   true,
}

// IsFatalCode returns true if the error code must prevent the service from
// accepting traffic at all.
func IsFatalCode(code ErrorCode) bool {
	return fatalCodes[code]
}
