// Package apperrors provides unified error handling for the transcription
// service. It implements structured error types with machine-readable codes,
// HTTP status mapping, and retryable detection.
package apperrors
