// Package engine owns the lifecycle of the loaded speech-recognition model:
// device resolution, idempotent loading, and the single inference entry point
// shared by all jobs. The model itself is an opaque capability behind the
// Backend interface; the bundled implementation talks to a faster-whisper
// sidecar over HTTP.
package engine
