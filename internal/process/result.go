package process

import "time"

// Result captures what a finished tool invocation produced.
type Result struct {
	// Stdout is the captured standard output (ffprobe's JSON lands here).
	Stdout []byte
	// Stderr is the captured standard error (ffmpeg reports errors here).
	Stderr []byte
	// ExitCode is the tool's exit code, or -1 when it never ran or was
	// killed before exiting.
	ExitCode int
	// Duration is the wall-clock run time.
	Duration time.Duration
}
