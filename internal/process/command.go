package process

import "time"

// Command is one media-tool invocation. The binary is resolved via PATH; the
// working directory and environment are inherited from the service process,
// since ffprobe and ffmpeg take everything they need as arguments.
type Command struct {
	// Binary is the tool to run (e.g. "ffmpeg").
	Binary string
	// Args are the command-line arguments.
	Args []string
	// GracePeriod is how long a cancelled tool gets between SIGTERM and
	// SIGKILL. Zero means the package default.
	GracePeriod time.Duration
}
