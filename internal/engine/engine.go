package engine

import (
	"context"
)

// Devices the engine can be bound to.
const (
	DeviceGPU = "gpu"
	DeviceCPU = "cpu"
)

// Variants lists the model sizes the engine accepts, smallest first.
var Variants = []string{"tiny", "base", "small", "medium", "large-v1", "large-v2", "large-v3"}

// Handle describes the loaded model: its size variant, the compute device it
// was actually bound to, and the numeric precision in use. Created once per
// process; shared read-only by all inferences.
type Handle struct {
	Variant     string `json:"variant"`
	Device      string `json:"device"`
	ComputeType string `json:"compute_type"`
}

// LoadRequest asks a backend to load a model variant on a device.
type LoadRequest struct {
	Variant     string `json:"model"`
	Device      string `json:"device"`
	ComputeType string `json:"compute_type"`
}

// TranscribeRequest asks a backend to transcribe one normalized audio file.
type TranscribeRequest struct {
	// AudioPath points at mono 16 kHz PCM WAV.
	AudioPath string
	// Language is an optional hint (e.g. "en"); empty means auto-detect.
	Language string
}

// Segment is a time-aligned portion of a transcript.
type Segment struct {
	// Start is the segment start time in seconds.
	Start float64 `json:"start"`
	// End is the segment end time in seconds.
	End float64 `json:"end"`
	// Text is the transcribed text for this segment.
	Text string `json:"text"`
}

// Transcript holds the result of one inference.
type Transcript struct {
	// Segments contains time-aligned transcript segments in chronological order.
	Segments []Segment `json:"segments,omitempty"`
	// Language is the detected or specified language.
	Language string `json:"language,omitempty"`
	// Duration is the audio duration in seconds.
	Duration float64 `json:"duration,omitempty"`
}

// Backend is the interface recognition engines must implement.
type Backend interface {
	// Name identifies the backend for logging.
	Name() string

	// IsAvailable reports whether the backend can serve requests.
	IsAvailable(ctx context.Context) bool

	// Load loads a model variant on a device and reports the binding that
	// actually took effect.
	Load(ctx context.Context, req LoadRequest) (*Handle, error)

	// Transcribe runs inference on a normalized audio file. Synchronous; may
	// take seconds to minutes proportional to audio duration.
	Transcribe(ctx context.Context, req TranscribeRequest) (*Transcript, error)
}
