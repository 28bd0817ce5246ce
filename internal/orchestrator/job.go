package orchestrator

import (
	"sync/atomic"
	"time"

	"github.com/skillsenselab/speechd/internal/engine"
)

// JobState names the stages a transcription job moves through. Transitions
// are linear; a job never revisits an earlier state.
type JobState string

const (
	StateReceived     JobState = "received"
	StateNormalizing  JobState = "normalizing"
	StateQueued       JobState = "queued"
	StateTranscribing JobState = "transcribing"
	StateCompleted    JobState = "completed"
	StateFailed       JobState = "failed"
)

// SubmitRequest describes one incoming transcription request.
type SubmitRequest struct {
	// MediaPath is the staged upload on local disk.
	MediaPath string
	// DeclaredSize is the upload size in bytes, checked against the
	// admission limit before any decoding work happens.
	DeclaredSize int64
	// Source labels where the media came from ("upload", "microphone").
	Source string
	// Language is an optional hint; empty means auto-detect.
	Language string
}

// Result is the outcome of a completed transcription job.
type Result struct {
	// JobID identifies the job in logs and traces.
	JobID string `json:"job_id"`
	// Text is the concatenated transcript, whitespace-trimmed. Empty text
	// on silent audio is a success, not an error.
	Text string `json:"text"`
	// Language is the detected or requested language.
	Language string `json:"language,omitempty"`
	// Duration is the audio duration in seconds.
	Duration float64 `json:"duration,omitempty"`
	// Segments are the time-aligned transcript portions.
	Segments []engine.Segment `json:"segments,omitempty"`
	// Elapsed is wall-clock time from admission to completion.
	Elapsed time.Duration `json:"-"`
}

// outcome carries one inference result from the worker back to the waiter.
type outcome struct {
	transcript *engine.Transcript
	err        error
}

// normOutcome carries one normalization result back to the waiter. Buffered
// delivery lets a timed-out waiter walk away without leaking the goroutine.
type normOutcome struct {
	audio NormalizedAudio
	err   error
}

// job is the internal unit of work moving through the queue. The result
// channel is buffered so the worker never blocks delivering to a waiter
// that already gave up.
type job struct {
	id        string
	audioPath string
	language  string
	enqueued  time.Time

	abandoned atomic.Bool
	result    chan outcome
}

// abandon marks the job as no longer awaited. The worker skips abandoned
// jobs it dequeues and discards results for jobs abandoned mid-inference.
func (j *job) abandon() {
	j.abandoned.Store(true)
}
