package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skillsenselab/speechd/internal/apperrors"
	"github.com/skillsenselab/speechd/internal/engine"
	"github.com/skillsenselab/speechd/internal/logger"
)

// fakeAudio counts Release calls so tests can assert exactly-once cleanup.
type fakeAudio struct {
	path     string
	releases atomic.Int64
}

func (f *fakeAudio) Path() string { return f.path }

func (f *fakeAudio) Release() error {
	f.releases.Add(1)
	return nil
}

// fakeNormalizer records calls and hands out fakeAudio instances.
type fakeNormalizer struct {
	mu     sync.Mutex
	calls  int
	err    error
	audios []*fakeAudio
}

func (f *fakeNormalizer) Normalize(ctx context.Context, path string) (NormalizedAudio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	a := &fakeAudio{path: path + ".wav"}
	f.audios = append(f.audios, a)
	return a, nil
}

func (f *fakeNormalizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stallNormalizer blocks for its full delay regardless of context, the way a
// wedged ffmpeg would, then hands out its audio anyway.
type stallNormalizer struct {
	delay       time.Duration
	audio       fakeAudio
	sawDeadline atomic.Bool
}

func (s *stallNormalizer) Normalize(ctx context.Context, path string) (NormalizedAudio, error) {
	if _, ok := ctx.Deadline(); ok {
		s.sawDeadline.Store(true)
	}
	time.Sleep(s.delay)
	s.audio.path = path + ".wav"
	return &s.audio, nil
}

// interval marks one inference's start and end for overlap checks.
type interval struct {
	path  string
	start time.Time
	end   time.Time
}

// fakeEngine records inference intervals and can delay or fail.
type fakeEngine struct {
	mu        sync.Mutex
	intervals []interval
	delay     time.Duration
	err       error
	text      string
}

func (f *fakeEngine) Infer(ctx context.Context, audioPath, language string) (*engine.Transcript, error) {
	start := time.Now()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.intervals = append(f.intervals, interval{path: audioPath, start: start, end: time.Now()})
	f.mu.Unlock()
	if f.err != nil {
		return nil, apperrors.InferenceFailed(f.err)
	}
	text := f.text
	if text == "" {
		text = " hello world. "
	}
	return &engine.Transcript{
		Segments: []engine.Segment{{Start: 0, End: 1.5, Text: text}},
		Language: "en",
		Duration: 1.5,
	}, nil
}

func newTestOrchestrator(t *testing.T, cfg Config, n Normalizer, e Engine) *Orchestrator {
	t.Helper()
	o := New(cfg, n, e, logger.NewDefault("orchestrator-test"))
	o.Start()
	t.Cleanup(o.Stop)
	return o
}

func TestSubmitSuccess(t *testing.T) {
	norm := &fakeNormalizer{}
	o := newTestOrchestrator(t, Config{}, norm, &fakeEngine{})

	result, err := o.Submit(context.Background(), SubmitRequest{
		MediaPath:    "/tmp/in.mp3",
		DeclaredSize: 1024,
		Source:       "upload",
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if result.Text != "hello world." {
		t.Errorf("text = %q, want trimmed %q", result.Text, "hello world.")
	}
	if result.Language != "en" {
		t.Errorf("language = %q, want en", result.Language)
	}
	if result.JobID == "" {
		t.Error("expected a job id")
	}
	if got := norm.audios[0].releases.Load(); got != 1 {
		t.Errorf("audio released %d times, want 1", got)
	}
}

func TestSubmitEmptyTranscriptIsSuccess(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, &fakeNormalizer{}, &fakeEngine{text: "   "})

	result, err := o.Submit(context.Background(), SubmitRequest{MediaPath: "/tmp/silent.wav", DeclaredSize: 10})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if result.Text != "" {
		t.Errorf("text = %q, want empty", result.Text)
	}
}

func TestSubmitOversizeRejectedBeforeNormalization(t *testing.T) {
	norm := &fakeNormalizer{}
	o := newTestOrchestrator(t, Config{MaxPayload: 100}, norm, &fakeEngine{})

	_, err := o.Submit(context.Background(), SubmitRequest{MediaPath: "/tmp/big.mp4", DeclaredSize: 101})
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodePayloadTooLarge {
		t.Fatalf("expected %s, got %v", apperrors.ErrCodePayloadTooLarge, err)
	}
	if norm.callCount() != 0 {
		t.Errorf("normalizer called %d times for an oversize upload, want 0", norm.callCount())
	}
}

func TestSubmitSizeAtLimitAccepted(t *testing.T) {
	o := newTestOrchestrator(t, Config{MaxPayload: 100}, &fakeNormalizer{}, &fakeEngine{})

	if _, err := o.Submit(context.Background(), SubmitRequest{MediaPath: "/tmp/a.mp3", DeclaredSize: 100}); err != nil {
		t.Fatalf("Submit() at exact limit: %v", err)
	}
}

func TestSubmitNormalizationErrorPassesThrough(t *testing.T) {
	norm := &fakeNormalizer{err: apperrors.CorruptMedia("truncated container")}
	o := newTestOrchestrator(t, Config{}, norm, &fakeEngine{})

	_, err := o.Submit(context.Background(), SubmitRequest{MediaPath: "/tmp/bad.mp3", DeclaredSize: 10})
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeCorruptMedia {
		t.Fatalf("expected %s, got %v", apperrors.ErrCodeCorruptMedia, err)
	}
}

func TestSubmitInferenceErrorReleasesAudio(t *testing.T) {
	norm := &fakeNormalizer{}
	o := newTestOrchestrator(t, Config{}, norm, &fakeEngine{err: errors.New("sidecar crashed")})

	_, err := o.Submit(context.Background(), SubmitRequest{MediaPath: "/tmp/a.mp3", DeclaredSize: 10})
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeInferenceFailed {
		t.Fatalf("expected %s, got %v", apperrors.ErrCodeInferenceFailed, err)
	}
	if got := norm.audios[0].releases.Load(); got != 1 {
		t.Errorf("audio released %d times, want exactly 1", got)
	}
}

func TestSubmitTimeout(t *testing.T) {
	norm := &fakeNormalizer{}
	eng := &fakeEngine{delay: 200 * time.Millisecond}
	o := newTestOrchestrator(t, Config{JobTimeout: 50 * time.Millisecond}, norm, eng)

	start := time.Now()
	_, err := o.Submit(context.Background(), SubmitRequest{MediaPath: "/tmp/slow.mp3", DeclaredSize: 10})
	elapsed := time.Since(start)

	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeTranscriptionTimeout {
		t.Fatalf("expected %s, got %v", apperrors.ErrCodeTranscriptionTimeout, err)
	}
	if !appErr.Retryable {
		t.Error("timeout must be retryable")
	}
	if elapsed > 150*time.Millisecond {
		t.Errorf("Submit returned after %v, want near the 50ms budget", elapsed)
	}
	if got := norm.audios[0].releases.Load(); got != 1 {
		t.Errorf("audio released %d times after timeout, want 1", got)
	}
}

func TestSubmitTimeoutDuringNormalization(t *testing.T) {
	norm := &stallNormalizer{delay: 300 * time.Millisecond}
	o := newTestOrchestrator(t, Config{JobTimeout: 50 * time.Millisecond}, norm, &fakeEngine{})

	start := time.Now()
	_, err := o.Submit(context.Background(), SubmitRequest{MediaPath: "/tmp/wedged.mp3", DeclaredSize: 10})
	elapsed := time.Since(start)

	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeTranscriptionTimeout {
		t.Fatalf("expected %s, got %v", apperrors.ErrCodeTranscriptionTimeout, err)
	}
	if elapsed > 150*time.Millisecond {
		t.Errorf("Submit returned after %v, want near the 50ms budget", elapsed)
	}
	if !norm.sawDeadline.Load() {
		t.Error("normalizer context carried no deadline, tools cannot be killed at the budget")
	}

	// The audio the stalled normalization eventually produced must still be
	// released, just off the request path.
	time.Sleep(400 * time.Millisecond)
	if got := norm.audio.releases.Load(); got != 1 {
		t.Errorf("late audio released %d times, want exactly 1", got)
	}
}

func TestAbandonedJobSkippedByWorker(t *testing.T) {
	norm := &fakeNormalizer{}
	eng := &fakeEngine{delay: 100 * time.Millisecond}
	o := newTestOrchestrator(t, Config{JobTimeout: 30 * time.Millisecond}, norm, eng)

	// The first job occupies the worker long enough for the second to time
	// out while still queued; the worker must then skip it, not run it.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.Submit(context.Background(), SubmitRequest{MediaPath: "/tmp/first.mp3", DeclaredSize: 10})
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		defer wg.Done()
		o.Submit(context.Background(), SubmitRequest{MediaPath: "/tmp/second.mp3", DeclaredSize: 10})
	}()
	wg.Wait()

	// Give the worker time to dequeue the abandoned second job.
	time.Sleep(150 * time.Millisecond)

	eng.mu.Lock()
	defer eng.mu.Unlock()
	for _, iv := range eng.intervals {
		if iv.path == "/tmp/second.mp3.wav" {
			t.Error("worker ran inference for an abandoned job")
		}
	}
}

func TestJobsDoNotOverlapAndKeepOrder(t *testing.T) {
	norm := &fakeNormalizer{}
	eng := &fakeEngine{delay: 20 * time.Millisecond}
	o := newTestOrchestrator(t, Config{}, norm, eng)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		path := fmt.Sprintf("/tmp/in-%d.mp3", i)
		idx := i
		go func() {
			defer wg.Done()
			_, errs[idx] = o.Submit(context.Background(), SubmitRequest{MediaPath: path, DeclaredSize: 10})
		}()
		// Stagger submissions so arrival order is deterministic.
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("job %d failed: %v", i, err)
		}
	}

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if len(eng.intervals) != n {
		t.Fatalf("got %d inferences, want %d", len(eng.intervals), n)
	}
	for i := 1; i < len(eng.intervals); i++ {
		if eng.intervals[i].start.Before(eng.intervals[i-1].end) {
			t.Errorf("inference %d started before %d finished", i, i-1)
		}
		want := fmt.Sprintf("/tmp/in-%d.mp3.wav", i)
		if eng.intervals[i].path != want {
			t.Errorf("inference %d ran %q, want %q (FIFO order)", i, eng.intervals[i].path, want)
		}
	}
}

func TestAllAudioReleasedAfterMixedOutcomes(t *testing.T) {
	norm := &fakeNormalizer{}
	eng := &fakeEngine{delay: 10 * time.Millisecond}
	o := newTestOrchestrator(t, Config{JobTimeout: 500 * time.Millisecond}, norm, eng)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		path := fmt.Sprintf("/tmp/mix-%d.mp3", i)
		go func() {
			defer wg.Done()
			o.Submit(context.Background(), SubmitRequest{MediaPath: path, DeclaredSize: 10})
		}()
	}
	wg.Wait()

	norm.mu.Lock()
	defer norm.mu.Unlock()
	for i, a := range norm.audios {
		if got := a.releases.Load(); got != 1 {
			t.Errorf("audio %d released %d times, want exactly 1", i, got)
		}
	}
}

func TestStats(t *testing.T) {
	o := newTestOrchestrator(t, Config{MaxPayload: 100}, &fakeNormalizer{}, &fakeEngine{})

	o.Submit(context.Background(), SubmitRequest{MediaPath: "/tmp/ok.mp3", DeclaredSize: 10})
	o.Submit(context.Background(), SubmitRequest{MediaPath: "/tmp/big.mp3", DeclaredSize: 200})

	s := o.Stats()
	if s.Accepted != 1 {
		t.Errorf("accepted = %d, want 1", s.Accepted)
	}
	if s.Completed != 1 {
		t.Errorf("completed = %d, want 1", s.Completed)
	}
	if s.Failed != 1 {
		t.Errorf("failed = %d, want 1", s.Failed)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	o := New(Config{}, &fakeNormalizer{}, &fakeEngine{}, logger.NewDefault("orchestrator-test"))
	o.Start()
	o.Stop()

	// Queue capacity absorbs the send, but a stopped worker never serves it;
	// the stop channel short-circuits the enqueue instead.
	_, err := o.Submit(context.Background(), SubmitRequest{MediaPath: "/tmp/a.mp3", DeclaredSize: 10})
	if err == nil {
		t.Fatal("expected error after Stop")
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.MaxPayload != 100<<20 {
		t.Errorf("max payload = %d, want %d", cfg.MaxPayload, 100<<20)
	}
	if cfg.JobTimeout != 300*time.Second {
		t.Errorf("job timeout = %v, want 300s", cfg.JobTimeout)
	}
	if cfg.QueueCapacity != 64 {
		t.Errorf("queue capacity = %d, want 64", cfg.QueueCapacity)
	}
}
