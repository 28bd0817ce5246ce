// Package orchestrator admits, queues, and serializes transcription jobs.
// A single worker goroutine drains a FIFO channel, so at most one inference
// runs at a time and jobs complete in arrival order. Callers block on Submit
// until their job finishes or the per-job budget expires; an expired waiter
// abandons the job and the worker discards its result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/skillsenselab/speechd/internal/apperrors"
	"github.com/skillsenselab/speechd/internal/engine"
	"github.com/skillsenselab/speechd/internal/logger"
)

const instrumentationName = "github.com/skillsenselab/speechd/internal/orchestrator"

// NormalizedAudio is what the orchestrator needs from a normalized file:
// where it is and how to release it.
type NormalizedAudio interface {
	Path() string
	Release() error
}

// Normalizer converts arbitrary staged media into canonical audio.
type Normalizer interface {
	Normalize(ctx context.Context, path string) (NormalizedAudio, error)
}

// Engine runs inference on canonical audio. Satisfied by *engine.Manager.
type Engine interface {
	Infer(ctx context.Context, audioPath, language string) (*engine.Transcript, error)
}

// Config holds orchestrator limits, read once at startup.
type Config struct {
	// MaxPayload is the admission limit in bytes for a single upload.
	MaxPayload int64 `yaml:"max_payload" mapstructure:"max_payload"`
	// JobTimeout bounds a job from admission to completion. On expiry the
	// caller gets TRANSCRIPTION_TIMEOUT and stops waiting; the job itself
	// is abandoned, not forcibly interrupted.
	JobTimeout time.Duration `yaml:"job_timeout" mapstructure:"job_timeout"`
	// QueueCapacity bounds the number of jobs waiting for the worker.
	QueueCapacity int `yaml:"queue_capacity" mapstructure:"queue_capacity"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxPayload == 0 {
		c.MaxPayload = 100 << 20
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = 300 * time.Second
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 64
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.MaxPayload < 0 {
		return fmt.Errorf("orchestrator.max_payload must be positive (got: %d)", c.MaxPayload)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("orchestrator.queue_capacity must be positive (got: %d)", c.QueueCapacity)
	}
	return nil
}

// Stats is a point-in-time snapshot of orchestrator counters.
type Stats struct {
	Accepted  uint64 `json:"accepted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	TimedOut  uint64 `json:"timed_out"`
	Queued    int    `json:"queued"`
}

// Orchestrator owns the job queue and its single worker.
type Orchestrator struct {
	cfg        Config
	normalizer Normalizer
	engine     Engine
	log        *logger.Logger

	tracer      trace.Tracer
	jobsTotal   metric.Int64Counter
	jobDuration metric.Float64Histogram

	queue chan *job
	stop  chan struct{}
	wg    sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	mu    sync.Mutex
	stats Stats
}

// New creates an orchestrator. Start must be called before Submit.
func New(cfg Config, normalizer Normalizer, eng Engine, log *logger.Logger) *Orchestrator {
	cfg.ApplyDefaults()

	meter := otel.Meter(instrumentationName)
	jobsTotal, err := meter.Int64Counter("transcription.jobs.total",
		metric.WithDescription("Transcription jobs by outcome"))
	if err != nil {
		log.Warn("metric registration failed", logger.ErrorFields("jobs_total", err))
	}
	jobDuration, err := meter.Float64Histogram("transcription.job.duration.seconds",
		metric.WithDescription("Wall-clock job duration from admission to completion"),
		metric.WithUnit("s"))
	if err != nil {
		log.Warn("metric registration failed", logger.ErrorFields("job_duration", err))
	}

	return &Orchestrator{
		cfg:         cfg,
		normalizer:  normalizer,
		engine:      eng,
		log:         log.WithComponent("orchestrator"),
		tracer:      otel.Tracer(instrumentationName),
		jobsTotal:   jobsTotal,
		jobDuration: jobDuration,
		queue:       make(chan *job, cfg.QueueCapacity),
		stop:        make(chan struct{}),
	}
}

// Start launches the worker goroutine. Safe to call once.
func (o *Orchestrator) Start() {
	o.startOnce.Do(func() {
		o.wg.Add(1)
		go o.work()
	})
}

// Stop shuts the worker down after it finishes the job in flight. Jobs still
// queued are abandoned; their waiters time out normally.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.stop)
	})
	o.wg.Wait()
}

// Submit runs one transcription request end to end: admission, normalization,
// queueing, and the wait for inference. It blocks until the job completes or
// the job budget expires. Temporary artifacts created on behalf of the job
// are released exactly once before return, success or failure.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	start := time.Now()
	jobID := uuid.NewString()

	ctx, span := o.tracer.Start(ctx, "transcription.submit", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.String("job.source", req.Source),
		attribute.Int64("job.declared_size", req.DeclaredSize),
	))
	defer span.End()

	log := o.log.WithFields(logger.Fields(
		logger.FieldJobID, jobID,
		logger.FieldSource, req.Source,
	))
	log.Info("job received", logger.Fields("size", req.DeclaredSize, "state", StateReceived))

	result, err := o.run(ctx, log, jobID, req, start)
	elapsed := time.Since(start)

	outcomeLabel := "completed"
	if err != nil {
		outcomeLabel = failureLabel(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcomeLabel)
		log.Warn("job failed", logger.Fields(
			"state", StateFailed,
			"outcome", outcomeLabel,
			"elapsed_ms", elapsed.Milliseconds(),
			logger.FieldError, err.Error(),
		))
	} else {
		span.SetStatus(codes.Ok, "")
		log.Info("job completed", logger.Fields(
			"state", StateCompleted,
			"elapsed_ms", elapsed.Milliseconds(),
			"text_len", len(result.Text),
		))
	}

	o.record(ctx, outcomeLabel, elapsed)
	return result, err
}

// run is the job body; Submit wraps it with tracing and accounting.
func (o *Orchestrator) run(ctx context.Context, log *logger.Logger, jobID string, req SubmitRequest, start time.Time) (*Result, error) {
	// Admission happens before any decoding so oversize uploads cost nothing.
	if req.DeclaredSize > o.cfg.MaxPayload {
		return nil, apperrors.PayloadTooLarge(req.DeclaredSize, o.cfg.MaxPayload)
	}

	o.bumpAccepted()

	// The budget covers the whole job: normalization, queue wait, inference.
	timer := time.NewTimer(o.cfg.JobTimeout)
	defer timer.Stop()

	// Normalization runs against the same deadline so the process runner
	// kills a hung ffprobe/ffmpeg instead of stalling Submit past the budget.
	normCtx, cancelNorm := context.WithTimeout(ctx, o.cfg.JobTimeout)
	defer cancelNorm()

	log.Debug("normalizing media", logger.Fields("state", StateNormalizing))
	normCh := make(chan normOutcome, 1)
	go func() {
		audio, err := o.normalizer.Normalize(normCtx, req.MediaPath)
		normCh <- normOutcome{audio: audio, err: err}
	}()

	var audio NormalizedAudio
	select {
	case out := <-normCh:
		if out.err != nil {
			return nil, out.err
		}
		audio = out.audio
	case <-timer.C:
		go o.discardNormalized(normCh)
		return nil, o.timeout(jobID)
	case <-ctx.Done():
		go o.discardNormalized(normCh)
		return nil, apperrors.Internal(ctx.Err())
	}

	// Released when Submit returns. An abandoned inference may still be
	// reading the file; its result is discarded anyway, so a late read of a
	// deleted path is harmless. A retry path would have to re-normalize.
	defer func() {
		if relErr := audio.Release(); relErr != nil {
			log.Warn("audio release failed", logger.ErrorFields("release", relErr))
		}
	}()

	j := &job{
		id:        jobID,
		audioPath: audio.Path(),
		language:  req.Language,
		enqueued:  time.Now(),
		result:    make(chan outcome, 1),
	}

	// Checked before the enqueue select so a stopped orchestrator rejects
	// deterministically instead of parking jobs a dead worker never drains.
	select {
	case <-o.stop:
		return nil, apperrors.Internal(errors.New("orchestrator stopped"))
	default:
	}

	log.Debug("job queued", logger.Fields("state", StateQueued, "queue_depth", len(o.queue)))
	select {
	case o.queue <- j:
	case <-timer.C:
		j.abandon()
		return nil, o.timeout(jobID)
	case <-ctx.Done():
		j.abandon()
		return nil, apperrors.Internal(ctx.Err())
	case <-o.stop:
		return nil, apperrors.Internal(errors.New("orchestrator stopped"))
	}

	select {
	case out := <-j.result:
		if out.err != nil {
			return nil, out.err
		}
		return o.assemble(jobID, out.transcript, time.Since(start)), nil
	case <-timer.C:
		j.abandon()
		return nil, o.timeout(jobID)
	case <-ctx.Done():
		j.abandon()
		return nil, apperrors.Internal(ctx.Err())
	}
}

// work is the single worker loop. Because only one goroutine drains the
// queue, inferences never overlap and complete in arrival order.
func (o *Orchestrator) work() {
	defer o.wg.Done()
	for {
		select {
		case <-o.stop:
			return
		case j := <-o.queue:
			if j.abandoned.Load() {
				o.log.Debug("skipping abandoned job", logger.Fields(logger.FieldJobID, j.id))
				continue
			}
			o.log.Debug("job transcribing", logger.Fields(
				logger.FieldJobID, j.id,
				"state", StateTranscribing,
				"queue_wait_ms", time.Since(j.enqueued).Milliseconds(),
			))
			transcript, err := o.engine.Infer(context.Background(), j.audioPath, j.language)
			// Buffered channel: delivery never blocks, abandoned waiters
			// simply never read it.
			j.result <- outcome{transcript: transcript, err: err}
		}
	}
}

// discardNormalized waits out a normalization its waiter gave up on and
// releases whatever it still produced.
func (o *Orchestrator) discardNormalized(ch <-chan normOutcome) {
	out := <-ch
	if out.audio == nil {
		return
	}
	if err := out.audio.Release(); err != nil {
		o.log.Warn("audio release failed", logger.ErrorFields("release", err))
	}
}

// assemble flattens segments into the final transcript text.
func (o *Orchestrator) assemble(jobID string, t *engine.Transcript, elapsed time.Duration) *Result {
	var b strings.Builder
	for _, seg := range t.Segments {
		b.WriteString(seg.Text)
	}
	return &Result{
		JobID:    jobID,
		Text:     strings.TrimSpace(b.String()),
		Language: t.Language,
		Duration: t.Duration,
		Segments: t.Segments,
		Elapsed:  elapsed,
	}
}

func (o *Orchestrator) timeout(jobID string) error {
	o.log.Warn("job budget expired", logger.Fields(
		logger.FieldJobID, jobID,
		"budget", o.cfg.JobTimeout.String(),
	))
	return apperrors.TranscriptionTimeout(o.cfg.JobTimeout.String())
}

// Stats returns a snapshot of the orchestrator counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.stats
	s.Queued = len(o.queue)
	return s
}

func (o *Orchestrator) bumpAccepted() {
	o.mu.Lock()
	o.stats.Accepted++
	o.mu.Unlock()
}

func (o *Orchestrator) record(ctx context.Context, outcomeLabel string, elapsed time.Duration) {
	o.mu.Lock()
	switch outcomeLabel {
	case "completed":
		o.stats.Completed++
	case "timeout":
		o.stats.TimedOut++
	default:
		o.stats.Failed++
	}
	o.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("outcome", outcomeLabel))
	if o.jobsTotal != nil {
		o.jobsTotal.Add(ctx, 1, attrs)
	}
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// failureLabel maps an error to its metric label.
func failureLabel(err error) string {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return "internal"
	}
	switch appErr.Code {
	case apperrors.ErrCodeTranscriptionTimeout:
		return "timeout"
	case apperrors.ErrCodePayloadTooLarge:
		return "rejected"
	case apperrors.ErrCodeUnsupportedFormat, apperrors.ErrCodeCorruptMedia:
		return "bad_media"
	default:
		return "failed"
	}
}
