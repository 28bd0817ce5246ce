// Package whisper implements engine.Backend against a faster-whisper HTTP
// sidecar. The sidecar owns the actual model weights and CUDA binding; this
// client loads a variant, checks health, and submits normalized audio.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/skillsenselab/speechd/internal/engine"
)

const (
	// BackendName is the registered name for the whisper backend.
	BackendName = "whisper"

	defaultURL           = "http://localhost:8387"
	defaultTimeout       = 600 * time.Second
	defaultHealthTimeout = 5 * time.Second
)

// Config holds configuration for the whisper sidecar client.
type Config struct {
	URL     string        `json:"url" yaml:"url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// HealthTimeout bounds the /health probe separately so a stalled sidecar
	// cannot pin health checks for the full inference timeout.
	HealthTimeout time.Duration `json:"health_timeout" yaml:"health_timeout"`
}

// Backend implements engine.Backend using a faster-whisper HTTP sidecar.
type Backend struct {
	cfg    Config
	client *http.Client
}

// compile-time assertion
var _ engine.Backend = (*Backend)(nil)

// New creates a new whisper sidecar backend.
func New(cfg Config) *Backend {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HealthTimeout == 0 {
		cfg.HealthTimeout = defaultHealthTimeout
	}
	return &Backend{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the backend name.
func (b *Backend) Name() string { return BackendName }

// IsAvailable checks if the sidecar is reachable. The probe gets its own
// short deadline; the client's Timeout is sized for inference, not health.
func (b *Backend) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.URL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Load asks the sidecar to load a model variant on a device. The response
// reports the binding that actually took effect; the caller decides whether
// a downgraded device is acceptable.
func (b *Backend) Load(ctx context.Context, req engine.LoadRequest) (*engine.Handle, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode load request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL+"/load", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create load request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whisper load: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("whisper load error (status %d): %s", resp.StatusCode, string(msg))
	}

	var result loadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode load response: %w", err)
	}

	return &engine.Handle{
		Variant:     result.Model,
		Device:      result.Device,
		ComputeType: result.ComputeType,
	}, nil
}

// Transcribe sends a normalized audio file to the sidecar and returns the transcript.
func (b *Backend) Transcribe(ctx context.Context, req engine.TranscribeRequest) (*engine.Transcript, error) {
	audioData, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audioData); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}

	if req.Language != "" {
		_ = writer.WriteField("language", req.Language)
	}
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL+"/transcribe", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("whisper error (status %d): %s", resp.StatusCode, string(msg))
	}

	var result whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode whisper response: %w", err)
	}

	return toTranscript(&result), nil
}

// --- internal sidecar API types ---

type loadResponse struct {
	Model       string `json:"model"`
	Device      string `json:"device"`
	ComputeType string `json:"compute_type"`
}

type whisperResponse struct {
	Segments []whisperSegment `json:"segments"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
}

type whisperSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func toTranscript(resp *whisperResponse) *engine.Transcript {
	segments := make([]engine.Segment, len(resp.Segments))
	for i, seg := range resp.Segments {
		segments[i] = engine.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		}
	}

	duration := resp.Duration
	if duration == 0 && len(resp.Segments) > 0 {
		duration = resp.Segments[len(resp.Segments)-1].End
	}

	return &engine.Transcript{
		Segments: segments,
		Duration: duration,
		Language: resp.Language,
	}
}
