package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/skillsenselab/speechd/internal/apperrors"
	"github.com/skillsenselab/speechd/internal/logger"
)

// Manager owns the process-wide engine handle. It is constructed explicitly
// and injected into the orchestrator rather than living as a hidden global,
// so tests can substitute a stub backend.
//
// Loading is idempotent: the first successful Load caches the handle and
// every later call returns it without reloading.
type Manager struct {
	cfg     Config
	backend Backend
	log     *logger.Logger

	mu     sync.Mutex
	handle *Handle
}

// NewManager creates a Manager for the given backend. Load must succeed
// before the service accepts traffic.
func NewManager(cfg Config, backend Backend, log *logger.Logger) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		cfg:     cfg,
		backend: backend,
		log:     log.WithComponent("engine"),
	}
}

// Load loads the configured model variant on the configured device.
// The operator's device preference is honored or surfaced, never silently
// downgraded: a GPU preference that resolves to CPU fails with
// DEVICE_UNAVAILABLE. Both failure modes are startup-fatal for callers.
func (m *Manager) Load(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		return m.handle, nil
	}

	loadCtx := ctx
	if m.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, m.cfg.LoadTimeout)
		defer cancel()
	}

	m.log.Info("loading recognition model", logger.Fields(
		logger.FieldModel, m.cfg.Model,
		logger.FieldDevice, m.cfg.Device,
		"compute_type", m.cfg.ComputeType,
		"backend", m.backend.Name(),
	))

	handle, err := m.backend.Load(loadCtx, LoadRequest{
		Variant:     m.cfg.Model,
		Device:      m.cfg.Device,
		ComputeType: m.cfg.ComputeType,
	})
	if err != nil {
		return nil, apperrors.ModelLoadFailed(m.cfg.Model, err)
	}

	if m.cfg.Device == DeviceGPU && handle.Device != DeviceGPU {
		return nil, apperrors.DeviceUnavailable(DeviceGPU,
			fmt.Errorf("backend resolved device %q instead of gpu", handle.Device))
	}

	m.handle = handle
	m.log.Info("recognition model loaded", logger.Fields(
		logger.FieldModel, handle.Variant,
		logger.FieldDevice, handle.Device,
		"compute_type", handle.ComputeType,
	))
	return m.handle, nil
}

// Handle returns the loaded handle, or nil before a successful Load.
func (m *Manager) Handle() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Infer transcribes one normalized audio file. The caller (the orchestrator)
// serializes access; Infer itself does not queue. Shared state other than
// engine-internal caches is never mutated.
func (m *Manager) Infer(ctx context.Context, audioPath, language string) (*Transcript, error) {
	if m.Handle() == nil {
		return nil, apperrors.ModelLoadFailed(m.cfg.Model, fmt.Errorf("model not loaded"))
	}

	if language == "" {
		language = m.cfg.Language
	}

	inferCtx := ctx
	if m.cfg.InferTimeout > 0 {
		var cancel context.CancelFunc
		inferCtx, cancel = context.WithTimeout(ctx, m.cfg.InferTimeout)
		defer cancel()
	}

	transcript, err := m.backend.Transcribe(inferCtx, TranscribeRequest{
		AudioPath: audioPath,
		Language:  language,
	})
	if err != nil {
		return nil, apperrors.InferenceFailed(err)
	}
	return transcript, nil
}

// Ready reports whether the model is loaded and the backend reachable.
func (m *Manager) Ready(ctx context.Context) bool {
	return m.Handle() != nil && m.backend.IsAvailable(ctx)
}

// AvailableVariants returns the model sizes this service can be configured with.
func (m *Manager) AvailableVariants() []string {
	out := make([]string, len(Variants))
	copy(out, Variants)
	return out
}
