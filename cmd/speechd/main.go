// Command speechd runs the speech transcription service: an HTTP API that
// normalizes uploaded media, serializes jobs through a single inference
// worker, and returns transcripts from a faster-whisper backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skillsenselab/speechd/internal/auth"
	"github.com/skillsenselab/speechd/internal/config"
	"github.com/skillsenselab/speechd/internal/engine"
	"github.com/skillsenselab/speechd/internal/engine/whisper"
	"github.com/skillsenselab/speechd/internal/httpapi"
	"github.com/skillsenselab/speechd/internal/logger"
	"github.com/skillsenselab/speechd/internal/media"
	"github.com/skillsenselab/speechd/internal/observability"
	"github.com/skillsenselab/speechd/internal/orchestrator"
	"github.com/skillsenselab/speechd/internal/process"
	"github.com/skillsenselab/speechd/internal/server"
	"github.com/skillsenselab/speechd/internal/server/endpoint"
	"github.com/skillsenselab/speechd/internal/server/middleware"
	"github.com/skillsenselab/speechd/internal/tempstore"
	"github.com/skillsenselab/speechd/internal/version"
)

const gracefulTimeout = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("configuration error", logger.Fields("error", err.Error()))
	}

	logger.Init(cfg.Logging)
	log := logger.GetGlobalLogger()
	log.Info("starting service", logger.Fields(
		"service", cfg.Name,
		"version", version.GetVersionInfo().String(),
		"environment", cfg.Environment,
	))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("service exited with error", logger.Fields("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	shutdownTelemetry, err := observability.Init(ctx, cfg.Telemetry, cfg.Name, version.Version, cfg.Environment)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.Warn("telemetry shutdown failed", logger.ErrorFields("telemetry", err))
		}
	}()

	store, err := tempstore.New(cfg.TempDir)
	if err != nil {
		return err
	}
	if err := store.Sweep(); err != nil {
		log.Warn("temp dir sweep failed", logger.ErrorFields("sweep", err))
	}

	// Engine first: the model must bind to its device before the service
	// accepts any traffic. A GPU preference that cannot be honored is fatal.
	backend := whisper.New(whisper.Config{
		URL:     cfg.Engine.URL,
		Timeout: cfg.Engine.InferTimeout,
	})
	manager := engine.NewManager(cfg.Engine, backend, log)
	if _, err := manager.Load(ctx); err != nil {
		return err
	}

	runner := process.NewAdapter(process.Config{})
	normalizer := media.NewNormalizer(cfg.Media, runner, store, log)

	orch := orchestrator.New(cfg.Orchestrator, orchestrator.WrapNormalizer(normalizer), manager, log)
	orch.Start()
	defer orch.Stop()

	srv := server.New(cfg.Server, log)
	srv.ApplyMiddleware()
	if cfg.Auth.Enabled {
		validator := auth.NewValidator(cfg.Auth)
		srv.GinEngine().Use(middleware.Auth(middleware.AuthConfig{
			TokenValidator: validator.ValidateToken,
			SkipPaths:      []string{"/api/health", "/health", "/info", "/metrics"},
		}))
	}
	srv.RegisterDefaultEndpoints(cfg.Name, func(ctx context.Context) []endpoint.ComponentHealth {
		return componentHealth(ctx, manager, orch)
	})

	api := httpapi.New(orch, manager, store, cfg.Orchestrator.MaxPayload, log)
	api.Register(srv.GinEngine())

	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()
	return srv.Stop(stopCtx)
}

// componentHealth reports engine and queue state for the /health endpoint.
func componentHealth(ctx context.Context, manager *engine.Manager, orch *orchestrator.Orchestrator) []endpoint.ComponentHealth {
	engineHealth := endpoint.ComponentHealth{Name: "engine", Status: endpoint.StatusHealthy}
	if !manager.Ready(ctx) {
		engineHealth.Status = endpoint.StatusUnhealthy
		engineHealth.Message = "model not loaded or backend unreachable"
	}

	stats := orch.Stats()
	queueHealth := endpoint.ComponentHealth{Name: "queue", Status: endpoint.StatusHealthy}
	if stats.Queued > 0 {
		queueHealth.Message = "jobs waiting"
	}

	return []endpoint.ComponentHealth{engineHealth, queueHealth}
}
