// Package config loads and validates the service configuration from
// config.yml, the process environment, and optional .env files.
package config

import (
	"fmt"

	"github.com/skillsenselab/speechd/internal/auth"
	"github.com/skillsenselab/speechd/internal/engine"
	"github.com/skillsenselab/speechd/internal/logger"
	"github.com/skillsenselab/speechd/internal/media"
	"github.com/skillsenselab/speechd/internal/observability"
	"github.com/skillsenselab/speechd/internal/orchestrator"
	"github.com/skillsenselab/speechd/internal/server"
)

// ServiceName is the canonical name of this service.
const ServiceName = "speechd"

// Config is the full service configuration.
type Config struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Environment string `yaml:"environment" mapstructure:"environment"`
	Version     string `yaml:"version" mapstructure:"version"`
	Debug       bool   `yaml:"debug" mapstructure:"debug"`

	// TempDir is where staged uploads and normalized audio live.
	TempDir string `yaml:"temp_dir" mapstructure:"temp_dir"`

	Logging      logger.Config        `yaml:"logging" mapstructure:"logging"`
	Server       server.Config        `yaml:"server" mapstructure:"server"`
	Auth         auth.Config          `yaml:"auth" mapstructure:"auth"`
	Telemetry    observability.Config `yaml:"telemetry" mapstructure:"telemetry"`
	Engine       engine.Config        `yaml:"engine" mapstructure:"engine"`
	Orchestrator orchestrator.Config  `yaml:"orchestrator" mapstructure:"orchestrator"`
	Media        media.Config         `yaml:"media" mapstructure:"media"`
}

// LoadConfig loads, defaults, and validates the service configuration.
func LoadConfig(opts ...LoaderOption) (*Config, error) {
	var cfg Config
	if err := Load(ServiceName, &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults applies default values to all sections.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = ServiceName
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	c.Logging.ApplyDefaults()
	if c.Debug && c.Logging.Level == "info" {
		c.Logging.Level = "debug"
	}
	c.Server.ApplyDefaults()
	c.Auth.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
	c.Engine.ApplyDefaults()
	c.Orchestrator.ApplyDefaults()
	c.Media.ApplyDefaults()
}

// Validate checks all sections for invalid values.
func (c *Config) Validate() error {
	validEnvs := []string{"development", "staging", "production"}
	found := false
	for _, v := range validEnvs {
		if c.Environment == v {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("environment must be one of [development, staging, production] (got: %s)", c.Environment)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Orchestrator.Validate(); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	return nil
}
