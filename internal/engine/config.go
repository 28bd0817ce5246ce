package engine

import (
	"fmt"
	"time"
)

// Config holds recognition engine configuration, read once at startup.
// Changing the model or device requires a restart.
type Config struct {
	// URL is the faster-whisper sidecar endpoint.
	URL string `yaml:"url" mapstructure:"url"`
	// Model is the size variant to load.
	Model string `yaml:"model" mapstructure:"model"`
	// Device is the compute device preference: "gpu" or "cpu".
	Device string `yaml:"device" mapstructure:"device"`
	// ComputeType is the numeric precision; defaults depend on the device.
	ComputeType string `yaml:"compute_type" mapstructure:"compute_type"`
	// Language is the default language hint; empty means auto-detect.
	Language string `yaml:"language,omitempty" mapstructure:"language"`
	// LoadTimeout bounds the model load call.
	LoadTimeout time.Duration `yaml:"load_timeout" mapstructure:"load_timeout"`
	// InferTimeout bounds a single sidecar transcription call.
	InferTimeout time.Duration `yaml:"infer_timeout" mapstructure:"infer_timeout"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "medium"
	}
	if c.Device == "" {
		c.Device = DeviceGPU
	}
	if c.ComputeType == "" {
		// Half precision on GPU, int8 on CPU, matching what the sidecar
		// would pick for memory-constrained loads.
		if c.Device == DeviceGPU {
			c.ComputeType = "float16"
		} else {
			c.ComputeType = "int8"
		}
	}
	if c.LoadTimeout == 0 {
		c.LoadTimeout = 120 * time.Second
	}
	if c.InferTimeout == 0 {
		c.InferTimeout = 600 * time.Second
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	valid := false
	for _, v := range Variants {
		if c.Model == v {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("engine.model must be one of %v (got: %s)", Variants, c.Model)
	}
	if c.Device != DeviceGPU && c.Device != DeviceCPU {
		return fmt.Errorf("engine.device must be gpu or cpu (got: %s)", c.Device)
	}
	return nil
}
