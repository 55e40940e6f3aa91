package procmetrics

import (
	"fmt"
	"io"
	"time"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/grafana/procmetrics/pkg/config"
	"github.com/grafana/procmetrics/pkg/connector"
	"github.com/grafana/procmetrics/pkg/export/otel"
	"github.com/grafana/procmetrics/pkg/imetrics"
	"github.com/grafana/procmetrics/pkg/internal/infraolly/process"
)

const defaultInterval = 30 * time.Second

// SamplerConfig configures each observation session
type SamplerConfig struct {
	// Interval between two ticks of a push-mode session.
	Interval time.Duration `yaml:"interval" env:"PROCMETRICS_INTERVAL"`
	// OTELIntervalMS supports the interval as specified by the standard OTEL definition.
	// PROCMETRICS_INTERVAL takes precedence over it.
	OTELIntervalMS int `yaml:"-" env:"OTEL_METRIC_EXPORT_INTERVAL"`

	// Mode of the session: push (default) or pull.
	Mode ModeKind `yaml:"mode" env:"PROCMETRICS_MODE"`

	// Iterations bounds the number of ticks of a session. Zero means unbounded.
	Iterations int `yaml:"iterations" env:"PROCMETRICS_ITERATIONS"`

	// MaxConsecutiveMisses ends the session after that many consecutive ticks can't read the process.
	// Zero means that the session never gives up.
	MaxConsecutiveMisses int `yaml:"max_consecutive_misses" env:"PROCMETRICS_MAX_CONSECUTIVE_MISSES"`

	Source process.SourceConfig `yaml:",inline"`

	GPU GPUConfig `yaml:"gpu"`

	// Reporter of internal metrics. Defaults to a no-op reporter.
	Reporter imetrics.Reporter `yaml:"-"`
}

type GPUConfig struct {
	// Enabled tries to load the GPU management library when the session starts.
	Enabled bool `yaml:"enabled" env:"PROCMETRICS_GPU_ENABLED"`
	// ZeroFill records zero GPU memory when there is no GPU data for the process. Otherwise the
	// observation is omitted.
	ZeroFill bool `yaml:"zero_fill" env:"PROCMETRICS_GPU_ZERO_FILL"`
}

// HostIDConfig configures the host.id resource attribute of the exported metrics
type HostIDConfig struct {
	// Override allows manually specifying the host ID
	Override string `yaml:"override" env:"PROCMETRICS_HOST_ID"`
	// FetchTimeout specifies the timeout for trying to fetch the HostID from diverse Cloud Providers
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"PROCMETRICS_HOST_ID_FETCH_TIMEOUT"`
}

// Config of the procmetrics command
type Config struct {
	LogLevel string `yaml:"log_level" env:"PROCMETRICS_LOG_LEVEL"`

	// PIDs to observe. If empty, the command observes itself.
	PIDs []uint32 `yaml:"pids" env:"PROCMETRICS_PIDS" envSeparator:","`

	// ShutdownTimeout bounds the time to flush the pending metrics before exiting
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"PROCMETRICS_SHUTDOWN_TIMEOUT"`

	Sampler         SamplerConfig      `yaml:"sampler"`
	Metrics         otel.MetricsConfig `yaml:"otel_metrics_export"`
	InternalMetrics imetrics.Config    `yaml:"internal_metrics"`
	HostID          HostIDConfig       `yaml:"host_id"`
}

// DefaultSamplerConfig returns the configuration of a session before any override
func DefaultSamplerConfig() *SamplerConfig {
	return &SamplerConfig{
		Mode:   ModePush,
		Source: process.SourceConfig{Kind: process.SourceGopsutil},
		GPU: GPUConfig{
			Enabled:  true,
			ZeroFill: true,
		},
	}
}

// DefaultConfig returns the configuration of the procmetrics command before any override
func DefaultConfig() *Config {
	return &Config{
		LogLevel:        "INFO",
		ShutdownTimeout: 10 * time.Second,
		Sampler:         *DefaultSamplerConfig(),
		Metrics: otel.MetricsConfig{
			Exporter:   otel.ExporterOTLP,
			Prometheus: otel.PrometheusConfig{Path: connector.DefaultPath},
		},
		InternalMetrics: imetrics.Config{
			Prometheus: imetrics.PrometheusConfig{Path: "/internal/metrics"},
		},
		HostID: HostIDConfig{FetchTimeout: 500 * time.Millisecond},
	}
}

// SamplerConfigFromEnv returns the default sampler configuration, overridden by the
// environment variables.
func SamplerConfigFromEnv() (*SamplerConfig, error) {
	cfg := DefaultSamplerConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("reading env vars: %w", err)
	}
	return cfg, nil
}

// LoadConfig overrides the default configuration with the YAML contents of the passed reader,
// if any, and then with the environment variables.
func LoadConfig(file io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if file != nil {
		cfgBuf, err := io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("reading YAML configuration: %w", err)
		}
		// replaces environment variables in YAML file
		cfgBuf = config.ReplaceEnv(cfgBuf)
		if err := yaml.Unmarshal(cfgBuf, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML configuration: %w", err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("reading env vars: %w", err)
	}
	return cfg, nil
}

// GetInterval returns the push-mode interval, falling back to OTEL_METRIC_EXPORT_INTERVAL
// and then to 30 seconds.
func (c *SamplerConfig) GetInterval() time.Duration {
	if c.Interval > 0 {
		return c.Interval
	}
	if c.OTELIntervalMS > 0 {
		return time.Duration(c.OTELIntervalMS) * time.Millisecond
	}
	return defaultInterval
}

// ObservationMode resolves the configured mode
func (c *SamplerConfig) ObservationMode() ObservationMode {
	switch c.Mode {
	case ModePull:
		return Pull()
	case ModePush, "":
		return Push(c.GetInterval())
	default:
		return ObservationMode{kind: c.Mode}
	}
}

func (c *SamplerConfig) Validate() error {
	if c.Interval < 0 || c.OTELIntervalMS < 0 {
		return ConfigError("sampling interval can't be negative")
	}
	if err := c.ObservationMode().validate(); err != nil {
		return ConfigError(err.Error())
	}
	if c.Iterations < 0 {
		return ConfigError("iterations can't be negative")
	}
	if c.MaxConsecutiveMisses < 0 {
		return ConfigError("max_consecutive_misses can't be negative")
	}
	if err := c.Source.Validate(); err != nil {
		return ConfigError(err.Error())
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.Sampler.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return ConfigError(err.Error())
	}
	for _, pid := range c.PIDs {
		if pid == 0 {
			return ConfigError("pid 0 can't be observed")
		}
	}
	if c.HostID.FetchTimeout < 0 {
		return ConfigError("host_id.fetch_timeout can't be negative")
	}
	return nil
}
