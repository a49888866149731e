// Package config loads engine, probe and telemetry settings with viper.
//
// Settings come from defaults, then an optional file (YAML, TOML or JSON by
// extension), then DBINSPECT_* environment variables, e.g.
// DBINSPECT_ENGINE_MAX_CONCURRENCY=8 or DBINSPECT_PROBE_TIMEOUT=10s.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jonwraymond/dbinspect/engine"
	"github.com/jonwraymond/dbinspect/observe"
	"github.com/jonwraymond/dbinspect/probe"
	"github.com/jonwraymond/dbinspect/resilience"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DBINSPECT"

// ErrInvalidConfig matches every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the full configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Probe   ProbeConfig   `mapstructure:"probe"`
	Observe ObserveConfig `mapstructure:"observe"`
}

// EngineConfig configures the execution coordinator.
type EngineConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	SlowInfo       time.Duration `mapstructure:"slow_info"`
	SlowWarn       time.Duration `mapstructure:"slow_warn"`
	SlowError      time.Duration `mapstructure:"slow_error"`
}

// ProbeConfig configures the hardening applied around adapter calls.
type ProbeConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`     // per attempt; 0 disables
	Attempts      int           `mapstructure:"attempts"`    // including the first
	Backoff       string        `mapstructure:"backoff"`     // exponential|linear|constant
	RetryDelay    time.Duration `mapstructure:"retry_delay"` // first backoff delay
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay"`
	Rate          float64       `mapstructure:"rate"` // calls per second; 0 disables
	Burst         int           `mapstructure:"burst"`
	MaxWait       time.Duration `mapstructure:"max_wait"`
}

// ObserveConfig mirrors observe.Config.
type ObserveConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Version     string        `mapstructure:"version"`
	Tracing     TracingConfig `mapstructure:"tracing"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

type TracingConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Exporter  string  `mapstructure:"exporter"`
	SamplePct float64 `mapstructure:"sample_pct"`
}

type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
}

type LoggingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.max_concurrency", engine.DefaultMaxConcurrency)
	lat := engine.DefaultLatency()
	v.SetDefault("engine.slow_info", lat.Info)
	v.SetDefault("engine.slow_warn", lat.Warn)
	v.SetDefault("engine.slow_error", lat.Error)

	v.SetDefault("probe.timeout", 30*time.Second)
	v.SetDefault("probe.attempts", 1)
	v.SetDefault("probe.backoff", "exponential")
	v.SetDefault("probe.retry_delay", 100*time.Millisecond)
	v.SetDefault("probe.max_retry_delay", 5*time.Second)
	v.SetDefault("probe.rate", 0.0)
	v.SetDefault("probe.burst", 1)
	v.SetDefault("probe.max_wait", time.Second)

	v.SetDefault("observe.service_name", "dbinspect")
	v.SetDefault("observe.version", "")
	v.SetDefault("observe.tracing.enabled", false)
	v.SetDefault("observe.tracing.exporter", "none")
	v.SetDefault("observe.tracing.sample_pct", 1.0)
	v.SetDefault("observe.metrics.enabled", false)
	v.SetDefault("observe.metrics.exporter", "none")
	v.SetDefault("observe.logging.enabled", true)
	v.SetDefault("observe.logging.level", "info")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the configuration with no file and no environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return &cfg
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Engine.MaxConcurrency < 1 {
		return fmt.Errorf("%w: engine.max_concurrency must be >= 1, got %d", ErrInvalidConfig, c.Engine.MaxConcurrency)
	}
	if c.Engine.SlowInfo < 0 || c.Engine.SlowWarn < 0 || c.Engine.SlowError < 0 {
		return fmt.Errorf("%w: engine slow thresholds must not be negative", ErrInvalidConfig)
	}
	if !ordered(c.Engine.SlowInfo, c.Engine.SlowWarn, c.Engine.SlowError) {
		return fmt.Errorf("%w: engine slow thresholds must increase: %s, %s, %s",
			ErrInvalidConfig, c.Engine.SlowInfo, c.Engine.SlowWarn, c.Engine.SlowError)
	}

	p := c.Probe
	if p.Timeout < 0 {
		return fmt.Errorf("%w: probe.timeout must not be negative", ErrInvalidConfig)
	}
	if p.Attempts < 1 {
		return fmt.Errorf("%w: probe.attempts must be >= 1, got %d", ErrInvalidConfig, p.Attempts)
	}
	switch p.Backoff {
	case "exponential", "linear", "constant":
	default:
		return fmt.Errorf("%w: probe.backoff %q", ErrInvalidConfig, p.Backoff)
	}
	if p.Rate < 0 {
		return fmt.Errorf("%w: probe.rate must not be negative", ErrInvalidConfig)
	}
	if p.Rate > 0 && p.Burst < 1 {
		return fmt.Errorf("%w: probe.burst must be >= 1 when probe.rate is set", ErrInvalidConfig)
	}

	obs := c.ObserveConfig()
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ordered reports whether the non-zero tiers are strictly increasing.
func ordered(tiers ...time.Duration) bool {
	var prev time.Duration
	for _, d := range tiers {
		if d == 0 {
			continue
		}
		if d <= prev {
			return false
		}
		prev = d
	}
	return true
}

// EngineOptions converts the engine section.
func (c *Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithMaxConcurrency(c.Engine.MaxConcurrency),
		engine.WithLatencyThresholds(c.Engine.SlowInfo, c.Engine.SlowWarn, c.Engine.SlowError),
	}
}

// ObserveConfig converts the observe section.
func (c *Config) ObserveConfig() observe.Config {
	o := c.Observe
	return observe.Config{
		ServiceName: o.ServiceName,
		Version:     o.Version,
		Tracing: observe.TracingConfig{
			Enabled:   o.Tracing.Enabled,
			Exporter:  o.Tracing.Exporter,
			SamplePct: o.Tracing.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  o.Metrics.Enabled,
			Exporter: o.Metrics.Exporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: o.Logging.Enabled,
			Level:   o.Logging.Level,
		},
	}
}

// Executor builds the resilience chain for adapter calls. Disabled stages
// are left out.
func (c *Config) Executor() *resilience.Executor {
	p := c.Probe
	var opts []resilience.ExecutorOption
	if p.Attempts > 1 {
		opts = append(opts, resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts:  p.Attempts,
			InitialDelay: p.RetryDelay,
			MaxDelay:     p.MaxRetryDelay,
			Strategy:     resilience.ParseBackoff(p.Backoff),
			Jitter:       true,
		})))
	}
	if p.Rate > 0 {
		opts = append(opts, resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:        p.Rate,
			Burst:       p.Burst,
			WaitOnLimit: true,
			MaxWait:     p.MaxWait,
		})))
	}
	if p.Timeout > 0 {
		opts = append(opts, resilience.WithTimeout(p.Timeout))
	}
	return resilience.NewExecutor(opts...)
}

// Adapter wraps a with the configured resilience chain.
func (c *Config) Adapter(a probe.Adapter, opts ...probe.ResilientOption) probe.Adapter {
	return probe.Resilient(a, c.Executor(), opts...)
}
