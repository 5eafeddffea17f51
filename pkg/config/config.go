// Package config loads and validates the application configuration from a
// YAML file, with defaults suitable for a single-node deployment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rangeforge/rangeforge/pkg/policy"
	"github.com/rangeforge/rangeforge/pkg/telemetry"
	"github.com/rangeforge/rangeforge/pkg/worker"
)

// Config is the top-level application configuration.
type Config struct {
	// Database configures the SQLite persistence layer.
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Worker configures the deployment job pool.
	Worker WorkerConfig `json:"worker" yaml:"worker"`

	// Policy configures blueprint admission.
	Policy PolicyConfig `json:"policy" yaml:"policy"`

	// Logging configures the structured logger.
	Logging telemetry.LoggingConfig `json:"logging" yaml:"logging"`

	// Metrics configures the Prometheus collector.
	Metrics telemetry.MetricsConfig `json:"metrics" yaml:"metrics"`

	// Tracing configures OpenTelemetry tracing.
	Tracing telemetry.TracingConfig `json:"tracing" yaml:"tracing"`

	// DevMode runs against the in-memory synthesis simulator instead of a
	// real engine. No cloud credentials are used and nothing is created.
	DevMode bool `json:"dev_mode" yaml:"dev_mode"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the database file path.
	Path string `json:"path" yaml:"path" validate:"required"`
}

// PolicyConfig configures the admission policy engine.
type PolicyConfig struct {
	// Limits parameterize the built-in policies.
	Limits policy.Limits `json:"limits" yaml:"limits"`

	// Dir optionally names a directory of custom .rego policies.
	Dir string `json:"dir" yaml:"dir"`
}

// WorkerConfig configures the job pool. JobTimeout accepts Go duration
// strings ("30m", "1h").
type WorkerConfig struct {
	// Workers is the number of concurrent job executors.
	Workers int `json:"workers" yaml:"workers"`

	// QueueSize is the job queue capacity.
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// JobTimeout bounds one job's execution.
	JobTimeout Duration `json:"job_timeout" yaml:"job_timeout"`
}

// PoolConfig converts to the worker pool's configuration.
func (c WorkerConfig) PoolConfig() worker.Config {
	return worker.Config{
		Workers:    c.Workers,
		QueueSize:  c.QueueSize,
		JobTimeout: time.Duration(c.JobTimeout),
	}
}

// Duration is a time.Duration that unmarshals from YAML duration strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %s", value.Value)
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// validate is the shared struct validator.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "rangeforge.db"},
		Worker: WorkerConfig{
			Workers:    2,
			QueueSize:  32,
			JobTimeout: Duration(30 * time.Minute),
		},
		Policy: PolicyConfig{
			Limits: policy.Limits{MaxHosts: 50},
		},
		Logging: telemetry.DefaultLoggingConfig(),
		Metrics: telemetry.DefaultMetricsConfig(),
		Tracing: telemetry.DefaultTracingConfig(),
	}
}

// Load reads a YAML configuration file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration's constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Worker.Workers < 0 || c.Worker.QueueSize < 0 {
		return fmt.Errorf("invalid configuration: worker counts must not be negative")
	}
	return nil
}
