package telemetry

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `json:"level" yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`

	// Format selects json or console output.
	Format string `json:"format" yaml:"format" validate:"omitempty,oneof=json console"`

	// Output is stdout, stderr, or a file path.
	Output string `json:"output" yaml:"output"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	// Enabled turns metric collection on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Namespace prefixes every metric name. Defaults to "rangeforge".
	Namespace string `json:"namespace" yaml:"namespace"`

	// ListenAddr is the scrape endpoint bind address (e.g. ":9464").
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns span export on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Exporter selects the span exporter (stdout, none).
	Exporter string `json:"exporter" yaml:"exporter" validate:"omitempty,oneof=stdout none"`

	// SamplingRate is the head sampling ratio in [0, 1].
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" validate:"gte=0,lte=1"`
}

// DefaultLoggingConfig returns the default logging configuration.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Level: "info", Format: "json", Output: "stderr"}
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true, Namespace: "rangeforge", ListenAddr: ":9464"}
}

// DefaultTracingConfig returns the default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{Enabled: false, Exporter: "none", SamplingRate: 1.0}
}
