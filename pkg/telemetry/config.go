package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration of the installer.
type Config struct {
	// ServiceName identifies the installer in traces and metrics.
	ServiceName string

	// ServiceVersion is the installer version.
	ServiceVersion string

	// Logging contains logging configuration.
	Logging LoggingConfig

	// Tracing contains tracing configuration.
	Tracing TracingConfig

	// Metrics contains metrics configuration.
	Metrics MetricsConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string

	// Format specifies the log format (console, json).
	Format string

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool

	// TimeFormat specifies the timestamp format (unix, unixms, rfc3339).
	TimeFormat string
}

// TracingConfig configures tracing of install and uninstall runs.
type TracingConfig struct {
	// Exporter specifies the trace exporter (otlp, stdout, none).
	Exporter string

	// Endpoint is the OTLP gRPC endpoint, host:port.
	Endpoint string

	// Insecure disables TLS for the exporter connection.
	Insecure bool

	// Headers are additional headers for the OTLP exporter.
	Headers map[string]string

	// ExportTimeout bounds each export.
	ExportTimeout time.Duration
}

// MetricsConfig configures run metrics.
type MetricsConfig struct {
	// Namespace is the metrics name prefix.
	Namespace string

	// TextfilePath is where metrics are written on shutdown, in the
	// Prometheus text format. Empty disables writing.
	TextfilePath string

	// Buckets are the duration histogram buckets in seconds.
	Buckets []float64
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "froyo-installer",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Exporter:      "none",
			Insecure:      true,
			Headers:       make(map[string]string),
			ExportTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Namespace: "froyo_installer",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	switch c.Tracing.Exporter {
	case "none", "stdout":
	case "otlp":
		if c.Tracing.Endpoint == "" {
			return fmt.Errorf("the otlp trace exporter needs an endpoint")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}

	if c.Metrics.Namespace == "" {
		return fmt.Errorf("metrics namespace is required")
	}

	return nil
}
