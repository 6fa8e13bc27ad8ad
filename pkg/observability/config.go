// Package observability provides OpenTelemetry-based tracing, metrics, and
// structured logging for the scopestat CLI and MCP modes.
package observability

import "log/slog"

// AppMode identifies the application execution mode.
type AppMode string

const (
	// ModeCLI is the CLI command execution mode.
	ModeCLI AppMode = "cli"
	// ModeMCP is the MCP stdio server mode.
	ModeMCP AppMode = "mcp"
)

const (
	// defaultServiceName is the default OTel service name.
	defaultServiceName = "scopestat"

	// defaultShutdownTimeoutSec is the default shutdown timeout in seconds.
	defaultShutdownTimeoutSec = 5
)

// Config holds all observability configuration.
type Config struct {
	// OTLPHeaders are additional gRPC metadata headers for the OTLP exporter.
	OTLPHeaders map[string]string

	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the semantic version of the running binary.
	ServiceVersion string

	// Environment is the deployment environment (e.g. "ci", "dev").
	Environment string

	// Mode identifies how the binary was launched.
	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables OTLP export.
	OTLPEndpoint string

	// MetricsTextfile, when set, receives a Prometheus text-format snapshot of
	// all metrics at shutdown (node-exporter textfile collector layout).
	MetricsTextfile string

	// SampleRatio is the trace sampling ratio (0.0 to 1.0).
	// Zero keeps the parent-based always-on default.
	SampleRatio float64

	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level

	// ShutdownTimeoutSec is the maximum seconds to wait for flush on shutdown.
	ShutdownTimeoutSec int

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool

	// TraceVerbose enables per-file spans. When false only the batch span is recorded.
	TraceVerbose bool

	// LogJSON enables JSON-formatted log output.
	LogJSON bool
}

// DefaultConfig returns a Config with defaults for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}

// ParseLogLevel maps a level name to a slog level. Unknown names yield info.
func ParseLogLevel(name string) slog.Level {
	var level slog.Level

	err := level.UnmarshalText([]byte(name))
	if err != nil {
		return slog.LevelInfo
	}

	return level
}
