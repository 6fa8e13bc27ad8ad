// Package commands implements CLI command handlers for scopestat.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/scopestat/pkg/config"
	"github.com/Sumatoshi-tech/scopestat/pkg/observability"
	"github.com/Sumatoshi-tech/scopestat/pkg/terminal"
	"github.com/Sumatoshi-tech/scopestat/pkg/version"
)

// Flag names shared by several commands.
const (
	flagConfig   = "config"
	flagVariant  = "variant"
	flagNoColor  = "no-color"
	flagLogLevel = "log-level"
	flagLogJSON  = "log-json"
)

// ErrTargetNotDirectory is returned when the run target is not a directory.
var ErrTargetNotDirectory = errors.New("target is not a directory")

// loadConfig reads the configuration and lets apply override it with flags.
// The result is validated after the overrides.
func loadConfig(path string, apply func(*config.Config)) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if apply != nil {
		apply(cfg)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// observabilityConfig builds the telemetry setup for cfg. OTEL_* environment
// variables fill endpoint settings the configuration leaves empty.
func observabilityConfig(cfg *config.Config, mode observability.AppMode) observability.Config {
	obs := observability.DefaultConfig()
	obs.ServiceVersion = version.Resolved()
	obs.Mode = mode
	obs.Environment = cfg.Telemetry.Environment
	obs.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obs.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obs.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obs.MetricsTextfile = cfg.Telemetry.MetricsTextfile
	obs.SampleRatio = cfg.Telemetry.SampleRatio
	obs.TraceVerbose = cfg.Telemetry.TraceVerbose
	obs.LogLevel = observability.ParseLogLevel(cfg.Logging.Level)
	obs.LogJSON = cfg.Logging.JSON

	if obs.OTLPEndpoint == "" {
		obs.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		obs.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
		obs.OTLPInsecure = obs.OTLPInsecure || os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	}

	return obs
}

// shutdownObservability flushes telemetry, logging instead of failing.
func shutdownObservability(providers observability.Providers) {
	err := providers.Shutdown(context.Background())
	if err != nil {
		providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}

func terminalConfig(noColor bool) terminal.Config {
	term := terminal.NewConfig()
	term.NoColor = term.NoColor || noColor

	return term
}

// applyLogging copies the logging flags onto cfg when set.
func applyLogging(cmd *cobra.Command, cfg *config.Config, level string, jsonLogs bool) {
	if cmd.Flags().Changed(flagLogLevel) {
		cfg.Logging.Level = level
	}

	if cmd.Flags().Changed(flagLogJSON) {
		cfg.Logging.JSON = jsonLogs
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
