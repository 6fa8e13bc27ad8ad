package commands

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/scopestat/pkg/config"
	"github.com/Sumatoshi-tech/scopestat/pkg/observability"
)

func TestObservabilityConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Telemetry.OTLPEndpoint = "collector:4317"
	cfg.Telemetry.OTLPHeaders = "authorization=Bearer x"
	cfg.Telemetry.SampleRatio = 0.5
	cfg.Telemetry.Environment = "ci"
	cfg.Logging.Level = "warn"

	obs := observabilityConfig(cfg, observability.ModeCLI)

	assert.Equal(t, observability.ModeCLI, obs.Mode)
	assert.Equal(t, "collector:4317", obs.OTLPEndpoint)
	assert.Equal(t, map[string]string{"authorization": "Bearer x"}, obs.OTLPHeaders)
	assert.InDelta(t, 0.5, obs.SampleRatio, 1e-9)
	assert.Equal(t, "ci", obs.Environment)
	assert.Equal(t, slog.LevelWarn, obs.LogLevel)
	assert.False(t, obs.LogJSON)
}

func TestMCPObservabilityConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Telemetry.OTLPEndpoint = "collector:4317"

	obs := mcpObservabilityConfig(cfg, false)
	assert.Equal(t, observability.ModeMCP, obs.Mode)
	assert.True(t, obs.LogJSON)
	assert.Equal(t, slog.LevelInfo, obs.LogLevel)
	assert.False(t, obs.TraceVerbose)

	debug := mcpObservabilityConfig(cfg, true)
	assert.Equal(t, slog.LevelDebug, debug.LogLevel)
	assert.True(t, debug.TraceVerbose)
}

func TestNewMCPCommand_Flags(t *testing.T) {
	t.Parallel()

	cmd := NewMCPCommand()

	assert.Equal(t, "mcp", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
	assert.NotNil(t, cmd.Flags().Lookup(flagConfig))
}
