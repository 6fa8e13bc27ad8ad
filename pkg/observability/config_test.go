package observability_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/scopestat/pkg/observability"
)

func TestDefaultConfig_HasSensibleDefaults(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()

	assert.Equal(t, "scopestat", cfg.ServiceName)
	assert.Equal(t, observability.ModeCLI, cfg.Mode)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 5, cfg.ShutdownTimeoutSec)
	assert.Empty(t, cfg.OTLPEndpoint)
	assert.Empty(t, cfg.MetricsTextfile)
	assert.False(t, cfg.TraceVerbose)
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, observability.ParseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, observability.ParseLogLevel("WARN"))
	assert.Equal(t, slog.LevelError, observability.ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, observability.ParseLogLevel("chatty"))
}
