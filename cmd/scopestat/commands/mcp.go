package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/scopestat/pkg/config"
	"github.com/Sumatoshi-tech/scopestat/pkg/mcp"
	"github.com/Sumatoshi-tech/scopestat/pkg/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes scopestat as tools that AI agents can discover and invoke:
  - scopestat_batch: analyze a directory with the external analyzer and aggregate statistics
  - scopestat_stats: recompute statistics from a saved analysis-results.json`,
		Args: cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, nil)
			if err != nil {
				return err
			}

			providers, err := observability.Init(mcpObservabilityConfig(cfg, debug))
			if err != nil {
				return err
			}
			defer shutdownObservability(providers)

			metrics, err := observability.NewToolMetrics(providers.Meter)
			if err != nil {
				return err
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Logger:  providers.Logger,
				Metrics: metrics,
				Tracer:  providers.Tracer,
				Config:  cfg,
			})

			providers.Logger.Info("mcp server listening on stdio", "tools", srv.ListToolNames())

			return srv.Run(cobraCmd.Context())
		},
	}

	cmd.Flags().StringVar(&configPath, flagConfig, "", "Path to a config file")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}

// mcpObservabilityConfig logs JSON to stderr; stdout carries the protocol.
func mcpObservabilityConfig(cfg *config.Config, debug bool) observability.Config {
	obs := observabilityConfig(cfg, observability.ModeMCP)
	obs.LogJSON = true

	if debug {
		obs.LogLevel = slog.LevelDebug
		obs.TraceVerbose = true
	}

	return obs
}
