// Package mcp implements a Model Context Protocol server exposing scopestat
// batch analysis and statistics as MCP tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/scopestat/pkg/adapter"
	"github.com/Sumatoshi-tech/scopestat/pkg/config"
	"github.com/Sumatoshi-tech/scopestat/pkg/observability"
	"github.com/Sumatoshi-tech/scopestat/pkg/version"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "scopestat"

	// toolCount is the expected number of registered tools.
	toolCount = 2
)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Logger is an optional structured logger. Nil discards logs.
	Logger *slog.Logger

	// Metrics is an optional tool metrics recorder. Nil disables per-tool metrics.
	Metrics *observability.ToolMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer

	// Config is the base configuration tool inputs are applied to. Nil uses config.Default.
	Config *config.Config

	// Analyzer replaces the external analyzer process of scopestat_batch.
	Analyzer adapter.Func
}

// Server wraps the MCP SDK server with scopestat tool registrations.
type Server struct {
	inner    *mcpsdk.Server
	logger   *slog.Logger
	config   *config.Config
	analyzer adapter.Func
	metrics  *observability.ToolMetrics
	tracer   trace.Tracer
	tools    []string
	mu       sync.RWMutex
}

// NewServer creates a new MCP server with all scopestat tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: version.Resolved(),
		},
		&mcpsdk.ServerOptions{Logger: logger},
	)

	srv := &Server{
		inner:    inner,
		logger:   logger,
		config:   cfg,
		analyzer: deps.Analyzer,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		tools:    make([]string, 0, toolCount),
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameBatch,
		Description: batchToolDescription,
	}, withMetrics(s.metrics, ToolNameBatch, s.config.Stats.Variant, withTracing(s.tracer, ToolNameBatch, s.handleBatch)))

	s.trackTool(ToolNameBatch)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameStats,
		Description: statsToolDescription,
	}, withMetrics(s.metrics, ToolNameStats, s.config.Stats.Variant, withTracing(s.tracer, ToolNameStats, s.handleStats)))

	s.trackTool(ToolNameStats)
}

// mcpSpanPrefix is the prefix for MCP tool span names.
const mcpSpanPrefix = "mcp."

// traceIDMetaKey is the metadata key for trace_id in MCP tool responses.
const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

// variantInput is implemented by tool inputs that select a metric variant.
type variantInput interface {
	variantName() string
}

// withMetrics wraps an MCP tool handler to record call, duration and file
// count metrics per invocation.
func withMetrics[Input any](
	metrics *observability.ToolMetrics,
	toolName, defaultVariant string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if metrics == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		end := metrics.Begin(ctx, toolName)
		defer end()

		result, output, err := handler(ctx, req, input)

		call := observability.ToolCall{
			Tool:     toolName,
			Variant:  defaultVariant,
			Duration: time.Since(start),
			Failed:   err != nil || (result != nil && result.IsError),
		}

		if in, ok := any(input).(variantInput); ok && in.variantName() != "" {
			call.Variant = in.variantName()
		}

		call.AnalyzedFiles, call.FailedFiles = output.fileCounts()

		metrics.Record(ctx, call)

		return result, output, err
	}
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

// Tool description constants.
const (
	batchToolDescription = "Run the external analyzer over every eligible source file under a directory " +
		"and aggregate the per-file records into statistics (averages, score distribution, " +
		"top files and symbols, symbol kinds, quality metric rollups). " +
		"Failed files are listed and excluded from the statistics."

	statsToolDescription = "Recompute statistics from a saved analysis-results.json batch report."
)
