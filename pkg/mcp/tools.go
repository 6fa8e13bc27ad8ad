package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/scopestat/pkg/model"
	"github.com/Sumatoshi-tech/scopestat/pkg/pipeline"
	"github.com/Sumatoshi-tech/scopestat/pkg/stats"
)

// Tool name constants.
const (
	ToolNameBatch = "scopestat_batch"
	ToolNameStats = "scopestat_stats"
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptyRoot indicates the root parameter is empty.
	ErrEmptyRoot = errors.New("root parameter is required and must not be empty")
	// ErrEmptyResultsPath indicates the results_path parameter is empty.
	ErrEmptyResultsPath = errors.New("results_path parameter is required and must not be empty")
	// ErrPathNotAbsolute indicates a path parameter is relative.
	ErrPathNotAbsolute = errors.New("path must be absolute")
)

// Input types (auto-generate JSON schemas via struct tags).

// BatchInput is the input schema for the scopestat_batch tool.
type BatchInput struct {
	Root           string   `json:"root"                      jsonschema:"absolute path of the directory to analyze"`
	Analyzer       string   `json:"analyzer,omitempty"        jsonschema:"analyzer executable (default from configuration)"`
	Variant        string   `json:"variant,omitempty"         jsonschema:"metric variant: auto complexity or quality"`
	Extensions     []string `json:"extensions,omitempty"      jsonschema:"source file extensions to include (default .ts)"`
	Workers        int      `json:"workers,omitempty"         jsonschema:"number of concurrent analyzer processes"`
	IncludeResults bool     `json:"include_results,omitempty" jsonschema:"include every per-file record in the response"`
}

// StatsInput is the input schema for the scopestat_stats tool.
type StatsInput struct {
	ResultsPath string `json:"results_path"      jsonschema:"absolute path of an analysis-results.json file"`
	Variant     string `json:"variant,omitempty" jsonschema:"metric variant: auto complexity or quality"`
}

// BatchOutput is the payload of the scopestat_batch tool.
type BatchOutput struct {
	Statistics    *stats.Statistics         `json:"statistics,omitempty"`
	Errors        []model.FileError         `json:"errors"`
	Results       []*model.SourceFileRecord `json:"results,omitempty"`
	TotalFiles    int                       `json:"totalFiles"`
	AnalyzedFiles int                       `json:"analyzedFiles"`
	FailedFiles   int                       `json:"failedFiles"`
}

// Output type (used as structured output for generic AddTool).

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

func (in BatchInput) variantName() string { return in.Variant }

func (in StatsInput) variantName() string { return in.Variant }

// fileCounts returns the analyzed and failed file totals carried by the output.
func (o ToolOutput) fileCounts() (analyzed, failed int) {
	switch data := o.Data.(type) {
	case BatchOutput:
		return data.AnalyzedFiles, data.FailedFiles
	case *stats.Statistics:
		return data.Files, 0
	default:
		return 0, 0
	}
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

func validateAbsPath(path string, empty error) error {
	if path == "" {
		return empty
	}

	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %q", ErrPathNotAbsolute, path)
	}

	return nil
}

func (s *Server) handleBatch(ctx context.Context, _ *mcpsdk.CallToolRequest, input BatchInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateAbsPath(input.Root, ErrEmptyRoot)
	if err != nil {
		return errorResult(err)
	}

	cfg := *s.config

	if input.Analyzer != "" {
		cfg.Analyzer.Binary = input.Analyzer
	}

	if input.Variant != "" {
		cfg.Stats.Variant = input.Variant
	}

	if len(input.Extensions) > 0 {
		cfg.Discovery.Extensions = input.Extensions
	}

	if input.Workers > 0 {
		cfg.Batch.Workers = input.Workers
	}

	err = cfg.Validate()
	if err != nil {
		return errorResult(err)
	}

	out, err := pipeline.Run(ctx, input.Root, pipeline.Options{
		Config:   &cfg,
		Logger:   s.logger,
		Tracer:   s.tracer,
		Analyzer: s.analyzer,
		Base:     input.Root,
	})
	if err != nil {
		return errorResult(err)
	}

	payload := BatchOutput{
		Statistics:    out.Stats,
		Errors:        out.Result.Errors,
		TotalFiles:    out.Result.TotalFiles,
		AnalyzedFiles: out.Result.AnalyzedFiles,
		FailedFiles:   out.Result.FailedFiles,
	}

	if input.IncludeResults {
		payload.Results = out.Result.Results
	}

	return jsonResult(payload)
}

func (s *Server) handleStats(_ context.Context, _ *mcpsdk.CallToolRequest, input StatsInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateAbsPath(input.ResultsPath, ErrEmptyResultsPath)
	if err != nil {
		return errorResult(err)
	}

	opts, err := s.config.StatsOptions()
	if err != nil {
		return errorResult(err)
	}

	if input.Variant != "" {
		opts.Variant, err = stats.ParseVariant(input.Variant)
		if err != nil {
			return errorResult(err)
		}
	}

	f, err := os.Open(input.ResultsPath)
	if err != nil {
		return errorResult(fmt.Errorf("open results: %w", err))
	}
	defer f.Close()

	batch, err := model.LoadBatch(f)
	if err != nil {
		return errorResult(err)
	}

	st, err := stats.Compute(batch.Results, opts)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(st)
}
