// Package adapter invokes the external analyzer executable for a single file
// and decodes its JSON record.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/scopestat/pkg/adapter/schema"
	"github.com/Sumatoshi-tech/scopestat/pkg/model"
)

// Kind classifies why an analyzer invocation failed.
type Kind string

// Failure kinds.
const (
	KindNotFound  Kind = "not_found"
	KindExit      Kind = "exit"
	KindMalformed Kind = "malformed"
	KindOversized Kind = "oversized"
	KindTimeout   Kind = "timeout"
	KindCanceled  Kind = "canceled"
)

// Defaults for analyzer invocation.
const (
	DefaultBinary         = "./target/release/entrota"
	DefaultMaxOutputBytes = 10 * 1024 * 1024
	DefaultTimeout        = 60 * time.Second

	// maxStderrBytes bounds the diagnostic text kept from stderr.
	maxStderrBytes = 64 * 1024
	// waitDelay bounds how long Wait blocks on inherited pipes after a kill.
	waitDelay = 2 * time.Second
)

// Sentinel errors wrapped by AnalysisError.
var (
	ErrAnalyzerNotFound = errors.New("analyzer executable not found")
	ErrAnalyzerExit     = errors.New("analyzer exited with failure")
	ErrMalformedOutput  = errors.New("analyzer output is not a valid record")
	ErrOutputTooLarge   = errors.New("analyzer output exceeds limit")
	ErrTimeout          = errors.New("analyzer timed out")
	ErrCanceled         = errors.New("analysis canceled")
)

// AnalysisError describes a failed invocation for one file.
type AnalysisError struct {
	Err     error
	Path    string
	Kind    Kind
	Message string
}

// Error returns the diagnostic message recorded in batch results.
func (e *AnalysisError) Error() string {
	return e.Message
}

// Unwrap returns the sentinel or underlying error.
func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or an empty kind when err is not an AnalysisError.
func KindOf(err error) Kind {
	var analysisErr *AnalysisError
	if errors.As(err, &analysisErr) {
		return analysisErr.Kind
	}

	return ""
}

// Func adapts a plain function to the analyzer interface used by the batch collector.
type Func func(ctx context.Context, path string) (*model.SourceFileRecord, error)

// Analyze calls f.
func (f Func) Analyze(ctx context.Context, path string) (*model.SourceFileRecord, error) {
	return f(ctx, path)
}

// Options configures a Runner.
type Options struct {
	Logger *slog.Logger
	// Binary is the analyzer executable.
	Binary string
	// Dir is the working directory of the analyzer process; relative file
	// paths are resolved against it.
	Dir string
	// Env is appended to the inherited environment of the analyzer process.
	Env            []string
	MaxOutputBytes int64
	// Timeout bounds one invocation. Zero disables the limit.
	Timeout        time.Duration
	ValidateSchema bool
}

// Runner invokes the analyzer once per file.
type Runner struct {
	logger    *slog.Logger
	schema    *gojsonschema.Schema
	binary    string
	dir       string
	env       []string
	maxOutput int64
	timeout   time.Duration
}

// NewRunner builds a Runner. The embedded record schema is compiled when
// validation is enabled.
func NewRunner(opts Options) (*Runner, error) {
	runner := &Runner{
		logger:    opts.Logger,
		binary:    opts.Binary,
		dir:       opts.Dir,
		env:       opts.Env,
		maxOutput: opts.MaxOutputBytes,
		timeout:   opts.Timeout,
	}

	if runner.logger == nil {
		runner.logger = slog.Default()
	}

	if runner.binary == "" {
		runner.binary = DefaultBinary
	}

	if runner.maxOutput <= 0 {
		runner.maxOutput = DefaultMaxOutputBytes
	}

	if opts.ValidateSchema {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema.RecordSchema))
		if err != nil {
			return nil, fmt.Errorf("compile record schema: %w", err)
		}

		runner.schema = compiled
	}

	return runner, nil
}

// Binary returns the analyzer executable path.
func (r *Runner) Binary() string {
	return r.binary
}

// Analyze runs `<binary> view <path> --format json` and decodes the record.
// The child process is always waited for before Analyze returns.
func (r *Runner) Analyze(ctx context.Context, path string) (*model.SourceFileRecord, error) {
	runCtx, cancel := r.invocationContext(ctx)
	defer cancel()

	stdout := &cappedBuffer{limit: r.maxOutput, onOverflow: cancel}
	stderr := &cappedBuffer{limit: maxStderrBytes}

	cmd := exec.CommandContext(runCtx, r.binary, "view", path, "--format", "json")
	cmd.Dir = r.dir

	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()

	startErr := cmd.Start()
	if startErr != nil {
		return nil, r.startFailure(path, startErr)
	}

	waitErr := cmd.Wait()

	r.logger.DebugContext(ctx, "analyzer finished",
		"path", path, "duration", time.Since(start), "stdout_bytes", stdout.size)

	switch {
	case stdout.Overflowed():
		return nil, &AnalysisError{
			Path: path, Kind: KindOversized, Err: ErrOutputTooLarge,
			Message: fmt.Sprintf("analyzer output exceeds %d bytes", r.maxOutput),
		}
	case ctx.Err() != nil:
		return nil, &AnalysisError{Path: path, Kind: KindCanceled, Err: ErrCanceled, Message: ErrCanceled.Error()}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return nil, &AnalysisError{
			Path: path, Kind: KindTimeout, Err: ErrTimeout,
			Message: fmt.Sprintf("analyzer timed out after %s", r.timeout),
		}
	case waitErr != nil:
		return nil, &AnalysisError{
			Path: path, Kind: KindExit, Err: fmt.Errorf("%w: %w", ErrAnalyzerExit, waitErr),
			Message: diagnostic(stderr.String(), waitErr.Error()),
		}
	}

	return r.decode(path, stdout.Bytes())
}

func (r *Runner) invocationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}

	return context.WithCancel(ctx)
}

func (r *Runner) startFailure(path string, err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return &AnalysisError{
			Path: path, Kind: KindNotFound, Err: fmt.Errorf("%w: %w", ErrAnalyzerNotFound, err),
			Message: fmt.Sprintf("analyzer %s not found: %v", r.binary, err),
		}
	}

	return &AnalysisError{
		Path: path, Kind: KindExit, Err: fmt.Errorf("%w: %w", ErrAnalyzerExit, err),
		Message: err.Error(),
	}
}

func (r *Runner) decode(path string, output []byte) (*model.SourceFileRecord, error) {
	if r.schema != nil {
		result, err := r.schema.Validate(gojsonschema.NewBytesLoader(output))
		if err != nil {
			return nil, malformed(path, err)
		}

		if !result.Valid() {
			return nil, malformed(path, schemaViolation(result.Errors()))
		}
	}

	// The schema is optional; a record must still be an object carrying loc.
	var fields map[string]json.RawMessage

	unmarshalErr := json.Unmarshal(output, &fields)
	if unmarshalErr != nil {
		return nil, malformed(path, unmarshalErr)
	}

	if fields == nil {
		return nil, malformed(path, errNullRecord)
	}

	if _, ok := fields[locField]; !ok {
		return nil, malformed(path, errMissingLOC)
	}

	var record model.SourceFileRecord

	unmarshalErr = json.Unmarshal(output, &record)
	if unmarshalErr != nil {
		return nil, malformed(path, unmarshalErr)
	}

	record.Normalize(path)

	return &record, nil
}

// locField is the one key every record must carry.
const locField = "loc"

var (
	errNullRecord = errors.New("record is null")
	errMissingLOC = errors.New(`record has no "loc" field`)
)

func malformed(path string, err error) error {
	return &AnalysisError{
		Path: path, Kind: KindMalformed, Err: fmt.Errorf("%w: %w", ErrMalformedOutput, err),
		Message: fmt.Sprintf("invalid analyzer output: %v", err),
	}
}

// schemaViolationLimit caps how many schema errors are joined into one message.
const schemaViolationLimit = 3

func schemaViolation(resultErrors []gojsonschema.ResultError) error {
	parts := make([]string, 0, schemaViolationLimit)

	for i, verr := range resultErrors {
		if i == schemaViolationLimit {
			parts = append(parts, fmt.Sprintf("and %d more", len(resultErrors)-schemaViolationLimit))

			break
		}

		parts = append(parts, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
	}

	return errors.New(strings.Join(parts, "; "))
}

// diagnostic prefers the analyzer's own stderr over the generic exit message.
func diagnostic(stderr, fallback string) string {
	trimmed := strings.TrimSpace(stderr)
	if trimmed != "" {
		return trimmed
	}

	return fallback
}

// cappedBuffer keeps at most limit bytes. Excess output is drained and
// discarded so the child never blocks on a full pipe; onOverflow fires once.
type cappedBuffer struct {
	onOverflow func()
	buf        bytes.Buffer
	limit      int64
	size       int64
	mu         sync.Mutex
	overflowed bool
}

// Write implements io.Writer.
func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.size += int64(len(p))

	if c.overflowed {
		return len(p), nil
	}

	room := c.limit - int64(c.buf.Len())
	if int64(len(p)) > room {
		c.overflowed = true

		if c.onOverflow != nil {
			c.onOverflow()
		}

		return len(p), nil
	}

	c.buf.Write(p)

	return len(p), nil
}

// Overflowed reports whether more than limit bytes were written.
func (c *cappedBuffer) Overflowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.overflowed
}

// Bytes returns the retained output.
func (c *cappedBuffer) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.buf.Bytes()
}

// String returns the retained output as text.
func (c *cappedBuffer) String() string {
	return string(c.Bytes())
}
