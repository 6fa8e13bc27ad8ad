// Package config provides configuration loading and validation for scopestat.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/scopestat/pkg/report"
	"github.com/Sumatoshi-tech/scopestat/pkg/stats"
)

// Sentinel validation errors.
var (
	ErrInvalidWorkers    = errors.New("batch workers must be positive")
	ErrInvalidTimeout    = errors.New("analyzer timeout must not be negative")
	ErrInvalidSize       = errors.New("invalid size")
	ErrInvalidThreshold  = errors.New("complexity threshold must be in (0, 1]")
	ErrInvalidTopN       = errors.New("top-N limits must be positive")
	ErrInvalidBuckets    = errors.New("distribution buckets must be positive")
	ErrInvalidExtensions = errors.New("at least one source extension is required")
	ErrInvalidRatio      = errors.New("sample ratio must be in [0, 1]")
)

// FileName is the config file looked up in the working and home directories.
const FileName = ".scopestat"

// EnvPrefix prefixes environment overrides, e.g. SCOPESTAT_BATCH_WORKERS.
const EnvPrefix = "SCOPESTAT"

// Config holds all configuration for a scopestat run.
type Config struct {
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Output    OutputConfig    `mapstructure:"output"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DiscoveryConfig selects the files of a batch.
type DiscoveryConfig struct {
	ExcludeDirs         []string `mapstructure:"exclude_dirs"`
	ExcludeGlobs        []string `mapstructure:"exclude_globs"`
	Extensions          []string `mapstructure:"extensions"`
	DeclarationSuffixes []string `mapstructure:"declaration_suffixes"`
	RespectGitignore    bool     `mapstructure:"respect_gitignore"`
	SkipVendor          bool     `mapstructure:"skip_vendor"`
}

// AnalyzerConfig describes the external analyzer invocation.
type AnalyzerConfig struct {
	Binary string `mapstructure:"binary"`
	// MaxOutput is a humanized size such as "10MB".
	MaxOutput      string        `mapstructure:"max_output"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ValidateSchema bool          `mapstructure:"validate_schema"`
}

// BatchConfig tunes the collector.
type BatchConfig struct {
	Workers int `mapstructure:"workers"`
}

// StatsConfig tunes aggregation.
type StatsConfig struct {
	Variant             string  `mapstructure:"variant"`
	ComplexityThreshold float64 `mapstructure:"complexity_threshold"`
	TopFiles            int     `mapstructure:"top_files"`
	TopSymbols          int     `mapstructure:"top_symbols"`
	Buckets             int     `mapstructure:"buckets"`
}

// OutputConfig controls report files and console output.
type OutputConfig struct {
	Dir      string   `mapstructure:"dir"`
	Formats  []string `mapstructure:"formats"`
	Compress bool     `mapstructure:"compress"`
	Silent   bool     `mapstructure:"silent"`
	NoColor  bool     `mapstructure:"no_color"`
}

// CacheConfig controls the on-disk result cache and run journal.
type CacheConfig struct {
	Path string `mapstructure:"path"`
	// MemorySize is a humanized size for the in-memory LRU in front of SQLite.
	MemorySize string `mapstructure:"memory_size"`
	Enabled    bool   `mapstructure:"enabled"`
}

// TelemetryConfig holds OpenTelemetry and Prometheus settings.
type TelemetryConfig struct {
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders     string  `mapstructure:"otlp_headers"`
	Environment     string  `mapstructure:"environment"`
	MetricsTextfile string  `mapstructure:"metrics_textfile"`
	SampleRatio     float64 `mapstructure:"sample_ratio"`
	OTLPInsecure    bool    `mapstructure:"otlp_insecure"`
	TraceVerbose    bool    `mapstructure:"trace_verbose"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// LoadConfig loads configuration from defaults, the config file and
// SCOPESTAT_* environment variables. An empty configPath searches for
// .scopestat.yaml in the working directory and then $HOME; a missing file
// there is not an error.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(FileName)
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("$HOME")
	}

	viperCfg.SetEnvPrefix(EnvPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := config.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	viperCfg := viper.New()
	setDefaults(viperCfg)

	var config Config

	// Defaults always decode.
	_ = viperCfg.Unmarshal(&config)

	return &config
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("discovery.exclude_dirs", DefaultExcludeDirs)
	viperCfg.SetDefault("discovery.exclude_globs", []string{})
	viperCfg.SetDefault("discovery.extensions", DefaultExtensions)
	viperCfg.SetDefault("discovery.declaration_suffixes", DefaultDeclarationSuffixes)
	viperCfg.SetDefault("discovery.respect_gitignore", DefaultRespectGitignore)
	viperCfg.SetDefault("discovery.skip_vendor", DefaultSkipVendor)

	viperCfg.SetDefault("analyzer.binary", DefaultAnalyzerBinary)
	viperCfg.SetDefault("analyzer.max_output", DefaultMaxOutput)
	viperCfg.SetDefault("analyzer.timeout", DefaultAnalyzerTimeout)
	viperCfg.SetDefault("analyzer.validate_schema", DefaultValidateSchema)

	viperCfg.SetDefault("batch.workers", DefaultWorkers)

	viperCfg.SetDefault("stats.variant", DefaultVariant)
	viperCfg.SetDefault("stats.complexity_threshold", stats.DefaultComplexityThreshold)
	viperCfg.SetDefault("stats.top_files", stats.DefaultTopFiles)
	viperCfg.SetDefault("stats.top_symbols", stats.DefaultTopSymbols)
	viperCfg.SetDefault("stats.buckets", stats.DefaultBuckets)

	viperCfg.SetDefault("output.dir", DefaultOutputDir)
	viperCfg.SetDefault("output.formats", DefaultFormats)
	viperCfg.SetDefault("output.compress", false)
	viperCfg.SetDefault("output.silent", false)
	viperCfg.SetDefault("output.no_color", false)

	viperCfg.SetDefault("cache.enabled", DefaultCacheEnabled)
	viperCfg.SetDefault("cache.path", DefaultCachePath)
	viperCfg.SetDefault("cache.memory_size", DefaultCacheMemory)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.environment", "")
	viperCfg.SetDefault("telemetry.metrics_textfile", "")
	viperCfg.SetDefault("telemetry.sample_ratio", 0.0)
	viperCfg.SetDefault("telemetry.trace_verbose", false)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.json", false)
}

// Validate checks the configuration for values no run can use.
func (c *Config) Validate() error {
	if len(c.Discovery.Extensions) == 0 {
		return ErrInvalidExtensions
	}

	if c.Batch.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Batch.Workers)
	}

	if c.Analyzer.Timeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, c.Analyzer.Timeout)
	}

	_, err := c.MaxOutputBytes()
	if err != nil {
		return err
	}

	_, err = c.CacheMemoryBytes()
	if err != nil {
		return err
	}

	_, err = stats.ParseVariant(c.Stats.Variant)
	if err != nil {
		return err
	}

	if c.Stats.ComplexityThreshold <= 0 || c.Stats.ComplexityThreshold > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidThreshold, c.Stats.ComplexityThreshold)
	}

	if c.Stats.TopFiles <= 0 || c.Stats.TopSymbols <= 0 {
		return fmt.Errorf("%w: files=%d symbols=%d", ErrInvalidTopN, c.Stats.TopFiles, c.Stats.TopSymbols)
	}

	if c.Stats.Buckets <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBuckets, c.Stats.Buckets)
	}

	_, err = report.ParseFormats(c.Output.Formats)
	if err != nil {
		return err
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidRatio, c.Telemetry.SampleRatio)
	}

	return nil
}

// MaxOutputBytes parses the analyzer output cap.
func (c *Config) MaxOutputBytes() (int64, error) {
	return parseSize("analyzer.max_output", c.Analyzer.MaxOutput)
}

// CacheMemoryBytes parses the in-memory cache budget.
func (c *Config) CacheMemoryBytes() (int64, error) {
	return parseSize("cache.memory_size", c.Cache.MemorySize)
}

// StatsOptions converts the stats section into engine options.
func (c *Config) StatsOptions() (stats.Options, error) {
	variant, err := stats.ParseVariant(c.Stats.Variant)
	if err != nil {
		return stats.Options{}, err
	}

	return stats.Options{
		Variant:             variant,
		ComplexityThreshold: c.Stats.ComplexityThreshold,
		TopFiles:            c.Stats.TopFiles,
		TopSymbols:          c.Stats.TopSymbols,
		Buckets:             c.Stats.Buckets,
	}, nil
}

func parseSize(key, raw string) (int64, error) {
	size, err := humanize.ParseBytes(raw)
	if err != nil || size == 0 || size > uint64(1<<62) {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidSize, key, raw)
	}

	return int64(size), nil
}
