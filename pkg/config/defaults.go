package config

import "time"

// Discovery defaults.
var (
	DefaultExcludeDirs         = []string{"node_modules", ".git", "dist", "build", "__tests__", "test"}
	DefaultExtensions          = []string{".ts"}
	DefaultDeclarationSuffixes = []string{".d.ts"}
)

const (
	DefaultRespectGitignore = false
	DefaultSkipVendor       = false
)

// Analyzer defaults.
const (
	DefaultAnalyzerBinary  = "./target/release/entrota"
	DefaultMaxOutput       = "10MiB"
	DefaultAnalyzerTimeout = 60 * time.Second
	DefaultValidateSchema  = true
)

// Batch defaults.
const DefaultWorkers = 1

// Stats defaults.
const DefaultVariant = "auto"

// Output defaults.
const DefaultOutputDir = "."

// DefaultFormats are the report formats written without configuration.
var DefaultFormats = []string{"json", "csv"}

// Cache defaults.
const (
	DefaultCacheEnabled = false
	DefaultCachePath    = ".scopestat/cache.db"
	DefaultCacheMemory  = "32MiB"
)

// Logging defaults.
const DefaultLogLevel = "info"
