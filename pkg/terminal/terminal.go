// Package terminal provides terminal rendering utilities for CLI output.
package terminal

import (
	"os"
	"strconv"
)

// Default width constants.
const (
	DefaultWidth = 80
	MinWidth     = 60
	MaxWidth     = 120
)

// Config holds terminal rendering configuration.
type Config struct {
	Width   int
	NoColor bool
}

// NewConfig creates a Config from the environment. NO_COLOR disables color.
func NewConfig() Config {
	return Config{
		Width:   DetectWidth(),
		NoColor: os.Getenv("NO_COLOR") != "",
	}
}

// DetectWidth returns the terminal width from the COLUMNS environment variable
// clamped to [MinWidth, MaxWidth], or DefaultWidth if not set or invalid.
func DetectWidth() int {
	columnsEnv := os.Getenv("COLUMNS")
	if columnsEnv == "" {
		return DefaultWidth
	}

	width, err := strconv.Atoi(columnsEnv)
	if err != nil || width <= 0 {
		return DefaultWidth
	}

	return min(max(width, MinWidth), MaxWidth)
}
