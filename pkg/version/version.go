// Package version exposes build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time, e.g.
// -ldflags "-X github.com/Sumatoshi-tech/scopestat/pkg/version.Version=v1.2.0".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Resolved returns Version, falling back to the module version recorded by
// `go install` when no version was injected.
func Resolved() string {
	if Version != "dev" {
		return Version
	}

	info, ok := debug.ReadBuildInfo()
	if ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	return Version
}

// String formats the full build description.
func String() string {
	return fmt.Sprintf("scopestat %s (commit %s, built %s, %s/%s, %s)",
		Resolved(), Commit, Date, runtime.GOOS, runtime.GOARCH, runtime.Version())
}
