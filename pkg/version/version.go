// Package version provides build and version information for shardex.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Version is the current version of shardex.
// Set via ldflags at build time:
// -X github.com/Aman-CERP/shardex/pkg/version.Version=$(VERSION)
var Version = "dev"

// Build information set via ldflags at build time.
var (
	// Commit is the git commit hash.
	Commit = "unknown"

	// Date is the build date in RFC3339 format.
	Date = "unknown"

	// GoVersion is the Go version used to build the binary (set at runtime).
	GoVersion = runtime.Version()
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Bleve     string `json:"bleve,omitempty"`
	Segment   string `json:"segment_format,omitempty"`
}

// Module paths reported in BuildInfo.
const (
	bleveModule   = "github.com/blevesearch/bleve/v2"
	segmentModule = "github.com/blevesearch/zapx/v16"
)

// deps maps linked module paths to versions. It is empty when the binary
// carries no module information (go test, go run).
var deps = sync.OnceValue(func() map[string]string {
	out := map[string]string{}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	for _, dep := range info.Deps {
		v := dep.Version
		if dep.Replace != nil {
			v = dep.Replace.Version
		}
		out[dep.Path] = v
	}
	return out
})

// String returns a formatted version string with all build info.
func String() string {
	s := fmt.Sprintf("shardex %s (commit: %s, built: %s, go: %s", Version, Commit, Date, GoVersion)
	if v := deps()[bleveModule]; v != "" {
		s += ", bleve: " + v
	}
	return s + ")"
}

// Short returns just the version string.
func Short() string {
	return Version
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	d := deps()
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Bleve:     d[bleveModule],
		Segment:   d[segmentModule],
	}
}
