// Package buildinfo carries version metadata stamped in by the linker:
//
//	go build -ldflags "-X github.com/m3rciful/vpnbot/core/buildinfo.Version=v0.3.0 \
//	  -X github.com/m3rciful/vpnbot/core/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/m3rciful/vpnbot/core/buildinfo.Date=$(date -u +%FT%TZ)"
package buildinfo

import "log/slog"

var (
	Version = "dev"
	Commit  = "local"
	// Date is RFC3339; empty for local builds.
	Date = ""
)

// Attrs returns the build metadata as log attributes.
func Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("build_version", Version),
		slog.String("build_commit", Commit),
		slog.String("build_time", Date),
	}
}
