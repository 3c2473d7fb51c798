// Package version carries build metadata set with -ldflags, e.g.
//
//	-X 'github.com/janekbaraniewski/openpulse/internal/version.Version=v0.3.0'
//	-X 'github.com/janekbaraniewski/openpulse/internal/version.CommitHash=abc1234'
//	-X 'github.com/janekbaraniewski/openpulse/internal/version.BuildDate=2026-10-01'
package version

import "runtime"

var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// String reports the version, commit, build date and Go toolchain.
func String() string {
	return Version + " (" + CommitHash + ", " + runtime.Version() + ") built " + BuildDate
}
