// Package build holds the build information injected through -ldflags.
package build

import "runtime"

var (
	ReleaseVersion = "UNKNOWN_VERSION"
	GitCommit      = "UNKNOWN_GIT_COMMIT"
	BuildTime      = "UNKNOWN_BUILD_TIME"
	GoVersion      = runtime.Version()
)
