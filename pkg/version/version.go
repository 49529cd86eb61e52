// Package version exposes the build-time identity of the running binary,
// derived from Go's embedded VCS build info (no -ldflags required).
package version

import "runtime/debug"

// AppName names the binary in version strings and log lines.
const AppName = "qaorchd"

// GitCommit is the short (8-char) git commit hash read from build info.
// It is "dev" outside a VCS checkout (e.g. `go test`).
var GitCommit = initGitCommit()

func initGitCommit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 8 {
				return s.Value[:8]
			}
			return s.Value
		}
	}
	return "dev"
}

// Full returns "qaorchd/<commit>" for user-agent strings and logging.
func Full() string {
	return AppName + "/" + GitCommit
}
