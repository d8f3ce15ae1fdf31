// Package version exposes build identity for logs and the health endpoint.
package version

import "runtime/debug"

// AppName identifies this service in logs and HTTP headers.
const AppName = "callpilot"

// gitCommitOverride can be set at build time:
//
//	go build -ldflags "-X github.com/callpilot/callpilot/pkg/version.gitCommitOverride=abc1234"
var gitCommitOverride string

// GitCommit returns the short VCS revision the binary was built from,
// or "dev" when built outside version control.
func GitCommit() string {
	if gitCommitOverride != "" {
		return gitCommitOverride
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 8 {
				return s.Value[:8]
			}
		}
	}
	return "dev"
}

// Full returns "callpilot/<commit>".
func Full() string {
	return AppName + "/" + GitCommit()
}
