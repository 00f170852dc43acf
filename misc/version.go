// Package misc keeps program identity, values are set at link time:
//
//	go build -ldflags "-X urlrev/misc.version=1.2.3 -X urlrev/misc.gitHash=$(git rev-parse --short HEAD)"
package misc

import (
	"runtime/debug"
)

const appName = "urlrev"

var (
	version = "dev"
	gitHash = ""
)

// GetAppName returns name used for log files, reports and logger.
func GetAppName() string {
	return appName
}

func GetVersion() string {
	return version
}

// GetGitHash returns commit program was built from, falling back to VCS
// information embedded by go build.
func GetGitHash() string {
	if len(gitHash) > 0 {
		return gitHash
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				return s.Value[:7]
			}
		}
	}
	return "unknown"
}
