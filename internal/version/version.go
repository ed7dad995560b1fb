package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version and Commit are set with -ldflags "-X" at build time. Without them
// the module version and VCS revision embedded by the go tool are used.
var (
	Version = "dev"
	Commit  = ""
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	if Commit == "" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				Commit = s.Value
			}
		}
	}
}

// String formats the build for display, e.g. "gatekeeper v1.2.0 (abc1234) linux/amd64".
func String() string {
	return format(Version, Commit, runtime.GOOS, runtime.GOARCH)
}

func format(version, commit, goos, goarch string) string {
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if commit == "" {
		return fmt.Sprintf("gatekeeper %s %s/%s", version, goos, goarch)
	}
	return fmt.Sprintf("gatekeeper %s (%s) %s/%s", version, commit, goos, goarch)
}
