// Package version reports build metadata. Values injected with -ldflags take
// precedence; otherwise the VCS stamp recorded by the Go toolchain is used.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Set via -ldflags "-X github.com/smazurov/formatsync/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version" example:"1.2.0"`
	GitCommit string `json:"git_commit" example:"3f2a9c1"`
	BuildDate string `json:"build_date" example:"2025-01-09T10:30:00Z"`
	Modified  bool   `json:"modified" doc:"Built from a dirty working tree"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform" example:"linux/arm64"`
}

var buildInfo = sync.OnceValue(func() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromBuildInfo(&info, bi)
	}
	return info
})

func fillFromBuildInfo(info *Info, bi *debug.BuildInfo) {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = shortRevision(s.Value)
			}
		case "vcs.time":
			if info.BuildDate == "" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	if info.GitCommit == "" {
		info.GitCommit = "unknown"
	}
	if info.BuildDate == "" {
		info.BuildDate = "unknown"
	}
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// Get returns version and build information.
func Get() Info {
	return buildInfo()
}

// String returns the version with the commit, e.g. "1.2.0 (3f2a9c1f0b7e)".
func String() string {
	info := Get()
	if info.GitCommit == "unknown" {
		return info.Version
	}
	s := info.Version + " (" + info.GitCommit
	if info.Modified {
		s += "-dirty"
	}
	return s + ")"
}
