// Package version reports the build version of robotrpc binaries.
package version

import (
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/robotrpc"

// buildVersion is set via -ldflags "-X pkt.systems/robotrpc/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running build.
type Info struct {
	Version  string
	Module   string
	Revision string
	Time     time.Time
	Dirty    bool
}

// Get collects build information from the linker flag and the embedded
// build info.
func Get() Info {
	info := Info{Version: strings.TrimSpace(buildVersion), Module: defaultModule}
	bi, ok := debug.ReadBuildInfo()
	if ok {
		if p := strings.TrimSpace(bi.Main.Path); p != "" {
			info.Module = p
		}
		readVCS(bi, &info)
		if info.Version == "" {
			if v := strings.TrimSpace(bi.Main.Version); v != "" && v != "(devel)" {
				info.Version = v
			}
		}
	}
	if info.Version == "" {
		info.Version = pseudo(info)
	}
	return info
}

// Current returns the best available version string.
func Current() string {
	return Get().Version
}

func readVCS(bi *debug.BuildInfo, info *Info) {
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.time":
			if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
				info.Time = t.UTC()
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
}

// pseudo builds a Go-style pseudo version from VCS stamps.
func pseudo(info Info) string {
	if info.Revision == "" || info.Time.IsZero() {
		return "v0.0.0-unknown"
	}
	rev := info.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	v := "v0.0.0-" + info.Time.Format("20060102150405") + "-" + rev
	if info.Dirty {
		v += "+dirty"
	}
	return v
}
