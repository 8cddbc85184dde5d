package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

var (
	// Set at build time with -ldflags:
	// -X github.com/genrelay/genrelay/pkg/version.Version=vX.Y.Z
	// -X github.com/genrelay/genrelay/pkg/version.Commit=<sha>
	// -X github.com/genrelay/genrelay/pkg/version.Date=<rfc3339>
	Version = "dev"
	Commit  = ""
	Date    = ""
)

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Current resolves the build identity, preferring ldflags and falling back
// to the VCS metadata Go embeds in the binary.
func Current() Info {
	info := Info{
		Version: strings.TrimSpace(Version),
		Commit:  strings.TrimSpace(Commit),
		Date:    strings.TrimSpace(Date),
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = strings.TrimSpace(s.Value)
				}
			case "vcs.time":
				if info.Date == "" {
					info.Date = strings.TrimSpace(s.Value)
				}
			}
		}
	}
	return info
}

func String() string {
	v := Current()
	if v.Commit == "" {
		return v.Version
	}
	short := v.Commit
	if len(short) > 12 {
		short = short[:12]
	}
	return v.Version + "+" + short
}

func Detailed(component string) string {
	v := Current()
	if strings.TrimSpace(component) == "" {
		component = "genrelay"
	}
	out := fmt.Sprintf("%s %s", component, String())
	if v.Date != "" {
		out += "\nBuilt: " + v.Date
	}
	return out
}
