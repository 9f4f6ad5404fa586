package build

import "runtime/debug"

var (
	// Version is set at build time using ldflags.
	Version = "dev"
	AppName = "cobble"
)

// Commit returns the VCS revision recorded in the binary's build info,
// or an empty string if none is available.
func Commit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}
