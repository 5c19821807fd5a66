// Package version reports the build version of the llc2 binary.
package version

import "runtime/debug"

// GetVersion returns the module version embedded by the Go toolchain at
// build time, or "(devel)" when that information isn't available (e.g.
// building from a directory that isn't a tagged module checkout).
func GetVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "(devel)"
	}
	if info.Main.Version == "" {
		return "(devel)"
	}
	return info.Main.Version
}
