// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build version information for Tradewire
// binaries.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is the release version, injected at build time via
// -ldflags "-X .../lib/version.Version=v1.2.3". Defaults to "dev"
// for local builds.
var Version = "dev"

// Info returns the version string, with the VCS revision appended
// when the binary was built from a checkout with build info.
func Info() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Version
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 12 {
			return fmt.Sprintf("%s (%s)", Version, setting.Value[:12])
		}
	}
	return Version
}

// Print writes "<binary> <version>" to stdout for --version handling.
func Print(binary string) {
	fmt.Printf("%s %s\n", binary, Info())
}
