package models

import "strings"

// Platform identifies a build target. The empty platform is the default
// layer used when no platform-specific value exists.
type Platform string

const (
	PlatformDefault Platform = ""
	PlatformWindows Platform = "windows"
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformWebGL   Platform = "webgl"
)

// KnownPlatforms lists every platform the built-in modules understand.
var KnownPlatforms = []Platform{
	PlatformWindows,
	PlatformMacOS,
	PlatformLinux,
	PlatformAndroid,
	PlatformIOS,
	PlatformWebGL,
}

// String returns the string representation.
func (p Platform) String() string {
	if p == PlatformDefault {
		return "default"
	}
	return string(p)
}

// ParsePlatform normalizes a platform name. "default" and "" map to the
// default platform.
func ParsePlatform(s string) Platform {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "default" {
		return PlatformDefault
	}
	return Platform(s)
}

// IsKnown reports whether p is the default platform or one of
// KnownPlatforms.
func (p Platform) IsKnown() bool {
	if p == PlatformDefault {
		return true
	}
	for _, k := range KnownPlatforms {
		if p == k {
			return true
		}
	}
	return false
}
