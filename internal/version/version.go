// Package version provides the current SubPilot version and helpers for
// comparing schema versions during migration.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the current released version.
var Version = "0.4.2"

// DevVersion is the version suffix used in non-prod modes.
var DevVersion = fmt.Sprintf("%s-dev", Version)

// GetCurrentVersion returns the version string for the given mode.
func GetCurrentVersion(mode string) string {
	if mode == "prod" {
		return Version
	}
	return DevVersion
}

// GetMinorVersion returns the "major.minor" prefix of a version string.
func GetMinorVersion(version string) string {
	parts := strings.Split(stripSuffix(version), ".")
	if len(parts) < 2 {
		return version
	}
	return strings.Join(parts[:2], ".")
}

// IsVersionGreaterOrEqualThan reports whether version >= target.
func IsVersionGreaterOrEqualThan(version, target string) bool {
	return !IsVersionGreaterThan(target, version)
}

// IsVersionGreaterThan reports whether version > target.
func IsVersionGreaterThan(version, target string) bool {
	va := parseParts(version)
	vb := parseParts(target)
	for i := 0; i < 3; i++ {
		if va[i] != vb[i] {
			return va[i] > vb[i]
		}
	}
	return false
}

func stripSuffix(version string) string {
	if idx := strings.IndexByte(version, '-'); idx >= 0 {
		return version[:idx]
	}
	return version
}

func parseParts(version string) [3]int {
	var result [3]int
	parts := strings.Split(stripSuffix(version), ".")
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			continue
		}
		result[i] = n
	}
	return result
}
