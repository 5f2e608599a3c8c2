package updater

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ManualVersion is reported by modules built by hand rather than by CI.
const ManualVersion = "1.0.0"

// CompareVersions compares two version strings semantically.
// Returns:
// - -1 if v1 < v2
// - 0 if v1 == v2
// - 1 if v1 > v2
// - error if either version string is invalid
func CompareVersions(v1, v2 string) (int, error) {
	version1, err := semver.NewVersion(strings.TrimPrefix(v1, "v"))
	if err != nil {
		return 0, fmt.Errorf("invalid version %s: %w", v1, err)
	}
	version2, err := semver.NewVersion(strings.TrimPrefix(v2, "v"))
	if err != nil {
		return 0, fmt.Errorf("invalid version %s: %w", v2, err)
	}
	return version1.Compare(version2), nil
}

// IsNewerVersion checks if v2 is newer than v1.
func IsNewerVersion(v1, v2 string) (bool, error) {
	comparison, err := CompareVersions(v1, v2)
	if err != nil {
		return false, err
	}
	return comparison < 0, nil
}

// IsValidVersion checks if a version string is valid semantic version.
func IsValidVersion(version string) bool {
	_, err := semver.NewVersion(strings.TrimPrefix(version, "v"))
	return err == nil
}

// SameVersion reports whether a and b name the same release. Semantic
// versions compare by precedence, so "v1.2.0" equals "1.2.0"; anything
// else must match exactly.
func SameVersion(a, b string) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	c, err := CompareVersions(a, b)
	return err == nil && c == 0
}

// IsManualPlaceholder reports whether a running plugin's version is the
// placeholder of a manually built module.
func IsManualPlaceholder(version string) bool {
	return version == ManualVersion
}

// ManualBuildID is the build id recorded for a manually built module.
func ManualBuildID(version string) string {
	return version + "-manual-00000000"
}
