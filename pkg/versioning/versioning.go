// Package versioning parses semantic versions and applies release bumps.
package versioning

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Policy selects which component a release bump increments
type Policy string

const (
	PolicyNone  Policy = "none"
	PolicyPatch Policy = "patch"
	PolicyMinor Policy = "minor"
	PolicyMajor Policy = "major"
)

// ParsePolicy normalizes a configured bump policy. Empty, "none" and "false"
// disable bumping; "true" is shorthand for patch.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "false":
		return PolicyNone, nil
	case "true", "patch":
		return PolicyPatch, nil
	case "minor":
		return PolicyMinor, nil
	case "major":
		return PolicyMajor, nil
	}
	return "", fmt.Errorf("unknown bump policy %q (expected none, patch, minor or major)", s)
}

// Enabled reports whether the policy produces a new version
func (p Policy) Enabled() bool {
	return p != "" && p != PolicyNone
}

var semverPattern = regexp.MustCompile(`^(?:[vV])?(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z.-]+))?(?:\+([0-9A-Za-z.-]+))?$`)

// Version is a strict semantic version that remembers whether it was written
// with a v prefix. Comparison and bumping follow Masterminds/semver, the same
// rules the branch resolver applies to tags.
type Version struct {
	sv         *semver.Version
	raw        string // original string representation
	hasVPrefix bool   // whether the original version had a 'v' prefix
}

// ParseLenient parses a version string, accepting an optional v prefix.
// All three numeric segments are required.
func ParseLenient(input string) (*Version, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, errors.New("empty version")
	}

	matches := semverPattern.FindStringSubmatch(trimmed)
	if len(matches) == 0 {
		return nil, fmt.Errorf("invalid format")
	}
	for i, name := range []string{"major", "minor", "patch"} {
		if s := matches[i+1]; len(s) > 1 && strings.HasPrefix(s, "0") {
			return nil, fmt.Errorf("invalid %s segment: leading zeros not allowed", name)
		}
	}
	if prerelease := matches[4]; prerelease != "" {
		for _, part := range strings.Split(prerelease, ".") {
			if part == "" {
				return nil, fmt.Errorf("invalid prerelease identifier: empty segment")
			}
			if isNumeric(part) && len(part) > 1 && strings.HasPrefix(part, "0") {
				return nil, fmt.Errorf("invalid prerelease identifier: leading zeros not allowed")
			}
		}
	}
	if build := matches[5]; build != "" {
		for _, part := range strings.Split(build, ".") {
			if part == "" {
				return nil, fmt.Errorf("invalid build identifier: empty segment")
			}
		}
	}

	hasV := strings.HasPrefix(trimmed, "v") || strings.HasPrefix(trimmed, "V")
	sv, err := semver.StrictNewVersion(strings.TrimLeft(trimmed, "vV"))
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", trimmed, err)
	}
	return &Version{sv: sv, raw: trimmed, hasVPrefix: hasV}, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Major returns the major component
func (v *Version) Major() int { return int(v.sv.Major()) }

// Minor returns the minor component
func (v *Version) Minor() int { return int(v.sv.Minor()) }

// Patch returns the patch component
func (v *Version) Patch() int { return int(v.sv.Patch()) }

// String returns the version as written, prefix included
func (v *Version) String() string {
	if v == nil {
		return ""
	}
	return v.raw
}

// Core returns MAJOR.MINOR.PATCH plus any prerelease and build, without a prefix
func (v *Version) Core() string {
	if v == nil {
		return ""
	}
	return v.sv.String()
}

// Tag returns the release tag name, always v-prefixed
func (v *Version) Tag() string {
	if v == nil {
		return ""
	}
	return "v" + v.Core()
}

// Bump applies policy. PolicyNone returns v unchanged.
func (v *Version) Bump(p Policy) *Version {
	switch p {
	case PolicyPatch:
		return v.BumpPatch()
	case PolicyMinor:
		return v.BumpMinor()
	case PolicyMajor:
		return v.BumpMajor()
	}
	return v
}

// BumpMajor increments the major version and resets minor and patch
func (v *Version) BumpMajor() *Version {
	if v == nil {
		return nil
	}
	return v.next(v.sv.IncMajor())
}

// BumpMinor increments the minor version and resets patch
func (v *Version) BumpMinor() *Version {
	if v == nil {
		return nil
	}
	return v.next(v.sv.IncMinor())
}

// BumpPatch increments the patch version. A prerelease is released at its
// own patch number instead: 1.2.3-rc.1 becomes 1.2.3.
func (v *Version) BumpPatch() *Version {
	if v == nil {
		return nil
	}
	return v.next(v.sv.IncPatch())
}

// next wraps a bumped version; prerelease and build metadata are dropped
func (v *Version) next(sv semver.Version) *Version {
	n := &Version{sv: &sv, hasVPrefix: v.hasVPrefix}
	n.raw = n.Core()
	if n.hasVPrefix {
		n.raw = "v" + n.raw
	}
	return n
}
