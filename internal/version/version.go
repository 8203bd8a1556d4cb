// Package version validates and derives the version/release strings shared by
// every target in a run.
package version

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
)

// Auto is the sentinel version that requests detection from the upstream
// package index.
const Auto = "auto"

// Bump is the release sentinel that increments the current release.
const Bump = "+"

// VersionRegex matches dotted numeric versions with an optional "v" prefix.
var VersionRegex = regexp.MustCompile(`^v?\d+(\.\d+)*$`)

// PackageIndex reports the currently published upstream package version.
type PackageIndex interface {
	LatestVersion(ctx context.Context, repoType string) (string, error)
}

// Validate reports whether version is a dotted numeric version such as
// "v3.4" or "1.2.3".
func Validate(version string) bool {
	return VersionRegex.MatchString(version)
}

// Check returns a validation error for a malformed version.
func Check(version string) error {
	if !Validate(version) {
		return fberrors.Validationf("invalid version string: %q, expecting like v3.4 or v1.2.3", version)
	}
	return nil
}

// Normalize strips a single leading "v".
func Normalize(version string) string {
	return strings.TrimPrefix(version, "v")
}

// ResolveAuto returns the upstream version when version is "auto", and
// version unchanged otherwise.
func ResolveAuto(ctx context.Context, idx PackageIndex, version, repoType string) (string, error) {
	if version != Auto {
		return version, nil
	}
	if idx == nil {
		return "", fberrors.Config("version \"auto\" requires a package index")
	}
	latest, err := idx.LatestVersion(ctx, repoType)
	if err != nil {
		return "", fmt.Errorf("auto-detect version from %s repos: %w", repoType, err)
	}
	return latest, nil
}

// ResolveRelease applies the three-way release policy:
//   - "+": increment the last numeric component of current ("5" → "6",
//     "1.el7.3" → "1.el7.4"); "1" when current has none
//   - "": clear the release
//   - anything else: use it verbatim
func ResolveRelease(current, requested string) string {
	switch requested {
	case Bump:
		return bumpRelease(current)
	case "":
		return ""
	default:
		return requested
	}
}

// bumpRelease increments the last numeric dot-separated component.
func bumpRelease(release string) string {
	if release == "" {
		return "1"
	}
	parts := strings.Split(release, ".")
	for i := len(parts) - 1; i >= 0; i-- {
		if n, err := strconv.Atoi(parts[i]); err == nil && n >= 0 {
			parts[i] = strconv.Itoa(n + 1)
			return strings.Join(parts, ".")
		}
	}
	return "1"
}

// SplitVersionRelease splits "v3.9.31-1" into ("v3.9.31", "1").
func SplitVersionRelease(s string) (string, string, error) {
	idx := strings.LastIndex(s, "-")
	if idx <= 0 || idx == len(s)-1 {
		return "", "", fberrors.Validationf("invalid version-release %q, expecting like v3.9.31-1", s)
	}
	v, r := s[:idx], s[idx+1:]
	if err := Check(v); err != nil {
		return "", "", err
	}
	return v, r, nil
}
