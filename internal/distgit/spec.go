package distgit

import (
	"fmt"
	"regexp"
	"strings"
)

// distSuffix is the dist macro appended to rpm releases.
const distSuffix = "%{?dist}"

var (
	specVersionRe = regexp.MustCompile(`(?m)^(Version:[ \t]*)(\S+)`)
	specReleaseRe = regexp.MustCompile(`(?m)^(Release:[ \t]*)(\S+)`)
)

// SpecVersionRelease returns the Version and Release tags of an rpm spec,
// with the dist macro stripped from the release.
func SpecVersionRelease(spec string) (string, string) {
	var v, r string
	if m := specVersionRe.FindStringSubmatch(spec); m != nil {
		v = m[2]
	}
	if m := specReleaseRe.FindStringSubmatch(spec); m != nil {
		r = strings.TrimSuffix(m[2], distSuffix)
	}
	return v, r
}

// SetSpecVersionRelease rewrites the Version and Release tags. Both tags
// must already be present.
func SetSpecVersionRelease(spec, version, release string) (string, error) {
	if !specVersionRe.MatchString(spec) {
		return "", fmt.Errorf("spec has no Version tag")
	}
	if !specReleaseRe.MatchString(spec) {
		return "", fmt.Errorf("spec has no Release tag")
	}
	spec = specVersionRe.ReplaceAllString(spec, "${1}"+escapeReplacement(version))
	spec = specReleaseRe.ReplaceAllString(spec, "${1}"+escapeReplacement(release+distSuffix))
	return spec, nil
}
