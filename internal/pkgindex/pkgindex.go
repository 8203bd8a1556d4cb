// Package pkgindex looks up published upstream package versions in yum
// repositories with repoquery.
package pkgindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/AndreyAkinshin/fleetbuild/internal/cmdexec"
	"github.com/AndreyAkinshin/fleetbuild/internal/config"
	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
)

// ErrNotFound is returned for an unknown repo type or a package missing from
// the repos.
var ErrNotFound = errors.New("package version not found")

// Repoquery implements version.PackageIndex.
type Repoquery struct {
	runner  cmdexec.Runner
	repos   map[string]config.RepoConfig
	pkgName string
}

// New creates an index over the group's repo types.
func New(runner cmdexec.Runner, repos map[string]config.RepoConfig, pkgName string) *Repoquery {
	if pkgName == "" {
		pkgName = config.DefaultPackageName
	}
	return &Repoquery{runner: runner, repos: repos, pkgName: pkgName}
}

// notFound is a KindNotFound error that matches ErrNotFound.
func notFound(what, name string) error {
	err := fberrors.NotFound(what, name)
	err.Cause = ErrNotFound
	return err
}

// LatestVersion returns the highest version of the package in repoType's
// repository, prefixed with "v".
func (q *Repoquery) LatestVersion(ctx context.Context, repoType string) (string, error) {
	repo, ok := q.repos[repoType]
	if !ok || repo.BaseURL == "" {
		return "", notFound("repo type", repoType)
	}

	repoID := "fleetbuild-" + repoType
	res, err := q.runner.Run(ctx, cmdexec.Cmd{
		Name: "repoquery",
		Args: []string{
			"--quiet",
			"--tempcache",
			"--repofrompath=" + repoID + "," + repo.BaseURL,
			"--repoid=" + repoID,
			"--queryformat", "%{VERSION}",
			q.pkgName,
		},
	})
	if err != nil {
		return "", fmt.Errorf("repoquery %s: %w", q.pkgName, err)
	}

	versions := parseVersions(res.Stdout)
	if len(versions) == 0 {
		return "", notFound(repoType+" package", q.pkgName)
	}
	latest := "v" + versions[len(versions)-1]
	klog.V(2).InfoS("Resolved upstream version", "package", q.pkgName, "repoType", repoType, "version", latest)
	return latest, nil
}

// parseVersions returns the distinct versions in repoquery output, sorted
// ascending.
func parseVersions(out string) []string {
	seen := map[string]bool{}
	var versions []string
	for _, line := range strings.Split(out, "\n") {
		v := strings.TrimPrefix(strings.TrimSpace(line), "v")
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		versions = append(versions, v)
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) < 0
	})
	return versions
}

// compareVersions compares dot-separated versions numerically where both
// components are numbers and lexically otherwise.
func compareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		ai, aerr := strconv.Atoi(as[i])
		bi, berr := strconv.Atoi(bs[i])
		switch {
		case aerr == nil && berr == nil:
			if ai != bi {
				if ai < bi {
					return -1
				}
				return 1
			}
		case as[i] != bs[i]:
			return strings.Compare(as[i], bs[i])
		}
	}
	return len(as) - len(bs)
}
