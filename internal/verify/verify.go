// Package verify runs smoke checks against built images before they are
// handed on for QE.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/AndreyAkinshin/fleetbuild/internal/cmdexec"
	"github.com/AndreyAkinshin/fleetbuild/internal/version"
)

// Check names.
const (
	CheckOrphans  = "orphans"
	CheckSigs     = "sigs"
	CheckVersions = "versions"
)

// Result statuses.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// AllChecks returns every check name in execution order.
func AllChecks() []string {
	return []string{CheckOrphans, CheckSigs, CheckVersions}
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status   string   `yaml:"status"`
	Failures []string `yaml:"failures,omitempty"`
}

// Result is the outcome of every check run on one image.
type Result struct {
	Image   string                 `yaml:"image"`
	Distgit string                 `yaml:"distgit,omitempty"`
	Status  string                 `yaml:"status"`
	Checks  map[string]CheckResult `yaml:"checks"`
}

// Failed reports whether any check failed.
func (r Result) Failed() bool { return r.Status == StatusFailed }

// Options configures a Runner.
type Options struct {
	Tool    string   // container CLI, default "docker"
	RepoURL string   // yum repo the image content must come from (orphans)
	Keys    []string // accepted signing key IDs (sigs)
}

// Runner runs checks with the container CLI and repoquery.
type Runner struct {
	runner cmdexec.Runner
	opts   Options
}

// New creates a Runner.
func New(runner cmdexec.Runner, opts Options) *Runner {
	if opts.Tool == "" {
		opts.Tool = "docker"
	}
	return &Runner{runner: runner, opts: opts}
}

// Pull fetches image so checks run against the current content.
func (r *Runner) Pull(ctx context.Context, image string) error {
	_, err := r.runner.Run(ctx, cmdexec.Cmd{Name: r.opts.Tool, Args: []string{"pull", image}})
	return err
}

// Verify runs checks against image. An empty list runs every check. Errors
// running a check count as that check failing.
func (r *Runner) Verify(ctx context.Context, image string, checks []string) Result {
	if len(checks) == 0 {
		checks = AllChecks()
	}
	res := Result{Image: image, Status: StatusPassed, Checks: map[string]CheckResult{}}
	for _, name := range checks {
		var failures []string
		var err error
		switch name {
		case CheckOrphans:
			failures, err = r.checkOrphans(ctx, image)
		case CheckSigs:
			failures, err = r.checkSigs(ctx, image)
		case CheckVersions:
			failures, err = r.checkVersions(ctx, image)
		default:
			err = fmt.Errorf("unknown check %q", name)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}

		cr := CheckResult{Status: StatusPassed}
		if len(failures) > 0 {
			cr = CheckResult{Status: StatusFailed, Failures: failures}
			res.Status = StatusFailed
		}
		res.Checks[name] = cr
		klog.V(2).InfoS("Check finished", "image", image, "check", name, "status", cr.Status)
	}
	return res
}

func (r *Runner) rpmQuery(ctx context.Context, image, format string) ([]string, error) {
	out, err := r.runner.Run(ctx, cmdexec.Cmd{
		Name: r.opts.Tool,
		Args: []string{"run", "--rm", "--entrypoint", "rpm", image, "-qa", "--qf", format},
	})
	if err != nil {
		return nil, fmt.Errorf("query installed packages: %w", err)
	}
	var lines []string
	for _, line := range strings.Split(out.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// checkOrphans lists installed packages that no configured repo provides.
func (r *Runner) checkOrphans(ctx context.Context, image string) ([]string, error) {
	if r.opts.RepoURL == "" {
		return nil, fmt.Errorf("no repo configured for orphan check")
	}
	installed, err := r.rpmQuery(ctx, image, `%{NAME}\n`)
	if err != nil {
		return nil, err
	}
	installed = sets.List(sets.New(installed...))
	installed = without(installed, "gpg-pubkey")
	if len(installed) == 0 {
		return nil, nil
	}

	args := append([]string{
		"--quiet",
		"--tempcache",
		"--repofrompath=fleetbuild-verify," + r.opts.RepoURL,
		"--repoid=fleetbuild-verify",
		"--queryformat", "%{NAME}",
	}, installed...)
	out, err := r.runner.Run(ctx, cmdexec.Cmd{Name: "repoquery", Args: args})
	if err != nil {
		return nil, fmt.Errorf("repoquery: %w", err)
	}
	available := sets.New(strings.Fields(out.Stdout)...)

	var orphans []string
	for _, name := range installed {
		if !available.Has(name) {
			orphans = append(orphans, "orphaned package: "+name)
		}
	}
	return orphans, nil
}

// checkSigs lists packages that are unsigned or signed with a key that is
// not accepted.
func (r *Runner) checkSigs(ctx context.Context, image string) ([]string, error) {
	lines, err := r.rpmQuery(ctx, image, `%{NAME}-%{VERSION}-%{RELEASE} %{SIGPGP:pgpsig}\n`)
	if err != nil {
		return nil, err
	}
	keys := sets.New[string]()
	for _, k := range r.opts.Keys {
		keys.Insert(strings.ToLower(k))
	}

	var failures []string
	for _, line := range lines {
		nvr, sig, _ := strings.Cut(line, " ")
		if strings.HasPrefix(nvr, "gpg-pubkey-") {
			continue
		}
		if sig == "" || sig == "(none)" {
			failures = append(failures, "unsigned package: "+nvr)
			continue
		}
		keyID := sigKeyID(sig)
		if keys.Len() > 0 && !keys.Has(keyID) {
			failures = append(failures, fmt.Sprintf("package %s signed with unknown key %s", nvr, keyID))
		}
	}
	return failures, nil
}

// sigKeyID extracts the key ID from "RSA/SHA256, Mon 01 Jan 2018, Key ID 199e2f91fd431d51".
func sigKeyID(sig string) string {
	idx := strings.LastIndex(sig, "Key ID ")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(sig[idx+len("Key ID "):]))
}

// checkVersions verifies the version label is well formed and matches the
// image tag.
func (r *Runner) checkVersions(ctx context.Context, image string) ([]string, error) {
	out, err := r.runner.Run(ctx, cmdexec.Cmd{
		Name: r.opts.Tool,
		Args: []string{"inspect", "--format", "{{json .Config.Labels}}", image},
	})
	if err != nil {
		return nil, fmt.Errorf("inspect: %w", err)
	}
	var labels map[string]string
	if err := json.Unmarshal([]byte(out.Stdout), &labels); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}

	var failures []string
	v := labels["version"]
	if !version.Validate(v) {
		failures = append(failures, fmt.Sprintf("invalid version label %q", v))
	}
	if tag := imageTag(image); tag != "" && tag != "latest" && v != "" {
		want := v
		if rel := labels["release"]; rel != "" {
			want = v + "-" + rel
		}
		if tag != v && tag != want {
			failures = append(failures, fmt.Sprintf("tag %s does not match version-release %s", tag, want))
		}
	}
	sort.Strings(failures)
	return failures, nil
}

// imageTag returns the tag of an image reference, or "" when untagged.
func imageTag(image string) string {
	slash := strings.LastIndex(image, "/")
	colon := strings.LastIndex(image, ":")
	if colon <= slash {
		return ""
	}
	return image[colon+1:]
}

func without(list []string, drop string) []string {
	out := list[:0:0]
	for _, s := range list {
		if s != drop {
			out = append(out, s)
		}
	}
	return out
}
