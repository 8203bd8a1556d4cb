package orchestrator

import (
	"context"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
	"github.com/AndreyAkinshin/fleetbuild/internal/executor"
	"github.com/AndreyAkinshin/fleetbuild/internal/target"
	"github.com/AndreyAkinshin/fleetbuild/internal/verify"
)

// Verification log file names, written to the working directory.
const (
	VerifyFailLogName = "verify_fail_log.yml"
	VerifyFullLogName = "verify_full_log.yml"
)

// VerifyOptions configures Verify.
type VerifyOptions struct {
	Images []string // explicit image references; the group's images when empty
	NoPull bool
	Checks []string // empty runs every check
}

type verifyLog struct {
	TestDate string          `yaml:"test_date"`
	Data     []verify.Result `yaml:"data"`
}

type verifyItem struct {
	ref    string
	target *target.Target
}

func (it verifyItem) key() string {
	if it.target != nil {
		return it.target.DistgitKey
	}
	return it.ref
}

// Verify runs image checks on explicit references or on the latest build of
// every selected image. The report lists one entry per failed image.
func (r *Runtime) Verify(ctx context.Context, opts VerifyOptions) (Report, error) {
	if r.c.Verifier == nil {
		return Report{}, fberrors.Config("no verifier configured")
	}

	var items []verifyItem
	rep := Report{}
	if len(opts.Images) > 0 {
		for _, ref := range opts.Images {
			items = append(items, verifyItem{ref: ref})
		}
	} else {
		cloned, err := r.cloneStage(ctx, r.Images, &rep)
		if err != nil {
			return rep, err
		}
		for _, t := range cloned {
			items = append(items, verifyItem{target: t})
		}
	}
	rep.Attempted = len(items) + len(rep.Failed)
	if len(items) == 0 {
		return rep, nil
	}

	checks := opts.Checks
	if len(checks) == 0 {
		checks = verify.AllChecks()
	}
	r.out.Info("Running verification checks on %d images: %s", len(items), strings.Join(checks, ", "))

	indices := make([]int, len(items))
	for i := range indices {
		indices[i] = i
	}
	results := make([]verify.Result, len(items))
	execResults := executor.Run(ctx, indices, func(ctx context.Context, i int, cancel executor.Signal) error {
		res, err := r.verifyOne(ctx, items[i], cancel, checks, opts.NoPull)
		results[i] = res
		return err
	}, executor.Options[int]{
		Workers: r.opts.Workers,
		Key:     func(i int) string { return items[i].key() },
		Cancel:  r.run.Cancel,
	})

	var failed []verify.Result
	for i, res := range results {
		if execResults[i].Err != nil && res.Status == "" {
			res = verify.Result{Image: items[i].ref, Distgit: distgitName(items[i].target), Status: verify.StatusFailed, Checks: map[string]verify.CheckResult{
				"run": {Status: verify.StatusFailed, Failures: []string{execResults[i].Err.Error()}},
			}}
			results[i] = res
		}
		if res.Failed() {
			failed = append(failed, res)
			rep.addFailed(items[i].key())
		}
	}

	r.writeVerifyLog(VerifyFullLogName, results)
	if len(failed) > 0 {
		r.writeVerifyLog(VerifyFailLogName, failed)
	}
	r.out.Info("Checks finished. %d failed", len(failed))
	r.out.Failures("Verification failures:", rep.Failed)
	return rep, nil
}

func (r *Runtime) verifyOne(ctx context.Context, it verifyItem, cancel executor.Signal, checks []string, noPull bool) (verify.Result, error) {
	if err := checkpoint(cancel); err != nil {
		return verify.Result{}, err
	}
	ref := it.ref
	if it.target != nil {
		ver, rel, err := r.c.Mirror.ReadVersionRelease(ctx, it.target)
		if err != nil {
			return verify.Result{}, err
		}
		ref = r.pullRef(it.target, ver, rel)
	}

	if !noPull {
		if err := r.c.Verifier.Pull(ctx, ref); err != nil {
			return verify.Result{
				Image:   ref,
				Distgit: distgitName(it.target),
				Status:  verify.StatusFailed,
				Checks: map[string]verify.CheckResult{
					"pull": {Status: verify.StatusFailed, Failures: []string{err.Error()}},
				},
			}, nil
		}
	}

	res := r.c.Verifier.Verify(ctx, ref, checks)
	res.Distgit = distgitName(it.target)
	return res, nil
}

func distgitName(t *target.Target) string {
	if t == nil {
		return ""
	}
	return t.QualifiedName()
}

// pullRef is the registry reference of t's build at version-release.
func (r *Runtime) pullRef(t *target.Target, ver, rel string) string {
	ref := t.Image() + ":" + ver
	if rel != "" {
		ref += "-" + rel
	}
	if r.opts.PullRegistry == "" {
		return ref
	}
	return strings.TrimSuffix(r.opts.PullRegistry, "/") + "/" + ref
}

func (r *Runtime) writeVerifyLog(name string, results []verify.Result) {
	path := r.opts.Workspace.Path(name)
	data, err := yaml.Marshal(verifyLog{TestDate: time.Now().Format(time.RFC3339), Data: results})
	if err == nil {
		err = os.WriteFile(path, data, 0644)
	}
	if err != nil {
		klog.ErrorS(err, "Failed to write verification log", "path", path)
		return
	}
	r.out.Info("Verification details: %s", path)
}
