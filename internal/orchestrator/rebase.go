package orchestrator

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
	"github.com/AndreyAkinshin/fleetbuild/internal/executor"
	"github.com/AndreyAkinshin/fleetbuild/internal/record"
	"github.com/AndreyAkinshin/fleetbuild/internal/target"
	"github.com/AndreyAkinshin/fleetbuild/internal/version"
)

// RebaseOptions configures Rebase and UpdateDockerfile.
type RebaseOptions struct {
	Version  string // "auto" queries the package index
	Release  string // "+" bumps, "" clears
	RepoType string // repo type for "auto"
	Message  string // commit message
	Push     bool   // push distgits after tagging
}

// Rebase refreshes every selected image's distgit from its upstream source,
// stamps version and release, commits and tags. Each commit is recorded as
// a distgit_commit record. Version problems abort before any clone.
func (r *Runtime) Rebase(ctx context.Context, opts RebaseOptions) (Report, error) {
	return r.rebase(ctx, opts, true)
}

// UpdateDockerfile stamps version and release without touching content. An
// empty version keeps each image's current version.
func (r *Runtime) UpdateDockerfile(ctx context.Context, opts RebaseOptions) (Report, error) {
	return r.rebase(ctx, opts, false)
}

func (r *Runtime) rebase(ctx context.Context, opts RebaseOptions, fromSource bool) (Report, error) {
	ver, err := r.resolveVersion(ctx, opts.Version, opts.RepoType, fromSource)
	if err != nil {
		return Report{}, err
	}
	r.run.Version, r.run.Release = ver, opts.Release

	rep := Report{Attempted: len(r.Images)}
	if len(r.Images) == 0 {
		return rep, nil
	}
	cloned, err := r.cloneStage(ctx, r.Images, &rep)
	if err != nil {
		return rep, err
	}

	name := "update dockerfile"
	if fromSource {
		name = "rebase"
	}
	results := r.stage(ctx, name, cloned, 0, func(ctx context.Context, t *target.Target, cancel executor.Signal) error {
		return r.rebaseOne(ctx, t, cancel, ver, opts, fromSource)
	})
	rep.addFailed(executor.FailedKeys(results)...)

	if opts.Push {
		if err := r.pushDistgits(ctx, survivors(cloned, results), &rep); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// resolveVersion resolves "auto" and validates the result. An empty version
// is only accepted when it keeps the current one.
func (r *Runtime) resolveVersion(ctx context.Context, ver, repoType string, required bool) (string, error) {
	if ver == "" {
		if required {
			return "", fberrors.Validation("a version is required (--version)")
		}
		return "", nil
	}
	if ver == version.Auto && repoType == "" {
		return "", fberrors.Config("--repo-type is required with --version auto")
	}
	resolved, err := version.ResolveAuto(ctx, r.c.Index, ver, repoType)
	if err != nil {
		if fberrors.IsKind(err, fberrors.KindConfig) {
			return "", err
		}
		return "", fberrors.Wrap(err, "resolve version")
	}
	if err := version.Check(resolved); err != nil {
		return "", err
	}
	if ver == version.Auto {
		klog.InfoS("Using detected version", "version", resolved, "repoType", repoType)
	}
	return resolved, nil
}

func (r *Runtime) rebaseOne(ctx context.Context, t *target.Target, cancel executor.Signal, ver string, opts RebaseOptions, fromSource bool) error {
	var realVer, realRel string
	var err error
	if fromSource {
		realVer, realRel, err = r.c.Mirror.Rebase(ctx, t, ver, opts.Release)
	} else {
		realVer, realRel, err = r.c.Mirror.Stamp(ctx, t, ver, opts.Release)
	}
	if err != nil {
		return err
	}
	if err := t.Advance(target.Rebased); err != nil {
		return err
	}
	if err := checkpoint(cancel); err != nil {
		return err
	}

	msg := opts.Message
	if msg == "" {
		msg = fmt.Sprintf("Updating Dockerfile version and release %s-%s", realVer, realRel)
	}
	sha, err := r.c.Mirror.Commit(ctx, t, msg)
	if err != nil {
		return err
	}
	if err := t.Advance(target.Committed); err != nil {
		return err
	}
	if fromSource {
		r.recorder.Append(record.TypeDistgitCommit, map[string]string{
			"distgit": t.QualifiedName(),
			"image":   t.Image(),
			"sha":     sha,
		})
	}
	if err := checkpoint(cancel); err != nil {
		return err
	}

	if err := r.c.Mirror.Tag(ctx, t, realVer, realRel); err != nil {
		return err
	}
	return t.Advance(target.Tagged)
}

// PushDistgits pushes every selected target's distgit clone.
func (r *Runtime) PushDistgits(ctx context.Context) (Report, error) {
	rep := Report{Attempted: len(r.run.Targets)}
	if len(r.run.Targets) == 0 {
		return rep, nil
	}
	cloned, err := r.cloneStage(ctx, r.run.Targets, &rep)
	if err != nil {
		return rep, err
	}
	err = r.pushDistgits(ctx, cloned, &rep)
	return rep, err
}

func (r *Runtime) pushDistgits(ctx context.Context, targets []*target.Target, rep *Report) error {
	if len(targets) == 0 {
		return nil
	}
	results := r.stage(ctx, "push distgit", targets, 0, func(ctx context.Context, t *target.Target, cancel executor.Signal) error {
		if err := checkpoint(cancel); err != nil {
			return err
		}
		return r.c.Mirror.Push(ctx, t)
	})
	rep.addFailed(executor.FailedKeys(results)...)
	return nil
}
