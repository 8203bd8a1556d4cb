package orchestrator

import (
	"context"

	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
	"github.com/AndreyAkinshin/fleetbuild/internal/executor"
	"github.com/AndreyAkinshin/fleetbuild/internal/target"
	"github.com/AndreyAkinshin/fleetbuild/internal/version"
)

// earlyPushWorkers bounds the main push wave.
const earlyPushWorkers = 4

// PushOptions configures Push.
type PushOptions struct {
	Tags           []string // extra tags pushed alongside version tags
	VersionRelease string   // "v3.9.31-1"; read from each distgit when empty
	ToDefaults     bool
	To             []string
	LateOnly       bool
	DryRun         bool
}

// Push pushes the most recent build of every selected image. Non-late images
// go first; late images follow one at a time, only when the first wave had
// no failures.
func (r *Runtime) Push(ctx context.Context, opts PushOptions) (Report, error) {
	rep := Report{Attempted: len(r.Images)}
	if !opts.ToDefaults && len(opts.To) == 0 {
		return rep, fberrors.Config("you need use --to-defaults or specify at least one --to registry")
	}
	if r.c.Registry == nil {
		return rep, fberrors.Config("no registry configured")
	}

	var ver, rel string
	if opts.VersionRelease != "" {
		var err error
		if ver, rel, err = version.SplitVersionRelease(opts.VersionRelease); err != nil {
			return rep, err
		}
	}
	if len(r.Images) == 0 {
		return rep, nil
	}

	targets := r.Images
	if ver == "" {
		var err error
		if targets, err = r.cloneStage(ctx, r.Images, &rep); err != nil {
			return rep, err
		}
	}

	if !opts.LateOnly {
		var early []*target.Target
		for _, t := range targets {
			if !t.Late {
				early = append(early, t)
			}
		}
		if len(early) > 0 {
			results := r.stage(ctx, "push", early, earlyPushWorkers, func(ctx context.Context, t *target.Target, cancel executor.Signal) error {
				if err := checkpoint(cancel); err != nil {
					return err
				}
				return r.pushImage(ctx, t, opts.ToDefaults, opts.To, opts.Tags, versionRelease(ver, rel), opts.DryRun)
			})
			rep.addFailed(executor.FailedKeys(results)...)
		}
		if len(rep.Failed) > 0 {
			r.out.Failures("Push failures:", rep.Failed)
			return rep, nil
		}
	}

	r.pushLate(ctx, targets, opts.ToDefaults, opts.To, opts.Tags, versionRelease(ver, rel), opts.DryRun, &rep)
	return rep, nil
}

func versionRelease(ver, rel string) string {
	if ver == "" {
		return ""
	}
	return ver + "-" + rel
}

// pushLate pushes the late targets among targets sequentially.
func (r *Runtime) pushLate(ctx context.Context, targets []*target.Target, toDefaults bool, to, tags []string, vr string, dryRun bool, rep *Report) {
	var late []*target.Target
	for _, t := range targets {
		if t.Late {
			late = append(late, t)
		}
	}
	if len(late) == 0 {
		return
	}
	results := r.stage(ctx, "late push", late, 1, func(ctx context.Context, t *target.Target, cancel executor.Signal) error {
		if err := checkpoint(cancel); err != nil {
			return err
		}
		return r.pushImage(ctx, t, toDefaults, to, tags, vr, dryRun)
	})
	failed := executor.FailedKeys(results)
	rep.addFailed(failed...)
	r.out.Failures("Late push failures:", failed)
}

// pushImage pushes t's image. vr ("version-release") overrides the values
// read from the distgit.
func (r *Runtime) pushImage(ctx context.Context, t *target.Target, toDefaults bool, to, extraTags []string, vr string, dryRun bool) error {
	registries := r.registries(t, toDefaults, to)
	if len(registries) == 0 {
		return fberrors.Configf("no registries to push %s to", t.DistgitKey)
	}

	ver, rel := t.Version, t.Release
	if vr != "" {
		var err error
		if ver, rel, err = version.SplitVersionRelease(vr); err != nil {
			return err
		}
	} else if ver == "" {
		var err error
		if ver, rel, err = r.c.Mirror.ReadVersionRelease(ctx, t); err != nil {
			return err
		}
	}

	if err := r.c.Registry.Push(ctx, t.Image(), pushTags(t, ver, rel, extraTags), registries, dryRun); err != nil {
		return err
	}
	if dryRun {
		return nil
	}
	return t.Advance(target.Pushed)
}

// registries returns the destinations of t: its own push.registries (or the
// group's) when toDefaults is set, followed by to, without duplicates.
func (r *Runtime) registries(t *target.Target, toDefaults bool, to []string) []string {
	var regs []string
	if toDefaults {
		if t.Config != nil && t.Config.Push != nil && len(t.Config.Push.Registries) > 0 {
			regs = append(regs, t.Config.Push.Registries...)
		} else if r.Group != nil {
			regs = append(regs, r.Group.Config.Registries...)
		}
	}
	regs = append(regs, to...)
	return dedupe(regs)
}

// pushTags returns version-release, version, the target's additional tags
// and extra, without duplicates.
func pushTags(t *target.Target, ver, rel string, extra []string) []string {
	var tags []string
	if rel != "" {
		tags = append(tags, ver+"-"+rel)
	}
	tags = append(tags, ver)
	if t.Config != nil && t.Config.Push != nil {
		tags = append(tags, t.Config.Push.AdditionalTags...)
	}
	tags = append(tags, extra...)
	return dedupe(tags)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
