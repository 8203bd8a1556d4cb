package orchestrator

import (
	"context"
	"fmt"
	"strconv"

	"k8s.io/klog/v2"

	"github.com/AndreyAkinshin/fleetbuild/internal/buildmetrics"
	"github.com/AndreyAkinshin/fleetbuild/internal/buildsvc"
	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
	"github.com/AndreyAkinshin/fleetbuild/internal/executor"
	"github.com/AndreyAkinshin/fleetbuild/internal/record"
	"github.com/AndreyAkinshin/fleetbuild/internal/target"
	"github.com/AndreyAkinshin/fleetbuild/internal/version"
)

// BuildOptions configures BuildImages.
type BuildOptions struct {
	Signing        string
	RepoType       string   // group repo type enabled for the build
	Repos          []string // explicit .repo URLs
	PushToDefaults bool     // push to the configured registries
	PushTo         []string // additional registries
	Scratch        bool
}

func (o BuildOptions) pushing() bool {
	return o.PushToDefaults || len(o.PushTo) > 0
}

// BuildImages builds every selected image and pushes non-late images as
// they finish. Late images are pushed afterwards, one at a time, and only
// when every build and push succeeded. Build metrics are best effort: a
// failure to compute them is logged and never fails the run.
func (r *Runtime) BuildImages(ctx context.Context, opts BuildOptions) (Report, error) {
	rep := Report{Attempted: len(r.Images)}
	if len(r.Images) == 0 {
		r.out.Info("No images found. Check the arguments.")
		return rep, nil
	}
	if opts.RepoType == "" && len(opts.Repos) == 0 {
		return rep, fberrors.Config("no repos specified: --repo-type or --repo is required")
	}
	if r.c.Builds == nil {
		return rep, fberrors.Config("no build service configured")
	}
	if opts.pushing() && r.c.Registry == nil {
		return rep, fberrors.Config("no registry configured")
	}

	req := buildsvc.BuildRequest{Repos: opts.Repos, Signing: opts.Signing, Scratch: opts.Scratch}
	if opts.RepoType != "" {
		repo, ok := r.Group.Config.Repos[opts.RepoType]
		if !ok {
			return rep, fberrors.Configf("repo type %q is not defined in %s", opts.RepoType, r.Group.Name)
		}
		req.Repos = append([]string{repo.BaseURL}, req.Repos...)
	}

	cloned, err := r.cloneStage(ctx, r.Images, &rep)
	if err != nil {
		return rep, err
	}

	results := r.stage(ctx, "build", cloned, 0, func(ctx context.Context, t *target.Target, cancel executor.Signal) error {
		return r.buildOne(ctx, t, cancel, req, opts)
	})
	for _, res := range executor.Failed(results) {
		r.recorder.Append(record.TypeBuildFailure, map[string]string{
			"distgit": cloned[res.Index].QualifiedName(),
			"state":   res.State.String(),
			"error":   unwrapTarget(res.Err).Error(),
		})
	}
	rep.addFailed(executor.FailedKeys(results)...)

	r.reportBuildMetrics(ctx)

	if len(rep.Failed) > 0 {
		r.out.Failures("Build/push failures:", rep.Failed)
		return rep, nil
	}

	if opts.pushing() {
		r.pushLate(ctx, survivors(cloned, results), opts.PushToDefaults, opts.PushTo, nil, "", false, &rep)
	}
	return rep, nil
}

func (r *Runtime) buildOne(ctx context.Context, t *target.Target, cancel executor.Signal, req buildsvc.BuildRequest, opts BuildOptions) error {
	if err := checkpoint(cancel); err != nil {
		return err
	}
	taskID, err := r.c.Builds.Submit(ctx, t, req)
	if err != nil {
		return err
	}
	if err := t.Advance(target.BuildSubmitted); err != nil {
		return err
	}
	if err := r.c.Builds.Wait(ctx, taskID); err != nil {
		return err
	}
	if err := t.Advance(target.Built); err != nil {
		return err
	}

	if t.Late || !opts.pushing() {
		return nil
	}
	if err := checkpoint(cancel); err != nil {
		return err
	}
	return r.pushImage(ctx, t, opts.PushToDefaults, opts.PushTo, nil, "", false)
}

// reportBuildMetrics aggregates the watched tasks' timings, records and
// publishes the summary.
func (r *Runtime) reportBuildMetrics(ctx context.Context) {
	outcome := buildmetrics.Collect(ctx, r.c.Builds)
	if !outcome.OK() {
		klog.ErrorS(outcome.Err, "Error trying to show build metrics")
		r.out.Warning("build metrics unavailable: %v", outcome.Err)
		return
	}
	s := outcome.Summary
	if s.Note != "" {
		klog.V(1).InfoS("Build metrics", "note", s.Note)
	}

	r.recorder.Append(record.TypeImageBuildMetrics, s.Fields())
	if r.metrics != nil {
		r.metrics.Observe(s)
	}
	if r.opts.MetricsFile != "" {
		if err := buildmetrics.WriteTextfile(r.opts.MetricsFile, s); err != nil {
			klog.ErrorS(err, "Failed to write metrics file", "path", r.opts.MetricsFile)
		}
	}

	r.out.SummaryHeader("Build metrics")
	r.out.SummaryItem("Tasks", strconv.Itoa(s.TaskCount))
	r.out.SummaryItem("Aggregate build seconds", strconv.FormatInt(s.AggregateBuildSeconds, 10))
	r.out.SummaryItem("Aggregate wait seconds", strconv.FormatInt(s.AggregateWaitSeconds, 10))
	r.out.SummaryItem("Elapsed wait minutes", strconv.FormatInt(s.WastedWaitMinutes, 10))
	r.out.SummaryItem("Elapsed total minutes", fmt.Sprintf("%.1f", s.ElapsedTotalMinutes))
}

// BuildRPMs builds every selected rpm. The version is stamped without its
// "v" prefix.
func (r *Runtime) BuildRPMs(ctx context.Context, ver, release string, scratch bool) (Report, error) {
	if ver != "" {
		if err := version.Check(ver); err != nil {
			return Report{}, err
		}
	}
	ver = version.Normalize(ver)
	r.run.Version, r.run.Release = ver, release

	rep := Report{Attempted: len(r.RPMs)}
	if len(r.RPMs) == 0 {
		return rep, nil
	}
	if r.c.Builds == nil {
		return rep, fberrors.Config("no build service configured")
	}

	cloned, err := r.cloneStage(ctx, r.RPMs, &rep)
	if err != nil {
		return rep, err
	}
	results := r.stage(ctx, "build", cloned, 0, func(ctx context.Context, t *target.Target, cancel executor.Signal) error {
		if ver != "" || release != "" {
			if _, _, err := r.c.Mirror.Stamp(ctx, t, ver, release); err != nil {
				return err
			}
			if err := t.Advance(target.Rebased); err != nil {
				return err
			}
			if _, err := r.c.Mirror.Commit(ctx, t, fmt.Sprintf("Updating spec to %s-%s", t.Version, t.Release)); err != nil {
				return err
			}
			if err := t.Advance(target.Committed); err != nil {
				return err
			}
			if err := r.c.Mirror.Push(ctx, t); err != nil {
				return err
			}
		}
		return r.buildOne(ctx, t, cancel, buildsvc.BuildRequest{Scratch: scratch}, BuildOptions{Scratch: scratch})
	})
	rep.addFailed(executor.FailedKeys(results)...)
	r.reportBuildMetrics(ctx)
	r.out.Failures("Build/push failures:", rep.Failed)
	return rep, nil
}
