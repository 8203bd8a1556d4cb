package orchestrator

import (
	"context"

	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
	"github.com/AndreyAkinshin/fleetbuild/internal/executor"
	"github.com/AndreyAkinshin/fleetbuild/internal/report"
	"github.com/AndreyAkinshin/fleetbuild/internal/target"
)

const separator = "------------------------------------------"

// PrintOptions configures Print.
type PrintOptions struct {
	Short          bool // only the rendered lines
	ShowNonRelease bool
	ShowBaseOnly   bool
}

// Print renders pattern once per selected image. Version and release are
// read from the distgits only when the pattern uses them.
func (r *Runtime) Print(ctx context.Context, pattern string, opts PrintOptions) (Report, error) {
	p, err := report.Compile(pattern)
	if err != nil {
		return Report{}, fberrors.Validation(err.Error())
	}

	var images, excluded []*target.Target
	for _, t := range r.Images {
		switch {
		case !opts.ShowNonRelease && r.Group.Config.IsNonRelease(t.DistgitKey):
			excluded = append(excluded, t)
		case t.BaseOnly() && !opts.ShowBaseOnly:
		default:
			images = append(images, t)
		}
	}

	rep := Report{Attempted: len(images), Quiet: opts.Short}
	if opts.Short {
		// Clone progress must not mix with the rendered lines.
		quiet := r.out.Quiet()
		r.out.SetQuiet(true)
		defer r.out.SetQuiet(quiet)
	}
	needsDistgit := p.Needs(report.FieldVersion) || p.Needs(report.FieldRelease)
	if needsDistgit && len(images) > 0 {
		var cloned []*target.Target
		if cloned, err = r.cloneStage(ctx, images, &rep); err != nil {
			return rep, err
		}
		results := executor.Run(ctx, cloned, func(ctx context.Context, t *target.Target, _ executor.Signal) error {
			v, rel, err := r.c.Mirror.ReadVersionRelease(ctx, t)
			if err != nil {
				return err
			}
			t.Version, t.Release = v, rel
			return nil
		}, executor.Options[*target.Target]{
			Workers: r.opts.Workers,
			Key:     func(t *target.Target) string { return t.DistgitKey },
		})
		rep.addFailed(executor.FailedKeys(results)...)
		images = survivors(cloned, results)
	}

	verbose := !opts.Short
	if verbose {
		r.out.Println("")
		r.out.Println(separator)
	}
	for _, t := range images {
		r.out.Println("%s", p.Render(report.Values{
			Type:      string(t.Kind) + "s",
			Namespace: t.Namespace,
			Name:      t.Name,
			Component: t.Component(),
			Image:     t.Image(),
			Version:   t.Version,
			Release:   t.Release,
		}))
	}
	if verbose {
		r.out.Println(separator)
		r.out.Println("%d images", len(images))
		if len(excluded) > 0 {
			r.out.Println("")
			r.out.Println("The following %d non-release images were excluded; use --show-non-release to include them:", len(excluded))
			for _, t := range excluded {
				r.out.Println("    %s", t.DistgitKey)
			}
		}
	}
	r.out.Failures("Print failures:", rep.Failed)
	return rep, nil
}

// List prints the qualified name of every selected image.
func (r *Runtime) List() {
	r.out.Println(separator)
	for _, t := range r.Images {
		r.out.Println("%s", t.QualifiedName())
	}
	r.out.Println(separator)
	r.out.Println("%d images", len(r.Images))
}

// QueryVersion prints the upstream package version in repoType's repos.
func (r *Runtime) QueryVersion(ctx context.Context, repoType string) (string, error) {
	if r.c.Index == nil {
		return "", fberrors.Config("no package index configured")
	}
	v, err := r.c.Index.LatestVersion(ctx, repoType)
	if err != nil {
		return "", fberrors.Wrap(err, "query package version")
	}
	r.out.Println("version: %s", v)
	return v, nil
}

// Cleanup wipes the working directory.
func (r *Runtime) Cleanup() error {
	if r.opts.Workspace == nil {
		return fberrors.Config("no workspace configured")
	}
	return r.opts.Workspace.Cleanup()
}
