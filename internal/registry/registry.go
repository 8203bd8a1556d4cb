// Package registry copies built images from the build service's registry to
// the group's destination registries with the docker or podman CLI.
package registry

import (
	"context"
	"fmt"
	"strings"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"

	"github.com/AndreyAkinshin/fleetbuild/internal/cmdexec"
)

// DefaultTool is the container CLI used when Options.Tool is empty.
const DefaultTool = "docker"

// Options configures a Pusher.
type Options struct {
	Tool           string // "docker" or "podman"
	SourceRegistry string // registry the build service publishes to
}

// Pusher implements image pushes.
type Pusher struct {
	runner cmdexec.Runner
	opts   Options
}

// New creates a Pusher.
func New(runner cmdexec.Runner, opts Options) *Pusher {
	if opts.Tool == "" {
		opts.Tool = DefaultTool
	}
	return &Pusher{runner: runner, opts: opts}
}

// UnavailableError indicates the container CLI cannot reach its daemon.
type UnavailableError struct {
	Tool string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s is not available or not running: %v", e.Tool, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Available returns an *UnavailableError when the container CLI does not
// work.
func (p *Pusher) Available(ctx context.Context) error {
	if _, err := p.runner.Run(ctx, cmdexec.Cmd{Name: p.opts.Tool, Args: []string{"info"}}); err != nil {
		return &UnavailableError{Tool: p.opts.Tool, Err: err}
	}
	return nil
}

// PushError lists the destinations that could not be pushed.
type PushError struct {
	Image  string
	Failed []string
	Err    error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("push %s failed for %s: %v", e.Image, strings.Join(e.Failed, ", "), e.Err)
}

func (e *PushError) Unwrap() error { return e.Err }

// SourceRef returns the build service reference of image:tag.
func (p *Pusher) SourceRef(image, tag string) string {
	if p.opts.SourceRegistry == "" {
		return image + ":" + tag
	}
	return strings.TrimSuffix(p.opts.SourceRegistry, "/") + "/" + image + ":" + tag
}

// Push pulls image at every tag from the source registry, then tags and
// pushes it to each registry. Every destination is attempted; failures are
// collected into a *PushError. With dryRun only the plan is logged.
func (p *Pusher) Push(ctx context.Context, image string, tags, registries []string, dryRun bool) error {
	if len(tags) == 0 {
		return fmt.Errorf("push %s: no tags", image)
	}
	if len(registries) == 0 {
		return fmt.Errorf("push %s: no destination registries", image)
	}

	var failed []string
	var errs []error
	for _, tag := range tags {
		src := p.SourceRef(image, tag)
		if dryRun {
			for _, reg := range registries {
				klog.InfoS("Would push", "source", src, "dest", destRef(reg, image, tag))
			}
			continue
		}

		if err := p.tool(ctx, "pull", src); err != nil {
			for _, reg := range registries {
				failed = append(failed, destRef(reg, image, tag))
			}
			errs = append(errs, err)
			continue
		}
		for _, reg := range registries {
			dest := destRef(reg, image, tag)
			if err := p.tool(ctx, "tag", src, dest); err != nil {
				failed = append(failed, dest)
				errs = append(errs, err)
				continue
			}
			if err := p.tool(ctx, "push", dest); err != nil {
				failed = append(failed, dest)
				errs = append(errs, err)
				continue
			}
			klog.V(2).InfoS("Pushed", "dest", dest)
		}
	}

	if len(failed) > 0 {
		return &PushError{Image: image, Failed: failed, Err: utilerrors.NewAggregate(errs)}
	}
	return nil
}

func (p *Pusher) tool(ctx context.Context, args ...string) error {
	_, err := p.runner.Run(ctx, cmdexec.Cmd{Name: p.opts.Tool, Args: args})
	return err
}

func destRef(registry, image, tag string) string {
	return strings.TrimSuffix(registry, "/") + "/" + image + ":" + tag
}
