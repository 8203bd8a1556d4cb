// Package orchestrator runs the clone, rebase, build and push flows of a
// group. A Runtime is built once per command from explicit Options and the
// collaborators that talk to git, the build service and registries.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"github.com/AndreyAkinshin/fleetbuild/internal/audit"
	"github.com/AndreyAkinshin/fleetbuild/internal/buildmetrics"
	"github.com/AndreyAkinshin/fleetbuild/internal/buildsvc"
	"github.com/AndreyAkinshin/fleetbuild/internal/config"
	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
	"github.com/AndreyAkinshin/fleetbuild/internal/executor"
	"github.com/AndreyAkinshin/fleetbuild/internal/output"
	"github.com/AndreyAkinshin/fleetbuild/internal/project"
	"github.com/AndreyAkinshin/fleetbuild/internal/record"
	"github.com/AndreyAkinshin/fleetbuild/internal/target"
	"github.com/AndreyAkinshin/fleetbuild/internal/verify"
	"github.com/AndreyAkinshin/fleetbuild/internal/version"
	"github.com/AndreyAkinshin/fleetbuild/pkg/fleetbuild"
)

// errCancelled is returned by operations that stop because the run's
// cancellation flag was raised.
var errCancelled = errors.New("cancelled")

// Mirror performs the distgit operations of one target.
type Mirror interface {
	Clone(ctx context.Context, t *target.Target) (string, error)
	Rebase(ctx context.Context, t *target.Target, ver, release string) (string, string, error)
	Stamp(ctx context.Context, t *target.Target, ver, release string) (string, string, error)
	Commit(ctx context.Context, t *target.Target, message string) (string, error)
	Tag(ctx context.Context, t *target.Target, ver, release string) error
	Push(ctx context.Context, t *target.Target) error
	ReadVersionRelease(ctx context.Context, t *target.Target) (string, string, error)
}

// BuildService submits builds and reports task timings.
type BuildService interface {
	Submit(ctx context.Context, t *target.Target, req buildsvc.BuildRequest) (int64, error)
	Wait(ctx context.Context, taskID int64) error
	buildmetrics.TaskSource
}

// Registry pushes built images.
type Registry interface {
	Push(ctx context.Context, image string, tags, registries []string, dryRun bool) error
}

// Verifier runs image checks.
type Verifier interface {
	Pull(ctx context.Context, image string) error
	Verify(ctx context.Context, image string, checks []string) verify.Result
}

// Collaborators are the external systems a Runtime drives. Flows that need
// a nil collaborator fail with a config error.
type Collaborators struct {
	Mirror   Mirror
	Index    version.PackageIndex
	Builds   BuildService
	Registry Registry
	Verifier Verifier
	Store    audit.Store
}

// Options holds every run-level setting resolved by the CLI.
type Options struct {
	Group     string
	Workspace *project.Workspace
	Branch    string // overrides group.yml branch when set

	Images   []string // -i
	RPMs     []string // -r
	Exclude  []string // -x
	WIP      bool
	Disabled bool

	Workers  int  // 0 uses executor.DefaultWorkers
	FailFast bool // raise the cancellation flag on the first failure

	// PullRegistry prefixes image references handed to the verifier.
	PullRegistry string
	// MetricsFile, when set, receives build metrics in textfile format.
	MetricsFile string
	Registerer  prometheus.Registerer

	Out *output.Writer
}

// Mode selects which target kinds Initialize loads.
type Mode int

const (
	ModeImages Mode = 1 << iota
	ModeRPMs
	ModeAll = ModeImages | ModeRPMs
)

// Run is the per-invocation context shared by every worker.
type Run struct {
	ID      string
	Version string
	Release string
	Targets []*target.Target
	Cancel  *executor.Flag
}

// Report is the outcome of a flow.
type Report struct {
	Attempted int
	Failed    []string // sorted distgit keys
	// Quiet suppresses the closing success line; the flow's stdout is data.
	Quiet bool
}

// ExitCode is the process exit code for the report.
func (r Report) ExitCode() int {
	return fleetbuild.ExitCodeForFailures(len(r.Failed))
}

func (r *Report) addFailed(keys ...string) {
	seen := make(map[string]bool, len(r.Failed))
	for _, k := range r.Failed {
		seen[k] = true
	}
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			r.Failed = append(r.Failed, k)
		}
	}
	sort.Strings(r.Failed)
}

// Runtime executes flows for one group.
type Runtime struct {
	opts Options
	c    Collaborators
	out  *output.Writer

	Group  *config.Group
	Images []*target.Target
	RPMs   []*target.Target

	run      *Run
	recorder *record.Recorder
	metrics  *buildmetrics.Metrics

	closeOnce sync.Once
	closeErr  error
}

// New creates a Runtime. Call Initialize before running a flow.
func New(opts Options, c Collaborators) *Runtime {
	out := opts.Out
	if out == nil {
		out = output.New()
	}
	r := &Runtime{
		opts:     opts,
		c:        c,
		out:      out,
		run:      &Run{ID: uuid.NewString(), Cancel: &executor.Flag{}},
		recorder: record.NewRecorder(),
	}
	if opts.Registerer != nil {
		r.metrics = buildmetrics.NewMetrics(opts.Registerer)
	}
	return r
}

// Run returns the run context.
func (r *Runtime) Run() *Run { return r.run }

// Recorder returns the run's record log.
func (r *Runtime) Recorder() *record.Recorder { return r.recorder }

// Cancel raises the run's cancellation flag. In-flight operations stop at
// their next check.
func (r *Runtime) Cancel() { r.run.Cancel.Set() }

// Initialize loads the group and selects targets of the requested kinds.
func (r *Runtime) Initialize(ctx context.Context, mode Mode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.opts.Group == "" {
		return fberrors.Config("a group must be specified (--group)")
	}
	if r.opts.Workspace == nil {
		return fberrors.Config("no workspace configured")
	}

	g, warnings, err := config.LoadGroup(r.opts.Workspace.MetadataDir, r.opts.Group)
	for _, w := range warnings {
		r.out.Warning("%s", w)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &fberrors.FleetError{
				Kind:    fberrors.KindConfig,
				Message: fmt.Sprintf("group %q not found in %s", r.opts.Group, r.opts.Workspace.MetadataDir),
				Cause:   err,
			}
		}
		return &fberrors.FleetError{Kind: fberrors.KindConfig, Message: "load group " + r.opts.Group, Cause: err}
	}
	if r.opts.Branch != "" {
		g.Config.Branch = r.opts.Branch
	}
	r.Group = g

	sel := target.Selection{Exclude: r.opts.Exclude, WIP: r.opts.WIP, Disabled: r.opts.Disabled}
	if mode&ModeImages != 0 {
		sel.Include = r.opts.Images
		if r.Images, err = target.NewRegistry(g, target.KindImage).Select(sel); err != nil {
			return err
		}
	}
	if mode&ModeRPMs != 0 {
		sel.Include = r.opts.RPMs
		if r.RPMs, err = target.NewRegistry(g, target.KindRPM).Select(sel); err != nil {
			return err
		}
	}
	r.run.Targets = append(append([]*target.Target(nil), r.Images...), r.RPMs...)

	if err := r.opts.Workspace.Ensure(); err != nil {
		return fberrors.Wrap(err, "prepare working directory")
	}
	klog.V(1).InfoS("Initialized", "group", g.Name, "run", r.run.ID,
		"images", len(r.Images), "rpms", len(r.RPMs), "workingDir", r.opts.Workspace.WorkingDir)
	return nil
}

// stageOp processes one target within a stage.
type stageOp func(ctx context.Context, t *target.Target, cancel executor.Signal) error

// stage runs op over targets on the worker pool, reports failures and
// returns the results in target order.
func (r *Runtime) stage(ctx context.Context, name string, targets []*target.Target, workers int, op stageOp) []executor.Result {
	r.out.StageStart(name, len(targets))
	if workers <= 0 {
		workers = r.opts.Workers
	}

	results := executor.Run(ctx, targets, func(ctx context.Context, t *target.Target, cancel executor.Signal) error {
		if err := op(ctx, t, cancel); err != nil {
			if r.opts.FailFast {
				r.run.Cancel.Set()
			}
			return fberrors.TargetError(t.DistgitKey, name, err)
		}
		return nil
	}, executor.Options[*target.Target]{
		Workers: workers,
		Key:     func(t *target.Target) string { return t.DistgitKey },
		State:   func(t *target.Target) target.State { return t.State() },
		Cancel:  r.run.Cancel,
	})

	for _, res := range results {
		if res.OK {
			r.out.TargetSuccess(res.Key, name)
			continue
		}
		klog.ErrorS(res.Err, "Stage failed", "target", res.Key, "stage", name, "state", res.State)
		r.out.TargetFailed(res.Key, name, unwrapTarget(res.Err))
	}
	return results
}

// unwrapTarget strips the TargetError wrapper so output does not repeat the
// target and stage.
func unwrapTarget(err error) error {
	var fe *fberrors.FleetError
	if errors.As(err, &fe) && fe.Kind == fberrors.KindTarget && fe.Cause != nil {
		return fe.Cause
	}
	return err
}

// survivors returns the targets whose result succeeded.
func survivors(targets []*target.Target, results []executor.Result) []*target.Target {
	var ok []*target.Target
	for i, res := range results {
		if res.OK {
			ok = append(ok, targets[i])
		}
	}
	return ok
}

// checkpoint returns errCancelled once the flag is raised.
func checkpoint(cancel executor.Signal) error {
	if cancel.Cancelled() {
		return errCancelled
	}
	return nil
}

// cloneStage clones targets and returns those that succeeded.
func (r *Runtime) cloneStage(ctx context.Context, targets []*target.Target, rep *Report) ([]*target.Target, error) {
	if r.c.Mirror == nil {
		return nil, fberrors.Config("no distgit mirror configured")
	}
	results := r.stage(ctx, "clone", targets, 0, func(ctx context.Context, t *target.Target, cancel executor.Signal) error {
		if err := checkpoint(cancel); err != nil {
			return err
		}
		if _, err := r.c.Mirror.Clone(ctx, t); err != nil {
			return err
		}
		return t.Advance(target.Cloned)
	})
	rep.addFailed(executor.FailedKeys(results)...)
	return survivors(targets, results), nil
}

// CloneDistgits clones every selected target.
func (r *Runtime) CloneDistgits(ctx context.Context) (Report, error) {
	rep := Report{Attempted: len(r.run.Targets)}
	if len(r.run.Targets) == 0 {
		return rep, nil
	}
	_, err := r.cloneStage(ctx, r.run.Targets, &rep)
	return rep, err
}

// Close persists the run's records to the audit store and closes it. Only
// the first call has an effect.
func (r *Runtime) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		if r.c.Store == nil {
			return
		}
		records := r.recorder.Records()
		if len(records) > 0 {
			if err := r.c.Store.Persist(ctx, r.run.ID, records); err != nil {
				r.closeErr = fmt.Errorf("persist run records: %w", err)
			}
		}
		if err := r.c.Store.Close(); err != nil && r.closeErr == nil {
			r.closeErr = err
		}
		klog.V(2).InfoS("Run records persisted", "run", r.run.ID, "records", len(records))
	})
	return r.closeErr
}
