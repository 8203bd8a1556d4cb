package cli

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"github.com/AndreyAkinshin/fleetbuild/internal/audit"
	"github.com/AndreyAkinshin/fleetbuild/internal/buildsvc"
	"github.com/AndreyAkinshin/fleetbuild/internal/cmdexec"
	"github.com/AndreyAkinshin/fleetbuild/internal/config"
	"github.com/AndreyAkinshin/fleetbuild/internal/distgit"
	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
	"github.com/AndreyAkinshin/fleetbuild/internal/orchestrator"
	"github.com/AndreyAkinshin/fleetbuild/internal/pkgindex"
	"github.com/AndreyAkinshin/fleetbuild/internal/project"
	"github.com/AndreyAkinshin/fleetbuild/internal/registry"
	"github.com/AndreyAkinshin/fleetbuild/internal/verify"
)

// commandLogName is the file under the logs directory receiving the output
// of every external command.
const commandLogName = "commands.log"

// wireRequest carries what collaborator wiring needs beyond the globals.
type wireRequest struct {
	Workspace *project.Workspace
	Group     *config.GroupConfig // nil when group.yml cannot be read
	RepoType  string              // repo type checked by images:verify
}

type wireFunc func(ctx context.Context, req wireRequest) (orchestrator.Collaborators, error)

// newRuntime resolves the workspace, wires collaborators and initializes
// a runtime for mode.
func (a *app) newRuntime(ctx context.Context, mode orchestrator.Mode, repoType string) (*orchestrator.Runtime, error) {
	ws, err := a.workspace()
	if err != nil {
		return nil, err
	}

	req := wireRequest{Workspace: ws, RepoType: repoType}
	if a.global.Group != "" {
		path := filepath.Join(config.GroupDir(ws.MetadataDir, a.global.Group), config.GroupFileName)
		// Load errors are reported by Initialize.
		req.Group, _, _ = config.LoadGroupConfig(path)
	}
	c, err := a.wire(ctx, req)
	if err != nil {
		return nil, err
	}

	rt := orchestrator.New(a.runtimeOptions(ws), c)
	a.setRuntime(rt)
	if err := rt.Initialize(ctx, mode); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return rt, nil
}

func (a *app) workspace() (*project.Workspace, error) {
	ws, err := project.NewWorkspace(a.global.MetadataDir, a.global.WorkingDir)
	if err != nil {
		return nil, &fberrors.FleetError{Kind: fberrors.KindConfig, Message: "resolve metadata directory", Cause: err}
	}
	return ws, nil
}

func (a *app) runtimeOptions(ws *project.Workspace) orchestrator.Options {
	return orchestrator.Options{
		Group:        a.global.Group,
		Workspace:    ws,
		Branch:       a.global.Branch,
		Images:       a.global.Images,
		RPMs:         a.global.RPMs,
		Exclude:      a.global.Exclude,
		WIP:          a.global.WIP,
		Disabled:     a.global.Disabled,
		Workers:      a.global.Parallel,
		FailFast:     a.global.FailFast,
		PullRegistry: a.global.PullRegistry,
		MetricsFile:  a.global.MetricsFile,
		Registerer:   prometheus.NewRegistry(),
		Out:          a.out,
	}
}

// defaultCollaborators wires the CLI-backed implementations from group.yml.
func (a *app) defaultCollaborators(ctx context.Context, req wireRequest) (orchestrator.Collaborators, error) {
	runner, err := a.commandRunner(req.Workspace)
	if err != nil {
		return orchestrator.Collaborators{}, err
	}

	g := req.Group
	if g == nil {
		g = &config.GroupConfig{}
	}

	distOpts := distgit.Options{Sources: map[string]string{}}
	for alias, path := range g.Sources {
		distOpts.Sources[alias] = path
	}
	for alias, path := range a.global.Sources {
		distOpts.Sources[alias] = path
	}
	if g.Distgit != nil {
		if distOpts.BaseURL, err = distgitURL(g.Distgit.URL, a.global.User); err != nil {
			return orchestrator.Collaborators{}, err
		}
	}

	buildOpts := buildsvc.Options{}
	if b := g.Build; b != nil {
		buildOpts = buildsvc.Options{Tool: b.Tool, Packager: b.Packager, Target: b.Target}
		if b.PollInterval != "" {
			if buildOpts.PollInterval, err = time.ParseDuration(b.PollInterval); err != nil {
				return orchestrator.Collaborators{}, fberrors.Configf("invalid build.poll_interval %q: %v", b.PollInterval, err)
			}
		}
	}

	pkgName := ""
	if g.Package != nil {
		pkgName = g.Package.Name
	}

	verifyOpts := verify.Options{}
	if g.Verify != nil {
		verifyOpts.Keys = g.Verify.Keys
	}
	if repo, ok := g.Repos[req.RepoType]; ok {
		verifyOpts.RepoURL = repo.BaseURL
	}

	store, err := audit.Open(ctx, a.global.AuditStore, req.Workspace.RecordLogPath())
	if err != nil {
		return orchestrator.Collaborators{}, fberrors.Wrap(err, "open audit store")
	}

	return orchestrator.Collaborators{
		Mirror:   distgit.New(runner, req.Workspace, distOpts),
		Index:    pkgindex.New(runner, g.Repos, pkgName),
		Builds:   buildsvc.New(runner, buildOpts),
		Registry: registry.New(runner, registry.Options{SourceRegistry: a.global.PullRegistry}),
		Verifier: verify.New(runner, verifyOpts),
		Store:    store,
	}, nil
}

// commandRunner returns an exec runner that copies command output to the
// workspace command log.
func (a *app) commandRunner(ws *project.Workspace) (cmdexec.Runner, error) {
	if err := ws.Ensure(); err != nil {
		return nil, fberrors.Wrap(err, "prepare working directory")
	}
	path := filepath.Join(ws.LogsDir(), commandLogName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fberrors.Wrap(err, "open command log")
	}
	a.addCloser(f)
	klog.V(2).InfoS("Logging commands", "path", path)
	return &cmdexec.ExecRunner{Log: f}, nil
}

// distgitURL adds user to an ssh distgit URL that has none.
func distgitURL(raw, user string) (string, error) {
	if raw == "" || user == "" {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fberrors.Configf("invalid distgit.url %q: %v", raw, err)
	}
	if u.Scheme != "ssh" || u.User != nil {
		return raw, nil
	}
	u.User = url.User(user)
	return u.String(), nil
}

// finish converts a flow report into the command result.
func (a *app) finish(rep orchestrator.Report, err error) error {
	if err != nil {
		return err
	}
	if code := rep.ExitCode(); code != 0 {
		a.out.FinalFailure("%d of %d targets failed", len(rep.Failed), rep.Attempted)
		return &failuresError{code: code}
	}
	if rep.Attempted > 0 && !rep.Quiet {
		a.out.FinalSuccess("All %d targets succeeded", rep.Attempted)
	}
	return nil
}

// closeRuntime persists the run records; failures are reported but never
// change the exit code.
func (a *app) closeRuntime(ctx context.Context, rt *orchestrator.Runtime) {
	if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
		klog.ErrorS(err, "Failed to persist run records")
		a.out.Warning("run records not persisted: %v", err)
	}
}
