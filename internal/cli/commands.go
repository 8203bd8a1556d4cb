package cli

import (
	"context"

	"github.com/spf13/cobra"

	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
	"github.com/AndreyAkinshin/fleetbuild/internal/orchestrator"
	"github.com/AndreyAkinshin/fleetbuild/internal/project"
	"github.com/AndreyAkinshin/fleetbuild/internal/verify"
)

// defaultRepoType is the repo type used for version detection when neither
// --repo-type nor FLEETBUILD_IMAGES_REPO_TYPE is set.
const defaultRepoType = "unsigned"

// flow runs one orchestrator flow against an initialized runtime.
type flow func(ctx context.Context, rt *orchestrator.Runtime) (orchestrator.Report, error)

// runFlow initializes a runtime, runs fn and persists the run records.
func (a *app) runFlow(cmd *cobra.Command, mode orchestrator.Mode, repoType string, fn flow) error {
	ctx := cmd.Context()
	rt, err := a.newRuntime(ctx, mode, repoType)
	if err != nil {
		return err
	}
	defer a.closeRuntime(ctx, rt)
	return a.finish(fn(ctx, rt))
}

func (a *app) cloneCommand(use, short string, mode orchestrator.Mode) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFlow(cmd, mode, "", func(ctx context.Context, rt *orchestrator.Runtime) (orchestrator.Report, error) {
				return rt.CloneDistgits(ctx)
			})
		},
	}
}

func (a *app) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "images:list",
		Short: "List the image distgits selected for the group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFlow(cmd, orchestrator.ModeImages, "", func(_ context.Context, rt *orchestrator.Runtime) (orchestrator.Report, error) {
				rt.List()
				return orchestrator.Report{}, nil
			})
		},
	}
}

func (a *app) pushDistgitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "images:push-distgit",
		Short: "Push every selected distgit repo in the working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFlow(cmd, orchestrator.ModeImages, "", func(ctx context.Context, rt *orchestrator.Runtime) (orchestrator.Report, error) {
				return rt.PushDistgits(ctx)
			})
		},
	}
}

// addRebaseFlags registers the flags shared by images:rebase and
// images:update-dockerfile.
func addRebaseFlags(cmd *cobra.Command, opts *orchestrator.RebaseOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.Version, "version", "", `Version to stamp, e.g. v3.9.31; "auto" detects it from the package repos`)
	f.StringVar(&opts.Release, "release", "", `Release to stamp; "+" bumps the current release`)
	f.String("repo-type", defaultRepoType, "Repo type used to detect the version (e.g. signed, unsigned)")
	f.StringVarP(&opts.Message, "message", "m", "", "Commit message for distgit")
	f.BoolVar(&opts.Push, "push", false, "Push to distgit after local changes")
}

func (a *app) rebaseCommand() *cobra.Command {
	var opts orchestrator.RebaseOptions
	cmd := &cobra.Command{
		Use:   "images:rebase",
		Short: "Refresh distgit content from upstream source and stamp version and release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.RepoType = a.repoType(cmd, defaultRepoType)
			return a.runFlow(cmd, orchestrator.ModeImages, "", func(ctx context.Context, rt *orchestrator.Runtime) (orchestrator.Report, error) {
				return rt.Rebase(ctx, opts)
			})
		},
	}
	addRebaseFlags(cmd, &opts)
	return cmd
}

func (a *app) updateDockerfileCommand() *cobra.Command {
	var opts orchestrator.RebaseOptions
	cmd := &cobra.Command{
		Use:   "images:update-dockerfile",
		Short: "Stamp version and release into each distgit Dockerfile",
		Long: `Stamp version and release into each distgit Dockerfile without pulling
upstream content.

An empty --version keeps each image's current version. An empty --release
removes the release label and "+" bumps the current release.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.RepoType = a.repoType(cmd, defaultRepoType)
			return a.runFlow(cmd, orchestrator.ModeImages, "", func(ctx context.Context, rt *orchestrator.Runtime) (orchestrator.Report, error) {
				return rt.UpdateDockerfile(ctx, opts)
			})
		},
	}
	addRebaseFlags(cmd, &opts)
	return cmd
}

func (a *app) buildImagesCommand() *cobra.Command {
	var opts orchestrator.BuildOptions
	cmd := &cobra.Command{
		Use:   "images:build",
		Short: "Build images for the group",
		Long: `Build every selected image, pushing each one as soon as its build finishes
when --push-to-defaults or --push-to is given. Images marked push.late are
pushed one at a time after every other build and push succeeded.

The exit code is the number of images that failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.RepoType = a.repoType(cmd, "")
			return a.runFlow(cmd, orchestrator.ModeImages, "", func(ctx context.Context, rt *orchestrator.Runtime) (orchestrator.Report, error) {
				return rt.BuildImages(ctx, opts)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Signing, "odcs", "", "Signing intent of the compose (e.g. signed, unsigned)")
	f.String("repo-type", "", "Group repo type enabled for the build (e.g. signed, unsigned)")
	f.StringArrayVar(&opts.Repos, "repo", nil, "Custom .repo URL supplied to the build (repeatable)")
	f.BoolVar(&opts.PushToDefaults, "push-to-defaults", false, "Push to the default registries when a build completes")
	f.StringArrayVar(&opts.PushTo, "push-to", nil, "Registry to push to when a build completes (repeatable)")
	f.BoolVar(&opts.Scratch, "scratch", false, "Perform scratch builds")
	return cmd
}

func (a *app) buildRPMsCommand() *cobra.Command {
	var ver, release string
	var scratch bool
	cmd := &cobra.Command{
		Use:   "rpms:build",
		Short: "Build rpms in the group or given by --rpms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFlow(cmd, orchestrator.ModeRPMs, "", func(ctx context.Context, rt *orchestrator.Runtime) (orchestrator.Report, error) {
				return rt.BuildRPMs(ctx, ver, release, scratch)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&ver, "version", "", "Version to stamp into the spec, e.g. v3.9.31")
	f.StringVar(&release, "release", "", "Release to stamp into the spec")
	f.BoolVar(&scratch, "scratch", false, "Perform scratch builds")
	return cmd
}

func (a *app) pushCommand() *cobra.Command {
	var opts orchestrator.PushOptions
	cmd := &cobra.Command{
		Use:   "images:push",
		Short: "Push the most recently built images to registries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFlow(cmd, orchestrator.ModeImages, "", func(ctx context.Context, rt *orchestrator.Runtime) (orchestrator.Report, error) {
				return rt.Push(ctx, opts)
			})
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&opts.Tags, "tag", nil, "Additional tag to push (repeatable)")
	f.StringVar(&opts.VersionRelease, "version-release", "", "Push this version-release (e.g. v3.9.31-1) instead of reading distgits")
	f.BoolVar(&opts.ToDefaults, "to-defaults", false, "Push to the default registries")
	f.StringArrayVar(&opts.To, "to", nil, "Registry to push to (repeatable)")
	f.BoolVar(&opts.LateOnly, "late-only", false, `Push only images marked push.late`)
	f.BoolVar(&opts.DryRun, "dry-run", false, "Only print the tag and push operations")
	return cmd
}

func (a *app) verifyCommand() *cobra.Command {
	var opts orchestrator.VerifyOptions
	var orphans, sigs, versions bool
	cmd := &cobra.Command{
		Use:   "images:verify",
		Short: "Run smoke checks on built images",
		Long: `Run smoke checks on built images: rpm orphans, signatures and version
labels. Without a --check-* flag every check runs. Results are written to
verify_full_log.yml and, when checks fail, verify_fail_log.yml in the working
directory.

The exit code is the number of images that failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Checks = nil
			for name, on := range map[string]bool{verify.CheckOrphans: orphans, verify.CheckSigs: sigs, verify.CheckVersions: versions} {
				if on {
					opts.Checks = append(opts.Checks, name)
				}
			}
			opts.Checks = orderChecks(opts.Checks)
			repoType := a.repoType(cmd, defaultRepoType)
			return a.runFlow(cmd, orchestrator.ModeImages, repoType, func(ctx context.Context, rt *orchestrator.Runtime) (orchestrator.Report, error) {
				return rt.Verify(ctx, opts)
			})
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&opts.Images, "image", nil, "Image reference to verify instead of the group's builds (repeatable)")
	f.BoolVar(&opts.NoPull, "no-pull", false, "Assume images are already pulled")
	f.String("repo-type", defaultRepoType, "Repo type image content must come from (e.g. signed, unsigned)")
	f.BoolVar(&orphans, "check-orphans", false, "Check for rpms not provided by the repos")
	f.BoolVar(&sigs, "check-sigs", false, "Check rpm signatures")
	f.BoolVar(&versions, "check-versions", false, "Check version labels and tags")
	return cmd
}

// orderChecks returns checks in their canonical order.
func orderChecks(checks []string) []string {
	if len(checks) == 0 {
		return nil
	}
	on := make(map[string]bool, len(checks))
	for _, c := range checks {
		on[c] = true
	}
	var ordered []string
	for _, c := range verify.AllChecks() {
		if on[c] {
			ordered = append(ordered, c)
		}
	}
	return ordered
}

func (a *app) printCommand() *cobra.Command {
	var opts orchestrator.PrintOptions
	cmd := &cobra.Command{
		Use:   "images:print [pattern]",
		Short: "Print data from each distgit",
		Long: `Print pattern once per selected image. Fields are {type}, {namespace},
{name}, {component}, {image}, {version}, {release}, {build}, {repository} and
{lf}. A pattern without braces names a single field. The default is {build}.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "{build}"
			if len(args) == 1 {
				pattern = args[0]
			}
			return a.runFlow(cmd, orchestrator.ModeImages, "", func(ctx context.Context, rt *orchestrator.Runtime) (orchestrator.Report, error) {
				return rt.Print(ctx, pattern, opts)
			})
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.Short, "short", false, "Suppress all output other than the data itself")
	f.BoolVar(&opts.ShowNonRelease, "show-non-release", false, "Include images marked as non-release")
	f.BoolVar(&opts.ShowBaseOnly, "show-base-only", false, "Include images marked as base only")
	return cmd
}

func (a *app) queryVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images:query-rpm-version",
		Short: "Find the version of the upstream package in the group's repos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repoType := a.repoType(cmd, defaultRepoType)
			return a.runFlow(cmd, orchestrator.ModeImages, "", func(ctx context.Context, rt *orchestrator.Runtime) (orchestrator.Report, error) {
				_, err := rt.QueryVersion(ctx, repoType)
				return orchestrator.Report{}, err
			})
		},
	}
	cmd.Flags().String("repo-type", defaultRepoType, "Repo type to query (e.g. signed, unsigned)")
	return cmd
}

func (a *app) cleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Clear out the working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.global.WorkingDir == "" {
				return fberrors.Config("cleanup requires --working-dir")
			}
			meta := a.global.MetadataDir
			if meta == "" {
				meta = "."
			}
			ws, err := project.NewWorkspace(meta, a.global.WorkingDir)
			if err != nil {
				return err
			}
			a.out.Info("Clearing out %s", ws.WorkingDir)
			return orchestrator.New(a.runtimeOptions(ws), orchestrator.Collaborators{}).Cleanup()
		},
	}
}
