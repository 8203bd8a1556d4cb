package cli

import (
	goflag "flag"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
	"github.com/AndreyAkinshin/fleetbuild/internal/orchestrator"
)

// EnvPrefix prefixes every environment variable bound to a flag
// (--working-dir is FLEETBUILD_WORKING_DIR).
const EnvPrefix = "FLEETBUILD"

// debugVerbosity is the klog level enabled by --debug.
const debugVerbosity = "4"

// Setting keys that are read from the environment only.
const (
	keyImagesRepoType = "images-repo-type" // FLEETBUILD_IMAGES_REPO_TYPE
)

// globalOptions holds the resolved root flags.
type globalOptions struct {
	MetadataDir  string
	WorkingDir   string
	User         string
	Group        string
	Branch       string
	Images       []string
	RPMs         []string
	Exclude      []string
	WIP          bool
	Disabled     bool
	Quiet        bool
	Debug        bool
	FailFast     bool
	Parallel     int
	AuditStore   string
	MetricsFile  string
	PullRegistry string
	Sources      map[string]string
}

// rootCommand builds the command tree.
func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "fleetbuild",
		Short:         "Rebase, build and push a group of container images and rpms",
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.resolveGlobals()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate("fleetbuild {{.Version}}\n")
	root.SetOut(a.out.Out())

	a.addGlobalFlags(root.PersistentFlags())

	root.AddCommand(
		a.cloneCommand("images:clone", "Clone a group's image distgit repos locally", orchestrator.ModeImages),
		a.cloneCommand("rpms:clone", "Clone a group's rpm distgit repos locally", orchestrator.ModeRPMs),
		a.listCommand(),
		a.pushDistgitCommand(),
		a.updateDockerfileCommand(),
		a.rebaseCommand(),
		a.buildImagesCommand(),
		a.buildRPMsCommand(),
		a.pushCommand(),
		a.verifyCommand(),
		a.printCommand(),
		a.queryVersionCommand(),
		a.cleanupCommand(),
		a.completionCommand(),
		a.versionCommand(),
	)
	return root
}

func (a *app) addGlobalFlags(fs *pflag.FlagSet) {
	fs.String("metadata-dir", "", "Metadata directory holding groups/ (default: discovered from the current directory)")
	fs.String("working-dir", "", "Persistent working directory (default: a new temporary directory)")
	fs.String("user", "", "Username for distgit access")
	fs.StringP("group", "g", "", "The group of images and rpms to operate on")
	fs.String("branch", "", "Distgit branch overriding the group's branch")
	fs.StringSliceP("images", "i", nil, "Image distgit keys to select (repeatable, comma separated)")
	fs.StringSliceP("rpms", "r", nil, "Rpm distgit keys to select (repeatable, comma separated)")
	fs.StringSliceP("exclude", "x", nil, "Distgit keys to exclude (repeatable, comma separated)")
	fs.Bool("wip", false, "Load wip targets in addition to those specified")
	fs.Bool("disabled", false, "Treat disabled targets as enabled")
	fs.BoolP("quiet", "q", false, "Suppress non-critical output")
	fs.Bool("debug", false, "Show debug output on the console")
	fs.Bool("fail-fast", false, "Stop remaining targets after the first failure")
	fs.Int("parallel", 0, "Maximum concurrent targets (default: FLEETBUILD_PARALLEL or the CPU count)")
	fs.String("audit-store", "", "Where run records are persisted: a path, redis:// or postgres:// URL")
	fs.String("metrics-file", "", "Write build metrics in Prometheus textfile format")
	fs.String("pull-registry", "", "Registry the build service publishes built images to")
	fs.StringToString("source", nil, "Associate a source alias with a local path (alias=path, repeatable)")

	klogFlags := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(klogFlags)
	fs.AddGoFlagSet(klogFlags)

	_ = a.v.BindPFlags(fs)
	_ = a.v.BindEnv(keyImagesRepoType)
	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
}

// resolveGlobals reads the root flags through viper so unset flags fall
// back to FLEETBUILD_* variables.
func (a *app) resolveGlobals() error {
	v := a.v
	a.global = globalOptions{
		MetadataDir:  v.GetString("metadata-dir"),
		WorkingDir:   v.GetString("working-dir"),
		User:         v.GetString("user"),
		Group:        v.GetString("group"),
		Branch:       v.GetString("branch"),
		Images:       v.GetStringSlice("images"),
		RPMs:         v.GetStringSlice("rpms"),
		Exclude:      v.GetStringSlice("exclude"),
		WIP:          v.GetBool("wip"),
		Disabled:     v.GetBool("disabled"),
		Quiet:        v.GetBool("quiet"),
		Debug:        v.GetBool("debug"),
		FailFast:     v.GetBool("fail-fast"),
		Parallel:     v.GetInt("parallel"),
		AuditStore:   v.GetString("audit-store"),
		MetricsFile:  v.GetString("metrics-file"),
		PullRegistry: v.GetString("pull-registry"),
		Sources:      v.GetStringMapString("source"),
	}
	if a.global.Parallel < 0 {
		return fberrors.Configf("--parallel must be positive, got %d", a.global.Parallel)
	}

	a.out.SetQuiet(a.global.Quiet)
	if a.global.Debug {
		var level klog.Level
		if err := level.Set(debugVerbosity); err != nil {
			return err
		}
	}
	return nil
}

// repoType returns the command's --repo-type, falling back to
// FLEETBUILD_IMAGES_REPO_TYPE and then to def.
func (a *app) repoType(cmd *cobra.Command, def string) string {
	if f := cmd.Flags().Lookup("repo-type"); f != nil && f.Changed {
		return f.Value.String()
	}
	if env := a.v.GetString(keyImagesRepoType); env != "" {
		return env
	}
	return def
}
