package config

// Default configuration values.
const (
	DefaultBuildTool      = "brew"
	DefaultPackager       = "rhpkg"
	DefaultPollInterval   = "30s"
	DefaultPackageName    = "atomic-openshift"
	DefaultImageNamespace = "containers"
	DefaultRPMNamespace   = "rpms"
)

// Target modes.
const (
	ModeEnabled  = "enabled"
	ModeDisabled = "disabled"
	ModeWIP      = "wip"
)

// applyGroupDefaults fills in default values for unset group fields.
func applyGroupDefaults(cfg *GroupConfig) {
	if cfg.Build == nil {
		cfg.Build = &BuildConfig{}
	}
	if cfg.Build.Tool == "" {
		cfg.Build.Tool = DefaultBuildTool
	}
	if cfg.Build.Packager == "" {
		cfg.Build.Packager = DefaultPackager
	}
	if cfg.Build.PollInterval == "" {
		cfg.Build.PollInterval = DefaultPollInterval
	}
	if cfg.Package == nil {
		cfg.Package = &PackageConfig{}
	}
	if cfg.Package.Name == "" {
		cfg.Package.Name = DefaultPackageName
	}
}

// applyTargetDefaults fills in default values for unset target fields.
func applyTargetDefaults(cfg *TargetConfig) {
	if cfg.Mode == "" {
		cfg.Mode = ModeEnabled
	}
	if cfg.Push == nil {
		cfg.Push = &PushConfig{}
	}
	if cfg.Distgit == nil {
		cfg.Distgit = &TargetDistgit{}
	}
}
