// Package config provides loading and validation of group metadata: one
// group.yml per group plus one YAML file per image or rpm target.
package config

// GroupConfig represents groups/<group>/group.yml.
type GroupConfig struct {
	Name       string                `yaml:"name"`
	Branch     string                `yaml:"branch"`
	Vars       map[string]string     `yaml:"vars,omitempty"`
	Repos      map[string]RepoConfig `yaml:"repos,omitempty"`
	Registries []string              `yaml:"registries,omitempty"`
	NonRelease *NonReleaseConfig     `yaml:"non_release,omitempty"`
	Sources    map[string]string     `yaml:"sources,omitempty"`
	Distgit    *DistgitConfig        `yaml:"distgit,omitempty"`
	Build      *BuildConfig          `yaml:"build,omitempty"`
	Package    *PackageConfig        `yaml:"package,omitempty"`
	Verify     *VerifyConfig         `yaml:"verify,omitempty"`
}

// RepoConfig is a yum repository set addressed by repo type
// (e.g. "signed", "unsigned").
type RepoConfig struct {
	BaseURL string `yaml:"baseurl"`
}

// NonReleaseConfig lists targets that are built but never shipped.
type NonReleaseConfig struct {
	Images []string `yaml:"images,omitempty"`
}

// DistgitConfig configures where distgit repositories live.
type DistgitConfig struct {
	URL string `yaml:"url"` // e.g. ssh://pkgs.example.com
}

// BuildConfig configures the remote build service CLI.
type BuildConfig struct {
	Tool         string `yaml:"tool,omitempty"`          // build service CLI (default "brew")
	Packager     string `yaml:"packager,omitempty"`      // distgit packaging CLI (default "rhpkg")
	Target       string `yaml:"target,omitempty"`        // build target
	PollInterval string `yaml:"poll_interval,omitempty"` // Go duration, default 30s
}

// PackageConfig names the upstream package used for "auto" version detection.
type PackageConfig struct {
	Name string `yaml:"name"`
}

// VerifyConfig configures images:verify.
type VerifyConfig struct {
	Keys []string `yaml:"keys,omitempty"` // accepted signing key IDs
}

// TargetConfig represents one images/<key>.yml or rpms/<key>.yml file.
type TargetConfig struct {
	Name    string            `yaml:"name"`
	Mode    string            `yaml:"mode,omitempty"`
	Distgit *TargetDistgit    `yaml:"distgit,omitempty"`
	Content *ContentConfig    `yaml:"content,omitempty"`
	From    *FromConfig       `yaml:"from,omitempty"`
	Push    *PushConfig       `yaml:"push,omitempty"`
	Labels  map[string]string `yaml:"labels,omitempty"`
	Owners  []string          `yaml:"owners,omitempty"`
	Base    bool              `yaml:"base_only,omitempty"`
}

// TargetDistgit overrides the distgit coordinates of a target.
type TargetDistgit struct {
	Namespace string `yaml:"namespace,omitempty"`
	Name      string `yaml:"name,omitempty"`
	Component string `yaml:"component,omitempty"`
	Branch    string `yaml:"branch,omitempty"`
}

// ContentConfig names the upstream source a target is rebased from.
type ContentConfig struct {
	Source *SourceConfig `yaml:"source,omitempty"`
}

// SourceConfig locates target content inside a registered source alias.
type SourceConfig struct {
	Alias string `yaml:"alias,omitempty"`
	Path  string `yaml:"path,omitempty"`
}

// FromConfig names the parent image.
type FromConfig struct {
	Image  string `yaml:"image,omitempty"`
	Stream string `yaml:"stream,omitempty"`
	Member string `yaml:"member,omitempty"`
}

// PushConfig controls registry pushes for an image.
type PushConfig struct {
	Late           bool     `yaml:"late,omitempty"`
	Registries     []string `yaml:"registries,omitempty"`
	AdditionalTags []string `yaml:"additional_tags,omitempty"`
}
