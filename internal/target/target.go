// Package target models the distribution targets of a group: container
// images and rpm package specs, each backed by one distgit repository.
package target

import (
	"fmt"
	"strings"

	"github.com/AndreyAkinshin/fleetbuild/internal/config"
)

// Kind is the type of a target.
type Kind string

const (
	KindImage Kind = "image"
	KindRPM   Kind = "rpm"
)

// Namespace returns the default distgit namespace for the kind.
func (k Kind) Namespace() string {
	if k == KindRPM {
		return config.DefaultRPMNamespace
	}
	return config.DefaultImageNamespace
}

// Target is one versioned build unit. A Target is owned by the run that
// loaded it and is touched by at most one worker at a time.
type Target struct {
	Kind           Kind
	Namespace      string
	Name           string // distgit repository name
	DistgitKey     string // config file basename, used with -i/-r/-x
	ConfigFilename string
	Branch         string
	Config         *config.TargetConfig

	Version string
	Release string
	Late    bool
	Mode    string
	Workdir string

	state State
}

// New builds a Target from its config. groupBranch is the branch used when
// the target does not override distgit.branch.
func New(kind Kind, key, filename string, cfg *config.TargetConfig, groupBranch string) *Target {
	t := &Target{
		Kind:           kind,
		Namespace:      kind.Namespace(),
		Name:           key,
		DistgitKey:     key,
		ConfigFilename: filename,
		Branch:         groupBranch,
		Config:         cfg,
		Mode:           config.ModeEnabled,
	}
	if cfg == nil {
		return t
	}
	if cfg.Mode != "" {
		t.Mode = cfg.Mode
	}
	if cfg.Push != nil {
		t.Late = cfg.Push.Late
	}
	if d := cfg.Distgit; d != nil {
		if d.Namespace != "" {
			t.Namespace = d.Namespace
		}
		if d.Name != "" {
			t.Name = d.Name
		}
		if d.Branch != "" {
			t.Branch = d.Branch
		}
	}
	return t
}

// QualifiedName returns namespace/name.
func (t *Target) QualifiedName() string {
	return t.Namespace + "/" + t.Name
}

// Image returns the image name from the config (e.g. openshift3/ose-cli).
func (t *Target) Image() string {
	if t.Config == nil || t.Config.Name == "" {
		return t.Name
	}
	return t.Config.Name
}

// Component returns the build-service component name. An explicit
// distgit.component wins; image components get a "-container" suffix.
func (t *Target) Component() string {
	if t.Config != nil && t.Config.Distgit != nil && t.Config.Distgit.Component != "" {
		return t.Config.Distgit.Component
	}
	name := t.Name
	if strings.HasSuffix(t.DistgitKey, "-apb") && !strings.HasSuffix(name, "-apb") {
		name += "-apb"
	}
	if t.Namespace == config.DefaultImageNamespace {
		name += "-container"
	}
	return name
}

// BaseOnly reports whether the image is only a parent for other images.
func (t *Target) BaseOnly() bool {
	return t.Config != nil && t.Config.Base
}

// Disabled reports whether the target is in disabled mode.
func (t *Target) Disabled() bool { return t.Mode == config.ModeDisabled }

// WIP reports whether the target is in wip mode.
func (t *Target) WIP() bool { return t.Mode == config.ModeWIP }

// State returns the furthest lifecycle state the target has reached.
func (t *Target) State() State { return t.state }

// Advance moves the target forward to s. Moving backwards is an error;
// advancing to the current state is a no-op.
func (t *Target) Advance(s State) error {
	if s < t.state {
		return fmt.Errorf("%s: cannot move from %s back to %s", t.DistgitKey, t.state, s)
	}
	t.state = s
	return nil
}

func (t *Target) String() string {
	return t.QualifiedName()
}
