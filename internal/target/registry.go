package target

import (
	"path/filepath"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/AndreyAkinshin/fleetbuild/internal/config"
	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
)

// Registry holds every target of one kind loaded from a group, keyed by
// distgit key.
type Registry struct {
	kind    Kind
	targets map[string]*Target
}

// NewRegistry creates the registry for kind from a loaded group.
func NewRegistry(g *config.Group, kind Kind) *Registry {
	cfgs := g.Images
	dir := config.ImagesDirName
	if kind == KindRPM {
		cfgs = g.RPMs
		dir = config.RPMsDirName
	}

	r := &Registry{
		kind:    kind,
		targets: make(map[string]*Target, len(cfgs)),
	}
	for key, cfg := range cfgs {
		filename := filepath.Join(dir, key+".yml")
		r.targets[key] = New(kind, key, filename, cfg, g.Config.Branch)
	}
	return r
}

// Get retrieves a target by distgit key.
func (r *Registry) Get(key string) (*Target, bool) {
	t, ok := r.targets[key]
	return t, ok
}

// All returns all targets sorted by distgit key.
func (r *Registry) All() []*Target {
	targets := make([]*Target, 0, len(r.targets))
	for _, t := range r.targets {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].DistgitKey < targets[j].DistgitKey
	})
	return targets
}

// Names returns all distgit keys sorted.
func (r *Registry) Names() []string {
	return sets.StringKeySet(r.targets).List()
}

// Selection is the operator's include/exclude request.
type Selection struct {
	Include  []string // -i / -r; empty means every target
	Exclude  []string // -x
	WIP      bool     // --wip: also load wip targets
	Disabled bool     // --disabled: also load disabled targets
}

// Select applies sel and returns the chosen targets sorted by distgit key.
// Disabled and wip targets are loaded only when named explicitly or when the
// matching flag is set. Naming a key that does not exist is a config error.
func (r *Registry) Select(sel Selection) ([]*Target, error) {
	include := sets.NewString(SplitNames(sel.Include)...)
	exclude := sets.NewString(SplitNames(sel.Exclude)...)

	if missing := include.Difference(sets.StringKeySet(r.targets)); missing.Len() > 0 {
		return nil, fberrors.Configf("unable to find the following %s configs: %s",
			r.kind, strings.Join(missing.List(), ", "))
	}

	var selected []*Target
	for _, t := range r.All() {
		if exclude.Has(t.DistgitKey) {
			continue
		}
		explicit := include.Has(t.DistgitKey)
		switch {
		case explicit:
		case t.WIP() && sel.WIP:
		case include.Len() > 0:
			continue
		case t.Disabled() && !sel.Disabled:
			continue
		case t.WIP():
			continue
		}
		selected = append(selected, t)
	}
	return selected, nil
}

// SplitNames flattens repeated and comma-separated name lists, dropping
// blanks.
func SplitNames(values []string) []string {
	var names []string
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
