package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreyAkinshin/fleetbuild/internal/config"
	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
)

func testGroup() *config.Group {
	return &config.Group{
		Name:   "openshift-3.9",
		Config: &config.GroupConfig{Branch: "rhaos-3.9-rhel-7"},
		Images: map[string]*config.TargetConfig{
			"ose-cli":     {Name: "openshift3/ose-cli", Mode: config.ModeEnabled},
			"ose":         {Name: "openshift3/ose", Mode: config.ModeEnabled},
			"ose-wip":     {Name: "openshift3/ose-wip", Mode: config.ModeWIP},
			"ose-retired": {Name: "openshift3/ose-retired", Mode: config.ModeDisabled},
		},
		RPMs: map[string]*config.TargetConfig{
			"openshift": {Name: "atomic-openshift", Mode: config.ModeEnabled},
		},
	}
}

func keys(targets []*Target) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.DistgitKey)
	}
	return out
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	images := NewRegistry(testGroup(), KindImage)
	assert.Equal(t, []string{"ose", "ose-cli", "ose-retired", "ose-wip"}, images.Names())

	tgt, ok := images.Get("ose-cli")
	require.True(t, ok)
	assert.Equal(t, "images/ose-cli.yml", tgt.ConfigFilename)
	assert.Equal(t, "rhaos-3.9-rhel-7", tgt.Branch)

	rpms := NewRegistry(testGroup(), KindRPM)
	assert.Equal(t, []string{"openshift"}, keys(rpms.All()))
	_, ok = rpms.Get("ose")
	assert.False(t, ok)
}

func TestRegistry_Select(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sel  Selection
		want []string
	}{
		{"default", Selection{}, []string{"ose", "ose-cli"}},
		{"wip", Selection{WIP: true}, []string{"ose", "ose-cli", "ose-wip"}},
		{"disabled", Selection{Disabled: true}, []string{"ose", "ose-cli", "ose-retired"}},
		{"include", Selection{Include: []string{"ose-cli"}}, []string{"ose-cli"}},
		{"include comma list", Selection{Include: []string{"ose-cli, ose"}}, []string{"ose", "ose-cli"}},
		{"include disabled explicitly", Selection{Include: []string{"ose-retired"}}, []string{"ose-retired"}},
		{"include plus wip", Selection{Include: []string{"ose"}, WIP: true}, []string{"ose", "ose-wip"}},
		{"exclude", Selection{Exclude: []string{"ose"}}, []string{"ose-cli"}},
		{"exclude unknown ignored", Selection{Exclude: []string{"nope"}}, []string{"ose", "ose-cli"}},
		{"exclude everything", Selection{Exclude: []string{"ose,ose-cli"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NewRegistry(testGroup(), KindImage).Select(tt.sel)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, keys(got))
		})
	}
}

func TestRegistry_SelectUnknown(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(testGroup(), KindImage).Select(Selection{Include: []string{"ose", "missing-b", "missing-a"}})
	require.Error(t, err)
	assert.True(t, fberrors.IsKind(err, fberrors.KindConfig))
	assert.Contains(t, err.Error(), "missing-a, missing-b")
}

func TestSplitNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b", "c"}, SplitNames([]string{"a,b", " c ", ",,"}))
	assert.Empty(t, SplitNames(nil))
}
