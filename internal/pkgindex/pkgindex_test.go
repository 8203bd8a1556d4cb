package pkgindex

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreyAkinshin/fleetbuild/internal/config"
	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
	"github.com/AndreyAkinshin/fleetbuild/internal/testing/mocks"
)

var testRepos = map[string]config.RepoConfig{
	"signed":   {BaseURL: "http://repos.example.com/signed/x86_64/"},
	"unsigned": {BaseURL: "http://repos.example.com/unsigned/x86_64/"},
}

func TestLatestVersion(t *testing.T) {
	runner := mocks.NewRunner().On("repoquery", "3.9.30\n3.9.100\n3.9.31\n3.9.31\n")
	idx := New(runner, testRepos, "")

	v, err := idx.LatestVersion(context.Background(), "signed")
	require.NoError(t, err)
	assert.Equal(t, "v3.9.100", v)

	line := runner.Lines()[0]
	assert.Contains(t, line, "--repofrompath=fleetbuild-signed,http://repos.example.com/signed/x86_64/")
	assert.True(t, strings.HasSuffix(line, " atomic-openshift"), line)
}

func TestLatestVersion_CustomPackage(t *testing.T) {
	runner := mocks.NewRunner().On("repoquery", "1.2\n")
	idx := New(runner, testRepos, "origin")

	v, err := idx.LatestVersion(context.Background(), "unsigned")
	require.NoError(t, err)
	assert.Equal(t, "v1.2", v)
	assert.True(t, strings.HasSuffix(runner.Lines()[0], " origin"))
}

func TestLatestVersion_UnknownRepoType(t *testing.T) {
	runner := mocks.NewRunner()
	idx := New(runner, testRepos, "")

	_, err := idx.LatestVersion(context.Background(), "nightly")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, fberrors.IsKind(err, fberrors.KindNotFound))
	assert.Contains(t, err.Error(), `repo type not found: nightly`)
	assert.Empty(t, runner.Lines(), "no query for unknown repo types")
}

func TestLatestVersion_NoResults(t *testing.T) {
	idx := New(mocks.NewRunner().On("repoquery", "\n"), testRepos, "")

	_, err := idx.LatestVersion(context.Background(), "signed")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, fberrors.IsKind(err, fberrors.KindNotFound))
}

func TestLatestVersion_CommandFailure(t *testing.T) {
	idx := New(mocks.NewRunner().OnError("repoquery", 1, "cannot retrieve repository metadata"), testRepos, "")

	_, err := idx.LatestVersion(context.Background(), "signed")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.False(t, fberrors.IsKind(err, fberrors.KindNotFound))
	assert.Contains(t, err.Error(), "cannot retrieve repository metadata")
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"3.9.30", "3.9.30", 0},
		{"3.9.9", "3.9.10", -1},
		{"3.10", "3.9.99", 1},
		{"3.9", "3.9.1", -1},
		{"1.0.rc1", "1.0.rc2", -1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			got := compareVersions(tt.a, tt.b)
			switch {
			case tt.want < 0:
				assert.Negative(t, got)
			case tt.want > 0:
				assert.Positive(t, got)
			default:
				assert.Zero(t, got)
			}
		})
	}
}
