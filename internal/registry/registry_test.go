package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreyAkinshin/fleetbuild/internal/testing/mocks"
)

func TestPush(t *testing.T) {
	runner := mocks.NewRunner()
	p := New(runner, Options{SourceRegistry: "brew-pulp.example.com:8888/"})

	err := p.Push(context.Background(), "openshift3/ose-cli",
		[]string{"v3.9.31-1", "v3.9.31"}, []string{"registry.a", "registry.b"}, false)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"docker pull brew-pulp.example.com:8888/openshift3/ose-cli:v3.9.31-1",
		"docker tag brew-pulp.example.com:8888/openshift3/ose-cli:v3.9.31-1 registry.a/openshift3/ose-cli:v3.9.31-1",
		"docker push registry.a/openshift3/ose-cli:v3.9.31-1",
		"docker tag brew-pulp.example.com:8888/openshift3/ose-cli:v3.9.31-1 registry.b/openshift3/ose-cli:v3.9.31-1",
		"docker push registry.b/openshift3/ose-cli:v3.9.31-1",
		"docker pull brew-pulp.example.com:8888/openshift3/ose-cli:v3.9.31",
		"docker tag brew-pulp.example.com:8888/openshift3/ose-cli:v3.9.31 registry.a/openshift3/ose-cli:v3.9.31",
		"docker push registry.a/openshift3/ose-cli:v3.9.31",
		"docker tag brew-pulp.example.com:8888/openshift3/ose-cli:v3.9.31 registry.b/openshift3/ose-cli:v3.9.31",
		"docker push registry.b/openshift3/ose-cli:v3.9.31",
	}, runner.Lines())
}

func TestPush_DryRun(t *testing.T) {
	runner := mocks.NewRunner()
	p := New(runner, Options{Tool: "podman"})

	require.NoError(t, p.Push(context.Background(), "img", []string{"v1"}, []string{"reg"}, true))
	assert.Empty(t, runner.Lines())
}

func TestPush_PartialFailure(t *testing.T) {
	runner := mocks.NewRunner().OnError("podman push registry.b", 1, "unauthorized")
	p := New(runner, Options{Tool: "podman"})

	err := p.Push(context.Background(), "img", []string{"v1"}, []string{"registry.a", "registry.b"}, false)

	var pushErr *PushError
	require.True(t, errors.As(err, &pushErr))
	assert.Equal(t, "img", pushErr.Image)
	assert.Equal(t, []string{"registry.b/img:v1"}, pushErr.Failed)
	assert.Contains(t, err.Error(), "unauthorized")
	assert.Equal(t, 1, runner.Count("podman push registry.a"), "other destinations still pushed")
}

func TestPush_PullFailureFailsAllDestinations(t *testing.T) {
	runner := mocks.NewRunner().OnError("docker pull", 1, "manifest unknown")
	p := New(runner, Options{})

	err := p.Push(context.Background(), "img", []string{"v1"}, []string{"a", "b"}, false)

	var pushErr *PushError
	require.True(t, errors.As(err, &pushErr))
	assert.Equal(t, []string{"a/img:v1", "b/img:v1"}, pushErr.Failed)
	assert.Zero(t, runner.Count("docker push"))
}

func TestPush_InvalidArguments(t *testing.T) {
	p := New(mocks.NewRunner(), Options{})

	assert.ErrorContains(t, p.Push(context.Background(), "img", nil, []string{"a"}, false), "no tags")
	assert.ErrorContains(t, p.Push(context.Background(), "img", []string{"v1"}, nil, false), "no destination")
}

func TestAvailable(t *testing.T) {
	assert.NoError(t, New(mocks.NewRunner(), Options{}).Available(context.Background()))

	err := New(mocks.NewRunner().OnError("docker info", 1, "cannot connect"), Options{}).Available(context.Background())
	var unavailable *UnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "docker", unavailable.Tool)
}

func TestSourceRef(t *testing.T) {
	assert.Equal(t, "img:v1", New(nil, Options{}).SourceRef("img", "v1"))
	assert.Equal(t, "reg:8888/img:v1", New(nil, Options{SourceRegistry: "reg:8888"}).SourceRef("img", "v1"))
}
