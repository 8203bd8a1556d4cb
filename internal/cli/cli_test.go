package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreyAkinshin/fleetbuild/internal/orchestrator"
	"github.com/AndreyAkinshin/fleetbuild/internal/testing/mocks"
	"github.com/AndreyAkinshin/fleetbuild/internal/verify"
)

const testGroup = "openshift-3.9"

type testApp struct {
	*app
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	meta   string
	work   string

	mirror   *mocks.Mirror
	builds   *mocks.Builds
	registry *mocks.Registry
	verifier *mocks.Verifier
	store    *mocks.Store
	wired    []wireRequest
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	meta := t.TempDir()
	dir := filepath.Join(meta, "groups", testGroup)
	writeFile(t, filepath.Join(dir, "group.yml"), `name: openshift-3.9
branch: rhaos-3.9-rhel-7
repos:
  signed:
    baseurl: http://download.example.com/signed
  unsigned:
    baseurl: http://download.example.com/unsigned
registries:
  - registry.example.com
distgit:
  url: ssh://pkgs.example.com
`)
	writeFile(t, filepath.Join(dir, "images", "ose.yml"), "name: openshift3/ose\n")
	writeFile(t, filepath.Join(dir, "images", "ose-cli.yml"), "name: openshift3/ose-cli\n")
	writeFile(t, filepath.Join(dir, "images", "ose-node.yml"), "name: openshift3/node\npush:\n  late: true\n")
	writeFile(t, filepath.Join(dir, "rpms", "openshift.yml"), "name: openshift\n")

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	ta := &testApp{
		app:      newApp(stdout, stderr),
		stdout:   stdout,
		stderr:   stderr,
		meta:     meta,
		work:     t.TempDir(),
		mirror:   mocks.NewMirror(),
		builds:   mocks.NewBuilds(),
		registry: mocks.NewRegistry(),
		verifier: mocks.NewVerifier(),
		store:    mocks.NewStore(),
	}
	ta.wire = func(_ context.Context, req wireRequest) (orchestrator.Collaborators, error) {
		ta.wired = append(ta.wired, req)
		return orchestrator.Collaborators{
			Mirror:   ta.mirror,
			Index:    mocks.NewPackageIndex().WithVersion("signed", "v3.9.40"),
			Builds:   ta.builds,
			Registry: ta.registry,
			Verifier: ta.verifier,
			Store:    ta.store,
		}, nil
	}
	return ta
}

// run executes args with the fixture's metadata and working directories.
func (ta *testApp) run(args ...string) int {
	full := append([]string{"--metadata-dir", ta.meta, "--working-dir", ta.work}, args...)
	return ta.execute(context.Background(), full)
}

func TestRun_Version(t *testing.T) {
	for _, args := range [][]string{{"version"}, {"--version"}} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			ta := newTestApp(t)
			code := ta.execute(context.Background(), args)
			assert.Equal(t, 0, code)
			assert.Equal(t, "fleetbuild dev\n", ta.stdout.String())
		})
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	ta := newTestApp(t)
	code := ta.execute(context.Background(), []string{"images:frobnicate"})
	assert.Equal(t, 1, code)
	assert.Contains(t, ta.stderr.String(), "fleetbuild: unknown command")
}

func TestRun_MissingGroup(t *testing.T) {
	ta := newTestApp(t)
	code := ta.run("images:list")
	assert.Equal(t, 1, code)
	assert.Contains(t, ta.stderr.String(), "a group must be specified")
}

func TestRun_ImagesList(t *testing.T) {
	ta := newTestApp(t)
	code := ta.run("-g", testGroup, "images:list")
	require.Equal(t, 0, code, ta.stderr.String())
	assert.Contains(t, ta.stdout.String(), "containers/ose-cli\n")
	assert.Contains(t, ta.stdout.String(), "3 images\n")

	require.Len(t, ta.wired, 1)
	require.NotNil(t, ta.wired[0].Group)
	assert.Equal(t, "ssh://pkgs.example.com", ta.wired[0].Group.Distgit.URL)
}

func TestRun_GroupFromEnvironment(t *testing.T) {
	t.Setenv("FLEETBUILD_GROUP", testGroup)
	t.Setenv("FLEETBUILD_EXCLUDE", "ose-node")
	ta := newTestApp(t)

	code := ta.run("images:list", "-q")
	require.Equal(t, 0, code, ta.stderr.String())
	assert.Contains(t, ta.stdout.String(), "2 images\n")
	assert.NotContains(t, ta.stdout.String(), "ose-node")
}

func TestRun_FlagWinsOverEnvironment(t *testing.T) {
	t.Setenv("FLEETBUILD_GROUP", "openshift-9.9")
	ta := newTestApp(t)

	code := ta.run("-g", testGroup, "images:list")
	assert.Equal(t, 0, code, ta.stderr.String())
}

func TestRun_BuildExitCodeCountsFailures(t *testing.T) {
	ta := newTestApp(t)
	ta.builds.Fail("ose", "wait", errors.New("task failed"))
	ta.builds.Fail("ose-cli", "submit", errors.New("unauthorized"))

	code := ta.run("-g", testGroup, "images:build", "--repo-type", "signed", "--push-to-defaults")
	assert.Equal(t, 2, code)
	assert.Contains(t, ta.stderr.String(), "Build/push failures:\nose\nose-cli")
	assert.Contains(t, ta.stderr.String(), "2 of 3 targets failed")
	assert.Empty(t, ta.registry.Pushes())
}

func TestRun_BuildRepoTypeFromEnvironment(t *testing.T) {
	t.Setenv("FLEETBUILD_IMAGES_REPO_TYPE", "signed")
	ta := newTestApp(t)

	code := ta.run("-g", testGroup, "-i", "ose-cli", "images:build", "--odcs", "signed", "--scratch")
	require.Equal(t, 0, code, ta.stderr.String())

	req, ok := ta.builds.Request("ose-cli")
	require.True(t, ok)
	assert.Equal(t, []string{"http://download.example.com/signed"}, req.Repos)
	assert.Equal(t, "signed", req.Signing)
	assert.True(t, req.Scratch)
}

func TestRun_BuildWithoutReposIsConfigError(t *testing.T) {
	ta := newTestApp(t)
	code := ta.run("-g", testGroup, "images:build")
	assert.Equal(t, 1, code)
	assert.Contains(t, ta.stderr.String(), "no repos specified")
	assert.Zero(t, ta.builds.Submitted())
}

func TestRun_RebasePersistsRecords(t *testing.T) {
	ta := newTestApp(t)
	code := ta.run("-g", testGroup, "images:rebase", "--version", "v3.9.31", "--release", "1", "-m", "rebase")
	require.Equal(t, 0, code, ta.stderr.String())
	assert.Equal(t, 1, ta.store.PersistCalls())
	assert.Equal(t, 1, ta.store.CloseCalls())
	assert.Contains(t, ta.stdout.String(), "All 3 targets succeeded")
}

func TestRun_RebaseInvalidVersion(t *testing.T) {
	ta := newTestApp(t)
	code := ta.run("-g", testGroup, "images:rebase", "--version", "latest")
	assert.Equal(t, 1, code)
	assert.Contains(t, ta.stderr.String(), "invalid version string")
	assert.Empty(t, ta.mirror.Ops())
}

func TestRun_PushLateOnly(t *testing.T) {
	ta := newTestApp(t)
	code := ta.run("-g", testGroup, "images:push", "--to-defaults", "--late-only", "--version-release", "v3.9.31-1", "--tag", "latest")
	require.Equal(t, 0, code, ta.stderr.String())

	pushes := ta.registry.Pushes()
	require.Len(t, pushes, 1)
	assert.Equal(t, "openshift3/node", pushes[0].Image)
	assert.Equal(t, []string{"v3.9.31-1", "v3.9.31", "latest"}, pushes[0].Tags)
}

func TestRun_VerifySelectedChecks(t *testing.T) {
	ta := newTestApp(t)
	ta.verifier.FailImage("openshift3/ose:v1-1")

	code := ta.run("-g", testGroup, "images:verify", "--image", "openshift3/ose:v1-1",
		"--image", "openshift3/ose-cli:v1-1", "--check-versions", "--repo-type", "signed")
	assert.Equal(t, 1, code)
	assert.FileExists(t, filepath.Join(ta.work, orchestrator.VerifyFailLogName))
	require.Len(t, ta.wired, 1)
	assert.Equal(t, "signed", ta.wired[0].RepoType)
}

func TestRun_PrintShort(t *testing.T) {
	ta := newTestApp(t)
	code := ta.run("-g", testGroup, "images:print", "--short", "{image}")
	require.Equal(t, 0, code, ta.stderr.String())
	assert.Equal(t, "openshift3/ose\nopenshift3/ose-cli\nopenshift3/node\n", ta.stdout.String())
}

func TestRun_PrintShortWithVersion(t *testing.T) {
	ta := newTestApp(t)
	ta.mirror.WithVersion("ose", "v3.9.31", "1").
		WithVersion("ose-cli", "v3.9.31", "1").
		WithVersion("ose-node", "v3.9.30", "4")

	code := ta.run("-g", testGroup, "images:print", "--short", "{image}:{version}")
	require.Equal(t, 0, code, ta.stderr.String())
	assert.Equal(t,
		"openshift3/ose:v3.9.31\nopenshift3/ose-cli:v3.9.31\nopenshift3/node:v3.9.30\n",
		ta.stdout.String())
}

func TestRun_PrintVerboseKeepsSummary(t *testing.T) {
	ta := newTestApp(t)
	code := ta.run("-g", testGroup, "images:print", "{image}")
	require.Equal(t, 0, code, ta.stderr.String())
	assert.Contains(t, ta.stdout.String(), "3 images\n")
	assert.Contains(t, ta.stdout.String(), "All 3 targets succeeded")
}

func TestRun_QueryRPMVersion(t *testing.T) {
	ta := newTestApp(t)
	code := ta.run("-g", testGroup, "images:query-rpm-version", "--repo-type", "signed")
	require.Equal(t, 0, code, ta.stderr.String())
	assert.Equal(t, "version: v3.9.40\n", ta.stdout.String())
}

func TestRun_Cleanup(t *testing.T) {
	ta := newTestApp(t)
	stale := filepath.Join(ta.work, "distgits", "containers", "ose", "Dockerfile")
	writeFile(t, stale, "FROM rhel7\n")

	code := ta.run("cleanup")
	require.Equal(t, 0, code, ta.stderr.String())
	assert.NoFileExists(t, stale)
	assert.DirExists(t, ta.work)
	assert.Empty(t, ta.wired)
}

func TestRun_CleanupRequiresWorkingDir(t *testing.T) {
	ta := newTestApp(t)
	code := ta.execute(context.Background(), []string{"cleanup"})
	assert.Equal(t, 1, code)
	assert.Contains(t, ta.stderr.String(), "--working-dir")
}

func TestRun_Completion(t *testing.T) {
	tests := []struct {
		shell string
		want  string
	}{
		{"bash", "bash completion V2 for fleetbuild"},
		{"zsh", "#compdef fleetbuild"},
		{"fish", "fish completion for fleetbuild"},
	}
	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			ta := newTestApp(t)
			code := ta.execute(context.Background(), []string{"completion", tt.shell})
			require.Equal(t, 0, code, ta.stderr.String())
			assert.Contains(t, ta.stdout.String(), tt.want)
		})
	}

	ta := newTestApp(t)
	assert.Equal(t, 1, ta.execute(context.Background(), []string{"completion", "tcsh"}))
}

func TestDistgitURL(t *testing.T) {
	tests := []struct {
		raw, user, want string
	}{
		{"ssh://pkgs.example.com", "ocp-build", "ssh://ocp-build@pkgs.example.com"},
		{"ssh://someone@pkgs.example.com", "ocp-build", "ssh://someone@pkgs.example.com"},
		{"https://pkgs.example.com/git", "ocp-build", "https://pkgs.example.com/git"},
		{"ssh://pkgs.example.com", "", "ssh://pkgs.example.com"},
		{"", "ocp-build", ""},
	}
	for _, tt := range tests {
		got, err := distgitURL(tt.raw, tt.user)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "distgitURL(%q, %q)", tt.raw, tt.user)
	}
}

func TestOrderChecks(t *testing.T) {
	assert.Nil(t, orderChecks(nil))
	assert.Equal(t,
		[]string{verify.CheckOrphans, verify.CheckVersions},
		orderChecks([]string{verify.CheckVersions, verify.CheckOrphans}))
}

func TestDefaultCollaborators(t *testing.T) {
	ta := newTestApp(t)
	defer ta.close()
	ta.global = globalOptions{MetadataDir: ta.meta, WorkingDir: ta.work, User: "ocp-build"}
	ws, err := ta.workspace()
	require.NoError(t, err)

	c, err := ta.defaultCollaborators(context.Background(), wireRequest{Workspace: ws})
	require.NoError(t, err)
	assert.NotNil(t, c.Mirror)
	assert.NotNil(t, c.Builds)
	assert.NotNil(t, c.Store)
	assert.FileExists(t, filepath.Join(ws.LogsDir(), commandLogName))
}
