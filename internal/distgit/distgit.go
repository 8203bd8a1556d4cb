// Package distgit clones, stamps, commits, tags and pushes the distgit
// repositories of a group.
package distgit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"

	"github.com/AndreyAkinshin/fleetbuild/internal/cmdexec"
	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
	"github.com/AndreyAkinshin/fleetbuild/internal/project"
	"github.com/AndreyAkinshin/fleetbuild/internal/target"
	"github.com/AndreyAkinshin/fleetbuild/internal/version"
)

// Options configures Repos.
type Options struct {
	// BaseURL is prefixed to namespace/name to form the clone URL
	// (e.g. ssh://user@pkgs.example.com).
	BaseURL string
	// Sources maps content.source.alias to a local checkout.
	Sources map[string]string
	// AuthorName and AuthorEmail set the commit identity when non-empty.
	AuthorName  string
	AuthorEmail string
}

// Repos performs distgit operations with the git CLI. Every target has its
// own clone directory so concurrent calls on different targets never share
// filesystem state.
type Repos struct {
	runner cmdexec.Runner
	ws     *project.Workspace
	opts   Options
}

// New creates Repos cloning into ws.
func New(runner cmdexec.Runner, ws *project.Workspace, opts Options) *Repos {
	return &Repos{runner: runner, ws: ws, opts: opts}
}

func (r *Repos) git(ctx context.Context, dir string, args ...string) (string, error) {
	var env []string
	if r.opts.AuthorName != "" {
		env = append(env, "GIT_AUTHOR_NAME="+r.opts.AuthorName, "GIT_COMMITTER_NAME="+r.opts.AuthorName)
	}
	if r.opts.AuthorEmail != "" {
		env = append(env, "GIT_AUTHOR_EMAIL="+r.opts.AuthorEmail, "GIT_COMMITTER_EMAIL="+r.opts.AuthorEmail)
	}
	res, err := r.runner.Run(ctx, cmdexec.Cmd{Name: "git", Args: args, Dir: dir, Env: env})
	return strings.TrimSpace(res.Stdout), err
}

// URL returns the clone URL of t.
func (r *Repos) URL(t *target.Target) string {
	return strings.TrimSuffix(r.opts.BaseURL, "/") + "/" + t.QualifiedName()
}

// Clone clones t's distgit on its branch. A directory that already holds a
// clone is reused.
func (r *Repos) Clone(ctx context.Context, t *target.Target) (string, error) {
	dir := r.ws.DistgitDir(t.Namespace, t.Name)
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		klog.V(2).InfoS("Distgit already cloned", "target", t.DistgitKey, "dir", dir)
		t.Workdir = dir
		return dir, nil
	}
	if r.opts.BaseURL == "" {
		return "", fberrors.Config("no distgit url configured (group.yml distgit.url)")
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return "", err
	}

	args := []string{"clone", "--branch", t.Branch, r.URL(t), dir}
	if t.Branch == "" {
		args = []string{"clone", r.URL(t), dir}
	}
	klog.InfoS("Cloning distgit", "target", t.DistgitKey, "url", r.URL(t), "branch", t.Branch)
	if _, err := r.git(ctx, "", args...); err != nil {
		return "", fmt.Errorf("clone %s: %w", t.QualifiedName(), err)
	}
	t.Workdir = dir
	return dir, nil
}

// Rebase replaces the distgit content with the target's upstream source, when
// one is configured, then stamps version and release.
func (r *Repos) Rebase(ctx context.Context, t *target.Target, ver, release string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if src := r.sourceDir(t); src != "" {
		klog.V(2).InfoS("Rebasing from source", "target", t.DistgitKey, "source", src)
		if err := copyTree(src, t.Workdir); err != nil {
			return "", "", fmt.Errorf("copy source content: %w", err)
		}
	}
	return r.Stamp(ctx, t, ver, release)
}

func (r *Repos) sourceDir(t *target.Target) string {
	c := t.Config
	if c == nil || c.Content == nil || c.Content.Source == nil || c.Content.Source.Alias == "" {
		return ""
	}
	root, ok := r.opts.Sources[c.Content.Source.Alias]
	if !ok {
		return ""
	}
	return filepath.Join(root, c.Content.Source.Path)
}

// Stamp writes version and release into the Dockerfile (images) or spec
// (rpms). An empty version keeps the current one; release follows
// version.ResolveRelease. The applied values are stored on t and returned.
func (r *Repos) Stamp(ctx context.Context, t *target.Target, ver, release string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if t.Workdir == "" {
		return "", "", fmt.Errorf("%s is not cloned", t.DistgitKey)
	}

	if t.Kind == target.KindRPM {
		return r.stampSpec(t, ver, release)
	}
	return r.stampDockerfile(t, ver, release)
}

func (r *Repos) stampDockerfile(t *target.Target, ver, release string) (string, string, error) {
	path := filepath.Join(t.Workdir, DockerfileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	content := string(data)
	labels := Labels(content)

	if ver == "" {
		ver = labels["version"]
	}
	release = version.ResolveRelease(labels["release"], release)

	content = SetLabel(content, "version", ver)
	if release == "" {
		content = RemoveLabel(content, "release")
	} else {
		content = SetLabel(content, "release", release)
	}
	if t.Config != nil && t.Config.Name != "" {
		content = SetLabel(content, "name", t.Config.Name)
	}
	content = SetLabel(content, "com.redhat.component", t.Component())

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", "", err
	}
	t.Version, t.Release = ver, release
	return ver, release, nil
}

func (r *Repos) stampSpec(t *target.Target, ver, release string) (string, string, error) {
	path, err := specPath(t)
	if err != nil {
		return "", "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	curVer, curRel := SpecVersionRelease(string(data))
	if ver == "" {
		ver = curVer
	}
	release = version.ResolveRelease(curRel, release)
	if release == "" {
		release = "1"
	}

	content, err := SetSpecVersionRelease(string(data), ver, release)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", "", err
	}
	t.Version, t.Release = ver, release
	return ver, release, nil
}

func specPath(t *target.Target) (string, error) {
	matches, err := filepath.Glob(filepath.Join(t.Workdir, "*.spec"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no .spec file in %s", t.Workdir)
	}
	return matches[0], nil
}

// ReadVersionRelease reads the version and release stamped in the clone.
func (r *Repos) ReadVersionRelease(ctx context.Context, t *target.Target) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if t.Kind == target.KindRPM {
		path, err := specPath(t)
		if err != nil {
			return "", "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", "", err
		}
		v, rel := SpecVersionRelease(string(data))
		return v, rel, nil
	}
	data, err := os.ReadFile(filepath.Join(t.Workdir, DockerfileName))
	if err != nil {
		return "", "", err
	}
	labels := Labels(string(data))
	return labels["version"], labels["release"], nil
}

// Commit stages every change and commits it. When nothing changed the
// current HEAD is returned without a new commit.
func (r *Repos) Commit(ctx context.Context, t *target.Target, message string) (string, error) {
	if _, err := r.git(ctx, t.Workdir, "add", "-A", "."); err != nil {
		return "", fmt.Errorf("git add: %w", err)
	}
	if _, err := r.git(ctx, t.Workdir, "diff", "--cached", "--quiet"); err != nil {
		var exitErr *cmdexec.ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != 1 {
			return "", fmt.Errorf("git diff: %w", err)
		}
		if _, err := r.git(ctx, t.Workdir, "commit", "-m", message); err != nil {
			return "", fmt.Errorf("git commit: %w", err)
		}
	} else {
		klog.V(2).InfoS("Nothing to commit", "target", t.DistgitKey)
	}

	sha, err := r.git(ctx, t.Workdir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	return sha, nil
}

// Tag creates "<version>-<release>" and "<version>" tags at HEAD, replacing
// existing ones.
func (r *Repos) Tag(ctx context.Context, t *target.Target, ver, release string) error {
	if ver == "" {
		return nil
	}
	tags := []string{ver}
	if release != "" {
		tags = []string{ver + "-" + release, ver}
	}
	for _, tag := range tags {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.git(ctx, t.Workdir, "tag", "-f", tag, "-m", tag); err != nil {
			return fmt.Errorf("git tag %s: %w", tag, err)
		}
	}
	return nil
}

// Push pushes the branch and tags of t's clone.
func (r *Repos) Push(ctx context.Context, t *target.Target) error {
	if _, err := r.git(ctx, t.Workdir, "push", "origin", "HEAD"); err != nil {
		return fmt.Errorf("git push: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := r.git(ctx, t.Workdir, "push", "--tags", "--force", "origin"); err != nil {
		return fmt.Errorf("git push --tags: %w", err)
	}
	return nil
}

// copyTree copies src into dst, skipping .git directories. Existing files
// are overwritten; files only present in dst are kept.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode().Perm())
	})
}
