package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/AndreyAkinshin/fleetbuild/internal/target"
	"github.com/AndreyAkinshin/fleetbuild/internal/version"
)

// Mirror is an in-memory distgit mirror. Stamped versions are kept per
// distgit key; failures are scripted per key and operation.
type Mirror struct {
	mu       sync.Mutex
	failures map[string]error // "key/op"
	stamped  map[string][2]string
	pushed   []string
	ops      []string
	nextSHA  int
}

// NewMirror creates a mirror where every operation succeeds.
func NewMirror() *Mirror {
	return &Mirror{failures: map[string]error{}, stamped: map[string][2]string{}}
}

// Fail makes op ("clone", "rebase", "stamp", "commit", "tag", "push",
// "read") fail for the target with distgit key key.
func (m *Mirror) Fail(key, op string, err error) *Mirror {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[key+"/"+op] = err
	return m
}

// WithVersion presets the version and release read back for key.
func (m *Mirror) WithVersion(key, ver, release string) *Mirror {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stamped[key] = [2]string{ver, release}
	return m
}

func (m *Mirror) record(t *target.Target, op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, t.DistgitKey+"/"+op)
	return m.failures[t.DistgitKey+"/"+op]
}

// Ops returns every "key/op" performed, in call order.
func (m *Mirror) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

// Pushed returns the keys whose distgit was pushed.
func (m *Mirror) Pushed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.pushed...)
}

func (m *Mirror) Clone(ctx context.Context, t *target.Target) (string, error) {
	if err := m.record(t, "clone"); err != nil {
		return "", err
	}
	t.Workdir = "/distgits/" + t.QualifiedName()
	return t.Workdir, nil
}

func (m *Mirror) Rebase(ctx context.Context, t *target.Target, ver, release string) (string, string, error) {
	if err := m.record(t, "rebase"); err != nil {
		return "", "", err
	}
	return m.stamp(t, ver, release)
}

func (m *Mirror) Stamp(ctx context.Context, t *target.Target, ver, release string) (string, string, error) {
	if err := m.record(t, "stamp"); err != nil {
		return "", "", err
	}
	return m.stamp(t, ver, release)
}

func (m *Mirror) stamp(t *target.Target, ver, release string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.stamped[t.DistgitKey]
	if ver == "" {
		ver = cur[0]
	}
	release = version.ResolveRelease(cur[1], release)
	m.stamped[t.DistgitKey] = [2]string{ver, release}
	t.Version, t.Release = ver, release
	return ver, release, nil
}

func (m *Mirror) Commit(ctx context.Context, t *target.Target, message string) (string, error) {
	if err := m.record(t, "commit"); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSHA++
	return fmt.Sprintf("%040x", m.nextSHA), nil
}

func (m *Mirror) Tag(ctx context.Context, t *target.Target, ver, release string) error {
	return m.record(t, "tag")
}

func (m *Mirror) Push(ctx context.Context, t *target.Target) error {
	if err := m.record(t, "push"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushed = append(m.pushed, t.DistgitKey)
	return nil
}

func (m *Mirror) ReadVersionRelease(ctx context.Context, t *target.Target) (string, string, error) {
	if err := m.record(t, "read"); err != nil {
		return "", "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	vr := m.stamped[t.DistgitKey]
	return vr[0], vr[1], nil
}
