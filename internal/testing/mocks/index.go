package mocks

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrUnknownRepoType is returned by PackageIndex for unconfigured repo types.
var ErrUnknownRepoType = errors.New("unknown repo type")

// PackageIndex serves fixed versions per repo type.
type PackageIndex struct {
	versions map[string]string
	calls    atomic.Int32
}

// NewPackageIndex creates an index with no repo types.
func NewPackageIndex() *PackageIndex {
	return &PackageIndex{versions: map[string]string{}}
}

// WithVersion sets the latest version for repoType.
func (p *PackageIndex) WithVersion(repoType, version string) *PackageIndex {
	p.versions[repoType] = version
	return p
}

// Calls returns how many lookups were made.
func (p *PackageIndex) Calls() int { return int(p.calls.Load()) }

func (p *PackageIndex) LatestVersion(ctx context.Context, repoType string) (string, error) {
	p.calls.Add(1)
	v, ok := p.versions[repoType]
	if !ok {
		return "", ErrUnknownRepoType
	}
	return v, nil
}
