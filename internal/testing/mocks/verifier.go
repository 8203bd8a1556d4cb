package mocks

import (
	"context"
	"sync"

	"github.com/AndreyAkinshin/fleetbuild/internal/verify"
)

// Verifier passes every image except those scripted to fail.
type Verifier struct {
	mu         sync.Mutex
	failing    map[string]bool
	pullErrors map[string]error
	pulled     []string
	verified   []string
}

// NewVerifier creates a verifier where every image passes.
func NewVerifier() *Verifier {
	return &Verifier{failing: map[string]bool{}, pullErrors: map[string]error{}}
}

// FailImage makes every check fail for image.
func (v *Verifier) FailImage(image string) *Verifier {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failing[image] = true
	return v
}

// FailPull makes pulling image fail.
func (v *Verifier) FailPull(image string, err error) *Verifier {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pullErrors[image] = err
	return v
}

// Pulled returns the pulled references.
func (v *Verifier) Pulled() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.pulled...)
}

// Verified returns the verified references.
func (v *Verifier) Verified() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.verified...)
}

func (v *Verifier) Pull(ctx context.Context, image string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pulled = append(v.pulled, image)
	return v.pullErrors[image]
}

func (v *Verifier) Verify(ctx context.Context, image string, checks []string) verify.Result {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.verified = append(v.verified, image)
	if len(checks) == 0 {
		checks = verify.AllChecks()
	}

	res := verify.Result{Image: image, Status: verify.StatusPassed, Checks: map[string]verify.CheckResult{}}
	for _, c := range checks {
		cr := verify.CheckResult{Status: verify.StatusPassed}
		if v.failing[image] {
			cr = verify.CheckResult{Status: verify.StatusFailed, Failures: []string{c + " failed"}}
			res.Status = verify.StatusFailed
		}
		res.Checks[c] = cr
	}
	return res
}
