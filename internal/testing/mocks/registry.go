package mocks

import (
	"context"
	"sync"
	"time"
)

// Push is one recorded registry push.
type Push struct {
	Image      string
	Tags       []string
	Registries []string
	DryRun     bool
	At         time.Time
}

// Registry records pushes; images can be scripted to fail.
type Registry struct {
	mu       sync.Mutex
	pushes   []Push
	failures map[string]error
}

// NewRegistry creates a registry where every push succeeds.
func NewRegistry() *Registry {
	return &Registry{failures: map[string]error{}}
}

// Fail makes pushes of image fail with err.
func (r *Registry) Fail(image string, err error) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[image] = err
	return r
}

func (r *Registry) Push(ctx context.Context, image string, tags, registries []string, dryRun bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, Push{Image: image, Tags: tags, Registries: registries, DryRun: dryRun, At: time.Now()})
	return r.failures[image]
}

// Pushes returns every push in call order.
func (r *Registry) Pushes() []Push {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Push(nil), r.pushes...)
}

// Images returns the pushed image names in call order.
func (r *Registry) Images() []string {
	var out []string
	for _, p := range r.Pushes() {
		out = append(out, p.Image)
	}
	return out
}
