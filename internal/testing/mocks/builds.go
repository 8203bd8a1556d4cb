package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/AndreyAkinshin/fleetbuild/internal/buildmetrics"
	"github.com/AndreyAkinshin/fleetbuild/internal/buildsvc"
	"github.com/AndreyAkinshin/fleetbuild/internal/target"
)

// Builds is a fake build service. Every submitted task closes after a
// fixed timeline unless its target was scripted to fail.
type Builds struct {
	mu        sync.Mutex
	next      int64
	tasks     map[int64]string // task → distgit key
	failures  map[string]error // "key/submit" or "key/wait"
	requests  map[string]buildsvc.BuildRequest
	infoErr   error
	infoPanic bool

	// WaitFunc, when set, runs inside Wait before the scripted result.
	WaitFunc func(ctx context.Context, key string)
}

// NewBuilds creates a build service where every build succeeds.
func NewBuilds() *Builds {
	return &Builds{
		next:     100,
		tasks:    map[int64]string{},
		failures: map[string]error{},
		requests: map[string]buildsvc.BuildRequest{},
	}
}

// Fail makes op ("submit" or "wait") fail for key.
func (b *Builds) Fail(key, op string, err error) *Builds {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[key+"/"+op] = err
	return b
}

// FailTaskInfo makes WatchedTaskInfo return err.
func (b *Builds) FailTaskInfo(err error) *Builds {
	b.infoErr = err
	return b
}

// PanicTaskInfo makes WatchedTaskInfo panic.
func (b *Builds) PanicTaskInfo() *Builds {
	b.infoPanic = true
	return b
}

// Request returns the build request submitted for key.
func (b *Builds) Request(key string) (buildsvc.BuildRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.requests[key]
	return req, ok
}

// Submitted returns how many builds were submitted.
func (b *Builds) Submitted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tasks)
}

func (b *Builds) Submit(ctx context.Context, t *target.Target, req buildsvc.BuildRequest) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failures[t.DistgitKey+"/submit"]; err != nil {
		return 0, err
	}
	b.next++
	b.tasks[b.next] = t.DistgitKey
	b.requests[t.DistgitKey] = req
	return b.next, nil
}

func (b *Builds) Wait(ctx context.Context, taskID int64) error {
	b.mu.Lock()
	key, ok := b.tasks[taskID]
	err := b.failures[key+"/wait"]
	fn := b.WaitFunc
	b.mu.Unlock()

	if !ok {
		return errors.New("unknown task")
	}
	if fn != nil {
		fn(ctx, key)
	}
	return err
}

// WatchedTaskInfo reports every task as created at 0, started at 60 and
// completed at 600.
func (b *Builds) WatchedTaskInfo(ctx context.Context) (map[int64]buildmetrics.TaskTimingRecord, error) {
	if b.infoPanic {
		panic("task info exploded")
	}
	if b.infoErr != nil {
		return nil, b.infoErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int64]buildmetrics.TaskTimingRecord, len(b.tasks))
	for id := range b.tasks {
		create, start, done := int64(0), int64(60), int64(600)
		out[id] = buildmetrics.TaskTimingRecord{
			TaskID: id, State: buildmetrics.TaskClosed,
			Create: &create, Start: &start, Completion: &done,
		}
	}
	return out, nil
}
