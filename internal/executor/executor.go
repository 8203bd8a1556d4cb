// Package executor runs one operation per item on a bounded worker pool and
// returns one result per item, in input order.
package executor

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/AndreyAkinshin/fleetbuild/internal/target"
)

// ParallelEnv overrides the default worker count.
const ParallelEnv = "FLEETBUILD_PARALLEL"

const (
	// minWorkers keeps the pool usable when runtime.NumCPU() reports 0
	// inside restricted containers.
	minWorkers = 1
	maxWorkers = 256
)

// Signal is the read-only view of a cancellation flag handed to operations.
type Signal interface {
	Cancelled() bool
}

// Flag is a cooperative cancellation flag shared by every task of a run.
// The executor never sets it; flows decide when to.
type Flag struct {
	set atomic.Bool
}

// Set raises the flag. Setting it more than once is harmless.
func (f *Flag) Set() { f.set.Store(true) }

// Cancelled reports whether the flag has been raised.
func (f *Flag) Cancelled() bool { return f.set.Load() }

// Operation processes one item. It should poll cancel between blocking
// sub-steps and return early once it is set.
type Operation[T any] func(ctx context.Context, item T, cancel Signal) error

// Options configures Run.
type Options[T any] struct {
	// Workers bounds concurrency; values <= 0 use DefaultWorkers.
	Workers int
	// Key names an item in results and logs.
	Key func(T) string
	// State reports how far an item got, recorded on its result.
	State func(T) target.State
	// Cancel is passed to every operation. A nil Cancel gets a private flag.
	Cancel *Flag
}

// Result is the outcome of one operation. Results are never mutated after Run
// returns them.
type Result struct {
	Index int
	Key   string
	OK    bool
	Err   error
	State target.State
}

// Run executes op once per item with at most opts.Workers running at a time.
// Errors and panics become failed results; one task never aborts another.
// The returned slice always has len(items) entries ordered like items.
func Run[T any](ctx context.Context, items []T, op Operation[T], opts Options[T]) []Result {
	results := make([]Result, len(items))
	if len(items) == 0 {
		return results
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	cancel := opts.Cancel
	if cancel == nil {
		cancel = &Flag{}
	}

	var g errgroup.Group
	g.SetLimit(workers)

	for i, item := range items {
		g.Go(func() error {
			key := strconv.Itoa(i)
			if opts.Key != nil {
				key = opts.Key(item)
			}
			err := invoke(ctx, item, op, cancel, key)

			res := Result{Index: i, Key: key, OK: err == nil, Err: err}
			if opts.State != nil {
				res.State = opts.State(item)
			}
			results[i] = res
			return nil
		})
	}
	// Tasks always return nil so the group error carries nothing.
	_ = g.Wait()

	return results
}

func invoke[T any](ctx context.Context, item T, op Operation[T], cancel Signal, key string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			klog.ErrorS(nil, "Operation panicked", "target", key, "panic", r)
			klog.V(4).InfoS("Panic stack", "target", key, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op(ctx, item, cancel)
}

// Failed returns the failed results in input order.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.OK {
			failed = append(failed, r)
		}
	}
	return failed
}

// FailedKeys returns the keys of failed results, sorted.
func FailedKeys(results []Result) []string {
	var keys []string
	for _, r := range Failed(results) {
		keys = append(keys, r.Key)
	}
	sort.Strings(keys)
	return keys
}

// DefaultWorkers returns the worker count from FLEETBUILD_PARALLEL, falling
// back to runtime.NumCPU(). Invalid values (non-numeric, <1, >256) log a
// warning and use the fallback.
func DefaultWorkers() int {
	env := os.Getenv(ParallelEnv)
	if env == "" {
		return defaultWorkerCount()
	}

	n, err := strconv.Atoi(env)
	if err != nil {
		klog.Warningf("invalid %s value %q (not a number), using default", ParallelEnv, env)
		return defaultWorkerCount()
	}
	if n < minWorkers || n > maxWorkers {
		klog.Warningf("%s=%d out of range [%d-%d], using default", ParallelEnv, n, minWorkers, maxWorkers)
		return defaultWorkerCount()
	}
	return n
}

func defaultWorkerCount() int {
	return max(minWorkers, runtime.NumCPU())
}
