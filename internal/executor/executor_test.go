package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreyAkinshin/fleetbuild/internal/target"
)

func TestRun_ResultCountAndOrder(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 2, 7, 64} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()

			items := make([]int, 50)
			for i := range items {
				items[i] = i
			}
			op := func(ctx context.Context, n int, _ Signal) error {
				// Later items finish first.
				time.Sleep(time.Duration(50-n) * 50 * time.Microsecond)
				return nil
			}

			results := Run(context.Background(), items, op, Options[int]{
				Workers: workers,
				Key:     func(n int) string { return fmt.Sprintf("item-%02d", n) },
			})

			require.Len(t, results, len(items))
			for i, r := range results {
				assert.Equal(t, i, r.Index)
				assert.Equal(t, fmt.Sprintf("item-%02d", i), r.Key)
				assert.True(t, r.OK)
				assert.NoError(t, r.Err)
			}
		})
	}
}

func TestRun_FaultIsolation(t *testing.T) {
	t.Parallel()

	items := []string{"ose", "ose-cli", "broken", "panicky", "logging"}
	boom := errors.New("brew build failed")
	op := func(ctx context.Context, key string, _ Signal) error {
		switch key {
		case "broken":
			return boom
		case "panicky":
			panic("nil dereference")
		}
		return nil
	}

	results := Run(context.Background(), items, op, Options[string]{
		Workers: 3,
		Key:     func(s string) string { return s },
	})

	require.Len(t, results, 5)
	assert.True(t, results[0].OK)
	assert.True(t, results[1].OK)
	assert.False(t, results[2].OK)
	assert.ErrorIs(t, results[2].Err, boom)
	assert.False(t, results[3].OK)
	assert.Contains(t, results[3].Err.Error(), "nil dereference")
	assert.True(t, results[4].OK)

	assert.Equal(t, []string{"broken", "panicky"}, FailedKeys(results))
	assert.Len(t, Failed(results), 2)
}

func TestRun_Empty(t *testing.T) {
	t.Parallel()

	called := false
	results := Run(context.Background(), nil, func(context.Context, int, Signal) error {
		called = true
		return nil
	}, Options[int]{})

	assert.Empty(t, results)
	assert.False(t, called)
	assert.Empty(t, FailedKeys(results))
}

func TestRun_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	op := func(ctx context.Context, _ int, _ Signal) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return nil
	}

	Run(context.Background(), make([]int, 40), op, Options[int]{Workers: 4})
	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.Positive(t, peak.Load())
}

func TestRun_CooperativeCancellation(t *testing.T) {
	t.Parallel()

	flag := &Flag{}
	var invoked atomic.Int32
	op := func(ctx context.Context, n int, cancel Signal) error {
		invoked.Add(1)
		if cancel.Cancelled() {
			return errors.New("cancelled")
		}
		if n == 0 {
			flag.Set()
			return errors.New("first failure")
		}
		return nil
	}

	results := Run(context.Background(), []int{0, 1, 2, 3}, op, Options[int]{Workers: 1, Cancel: flag})

	require.Len(t, results, 4)
	assert.Equal(t, int32(4), invoked.Load(), "every task is still invoked")
	for _, r := range results {
		assert.False(t, r.OK)
	}
	assert.Equal(t, "first failure", results[0].Err.Error())
	assert.Equal(t, "cancelled", results[3].Err.Error())
}

func TestRun_ExecutorNeverSetsFlag(t *testing.T) {
	t.Parallel()

	flag := &Flag{}
	op := func(ctx context.Context, _ int, cancel Signal) error {
		return errors.New("fail")
	}
	Run(context.Background(), []int{1, 2, 3}, op, Options[int]{Cancel: flag})
	assert.False(t, flag.Cancelled())
}

func TestRun_RecordsState(t *testing.T) {
	t.Parallel()

	items := []*target.Target{
		target.New(target.KindImage, "a", "", nil, ""),
		target.New(target.KindImage, "b", "", nil, ""),
	}
	op := func(ctx context.Context, tgt *target.Target, _ Signal) error {
		if err := tgt.Advance(target.Cloned); err != nil {
			return err
		}
		if tgt.DistgitKey == "b" {
			return errors.New("rebase failed")
		}
		return tgt.Advance(target.Rebased)
	}

	results := Run(context.Background(), items, op, Options[*target.Target]{
		Key:   func(t *target.Target) string { return t.DistgitKey },
		State: func(t *target.Target) target.State { return t.State() },
	})

	assert.Equal(t, target.Rebased, results[0].State)
	assert.Equal(t, target.Cloned, results[1].State)
}

func TestFlag(t *testing.T) {
	t.Parallel()

	var f Flag
	var s Signal = &f
	assert.False(t, s.Cancelled())
	f.Set()
	f.Set()
	assert.True(t, s.Cancelled())
}

func TestDefaultWorkers(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want int
	}{
		{"unset", "", max(1, runtime.NumCPU())},
		{"valid", "8", 8},
		{"min", "1", 1},
		{"max", "256", 256},
		{"zero", "0", max(1, runtime.NumCPU())},
		{"too large", "257", max(1, runtime.NumCPU())},
		{"not a number", "many", max(1, runtime.NumCPU())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(ParallelEnv, tt.env)
			assert.Equal(t, tt.want, DefaultWorkers())
		})
	}
}
