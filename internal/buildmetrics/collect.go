package buildmetrics

import (
	"context"
	"errors"
	"fmt"
	"sort"

	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
)

// TaskSource snapshots the timing records of the tasks watched during a run.
type TaskSource interface {
	WatchedTaskInfo(ctx context.Context) (map[int64]TaskTimingRecord, error)
}

// Outcome distinguishes a computed Summary from a metrics failure. A failed
// Outcome never aborts the build run that produced it.
type Outcome struct {
	Summary Summary
	Err     error
}

// OK reports whether the summary was computed.
func (o Outcome) OK() bool { return o.Err == nil }

// Collect snapshots src and aggregates it. Source errors and panics during
// aggregation are returned in Outcome.Err as aggregation errors.
func Collect(ctx context.Context, src TaskSource) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: fberrors.Aggregation(fmt.Errorf("panic: %v", r))}
		}
	}()

	if src == nil {
		return Outcome{Err: fberrors.Aggregation(errors.New("no task source"))}
	}
	infos, err := src.WatchedTaskInfo(ctx)
	if err != nil {
		return Outcome{Err: fberrors.Aggregation(err)}
	}

	records := make([]TaskTimingRecord, 0, len(infos))
	for id, info := range infos {
		if info.TaskID == 0 {
			info.TaskID = id
		}
		records = append(records, info)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].TaskID < records[j].TaskID })

	return Outcome{Summary: Aggregate(records)}
}
