// Package buildmetrics estimates how much wall-clock time a build run lost
// to queueing for build capacity.
package buildmetrics

import (
	"fmt"
	"sort"
	"strconv"

	"k8s.io/klog/v2"
)

// minute is the boundary step of the wasted-wait walk, in seconds.
const minute = 60

// TaskState is the build service's task state name.
type TaskState string

// Task states reported by the build service. Only TaskClosed records are
// aggregated.
const (
	TaskFree     TaskState = "FREE"
	TaskOpen     TaskState = "OPEN"
	TaskClosed   TaskState = "CLOSED"
	TaskCanceled TaskState = "CANCELED"
	TaskAssigned TaskState = "ASSIGNED"
	TaskFailed   TaskState = "FAILED"
)

// TaskTimingRecord is one build task's timestamps in epoch seconds. A nil
// timestamp means the task never reached that point.
type TaskTimingRecord struct {
	TaskID     int64
	State      TaskState
	Create     *int64
	Start      *int64
	Completion *int64
}

// Complete reports whether r is closed and carries all three timestamps.
func (r TaskTimingRecord) Complete() bool {
	return r.State == TaskClosed && r.Create != nil && r.Start != nil && r.Completion != nil
}

// Summary is the aggregate view of a batch of task timing records.
type Summary struct {
	// AggregateBuildSeconds sums completion-start over all tasks, so
	// concurrent builds are double counted.
	AggregateBuildSeconds int64
	// AggregateWaitSeconds sums start-create over all tasks.
	AggregateWaitSeconds int64
	// WastedWaitMinutes counts minute boundaries at which at least one task
	// was waiting to start. Overlapping waits count once.
	WastedWaitMinutes int64
	// ElapsedTotalMinutes spans first create to last completion.
	ElapsedTotalMinutes float64
	TaskCount           int
	Discarded           int
	Note                string
}

// Fields renders the summary as image_build_metrics record fields.
func (s Summary) Fields() map[string]string {
	return map[string]string{
		"elapsed_wait_minutes":    strconv.FormatInt(s.WastedWaitMinutes, 10),
		"elapsed_total_minutes":   strconv.FormatInt(int64(s.ElapsedTotalMinutes), 10),
		"task_count":              strconv.Itoa(s.TaskCount),
		"aggregate_build_seconds": strconv.FormatInt(s.AggregateBuildSeconds, 10),
		"aggregate_wait_seconds":  strconv.FormatInt(s.AggregateWaitSeconds, 10),
	}
}

// Aggregate computes a Summary from records. Records that are not closed or
// lack a timestamp are discarded. Aggregate does not modify records and
// returns the same Summary for the same input.
func Aggregate(records []TaskTimingRecord) Summary {
	var s Summary
	valid := make([]TaskTimingRecord, 0, len(records))
	for _, r := range records {
		if !r.Complete() {
			klog.ErrorS(nil, "Discarding incomplete task info", "task", r.TaskID, "state", r.State)
			s.Discarded++
			continue
		}
		valid = append(valid, r)
	}

	if len(valid) == 0 {
		s.Note = fmt.Sprintf("no closed tasks with complete timestamps (%d discarded)", s.Discarded)
		return s
	}

	minCreate := *valid[0].Create
	maxCompletion := *valid[0].Completion
	for _, r := range valid {
		build := *r.Completion - *r.Start
		wait := *r.Start - *r.Create
		s.AggregateBuildSeconds += build
		s.AggregateWaitSeconds += wait
		minCreate = min(minCreate, *r.Create)
		maxCompletion = max(maxCompletion, *r.Completion)

		klog.V(2).InfoS("Task timing", "task", r.TaskID,
			"buildMinutes", float64(build)/minute, "waitMinutes", float64(wait)/minute)
	}

	s.TaskCount = len(valid)
	s.WastedWaitMinutes = wastedWaitMinutes(valid, minCreate, maxCompletion)
	s.ElapsedTotalMinutes = float64(maxCompletion-minCreate) / minute
	return s
}

type window struct{ lo, hi int64 }

// wastedWaitMinutes counts boundaries t = minCreate + 60k, minCreate <= t <
// maxCompletion, for which some record has create <= t <= start. Each
// record's waiting window is clipped to the walk range, overlapping windows
// are merged, and boundaries are counted per merged window.
func wastedWaitMinutes(records []TaskTimingRecord, minCreate, maxCompletion int64) int64 {
	last := maxCompletion - 1
	windows := make([]window, 0, len(records))
	for _, r := range records {
		lo, hi := max(*r.Create, minCreate), min(*r.Start, last)
		if lo <= hi {
			windows = append(windows, window{lo, hi})
		}
	}
	if len(windows) == 0 {
		return 0
	}

	sort.Slice(windows, func(i, j int) bool { return windows[i].lo < windows[j].lo })
	merged := []window{windows[0]}
	for _, w := range windows[1:] {
		cur := &merged[len(merged)-1]
		if w.lo <= cur.hi {
			cur.hi = max(cur.hi, w.hi)
			continue
		}
		merged = append(merged, w)
	}

	var count int64
	for _, w := range merged {
		first := ceilDiv(w.lo-minCreate, minute)
		lastK := (w.hi - minCreate) / minute
		if lastK >= first {
			count += lastK - first + 1
		}
	}
	return count
}

// ceilDiv divides a non-negative n by d, rounding up.
func ceilDiv(n, d int64) int64 {
	return (n + d - 1) / d
}
