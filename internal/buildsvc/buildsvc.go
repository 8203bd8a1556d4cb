// Package buildsvc drives the remote build service through its CLI: builds
// are submitted from a distgit clone with the packaging tool and tracked by
// task ID with the build service tool.
package buildsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"github.com/AndreyAkinshin/fleetbuild/internal/buildmetrics"
	"github.com/AndreyAkinshin/fleetbuild/internal/cmdexec"
	"github.com/AndreyAkinshin/fleetbuild/internal/config"
	"github.com/AndreyAkinshin/fleetbuild/internal/target"
)

// DefaultPollInterval is used when Options.PollInterval is zero.
const DefaultPollInterval = 30 * time.Second

var createdTaskRe = regexp.MustCompile(`Created task:\s*(\d+)`)

// taskStates maps the build service's numeric task states to names.
var taskStates = map[int]buildmetrics.TaskState{
	0: buildmetrics.TaskFree,
	1: buildmetrics.TaskOpen,
	2: buildmetrics.TaskClosed,
	3: buildmetrics.TaskCanceled,
	4: buildmetrics.TaskAssigned,
	5: buildmetrics.TaskFailed,
}

// Options configures Client.
type Options struct {
	Tool         string // build service CLI, default "brew"
	Packager     string // distgit packaging CLI, default "rhpkg"
	Target       string // optional build target
	PollInterval time.Duration
}

// BuildRequest carries the per-run build parameters.
type BuildRequest struct {
	Repos   []string // explicit yum repo URLs
	Signing string   // signing intent, empty for default
	Scratch bool
}

// TaskError reports a task that finished in a state other than CLOSED.
type TaskError struct {
	TaskID int64
	State  buildmetrics.TaskState
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d finished in state %s", e.TaskID, e.State)
}

// Client submits and tracks builds. It is safe for concurrent use; every
// submitted task is remembered for WatchedTaskInfo.
type Client struct {
	runner cmdexec.Runner
	opts   Options

	mu      sync.Mutex
	watched map[int64]struct{}
}

// New creates a Client.
func New(runner cmdexec.Runner, opts Options) *Client {
	if opts.Tool == "" {
		opts.Tool = config.DefaultBuildTool
	}
	if opts.Packager == "" {
		opts.Packager = config.DefaultPackager
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Client{runner: runner, opts: opts, watched: map[int64]struct{}{}}
}

// Submit starts a build of t from its clone and returns the task ID.
func (c *Client) Submit(ctx context.Context, t *target.Target, req BuildRequest) (int64, error) {
	if t.Workdir == "" {
		return 0, fmt.Errorf("%s is not cloned", t.DistgitKey)
	}

	args := []string{"build", "--nowait"}
	if t.Kind == target.KindImage {
		args = []string{"container-build", "--nowait"}
		for _, repo := range req.Repos {
			args = append(args, "--repo", repo)
		}
		if req.Signing != "" {
			args = append(args, "--signing-intent", req.Signing)
		}
	}
	if req.Scratch {
		args = append(args, "--scratch")
	}
	if c.opts.Target != "" {
		args = append(args, "--target", c.opts.Target)
	}

	res, err := c.runner.Run(ctx, cmdexec.Cmd{Name: c.opts.Packager, Args: args, Dir: t.Workdir})
	if err != nil {
		return 0, fmt.Errorf("submit build: %w", err)
	}
	m := createdTaskRe.FindStringSubmatch(res.Stdout)
	if m == nil {
		return 0, fmt.Errorf("submit build: no task ID in %s output", c.opts.Packager)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("submit build: %w", err)
	}

	c.mu.Lock()
	c.watched[id] = struct{}{}
	c.mu.Unlock()
	klog.InfoS("Build submitted", "target", t.DistgitKey, "task", id)
	return id, nil
}

// Wait polls the task until it finishes. A task that does not close
// successfully yields a *TaskError.
func (c *Client) Wait(ctx context.Context, taskID int64) error {
	return wait.PollUntilContextCancel(ctx, c.opts.PollInterval, true, func(ctx context.Context) (bool, error) {
		info, err := c.taskInfo(ctx, taskID)
		if err != nil {
			return false, err
		}
		switch info.State {
		case buildmetrics.TaskClosed:
			return true, nil
		case buildmetrics.TaskFailed, buildmetrics.TaskCanceled:
			return false, &TaskError{TaskID: taskID, State: info.State}
		}
		klog.V(3).InfoS("Waiting for task", "task", taskID, "state", info.State)
		return false, nil
	})
}

// Watched returns the IDs of every task submitted through c, sorted.
func (c *Client) Watched() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.watched))
	for id := range c.watched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// WatchedTaskInfo fetches the timing of every watched task. It implements
// buildmetrics.TaskSource. A task whose info cannot be fetched is returned
// without timestamps so aggregation discards it.
func (c *Client) WatchedTaskInfo(ctx context.Context) (map[int64]buildmetrics.TaskTimingRecord, error) {
	ids := c.Watched()
	out := make(map[int64]buildmetrics.TaskTimingRecord, len(ids))
	for _, id := range ids {
		info, err := c.taskInfo(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			klog.ErrorS(err, "Failed to fetch task info", "task", id)
			info = buildmetrics.TaskTimingRecord{TaskID: id}
		}
		out[id] = info
	}
	return out, nil
}

// taskInfo is the subset of the build service's task info document we use.
type taskInfo struct {
	ID           int64    `json:"id"`
	State        int      `json:"state"`
	CreateTS     *float64 `json:"create_ts"`
	StartTS      *float64 `json:"start_ts"`
	CompletionTS *float64 `json:"completion_ts"`
}

func (c *Client) taskInfo(ctx context.Context, id int64) (buildmetrics.TaskTimingRecord, error) {
	res, err := c.runner.Run(ctx, cmdexec.Cmd{
		Name: c.opts.Tool,
		Args: []string{"call", "getTaskInfo", strconv.FormatInt(id, 10), "--json-output"},
	})
	if err != nil {
		return buildmetrics.TaskTimingRecord{}, fmt.Errorf("get task %d info: %w", id, err)
	}
	return parseTaskInfo(id, []byte(res.Stdout))
}

func parseTaskInfo(id int64, data []byte) (buildmetrics.TaskTimingRecord, error) {
	var info taskInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return buildmetrics.TaskTimingRecord{}, fmt.Errorf("parse task %d info: %w", id, err)
	}
	state, ok := taskStates[info.State]
	if !ok {
		state = buildmetrics.TaskState(strconv.Itoa(info.State))
	}
	return buildmetrics.TaskTimingRecord{
		TaskID:     id,
		State:      state,
		Create:     seconds(info.CreateTS),
		Start:      seconds(info.StartTS),
		Completion: seconds(info.CompletionTS),
	}, nil
}

func seconds(ts *float64) *int64 {
	if ts == nil {
		return nil
	}
	s := int64(*ts)
	return &s
}
