// Package mocks provides shared test doubles for fleetbuild packages.
package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/AndreyAkinshin/fleetbuild/internal/cmdexec"
)

// Runner implements cmdexec.Runner for testing.
// Use NewRunner() and the On* methods to script responses by command prefix.
type Runner struct {
	mu    sync.Mutex
	rules []runnerRule
	calls []cmdexec.Cmd

	// Func, when set, handles every command no rule matched.
	Func func(ctx context.Context, c cmdexec.Cmd) (cmdexec.Result, error)
}

type runnerRule struct {
	prefix string
	stdout string
	code   int
	stderr string
}

// NewRunner creates a runner that succeeds with empty output by default.
func NewRunner() *Runner {
	return &Runner{}
}

// On makes commands whose rendered line starts with prefix print stdout.
// Rules are matched in the order they were added.
func (m *Runner) On(prefix, stdout string) *Runner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, runnerRule{prefix: prefix, stdout: stdout})
	return m
}

// OnError makes commands starting with prefix exit with code and stderr.
func (m *Runner) OnError(prefix string, code int, stderr string) *Runner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, runnerRule{prefix: prefix, code: code, stderr: stderr})
	return m
}

// WithFunc sets the fallback handler.
func (m *Runner) WithFunc(fn func(ctx context.Context, c cmdexec.Cmd) (cmdexec.Result, error)) *Runner {
	m.Func = fn
	return m
}

// Run implements cmdexec.Runner.
func (m *Runner) Run(ctx context.Context, c cmdexec.Cmd) (cmdexec.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	line := c.String()
	var rule *runnerRule
	for i := range m.rules {
		if strings.HasPrefix(line, m.rules[i].prefix) {
			r := m.rules[i]
			rule = &r
			break
		}
	}
	fn := m.Func
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return cmdexec.Result{}, err
	}
	if rule == nil {
		if fn != nil {
			return fn(ctx, c)
		}
		return cmdexec.Result{}, nil
	}
	res := cmdexec.Result{Stdout: rule.stdout, Stderr: rule.stderr, ExitCode: rule.code}
	if rule.code != 0 {
		return res, &cmdexec.ExitError{
			Cmd:    line,
			Code:   rule.code,
			Stderr: rule.stderr,
			Err:    fmt.Errorf("exit status %d", rule.code),
		}
	}
	return res, nil
}

// Calls returns a copy of every command run so far.
func (m *Runner) Calls() []cmdexec.Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]cmdexec.Cmd, len(m.calls))
	copy(out, m.calls)
	return out
}

// Lines returns the rendered command lines run so far.
func (m *Runner) Lines() []string {
	calls := m.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// Count returns how many commands started with prefix.
func (m *Runner) Count(prefix string) int {
	n := 0
	for _, line := range m.Lines() {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}
