// Package cmdexec runs the external CLIs the collaborators shell out to
// (git, rhpkg, brew, repoquery, docker/podman).
package cmdexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"k8s.io/klog/v2"
)

// Cmd describes one command invocation.
type Cmd struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string  // appended to os.Environ()
	Stdin io.Reader // optional
}

// String renders the command line for logs.
func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes commands. Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, c Cmd) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Log, when set, receives a copy of every command's combined output.
	Log io.Writer
}

// NewExecRunner creates a runner that only captures output.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes c and waits for it. A non-zero exit is an *ExitError carrying
// the captured stderr.
func (r *ExecRunner) Run(ctx context.Context, c Cmd) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdin = c.Stdin

	var stdout, stderr bytes.Buffer
	if r.Log != nil {
		cmd.Stdout = io.MultiWriter(&stdout, r.Log)
		cmd.Stderr = io.MultiWriter(&stderr, r.Log)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	klog.V(4).InfoS("Executing", "cmd", c.String(), "dir", c.Dir)
	err := cmd.Run()

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return res, &ExitError{Cmd: c.String(), Code: res.ExitCode, Stderr: res.Stderr, Err: err}
	}
	return res, nil
}

// ExitError reports a failed command.
type ExitError struct {
	Cmd    string
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Cmd, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += " (stderr: " + s + ")"
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }
