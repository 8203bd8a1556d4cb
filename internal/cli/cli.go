// Package cli implements the fleetbuild command line: global flags and
// environment binding, collaborator wiring and one command per flow.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
	"github.com/AndreyAkinshin/fleetbuild/internal/orchestrator"
	"github.com/AndreyAkinshin/fleetbuild/internal/output"
)

// Version is set at build time.
var Version = "dev"

// failuresError ends a command whose flow finished with per-target
// failures. Its code is the process exit code.
type failuresError struct {
	code int
}

func (e *failuresError) Error() string {
	return fmt.Sprintf("%d targets failed", e.code)
}

// app holds the state of one CLI invocation.
type app struct {
	out    *output.Writer
	v      *viper.Viper
	global globalOptions

	// wire builds the collaborators of a runtime; tests replace it.
	wire wireFunc

	mu      sync.Mutex
	rt      *orchestrator.Runtime
	closers []io.Closer
}

func newApp(stdout, stderr io.Writer) *app {
	a := &app{
		out: output.NewWithWriters(stdout, stderr, false),
		v:   viper.New(),
	}
	if stdout == os.Stdout {
		a.out = output.New()
	}
	a.wire = a.defaultCollaborators
	return a
}

// Run executes the CLI with the given arguments and returns an exit code.
func Run(args []string) int {
	return newApp(os.Stdout, os.Stderr).execute(context.Background(), args)
}

func (a *app) execute(ctx context.Context, args []string) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := a.handleSignals(cancel)
	defer stop()
	defer a.close()
	defer klog.Flush()

	root := a.rootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return a.exitCode(err)
}

// exitCode maps a command error to the process exit code and reports it.
func (a *app) exitCode(err error) int {
	if err == nil {
		return fberrors.ExitSuccess
	}
	var fe *failuresError
	if stderrors.As(err, &fe) {
		return fe.code
	}
	a.out.ErrorPrefix("%v", err)
	return fberrors.GetExitCode(err)
}

// handleSignals raises the run's cancellation flag on the first interrupt
// so in-flight targets stop at their next checkpoint. A second interrupt
// cancels ctx, which kills running subprocesses.
func (a *app) handleSignals(cancel context.CancelFunc) (stop func()) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		interrupted := false
		for {
			select {
			case <-done:
				return
			case sig := <-ch:
				if interrupted {
					klog.InfoS("Second interrupt, aborting", "signal", sig)
					cancel()
					continue
				}
				interrupted = true
				klog.InfoS("Interrupted, stopping after the current step", "signal", sig)
				a.out.Warning("interrupted; waiting for in-flight steps (interrupt again to abort)")
				if rt := a.runtime(); rt != nil {
					rt.Cancel()
				}
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

func (a *app) runtime() *orchestrator.Runtime {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rt
}

func (a *app) setRuntime(rt *orchestrator.Runtime) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rt = rt
}

func (a *app) addCloser(c io.Closer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, c)
}

func (a *app) close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			klog.ErrorS(err, "Failed to close")
		}
	}
}

// versionCommand prints the CLI version.
func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			a.out.Println("fleetbuild %s", Version)
		},
	}
}
