// Package output provides formatted operator-facing output for the CLI.
// Diagnostics go through klog; this package only writes what the operator
// asked to see.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Writer handles CLI output formatting.
type Writer struct {
	out   io.Writer
	err   io.Writer
	color bool
	quiet bool
}

// New creates a new Writer with default settings.
func New() *Writer {
	return &Writer{
		out:   os.Stdout,
		err:   os.Stderr,
		color: isTerminal(),
	}
}

// NewWithWriters creates a Writer with custom io.Writers (for testing).
func NewWithWriters(out, err io.Writer, color bool) *Writer {
	return &Writer{
		out:   out,
		err:   err,
		color: color,
	}
}

// SetQuiet enables or disables quiet mode.
func (w *Writer) SetQuiet(quiet bool) {
	w.quiet = quiet
}

// Quiet reports whether quiet mode is enabled.
func (w *Writer) Quiet() bool { return w.quiet }

// Out returns the stdout writer.
func (w *Writer) Out() io.Writer { return w.out }

// Print writes to stdout.
func (w *Writer) Print(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format, args...)
}

// Println writes a line to stdout.
func (w *Writer) Println(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format+"\n", args...)
}

// Errorln writes a line to stderr.
func (w *Writer) Errorln(format string, args ...interface{}) {
	fmt.Fprintf(w.err, format+"\n", args...)
}

// Info prints an info message (skipped in quiet mode).
func (w *Writer) Info(format string, args ...interface{}) {
	if w.quiet {
		return
	}
	w.Println(format, args...)
}

// Warning prints a warning message.
func (w *Writer) Warning(format string, args ...interface{}) {
	if w.color {
		w.Errorln(yellow+"warning: "+format+reset, args...)
	} else {
		w.Errorln("warning: "+format, args...)
	}
}

// Title returns a stage name in title case ("push distgit" → "Push Distgit").
func Title(stage string) string {
	return cases.Title(language.English).String(stage)
}

// StageStart prints the header of a lifecycle stage run over count targets.
func (w *Writer) StageStart(stage string, count int) {
	if w.quiet {
		return
	}
	noun := "targets"
	if count == 1 {
		noun = "target"
	}
	label := fmt.Sprintf("=== %s (%d %s) ===", Title(stage), count, noun)
	w.Println("")
	if w.color {
		w.Println("%s%s%s", bold+cyan, label, reset)
	} else {
		w.Println("%s", label)
	}
}

// TargetSuccess prints a target's stage success.
func (w *Writer) TargetSuccess(target, stage string) {
	if w.quiet {
		return
	}
	if w.color {
		w.Println("%s[%s]%s %s %s✓%s", green, target, reset, stage, green, reset)
	} else {
		w.Println("[%s] %s done", target, stage)
	}
}

// TargetFailed prints a target's stage failure.
func (w *Writer) TargetFailed(target, stage string, err error) {
	if w.color {
		w.Errorln("%s[%s] %s failed:%s %v", red, target, stage, reset, err)
	} else {
		w.Errorln("[%s] %s failed: %v", target, stage, err)
	}
}

// Failures prints header followed by the sorted keys on stderr. Nothing is
// printed for an empty list.
func (w *Writer) Failures(header string, keys []string) {
	if len(keys) == 0 {
		return
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	msg := strings.Join(append([]string{header}, sorted...), "\n")
	if w.color {
		w.Errorln("%s%s%s", red, msg, reset)
	} else {
		w.Errorln("%s", msg)
	}
}

// ErrorPrefix prints an error message with fleetbuild prefix to stderr.
func (w *Writer) ErrorPrefix(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if w.color {
		w.Errorln("%sfleetbuild:%s %s", red, reset, msg)
	} else {
		w.Errorln("fleetbuild: %s", msg)
	}
}

// SummaryHeader prints a summary section header.
func (w *Writer) SummaryHeader(title string) {
	if w.quiet {
		return
	}
	w.Println("")
	if w.color {
		w.Println("%s=== %s ===%s", bold+cyan, title, reset)
	} else {
		w.Println("=== %s ===", title)
	}
}

// SummaryItem prints a labeled summary item with value.
func (w *Writer) SummaryItem(label, value string) {
	if w.quiet {
		return
	}
	if w.color {
		w.Println("  %s%s:%s %s", dim, label, reset, value)
	} else {
		w.Println("  %s: %s", label, value)
	}
}

// FinalSuccess prints a final success message.
func (w *Writer) FinalSuccess(format string, args ...interface{}) {
	if w.quiet {
		return
	}
	w.Println("")
	msg := fmt.Sprintf(format, args...)
	if w.color {
		w.Println("%s%s%s", green, msg, reset)
	} else {
		w.Println("%s", msg)
	}
}

// FinalFailure prints a final failure message.
func (w *Writer) FinalFailure(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if w.color {
		w.Errorln("%s%s%s", red, msg, reset)
	} else {
		w.Errorln("%s", msg)
	}
}

// isTerminal returns true if stdout is a terminal.
func isTerminal() bool {
	if fi, _ := os.Stdout.Stat(); fi != nil {
		return (fi.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// ANSI color codes.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)
