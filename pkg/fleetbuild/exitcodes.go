// Package fleetbuild provides public constants and utilities for automation
// that drives the fleetbuild CLI.
package fleetbuild

// Exit codes returned by the fleetbuild CLI.
//
// Build-like commands exit with the number of failed targets, so automation
// can tell "3 of 40 targets failed" apart from "all failed". Verification
// commands exit with the number of failed checks.
const (
	// ExitSuccess indicates every target completed.
	ExitSuccess = 0

	// ExitAbort indicates the run was aborted before any worker started
	// (invalid version, missing group, no repo source, ...).
	ExitAbort = 1

	// MaxExitCode is the largest exit status a process can report. Failure
	// counts above it are clamped so they never wrap around to success.
	MaxExitCode = 255
)

// ExitCodeForFailures converts a failure count into a process exit code.
func ExitCodeForFailures(failed int) int {
	switch {
	case failed <= 0:
		return ExitSuccess
	case failed > MaxExitCode:
		return MaxExitCode
	default:
		return failed
	}
}
