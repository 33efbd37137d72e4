// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options describes what the run is about to need.
type Options struct {
	MaxWorkers int
	LogRoot    string
	// Binaries are the payload runners looked up on PATH.
	Binaries []string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks. Missing runner binaries are
// warnings: a run may never request a test file that needs them.
func RunAll(opts Options) *Result {
	result := &Result{Passed: true}

	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkFileDescriptors(opts.MaxWorkers))
	add(checkProcessLimit(opts.MaxWorkers))
	add(checkLogRoot(opts.LogRoot))
	for _, bin := range opts.Binaries {
		add(checkBinary(bin))
	}

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(workers int) Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	// Each spawn briefly holds a log file and exec pipes; the rest is the
	// protocol streams, the metrics server and logging.
	required := workers*4 + 64
	actual := clampLimit(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d workers)", actual, required, workers),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(workers int) Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NPROC, &limit); err != nil {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	// A worker usually runs its payload as a child, which may fork again.
	required := workers*4 + 50
	actual := clampLimit(limit.Cur)

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// checkLogRoot verifies worker logs can be written under root.
func checkLogRoot(root string) Check {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return Check{
			Name:    "log_root",
			Passed:  false,
			Message: fmt.Sprintf("cannot create %s: %v", root, err),
		}
	}
	probe, err := os.CreateTemp(root, ".tork-preflight-*")
	if err != nil {
		return Check{
			Name:    "log_root",
			Passed:  false,
			Message: fmt.Sprintf("cannot write to %s: %v", root, err),
		}
	}
	probe.Close()
	os.Remove(probe.Name())

	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return Check{
		Name:    "log_root",
		Passed:  true,
		Message: fmt.Sprintf("writable at %s", abs),
	}
}

// checkBinary looks up a payload runner on PATH.
func checkBinary(name string) Check {
	path, err := exec.LookPath(name)
	if err != nil {
		return Check{
			Name:    "runner " + name,
			Passed:  true,
			Warning: true,
			Message: "not found on PATH, tests needing it will fail",
		}
	}
	return Check{
		Name:    "runner " + name,
		Passed:  true,
		Message: "found at " + path,
	}
}

func clampLimit(v uint64) int {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case "log_root":
		return "choose a writable -log-root"
	default:
		return "see tork-master -h"
	}
}
