// Package cucumber runs .feature files through the cucumber executable.
//
// The worker cannot load a feature file itself, so an after-spawn hook swaps
// the test file for an empty placeholder and defers the real run to the
// worker's exit, handing the original feature file to cucumber. The
// placeholder is removed when the worker finishes, even if it failed before
// cucumber ran.
package cucumber

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/randomizedcoder/go-tork/internal/hooks"
)

// Name is the plug-in name used on the command line.
const Name = "cucumber"

// EnvBinary overrides the cucumber executable.
const EnvBinary = "TORK_CUCUMBER"

// Install registers the cucumber hooks.
func Install(reg *hooks.Registry) {
	reg.AfterSpawn(Hook(Binary()))
}

// Hook returns the after-spawn hook that defers feature files to bin.
func Hook(bin string) hooks.Hook {
	return func(job *hooks.Job) {
		feature := job.TestFile
		names := append([]string(nil), job.TestNames...)
		stub := placeholder()
		job.TestFile = stub
		if stub != os.DevNull {
			job.OnCleanup(func() { os.Remove(stub) })
		}

		job.AtExit(func(ctx context.Context) error {
			cmd := exec.CommandContext(ctx, bin, Args(feature, names)...)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			if err := cmd.Run(); err != nil {
				return fmt.Errorf("cucumber %s: %w", feature, err)
			}
			return nil
		})
	}
}

// Args returns the cucumber arguments for a feature file, selecting
// scenarios by name when names are given.
func Args(feature string, names []string) []string {
	args := make([]string, 0, 1+2*len(names))
	for _, name := range names {
		args = append(args, "--name", name)
	}
	return append(args, feature)
}

// placeholder creates the empty stand-in test file.
func placeholder() string {
	f, err := os.CreateTemp("", "tork")
	if err != nil {
		return os.DevNull
	}
	f.Close()
	return f.Name()
}

// Binary returns the cucumber executable, TORK_CUCUMBER when set.
func Binary() string {
	if bin := os.Getenv(EnvBinary); bin != "" {
		return bin
	}
	return "cucumber"
}
