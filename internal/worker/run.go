package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"

	"github.com/randomizedcoder/go-tork/internal/hooks"
	"github.com/randomizedcoder/go-tork/internal/payload"
	"github.com/randomizedcoder/go-tork/internal/process"
)

// Runner executes one job inside a worker process.
type Runner struct {
	Hooks  *hooks.Registry
	Rules  *payload.Rules
	Logger *slog.Logger

	// Stdout and Stderr receive payload output; the worker's own streams
	// already point at the job log file.
	Stdout io.Writer
	Stderr io.Writer
}

// Run prepares and runs env's job and returns the worker exit code:
//  1. after-spawn hooks, which may rewrite the test file and names
//  2. every preloaded file, in load order
//  3. the test file itself
//  4. the job's at-exit steps, only when everything before succeeded
//
// The job's cleanup steps run last in every case. Failures never escape as
// errors; the exit code is the only result.
func (r *Runner) Run(ctx context.Context, env *Envelope) int {
	job := &env.Job
	defer job.Cleanup()
	r.Hooks.RunAfterSpawn(job)

	for _, file := range env.Preloads {
		if code := r.load(ctx, file, nil); code != 0 {
			r.Logger.Error("preload_failed", "file", file, "exit_code", code)
			return code
		}
	}

	if code := r.load(ctx, job.TestFile, job.TestNames); code != 0 {
		return code
	}

	if err := job.RunAtExit(ctx); err != nil {
		code := process.ExitCode(err)
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			r.Logger.Error("at_exit_failed", "test_file", job.TestFile, "error", err)
		}
		return code
	}
	return 0
}

// load runs one file through the payload rules.
func (r *Runner) load(ctx context.Context, file string, names []string) int {
	cmd, err := r.Rules.Command(ctx, file, names)
	if err != nil {
		r.Logger.Error("load_failed", "file", file, "error", err)
		return 1
	}
	if cmd == nil {
		return 0
	}
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return process.ExitCode(cmd.Run())
}
