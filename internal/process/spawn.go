package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-tork/internal/hooks"
)

// LogFileMode is the permission used when a worker log file is created.
const LogFileMode os.FileMode = 0o644

// Title returns the process title of a worker, searchable with ps(1).
func Title(job *hooks.Job) string {
	return fmt.Sprintf("tork-worker[%d] %s", job.Slot, job.TestFile)
}

// Start isolates cmd as the worker for job and starts it:
//   - argv[0] becomes the worker title
//   - the worker leads a new session and process group, so a group-wide
//     signal reaches only the worker and its descendants
//   - stdin reads from the null device
//   - stdout and stderr go to the job's log file, opened for synchronous
//     writes so output survives abrupt termination
//
// The caller owns reaping the returned process.
func Start(cmd *exec.Cmd, job *hooks.Job) error {
	logFile, err := os.OpenFile(job.LogFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_SYNC, LogFileMode)
	if err != nil {
		return fmt.Errorf("open worker log: %w", err)
	}
	// The child holds its own descriptor once started.
	defer logFile.Close()

	if len(cmd.Args) == 0 {
		cmd.Args = []string{cmd.Path}
	}
	cmd.Args[0] = Title(job)
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	return nil
}

// SignalGroup sends sig to the process group led by pid. A group that has
// already exited (ESRCH) or an invalid target (EINVAL) is not an error: a
// worker may finish between the caller's snapshot and the signal.
func SignalGroup(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return nil
	}
	err := unix.Kill(-pid, sig)
	if err == nil || errors.Is(err, unix.ESRCH) || errors.Is(err, unix.EINVAL) {
		return nil
	}
	return fmt.Errorf("signal group %d: %w", pid, err)
}
