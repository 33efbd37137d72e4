// Package process creates isolated worker processes and interprets how they
// exited.
package process

import (
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-tork/internal/hooks"
)

// Builder creates worker commands for jobs.
// This interface allows the master to be agnostic of what a worker runs.
type Builder interface {
	// BuildCommand returns a ready-to-start command for the given job.
	// The command should NOT be started yet, and must not be bound to a
	// context: workers are reaped by the master, never by exec.Cmd.Wait.
	BuildCommand(job *hooks.Job) (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string
}

// ExitStatus captures how a worker process terminated.
type ExitStatus struct {
	Pid      int    `json:"pid"`
	ExitCode int    `json:"exit_code"`
	Signal   string `json:"signal,omitempty"`
	CoreDump bool   `json:"core_dump,omitempty"`
}

// NewExitStatus converts a raw wait status. A signalled process reports
// 128 + signal number as its exit code, like a shell does.
func NewExitStatus(pid int, ws unix.WaitStatus) ExitStatus {
	st := ExitStatus{Pid: pid}
	switch {
	case ws.Exited():
		st.ExitCode = ws.ExitStatus()
	case ws.Signaled():
		sig := ws.Signal()
		st.ExitCode = 128 + int(sig)
		st.Signal = unix.SignalName(sig)
		st.CoreDump = ws.CoreDump()
	default:
		st.ExitCode = 1
	}
	return st
}

// Success reports whether the process exited normally with status 0.
func (s ExitStatus) Success() bool {
	return s.ExitCode == 0 && s.Signal == ""
}

// String returns a short description such as "pid 12 exit 1".
func (s ExitStatus) String() string {
	if s.Signal != "" {
		return fmt.Sprintf("pid %d %s (signal)", s.Pid, s.Signal)
	}
	return fmt.Sprintf("pid %d exit %d", s.Pid, s.ExitCode)
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(job *hooks.Job) (*exec.Cmd, error)

// BuildCommand calls f(job).
func (f BuilderFunc) BuildCommand(job *hooks.Job) (*exec.Cmd, error) {
	return f(job)
}

// Name returns "func".
func (f BuilderFunc) Name() string {
	return "func"
}
