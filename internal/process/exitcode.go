package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// ExitCode extracts the exit code from a Wait() or Run() error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error (the command never ran), assume exit code 1
	return 1
}
