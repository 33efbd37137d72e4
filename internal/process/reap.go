package process

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ReapExited collects every child that has already exited without blocking
// and passes each one to fn. Having no children, or none that exited, ends
// the drain quietly.
func ReapExited(fn func(ExitStatus)) error {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			return nil
		case err != nil:
			return err
		case pid <= 0:
			return nil
		}
		fn(NewExitStatus(pid, ws))
	}
}
