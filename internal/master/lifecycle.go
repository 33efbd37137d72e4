package master

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-tork/internal/process"
	"github.com/randomizedcoder/go-tork/internal/server"
)

// Stop sends SIGTERM to the process group of every running worker. Their
// exits are reported through the reaper like any other. Workers that exit
// before the signal arrives are not an error.
func (m *Master) Stop(ctx context.Context) error {
	pids := m.pids()
	if len(pids) > 0 {
		m.logger.Info("workers_stopping", "count", len(pids))
	}

	var errs []error
	for _, pid := range pids {
		if err := process.SignalGroup(pid, unix.SIGTERM); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run serves client requests from in until EOF or a quit request, then
// stops every running worker.
func (m *Master) Run(ctx context.Context, in io.Reader) error {
	m.Start()
	err := server.New(m, m.logger).Serve(ctx, in)
	if stopErr := m.Stop(ctx); stopErr != nil {
		m.logger.Warn("stop_failed", "error", stopErr)
	}
	return err
}

// Shutdown refuses further test requests, stops every worker and waits for
// them to be reaped until ctx is done. Workers still running then are
// killed. The reaper is closed before Shutdown returns.
func (m *Master) Shutdown(ctx context.Context) error {
	m.stopped.Store(true)
	stopErr := m.Stop(ctx)

	var killErr error
	if err := m.waitIdle(ctx); err != nil {
		pids := m.pids()
		m.logger.Warn("shutdown_timeout", "remaining", len(pids))
		for _, pid := range pids {
			if err := process.SignalGroup(pid, unix.SIGKILL); err != nil {
				m.logger.Error("kill_failed", "pid", pid, "error", err)
			}
		}
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.ShutdownKilled(len(pids))
		}

		graceCtx, cancel := context.WithTimeout(context.Background(), killGrace)
		if err := m.waitIdle(graceCtx); err != nil {
			m.logger.Error("workers_not_reaped", "remaining", m.Active())
		}
		cancel()
		killErr = fmt.Errorf("%w: %d", ErrWorkersKilled, len(pids))
	} else {
		m.logger.Info("all_workers_stopped")
	}

	m.closeReaper()
	return errors.Join(stopErr, killErr)
}

// waitIdle blocks until every worker has been reaped and reported, or ctx
// is done.
func (m *Master) waitIdle(ctx context.Context) error {
	for {
		m.mu.Lock()
		n := len(m.pending) + m.reporting
		reaped := m.reaped
		m.mu.Unlock()

		if n == 0 {
			return nil
		}
		select {
		case <-reaped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Master) pids() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	pids := make([]int, 0, len(m.pending))
	for pid := range m.pending {
		pids = append(pids, pid)
	}
	return pids
}
