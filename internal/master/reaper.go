package master

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-tork/internal/logging"
	"github.com/randomizedcoder/go-tork/internal/process"
	"github.com/randomizedcoder/go-tork/internal/protocol"
	"github.com/randomizedcoder/go-tork/internal/stats"
)

type completion struct {
	worker *pending
	status process.ExitStatus
}

// Start installs the SIGCHLD handler and the reaper goroutine. It is safe
// to call more than once.
//
// The reaper collects every exited child of this process, so nothing else
// in the process may wait for its own children.
func (m *Master) Start() {
	m.startOnce.Do(func() {
		m.sigCh = make(chan os.Signal, 1)
		signal.Notify(m.sigCh, unix.SIGCHLD)
		go m.reapLoop()
	})
}

func (m *Master) reapLoop() {
	defer close(m.reaperDone)
	for {
		select {
		case <-m.sigCh:
			m.reap()
		case <-m.quit:
			return
		}
	}
}

// closeReaper stops the reaper after a final drain.
func (m *Master) closeReaper() {
	m.closeOnce.Do(func() {
		close(m.quit)
		m.startOnce.Do(func() { close(m.reaperDone) })
		<-m.reaperDone
		if m.sigCh != nil {
			signal.Stop(m.sigCh)
		}
		m.reap()
	})
}

// reap drains every exited child. Tracked workers free their slot and are
// reported to the client in exit order; other children are only logged.
func (m *Master) reap() {
	var done []completion
	untracked := 0

	m.mu.Lock()
	err := process.ReapExited(func(st process.ExitStatus) {
		w, ok := m.pending[st.Pid]
		if !ok {
			untracked++
			m.logger.Warn("unknown_child_exited", "pid", st.Pid, "exit", st.String())
			return
		}
		delete(m.pending, st.Pid)
		if err := m.slots.Release(w.job.Slot); err != nil {
			m.logger.Error("slot_release_failed", "slot", w.job.Slot, "pid", st.Pid, "error", err)
		}
		w.process.Release()
		done = append(done, completion{worker: w, status: st})
	})
	active := len(m.pending)
	m.reporting += len(done)
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("reap_failed", "error", err)
	}
	for i := 0; i < untracked; i++ {
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.UntrackedExit()
		}
		if m.cfg.Stats != nil {
			m.cfg.Stats.Untracked()
		}
	}
	for _, c := range done {
		m.complete(c, active)
		m.gate.Release(1)
	}
	if len(done) > 0 {
		m.mu.Lock()
		m.reporting -= len(done)
		close(m.reaped)
		m.reaped = make(chan struct{})
		m.mu.Unlock()
	}
}

// complete reports one reaped worker.
func (m *Master) complete(c completion, active int) {
	w, st := c.worker, c.status
	elapsed := m.clock.Since(w.started)

	status := protocol.StatusPass
	if !st.Success() {
		status = protocol.StatusFail
	}
	if err := m.cfg.Client.Complete(w.cmd.Completion(status, w.job.Slot, st)); err != nil {
		m.logger.Error("completion_write_failed", "pid", st.Pid, "error", err)
	}

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.WorkerReaped(st.Success(), st.ExitCode, elapsed, active)
	}
	if m.cfg.Stats != nil {
		m.cfg.Stats.Record(stats.Outcome{
			TestFile: w.job.TestFile,
			Pass:     st.Success(),
			ExitCode: st.ExitCode,
			Runtime:  elapsed,
		})
	}

	logger := logging.WithWorker(m.logger, w.job.Slot, w.job.TestFile)
	level := slog.LevelInfo
	if !st.Success() {
		level = slog.LevelWarn
	}
	attrs := []any{
		"pid", st.Pid,
		"status", status,
		"exit_code", st.ExitCode,
		"runtime", elapsed.String(),
		"log_file", w.job.LogFile,
	}
	if st.Signal != "" {
		attrs = append(attrs, "signal", st.Signal)
	}
	logger.Log(context.Background(), level, "worker_reaped", attrs...)

	if !st.Success() && m.cfg.TailLines > 0 {
		logging.LogTail(logger, w.job.LogFile, m.cfg.TailLines)
	}
}
