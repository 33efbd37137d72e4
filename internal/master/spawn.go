package master

import (
	"context"
	"fmt"

	"github.com/randomizedcoder/go-tork/internal/hooks"
	"github.com/randomizedcoder/go-tork/internal/process"
	"github.com/randomizedcoder/go-tork/internal/protocol"
)

// Test starts a worker running testFile, limited to testNames when given.
// It blocks while MaxWorkers workers are running, until one is reaped or
// ctx is done. On success the request is acknowledged and a completion
// event follows once the worker exits; on failure nothing is written to
// the client.
func (m *Master) Test(ctx context.Context, cmd *protocol.Command, testFile string, testNames []string) (err error) {
	if m.stopped.Load() {
		return ErrStopped
	}
	m.Start()

	waitStart := m.clock.Now()
	if err := m.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for free worker: %w", err)
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.AdmissionWaited(m.clock.Since(waitStart))
	}
	// Shutdown may have begun while this request waited.
	if m.stopped.Load() {
		m.gate.Release(1)
		return ErrStopped
	}

	admitted := false
	defer func() {
		if admitted {
			return
		}
		m.gate.Release(1)
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.SpawnFailed()
		}
		if m.cfg.Stats != nil {
			m.cfg.Stats.SpawnFailed()
		}
	}()

	logFile, err := m.resolver.Resolve(testFile)
	if err != nil {
		return err
	}

	slot, err := m.slots.Acquire()
	if err != nil {
		return err
	}
	releaseSlot := func() {
		if err := m.slots.Release(slot); err != nil {
			m.logger.Error("slot_release_failed", "slot", slot, "error", err)
		}
	}

	job := &hooks.Job{
		Slot:      slot,
		LogFile:   logFile,
		TestFile:  testFile,
		TestNames: testNames,
	}
	m.hooks.RunBeforeSpawn(job)

	c, err := m.cfg.Builder.BuildCommand(job)
	if err != nil {
		releaseSlot()
		return fmt.Errorf("build %s command: %w", m.cfg.Builder.Name(), err)
	}

	m.mu.Lock()
	if err := process.Start(c, job); err != nil {
		m.mu.Unlock()
		releaseSlot()
		return err
	}
	pid := c.Process.Pid
	m.pending[pid] = &pending{
		cmd:     cmd,
		job:     *job,
		process: c.Process,
		started: m.clock.Now(),
	}
	active := len(m.pending)
	ackErr := m.cfg.Client.Ack(cmd)
	m.mu.Unlock()
	admitted = true

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.WorkerSpawned(active)
	}
	if m.cfg.Stats != nil {
		m.cfg.Stats.Spawned(active)
	}
	m.logger.Info("worker_spawned",
		"pid", pid,
		"slot", slot,
		"test_file", job.TestFile,
		"log_file", logFile,
		"active", active,
	)

	if ackErr != nil {
		return fmt.Errorf("acknowledge test: %w", ackErr)
	}
	return nil
}
