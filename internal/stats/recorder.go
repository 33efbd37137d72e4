// Package stats records the outcome of every worker in a run and renders the
// exit summary.
package stats

import (
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/influxdata/tdigest"
)

// Outcome is the result of one reaped worker.
type Outcome struct {
	TestFile string
	Pass     bool
	ExitCode int
	Runtime  time.Duration
}

// Summary is a snapshot of a run.
type Summary struct {
	Duration      time.Duration
	Spawned       int64
	Completed     int64
	Passed        int64
	Failed        int64
	SpawnFailures int64
	Untracked     int64
	PeakActive    int
	ExitCodes     map[int]int64

	RuntimeP50 time.Duration
	RuntimeP95 time.Duration
	RuntimeP99 time.Duration
	RuntimeMax time.Duration

	// Slowest is the longest running worker, empty before any completion.
	Slowest Outcome
	// FailedTests lists failing test files in completion order.
	FailedTests []string
}

// Recorder accumulates worker outcomes. It is safe for concurrent use.
type Recorder struct {
	clock quartz.Clock
	start time.Time

	mu            sync.Mutex
	digest        *tdigest.TDigest
	spawned       int64
	passed        int64
	failed        int64
	spawnFailures int64
	untracked     int64
	peakActive    int
	exitCodes     map[int]int64
	slowest       Outcome
	failedTests   []string
}

// NewRecorder starts a run at the clock's current time. A nil clock uses
// the real clock.
func NewRecorder(clock quartz.Clock) *Recorder {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Recorder{
		clock:     clock,
		start:     clock.Now(),
		digest:    tdigest.NewWithCompression(100),
		exitCodes: make(map[int]int64),
	}
}

// Spawned records a started worker with the number now running.
func (r *Recorder) Spawned(active int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spawned++
	if active > r.peakActive {
		r.peakActive = active
	}
}

// Record adds a reaped worker.
func (r *Recorder) Record(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o.Pass {
		r.passed++
	} else {
		r.failed++
		r.failedTests = append(r.failedTests, o.TestFile)
	}
	r.exitCodes[o.ExitCode]++
	r.digest.Add(float64(o.Runtime.Nanoseconds()), 1)
	if o.Runtime > r.slowest.Runtime || r.slowest.TestFile == "" {
		r.slowest = o
	}
}

// SpawnFailed records a request that never produced a worker.
func (r *Recorder) SpawnFailed() {
	r.mu.Lock()
	r.spawnFailures++
	r.mu.Unlock()
}

// Untracked records a reaped child that was not a tracked worker.
func (r *Recorder) Untracked() {
	r.mu.Lock()
	r.untracked++
	r.mu.Unlock()
}

// Snapshot returns the run so far.
func (r *Recorder) Snapshot() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{
		Duration:      r.clock.Since(r.start),
		Spawned:       r.spawned,
		Completed:     r.passed + r.failed,
		Passed:        r.passed,
		Failed:        r.failed,
		SpawnFailures: r.spawnFailures,
		Untracked:     r.untracked,
		PeakActive:    r.peakActive,
		ExitCodes:     make(map[int]int64, len(r.exitCodes)),
		Slowest:       r.slowest,
		FailedTests:   append([]string(nil), r.failedTests...),
	}
	for code, n := range r.exitCodes {
		s.ExitCodes[code] = n
	}
	if s.Completed > 0 {
		s.RuntimeP50 = time.Duration(r.digest.Quantile(0.50))
		s.RuntimeP95 = time.Duration(r.digest.Quantile(0.95))
		s.RuntimeP99 = time.Duration(r.digest.Quantile(0.99))
		s.RuntimeMax = r.slowest.Runtime
	}
	return s
}
