// Package master runs test files in isolated worker processes on behalf of a
// line-protocol client.
//
// A Master admits at most MaxWorkers concurrent workers. Each worker gets a
// numbered slot, its own process group and a log file under the log root.
// Workers are reaped from a SIGCHLD-driven loop that reports every exit to
// the client as a pass/fail completion event.
package master

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/semaphore"

	"github.com/randomizedcoder/go-tork/internal/hooks"
	"github.com/randomizedcoder/go-tork/internal/logpath"
	"github.com/randomizedcoder/go-tork/internal/metrics"
	"github.com/randomizedcoder/go-tork/internal/process"
	"github.com/randomizedcoder/go-tork/internal/protocol"
	"github.com/randomizedcoder/go-tork/internal/slots"
	"github.com/randomizedcoder/go-tork/internal/stats"
)

var (
	// ErrStopped is returned for test requests arriving after Shutdown.
	ErrStopped = errors.New("master is shutting down")

	// ErrWorkersKilled reports workers that outlived the shutdown timeout
	// and were killed.
	ErrWorkersKilled = errors.New("workers killed at shutdown")
)

// killGrace bounds the wait for killed workers to be reaped.
const killGrace = 2 * time.Second

// Config holds everything a Master needs.
type Config struct {
	MaxWorkers int
	LogRoot    string
	// TailLines of a failed worker's log are logged at debug level.
	TailLines int

	Builder process.Builder
	Client  *protocol.Client

	Hooks   *hooks.Registry    // optional
	Logger  *slog.Logger       // optional
	Metrics *metrics.Collector // optional
	Stats   *stats.Recorder    // optional
	Clock   quartz.Clock       // optional
}

// pending is a running worker awaiting its completion event.
type pending struct {
	cmd     *protocol.Command
	job     hooks.Job
	process *os.Process
	started time.Time
}

// Master owns the worker slot pool and the table of running workers.
type Master struct {
	cfg      Config
	logger   *slog.Logger
	clock    quartz.Clock
	hooks    *hooks.Registry
	resolver *logpath.Resolver

	// gate admits a test request once a worker may start.
	gate *semaphore.Weighted

	// mu guards the pending table and is held across worker start and
	// reap, so a worker is always tracked before it can be reaped.
	mu      sync.Mutex
	slots   *slots.Pool
	pending map[int]*pending
	// reporting counts reaped workers whose completion is not written yet.
	reporting int
	// reaped is closed and replaced each time reaped workers are reported.
	reaped chan struct{}

	loadMu   sync.RWMutex
	loadPath []string
	preloads []string
	loaded   map[string]bool

	stopped    atomic.Bool
	startOnce  sync.Once
	closeOnce  sync.Once
	sigCh      chan os.Signal
	quit       chan struct{}
	reaperDone chan struct{}
}

// New creates a master. Call Start (or Run) before spawning workers.
func New(cfg Config) (*Master, error) {
	if cfg.MaxWorkers < 1 {
		return nil, fmt.Errorf("max workers must be at least 1 (got %d)", cfg.MaxWorkers)
	}
	if cfg.Builder == nil {
		return nil, errors.New("worker builder is required")
	}
	if cfg.Client == nil {
		return nil, errors.New("protocol client is required")
	}

	m := &Master{
		cfg:        cfg,
		logger:     cfg.Logger,
		clock:      cfg.Clock,
		hooks:      cfg.Hooks,
		resolver:   logpath.New(cfg.LogRoot),
		gate:       semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		slots:      slots.NewPool(cfg.MaxWorkers),
		pending:    make(map[int]*pending),
		reaped:     make(chan struct{}),
		loaded:     make(map[string]bool),
		quit:       make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.clock == nil {
		m.clock = quartz.NewReal()
	}
	if m.hooks == nil {
		m.hooks = hooks.NewRegistry()
	}
	return m, nil
}

// Active returns the number of running workers.
func (m *Master) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// AvailableSlots returns the number of free worker slots.
func (m *Master) AvailableSlots() int {
	return m.slots.Available()
}

// Hooks returns the hook registry consulted for every spawn.
func (m *Master) Hooks() *hooks.Registry {
	return m.hooks
}
