// Package metrics provides Prometheus metrics for tork-master.
//
// All metrics are aggregate. Worker slots and test files are never used as
// labels, so cardinality stays fixed however many tests a run spawns.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Completion status label values.
const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// durationBuckets cover quick unit tests up to long integration suites.
var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// Collector owns the tork metrics. Each collector holds its own metric
// vectors, so several collectors may live in one process on separate
// registries.
type Collector struct {
	info           *prometheus.GaugeVec
	maxWorkers     prometheus.Gauge
	active         prometheus.Gauge
	spawned        prometheus.Counter
	completed      *prometheus.CounterVec
	exits          *prometheus.CounterVec
	spawnFailures  prometheus.Counter
	untrackedExits prometheus.Counter
	workerDuration prometheus.Histogram
	admissionWait  prometheus.Histogram
	shutdownKills  prometheus.Counter
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version    string
	RunID      string
	MaxWorkers int
}

// NewCollector creates a collector registered with the default registerer.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tork_info",
				Help: "Information about the tork-master run (value always 1)",
			},
			[]string{"version", "run_id"},
		),
		maxWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tork_max_workers",
			Help: "Configured maximum number of concurrent workers",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tork_workers_active",
			Help: "Workers currently running",
		}),
		spawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tork_workers_spawned_total",
			Help: "Workers started",
		}),
		completed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tork_workers_completed_total",
				Help: "Workers reaped, by pass/fail status",
			},
			[]string{"status"},
		),
		exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tork_worker_exits_total",
				Help: "Workers reaped, by exit category (success, error, signal)",
			},
			[]string{"category"},
		),
		spawnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tork_spawn_failures_total",
			Help: "Test requests that failed before a worker was running",
		}),
		untrackedExits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tork_untracked_exits_total",
			Help: "Reaped children that were not tracked as workers",
		}),
		workerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tork_worker_duration_seconds",
			Help:    "Wall time from worker start to reap",
			Buckets: durationBuckets,
		}),
		admissionWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tork_admission_wait_seconds",
			Help:    "Time a test request waited for a free worker",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		shutdownKills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tork_shutdown_kills_total",
			Help: "Worker groups killed because they outlived the shutdown timeout",
		}),
	}

	registry.MustRegister(
		c.info,
		c.maxWorkers,
		c.active,
		c.spawned,
		c.completed,
		c.exits,
		c.spawnFailures,
		c.untrackedExits,
		c.workerDuration,
		c.admissionWait,
		c.shutdownKills,
	)

	// Pre-create label values so the series exist before the first reap.
	c.completed.WithLabelValues(StatusPass)
	c.completed.WithLabelValues(StatusFail)

	c.info.WithLabelValues(cfg.Version, cfg.RunID).Set(1)
	c.maxWorkers.Set(float64(cfg.MaxWorkers))

	return c
}

// WorkerSpawned records a started worker and the current active count.
func (c *Collector) WorkerSpawned(active int) {
	c.spawned.Inc()
	c.active.Set(float64(active))
}

// WorkerReaped records a reaped worker.
func (c *Collector) WorkerReaped(pass bool, exitCode int, runtime time.Duration, active int) {
	status := StatusFail
	if pass {
		status = StatusPass
	}
	c.completed.WithLabelValues(status).Inc()
	c.exits.WithLabelValues(ExitCategory(exitCode)).Inc()
	c.workerDuration.Observe(runtime.Seconds())
	c.active.Set(float64(active))
}

// SpawnFailed records a test request that never produced a worker.
func (c *Collector) SpawnFailed() {
	c.spawnFailures.Inc()
}

// UntrackedExit records a reaped child that was not a tracked worker.
func (c *Collector) UntrackedExit() {
	c.untrackedExits.Inc()
}

// AdmissionWaited records the time spent waiting for a free worker.
func (c *Collector) AdmissionWaited(d time.Duration) {
	c.admissionWait.Observe(d.Seconds())
}

// ShutdownKilled records worker groups killed at shutdown.
func (c *Collector) ShutdownKilled(n int) {
	c.shutdownKills.Add(float64(n))
}

// ExitCategory buckets an exit code: 0 is success, above 128 a signal,
// anything else an error.
func ExitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return "success"
	case exitCode > 128:
		return "signal"
	default:
		return "error"
	}
}
