// Package config provides configuration management for tork-master.
package config

import (
	"runtime"
	"time"
)

// EnvMaxWorkers overrides the default worker limit.
const EnvMaxWorkers = "TORK_MAX_WORKERS"

// Config holds all configuration options for the master.
type Config struct {
	// Workers
	MaxWorkers      int           `json:"max_workers"`
	LogRoot         string        `json:"log_root"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	TailLines       int           `json:"tail_lines"` // worker log lines logged on failure

	// Payload
	RulesFile string   `json:"rules_file"`
	Plugins   []string `json:"plugins"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // empty disables the endpoint
	MetricsFile string `json:"metrics_file"`
	Summary     bool   `json:"summary"`
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text

	// Diagnostic modes
	SkipPreflight bool `json:"skip_preflight"`
	ShowVersion   bool `json:"show_version"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxWorkers:      runtime.NumCPU(),
		LogRoot:         "log",
		ShutdownTimeout: 10 * time.Second,
		TailLines:       20,

		LogFormat: "json",
	}
}
