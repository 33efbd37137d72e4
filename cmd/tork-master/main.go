// Package main provides the tork-master CLI entry point.
//
// tork-master reads test requests from stdin and runs each test file in an
// isolated worker process, reporting every worker exit on stdout. The same
// binary doubles as the worker: the master re-executes itself with the job
// in the environment.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-tork/internal/config"
	"github.com/randomizedcoder/go-tork/internal/hooks"
	"github.com/randomizedcoder/go-tork/internal/logging"
	"github.com/randomizedcoder/go-tork/internal/master"
	"github.com/randomizedcoder/go-tork/internal/metrics"
	"github.com/randomizedcoder/go-tork/internal/payload"
	"github.com/randomizedcoder/go-tork/internal/plugins"
	"github.com/randomizedcoder/go-tork/internal/plugins/cucumber"
	"github.com/randomizedcoder/go-tork/internal/preflight"
	"github.com/randomizedcoder/go-tork/internal/protocol"
	"github.com/randomizedcoder/go-tork/internal/stats"
	"github.com/randomizedcoder/go-tork/internal/worker"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/tork-master
var version = "dev"

func main() {
	env, isWorker, err := worker.FromEnv()
	if isWorker {
		os.Exit(runWorker(env, err))
	}
	os.Exit(run())
}

// runWorker runs one job inside a re-executed worker. Its stdout and stderr
// are the job log file.
func runWorker(env *worker.Envelope, envErr error) int {
	logger := logging.NewLogger("text", "info", false)
	if envErr != nil {
		logger.Error("worker_envelope_invalid", "error", envErr)
		return 1
	}
	logger = logging.WithWorker(logger, env.Job.Slot, env.Job.TestFile)

	reg := hooks.NewRegistry()
	if err := plugins.Install(env.Plugins, reg); err != nil {
		logger.Error("plugin_install_failed", "error", err)
		return 1
	}
	rules, err := payload.LoadRules(env.Rules)
	if err != nil {
		logger.Error("payload_rules_invalid", "error", err)
		return 1
	}

	r := &worker.Runner{
		Hooks:  reg,
		Rules:  rules,
		Logger: logger,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	return r.Run(context.Background(), env)
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Fprintf(os.Stderr, "tork-master %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}
	if cfg.ShowVersion {
		fmt.Fprintf(os.Stderr, "tork-master %s\n", version)
		return 0
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	logger := logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	logging.SetDefault(logger)

	rulesFile := cfg.RulesFile
	if rulesFile != "" {
		if rulesFile, err = filepath.Abs(rulesFile); err != nil {
			logger.Error("rules_path_invalid", "error", err)
			return 1
		}
	}
	rules, err := payload.LoadRules(rulesFile)
	if err != nil {
		logger.Error("payload_rules_invalid", "error", err)
		return 1
	}

	if !cfg.SkipPreflight {
		binaries := rules.Binaries()
		if slices.Contains(cfg.Plugins, cucumber.Name) {
			binaries = append(binaries, cucumber.Binary())
		}
		result := preflight.RunAll(preflight.Options{
			MaxWorkers: cfg.MaxWorkers,
			LogRoot:    cfg.LogRoot,
			Binaries:   binaries,
		})
		preflight.PrintResults(os.Stderr, result)
		if !result.Passed {
			fmt.Fprintln(os.Stderr, "Preflight checks failed; use -skip-preflight to run anyway.")
			return 1
		}
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	logger.Info("starting",
		"version", version,
		"max_workers", cfg.MaxWorkers,
		"log_root", cfg.LogRoot,
		"plugins", cfg.Plugins,
		"metrics_addr", cfg.MetricsAddr,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:    version,
		RunID:      runID,
		MaxWorkers: cfg.MaxWorkers,
	}, registry)

	var metricsServer *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsServer = metrics.NewServer(cfg.MetricsAddr, registry, logger)
		if err := metricsServer.Start(); err != nil {
			logger.Error("metrics_server_failed", "error", err)
			return 1
		}
	}

	clock := quartz.NewReal()
	recorder := stats.NewRecorder(clock)

	reg := hooks.NewRegistry()
	if err := plugins.Install(cfg.Plugins, reg); err != nil {
		logger.Error("plugin_install_failed", "error", err)
		return 1
	}

	executable, err := os.Executable()
	if err != nil {
		logger.Error("executable_not_found", "error", err)
		return 1
	}

	var m *master.Master
	builder := worker.NewBuilder(executable, func() worker.Settings {
		preloads, loadPath := m.Loaded()
		return worker.Settings{
			Preloads: preloads,
			LoadPath: loadPath,
			Plugins:  cfg.Plugins,
			Rules:    rulesFile,
			RunID:    runID,
		}
	})
	m, err = master.New(master.Config{
		MaxWorkers: cfg.MaxWorkers,
		LogRoot:    cfg.LogRoot,
		TailLines:  cfg.TailLines,
		Builder:    builder,
		Client:     protocol.NewClient(os.Stdout),
		Hooks:      reg,
		Logger:     logger,
		Metrics:    collector,
		Stats:      recorder,
		Clock:      clock,
	})
	if err != nil {
		logger.Error("master_init_failed", "error", err)
		return 1
	}

	exitCode := serve(m, logger, cfg.ShutdownTimeout)

	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Warn("metrics_server_shutdown_failed", "error", err)
		}
		cancel()
	}
	if cfg.MetricsFile != "" {
		if err := metrics.WriteSnapshot(registry, cfg.MetricsFile); err != nil {
			logger.Error("metrics_snapshot_failed", "error", err)
			exitCode = 1
		}
	}
	if cfg.Summary {
		fmt.Fprintln(os.Stderr, stats.FormatExitSummary(recorder.Snapshot(), stats.SummaryConfig{
			RunID:       runID,
			MaxWorkers:  cfg.MaxWorkers,
			LogRoot:     cfg.LogRoot,
			MetricsAddr: cfg.MetricsAddr,
			MetricsFile: cfg.MetricsFile,
		}))
	}
	return exitCode
}

// serve runs the client loop until the client finishes or a termination
// signal arrives, then shuts the master down.
func serve(m *master.Master, logger *slog.Logger, timeout time.Duration) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx, os.Stdin)
	}()

	exitCode := 0
	select {
	case err := <-done:
		if err != nil {
			logger.Error("client_loop_failed", "error", err)
			exitCode = 1
		}
	case sig := <-sigCh:
		// The client loop may be blocked reading stdin; it is abandoned.
		logger.Info("signal_received", "signal", sig.String())
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown_incomplete", "error", err)
		if !errors.Is(err, master.ErrWorkersKilled) {
			exitCode = 1
		}
	}
	return exitCode
}
