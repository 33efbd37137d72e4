package config

import (
	"errors"
	"fmt"
	"net"
	"slices"

	"github.com/randomizedcoder/go-tork/internal/plugins"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// All problems are reported at once, joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.MaxWorkers < 1 {
		errs = append(errs, ValidationError{
			Field:   "max_workers",
			Message: fmt.Sprintf("must be at least 1 (got %d)", cfg.MaxWorkers),
		})
	}

	if cfg.LogRoot == "" {
		errs = append(errs, ValidationError{
			Field:   "log_root",
			Message: "must not be empty",
		})
	}

	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "shutdown_timeout",
			Message: "must not be negative",
		})
	}

	if cfg.TailLines < 0 {
		errs = append(errs, ValidationError{
			Field:   "tail_lines",
			Message: "must not be negative",
		})
	}

	available := plugins.Available()
	for _, name := range cfg.Plugins {
		if !slices.Contains(available, name) {
			errs = append(errs, ValidationError{
				Field:   "plugin",
				Message: fmt.Sprintf("unknown plugin %q (available: %v)", name, available),
			})
		}
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: err.Error(),
			})
		}
	}

	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
