package config

import (
	"bytes"
	"flag"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringList(t *testing.T) {
	var l stringList
	assert.Empty(t, l.String())

	require.NoError(t, l.Set("cucumber"))
	require.NoError(t, l.Set("other"))
	assert.Len(t, l, 2)
	assert.Equal(t, "cucumber, other", l.String())
}

func TestFlagType(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Bool("b", false, "")
	fs.Int("i", 4, "")
	fs.Duration("d", 10*time.Second, "")
	fs.String("s", "log", "")
	fs.Var(&stringList{}, "l", "")

	want := map[string]string{"b": "", "i": "int", "d": "duration", "s": "string", "l": "name"}
	for name, typ := range want {
		assert.Equal(t, typ, flagType(fs.Lookup(name)), "flag %s", name)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, runtime.NumCPU(), cfg.MaxWorkers)
	assert.Equal(t, "log", cfg.LogRoot)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.MetricsAddr, "metrics endpoint disabled by default")
	assert.NoError(t, Validate(cfg))
}

func TestParseArgs(t *testing.T) {
	t.Setenv(EnvMaxWorkers, "")

	cfg, err := ParseArgs([]string{
		"-max-workers", "3",
		"-log-root", "out/logs",
		"-plugin", "cucumber",
		"-rules", "rules.yaml",
		"-shutdown-timeout", "2s",
		"-metrics", "127.0.0.1:0",
		"-summary",
		"-v",
		"-log-format", "text",
	}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxWorkers)
	assert.Equal(t, "out/logs", cfg.LogRoot)
	assert.Equal(t, "rules.yaml", cfg.RulesFile)
	assert.Equal(t, []string{"cucumber"}, cfg.Plugins)
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "127.0.0.1:0", cfg.MetricsAddr)
	assert.True(t, cfg.Summary)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestParseArgs_EnvMaxWorkers(t *testing.T) {
	t.Setenv(EnvMaxWorkers, "7")

	cfg, err := ParseArgs(nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxWorkers)

	cfg, err = ParseArgs([]string{"-max-workers", "2"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxWorkers, "flag wins over env")
}

func TestParseArgs_Errors(t *testing.T) {
	t.Setenv(EnvMaxWorkers, "many")
	_, err := ParseArgs(nil, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvMaxWorkers)

	t.Setenv(EnvMaxWorkers, "")
	var out bytes.Buffer
	_, err = ParseArgs([]string{"-no-such-flag"}, &out)
	assert.Error(t, err)
	_, err = ParseArgs([]string{"stray"}, &out)
	assert.Error(t, err, "positional argument")
}

func TestParseArgs_Usage(t *testing.T) {
	var out bytes.Buffer
	_, err := ParseArgs([]string{"-h"}, &out)
	require.ErrorIs(t, err, flag.ErrHelp)

	for _, want := range []string{"Workers:", "-max-workers int", "Payload:", "-plugin name", EnvMaxWorkers} {
		assert.Contains(t, out.String(), want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"zero workers", func(c *Config) { c.MaxWorkers = 0 }, "max_workers"},
		{"empty log root", func(c *Config) { c.LogRoot = "" }, "log_root"},
		{"negative timeout", func(c *Config) { c.ShutdownTimeout = -time.Second }, "shutdown_timeout"},
		{"negative tail", func(c *Config) { c.TailLines = -1 }, "tail_lines"},
		{"unknown plugin", func(c *Config) { c.Plugins = []string{"rspec"} }, "plugin"},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "localhost" }, "metrics_addr"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxWorkers = 0
	cfg.LogFormat = "xml"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_workers")
	assert.Contains(t, err.Error(), "log_format")
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "max_workers", Message: "must be at least 1"}
	assert.Equal(t, "max_workers: must be at least 1", err.Error())
}
