package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// stringList is a custom flag type for repeatable flags.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ", ")
}

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

// ParseFlags parses the process command line.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Stderr)
}

// ParseArgs parses args into a Config. TORK_MAX_WORKERS, when set, replaces
// the default worker limit; -max-workers still wins over it. Usage and
// parse errors are written to output.
func ParseArgs(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv(EnvMaxWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvMaxWorkers, err)
		}
		cfg.MaxWorkers = n
	}

	fs := flag.NewFlagSet("tork-master", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.Usage = func() {
		fmt.Fprintf(output, `tork-master - run test files in parallel, isolated worker processes

Usage:
  tork-master [flags]

Requests are read from stdin and replies written to stdout, one JSON array
per line:
  ["load", [paths...], [files...]]
  ["test", "test_file", [test_names...]]
  ["stop"]
  ["quit"]

Workers:
`)
		printFlagCategory(fs, output, []string{"max-workers", "log-root", "shutdown-timeout", "tail-lines"})

		fmt.Fprintf(output, "\nPayload:\n")
		printFlagCategory(fs, output, []string{"rules", "plugin"})

		fmt.Fprintf(output, "\nObservability:\n")
		printFlagCategory(fs, output, []string{"metrics", "metrics-file", "summary", "v", "log-format"})

		fmt.Fprintf(output, "\nDiagnostics:\n")
		printFlagCategory(fs, output, []string{"skip-preflight", "version"})

		fmt.Fprintf(output, `
Environment:
  %s  default for -max-workers

Examples:
  # Four workers, logs under ./log
  tork-master -max-workers 4

  # Cucumber features with a metrics endpoint
  tork-master -plugin cucumber -metrics 127.0.0.1:17092

`, EnvMaxWorkers)
	}

	var plugins stringList

	// Workers
	fs.IntVar(&cfg.MaxWorkers, "max-workers", cfg.MaxWorkers, "Maximum number of concurrent workers")
	fs.StringVar(&cfg.LogRoot, "log-root", cfg.LogRoot, "Directory receiving one log file per test file")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Wait for stopped workers before killing them")
	fs.IntVar(&cfg.TailLines, "tail-lines", cfg.TailLines, "Log lines of a failed worker to show at debug level")

	// Payload
	fs.StringVar(&cfg.RulesFile, "rules", cfg.RulesFile, "YAML file mapping test files to commands (default: built-in rules)")
	fs.Var(&plugins, "plugin", "Enable a test framework plug-in (can repeat)")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty disables)")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write a metrics snapshot to this file on exit")
	fs.BoolVar(&cfg.Summary, "summary", cfg.Summary, "Print an exit summary to stderr")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)

	// Diagnostics
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg.Plugins = plugins

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}
	if _, ok := f.Value.(*stringList); ok {
		return "name"
	}
	if _, err := strconv.Atoi(f.DefValue); err == nil {
		return "int"
	}
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}
	return "string"
}
