// Package worker implements both ends of a worker process: the command the
// master starts, and the code the re-executed binary runs to load and run
// its test file.
package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/randomizedcoder/go-tork/internal/hooks"
)

// Environment variables understood by workers and their payloads.
const (
	// EnvJob carries the JSON envelope from master to worker.
	EnvJob = "TORK_WORKER_JOB"
	// EnvSlot exposes the worker slot to the test payload.
	EnvSlot = "TORK_WORKER_SLOT"
	// EnvLogFile exposes the worker log file to the test payload.
	EnvLogFile = "TORK_LOG_FILE"
	// EnvLoadPath lists the loaded search paths, colon separated.
	EnvLoadPath = "TORK_LOAD_PATH"
	// EnvRunID identifies the master run that spawned the worker.
	EnvRunID = "TORK_RUN_ID"
)

// Settings is the master state every worker inherits.
type Settings struct {
	Preloads []string `json:"preloads,omitempty"`
	LoadPath []string `json:"load_path,omitempty"`
	Plugins  []string `json:"plugins,omitempty"`
	Rules    string   `json:"rules,omitempty"`
	RunID    string   `json:"run_id,omitempty"`
}

// Envelope is everything a worker needs to run one job.
type Envelope struct {
	Job hooks.Job `json:"job"`
	Settings
}

// FromEnv decodes the envelope from the environment. ok is false when the
// process was not started as a worker. The variable is removed so that
// payloads running this same binary do not become workers themselves.
func FromEnv() (env *Envelope, ok bool, err error) {
	raw, ok := os.LookupEnv(EnvJob)
	if !ok {
		return nil, false, nil
	}
	os.Unsetenv(EnvJob)

	env = &Envelope{}
	if err := json.Unmarshal([]byte(raw), env); err != nil {
		return nil, true, fmt.Errorf("decode worker envelope: %w", err)
	}
	return env, true, nil
}

// Builder starts workers by re-executing the master binary with the job
// envelope in its environment.
type Builder struct {
	executable string
	settings   func() Settings
}

// NewBuilder creates a builder for executable. settings is consulted on
// every spawn so workers see the latest loaded files.
func NewBuilder(executable string, settings func() Settings) *Builder {
	return &Builder{executable: executable, settings: settings}
}

// Name returns "tork-worker".
func (b *Builder) Name() string {
	return "tork-worker"
}

// BuildCommand returns the worker command for job.
func (b *Builder) BuildCommand(job *hooks.Job) (*exec.Cmd, error) {
	env := Envelope{Job: *job}
	if b.settings != nil {
		env.Settings = b.settings()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode worker envelope: %w", err)
	}

	cmd := exec.Command(b.executable)
	cmd.Env = append(Environ(os.Environ(), &env), EnvJob+"="+string(data))
	return cmd, nil
}

// Environ returns base extended with the worker variables of env. Loaded
// search paths are placed in front of PATH.
func Environ(base []string, env *Envelope) []string {
	out := make([]string, 0, len(base)+4)
	path := ""
	for _, kv := range base {
		switch {
		case strings.HasPrefix(kv, "PATH="):
			path = strings.TrimPrefix(kv, "PATH=")
		case strings.HasPrefix(kv, EnvJob+"="):
		default:
			out = append(out, kv)
		}
	}

	if len(env.LoadPath) > 0 {
		loadPath := strings.Join(env.LoadPath, string(filepath.ListSeparator))
		out = append(out, EnvLoadPath+"="+loadPath)
		if path != "" {
			path = loadPath + string(filepath.ListSeparator) + path
		} else {
			path = loadPath
		}
	}
	if path != "" {
		out = append(out, "PATH="+path)
	}

	out = append(out,
		EnvSlot+"="+strconv.Itoa(env.Job.Slot),
		EnvLogFile+"="+env.Job.LogFile,
	)
	if env.RunID != "" {
		out = append(out, EnvRunID+"="+env.RunID)
	}
	return out
}
