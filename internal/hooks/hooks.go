// Package hooks lets plug-ins customise how a worker is prepared and how it
// runs its test file.
//
// Two ordered hook lists exist. Before-spawn hooks run in the master right
// before the worker process is created; after-spawn hooks run inside the
// worker once it is isolated and before its test payload is loaded. Every
// hook receives the same *Job and may rewrite TestFile or TestNames for the
// hooks that follow it and for the payload itself.
package hooks

import (
	"context"
	"sync"
)

// Job describes one test run as seen by hooks.
type Job struct {
	Slot      int      `json:"slot"`
	LogFile   string   `json:"log_file"`
	TestFile  string   `json:"test_file"`
	TestNames []string `json:"test_names"`

	atExit  []func(ctx context.Context) error
	cleanup []func()
}

// AtExit registers fn to run in the worker after the test payload has
// finished successfully. Steps run last-registered first, and the first
// failing step ends the sequence. Registrations made in the master are not
// carried into the worker process.
func (j *Job) AtExit(fn func(ctx context.Context) error) {
	j.atExit = append(j.atExit, fn)
}

// RunAtExit runs the registered at-exit steps.
func (j *Job) RunAtExit(ctx context.Context) error {
	for i := len(j.atExit) - 1; i >= 0; i-- {
		if err := j.atExit[i](ctx); err != nil {
			return err
		}
	}
	return nil
}

// OnCleanup registers fn to run when the worker finishes, whatever the
// outcome of its payload. Steps run last-registered first.
func (j *Job) OnCleanup(fn func()) {
	j.cleanup = append(j.cleanup, fn)
}

// Cleanup runs the registered cleanup steps once.
func (j *Job) Cleanup() {
	steps := j.cleanup
	j.cleanup = nil
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
}

// Hook is a callback invoked at a fixed point of the spawn lifecycle.
type Hook func(job *Job)

// Registry holds the before-spawn and after-spawn hook lists.
type Registry struct {
	mu     sync.RWMutex
	before []Hook
	after  []Hook
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// BeforeSpawn appends h to the hooks run by the master before a worker is
// created.
func (r *Registry) BeforeSpawn(h Hook) {
	r.mu.Lock()
	r.before = append(r.before, h)
	r.mu.Unlock()
}

// AfterSpawn appends h to the hooks run inside the worker before its
// payload.
func (r *Registry) AfterSpawn(h Hook) {
	r.mu.Lock()
	r.after = append(r.after, h)
	r.mu.Unlock()
}

// RunBeforeSpawn invokes the before-spawn hooks in registration order.
func (r *Registry) RunBeforeSpawn(job *Job) {
	run(r.snapshot(&r.before), job)
}

// RunAfterSpawn invokes the after-spawn hooks in registration order.
func (r *Registry) RunAfterSpawn(job *Job) {
	run(r.snapshot(&r.after), job)
}

// Len returns the number of before-spawn and after-spawn hooks.
func (r *Registry) Len() (before, after int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.before), len(r.after)
}

func (r *Registry) snapshot(list *[]Hook) []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Hook, len(*list))
	copy(out, *list)
	return out
}

func run(hooks []Hook, job *Job) {
	for _, h := range hooks {
		h(job)
	}
}
