package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RunsInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	var calls []string

	r.BeforeSpawn(func(job *Job) { calls = append(calls, "before-1") })
	r.BeforeSpawn(func(job *Job) { calls = append(calls, "before-2") })
	r.AfterSpawn(func(job *Job) { calls = append(calls, "after-1") })

	job := &Job{Slot: 0, LogFile: "log/a.log", TestFile: "a"}
	r.RunBeforeSpawn(job)
	r.RunAfterSpawn(job)

	assert.Equal(t, []string{"before-1", "before-2", "after-1"}, calls)

	before, after := r.Len()
	assert.Equal(t, 2, before)
	assert.Equal(t, 1, after)
}

func TestRegistry_LaterHooksSeeMutations(t *testing.T) {
	r := NewRegistry()
	r.BeforeSpawn(func(job *Job) {
		job.TestFile = "/tmp/placeholder"
		job.TestNames = append(job.TestNames, "TestAdded")
	})

	var seenFile string
	var seenNames []string
	r.BeforeSpawn(func(job *Job) {
		seenFile = job.TestFile
		seenNames = job.TestNames
	})

	job := &Job{TestFile: "features/a.feature"}
	r.RunBeforeSpawn(job)

	assert.Equal(t, "/tmp/placeholder", seenFile)
	assert.Equal(t, []string{"TestAdded"}, seenNames)
	assert.Equal(t, "/tmp/placeholder", job.TestFile)
}

func TestRegistry_EmptyIsNoop(t *testing.T) {
	r := NewRegistry()
	job := &Job{TestFile: "a"}
	r.RunBeforeSpawn(job)
	r.RunAfterSpawn(job)
	assert.Equal(t, "a", job.TestFile)
}

func TestJob_RunAtExitLastRegisteredFirst(t *testing.T) {
	job := &Job{}
	var order []int
	job.AtExit(func(ctx context.Context) error { order = append(order, 1); return nil })
	job.AtExit(func(ctx context.Context) error { order = append(order, 2); return nil })

	require.NoError(t, job.RunAtExit(context.Background()))
	assert.Equal(t, []int{2, 1}, order)
}

func TestJob_RunAtExitStopsOnError(t *testing.T) {
	job := &Job{}
	boom := errors.New("boom")
	ran := false
	job.AtExit(func(ctx context.Context) error { ran = true; return nil })
	job.AtExit(func(ctx context.Context) error { return boom })

	require.ErrorIs(t, job.RunAtExit(context.Background()), boom)
	assert.False(t, ran)
}

func TestJob_CleanupRunsOnceLastRegisteredFirst(t *testing.T) {
	job := &Job{}
	var order []int
	job.OnCleanup(func() { order = append(order, 1) })
	job.OnCleanup(func() { order = append(order, 2) })

	job.Cleanup()
	job.Cleanup()
	assert.Equal(t, []int{2, 1}, order)
}
