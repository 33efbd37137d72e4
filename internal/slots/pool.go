// Package slots provides the fixed set of worker slot numbers that bounds
// how many workers may run at once.
package slots

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrExhausted is returned by Acquire when every slot is held.
	ErrExhausted = errors.New("no worker slot available")

	// ErrDoubleRelease is returned when a slot is released while it is
	// already available. It means the pool's bookkeeping is corrupt.
	ErrDoubleRelease = errors.New("worker slot released twice")

	// ErrUnknownSlot is returned when a slot outside [0, size) is released.
	ErrUnknownSlot = errors.New("unknown worker slot")
)

// Pool is a FIFO queue of available worker slots in [0, size).
// A slot is either queued here or held by exactly one live worker.
type Pool struct {
	mu        sync.Mutex
	size      int
	queue     []int
	available map[int]bool
}

// NewPool creates a pool holding every slot in [0, size).
func NewPool(size int) *Pool {
	if size < 0 {
		size = 0
	}
	p := &Pool{
		size:      size,
		queue:     make([]int, 0, size),
		available: make(map[int]bool, size),
	}
	for i := 0; i < size; i++ {
		p.queue = append(p.queue, i)
		p.available[i] = true
	}
	return p
}

// Acquire removes and returns the oldest available slot.
func (p *Pool) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return -1, ErrExhausted
	}
	slot := p.queue[0]
	p.queue = p.queue[1:]
	delete(p.available, slot)
	return slot, nil
}

// Release returns a held slot to the tail of the queue.
func (p *Pool) Release(slot int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slot < 0 || slot >= p.size {
		return fmt.Errorf("%w: %d", ErrUnknownSlot, slot)
	}
	if p.available[slot] {
		return fmt.Errorf("%w: %d", ErrDoubleRelease, slot)
	}
	p.queue = append(p.queue, slot)
	p.available[slot] = true
	return nil
}

// Available returns the number of slots that can be acquired right now.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Size returns the total number of slots.
func (p *Pool) Size() int {
	return p.size
}
