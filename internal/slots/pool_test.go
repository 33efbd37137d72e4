package slots

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_AcquireInConstructionOrder(t *testing.T) {
	p := NewPool(3)
	require.Equal(t, 3, p.Size())
	require.Equal(t, 3, p.Available())

	for want := 0; want < 3; want++ {
		got, err := p.Acquire()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := p.Acquire()
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 0, p.Available())
}

func TestPool_ReleaseRequeuesAtTail(t *testing.T) {
	p := NewPool(2)

	first, err := p.Acquire()
	require.NoError(t, err)
	require.NoError(t, p.Release(first))

	// slot 1 was queued before the released slot 0
	next, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	next, err = p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, first, next)
}

func TestPool_ReleaseErrors(t *testing.T) {
	tests := []struct {
		name    string
		slot    int
		wantErr error
	}{
		{name: "never acquired", slot: 1, wantErr: ErrDoubleRelease},
		{name: "negative", slot: -1, wantErr: ErrUnknownSlot},
		{name: "out of range", slot: 2, wantErr: ErrUnknownSlot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPool(2)
			require.ErrorIs(t, p.Release(tt.slot), tt.wantErr)
			assert.Equal(t, 2, p.Available())
		})
	}
}

func TestPool_DoubleReleaseAfterAcquire(t *testing.T) {
	p := NewPool(1)
	slot, err := p.Acquire()
	require.NoError(t, err)

	require.NoError(t, p.Release(slot))
	require.ErrorIs(t, p.Release(slot), ErrDoubleRelease)
	assert.Equal(t, 1, p.Available())
}

func TestPool_ZeroSize(t *testing.T) {
	p := NewPool(0)
	_, err := p.Acquire()
	require.ErrorIs(t, err, ErrExhausted)
}

func TestPool_ConcurrentNeverSharesSlot(t *testing.T) {
	const size = 8
	p := NewPool(size)

	var (
		mu   sync.Mutex
		held = make(map[int]bool)
		wg   sync.WaitGroup
	)

	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				slot, err := p.Acquire()
				if err != nil {
					continue
				}
				mu.Lock()
				if held[slot] {
					mu.Unlock()
					t.Errorf("slot %d handed out twice", slot)
					return
				}
				held[slot] = true
				mu.Unlock()

				mu.Lock()
				delete(held, slot)
				mu.Unlock()
				if err := p.Release(slot); err != nil {
					t.Errorf("release %d: %v", slot, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, size, p.Available())
}
