package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAllocateZeroedBuffers(t *testing.T) {
	p := NewPool(PoolConfig{})

	s, err := p.Allocate(265, 512)
	require.NoError(t, err)
	assert.Len(t, s.Key(), 265)
	assert.Len(t, s.Value(), 512)

	for i := range s.Value() {
		s.Value()[i] = '*'
	}
	p.Release(s)

	// recycled buffers are zeroed again
	for i := 0; i < 10; i++ {
		s, err = p.Allocate(16, 512)
		require.NoError(t, err)
		assert.Len(t, s.Key(), 16)
		assert.Equal(t, make([]byte, 512), s.Value())
		p.Release(s)
	}
}

func TestPoolRejectsNegativeSizes(t *testing.T) {
	p := NewPool(PoolConfig{})
	_, err := p.Allocate(-1, 10)
	assert.ErrorIs(t, err, ErrAllocationFailure)
	_, err = p.Allocate(10, -1)
	assert.ErrorIs(t, err, ErrAllocationFailure)
	assert.Equal(t, PoolStats{}, p.Stats())
}

func TestPoolBudget(t *testing.T) {
	p := NewPool(PoolConfig{MemoryLimitBytes: 1000})

	a, err := p.Allocate(100, 500)
	require.NoError(t, err)

	_, err = p.Allocate(100, 500)
	require.ErrorIs(t, err, ErrAllocationFailure)

	p.Release(a)
	b, err := p.Allocate(100, 500)
	require.NoError(t, err)
	p.Release(b)

	assert.Equal(t, PoolStats{Allocations: 2, Releases: 2}, p.Stats())
}

func TestPoolReleaseMovesOwnership(t *testing.T) {
	p := NewPool(PoolConfig{MemoryLimitBytes: 100})

	s, err := p.Allocate(10, 10)
	require.NoError(t, err)
	assert.Equal(t, PoolStats{Outstanding: 1, OutstandingBytes: 20, Allocations: 1}, p.Stats())

	p.Release(s)
	assert.Nil(t, s.Key())
	assert.Nil(t, s.Value())

	// the slot is empty now, releasing it again returns nothing to the pool or the budget
	p.Release(s)
	p.Release(nil)
	assert.Equal(t, PoolStats{Allocations: 1, Releases: 1}, p.Stats())

	// the budget was returned exactly once
	for i := 0; i < 5; i++ {
		_, err := p.Allocate(10, 10)
		require.NoError(t, err)
	}
	_, err = p.Allocate(10, 10)
	assert.ErrorIs(t, err, ErrAllocationFailure)
}
