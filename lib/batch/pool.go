package batch

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/xkv/lib/store"
	"golang.org/x/sync/semaphore"
)

// noCopy may be embedded into structs which must not be copied after first use.
// go vet's copylocks check reports copies.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Slot owns the key and value buffer of one operation of a batch.
// A slot is created by Pool.Allocate and handed back with Pool.Release, which moves the buffers out.
// Slots are only passed by pointer.
type Slot struct {
	_ noCopy

	key   []byte
	value []byte
	cost  int64

	handle    store.Handle
	submitted bool
}

// Key returns the key buffer, nil after release
func (s *Slot) Key() []byte { return s.key }

// Value returns the value buffer, nil after release
func (s *Slot) Value() []byte { return s.value }

// PoolConfig configures the buffer pool
type PoolConfig struct {
	// MemoryLimitBytes bounds the bytes held by outstanding slots (0 = unlimited)
	MemoryLimitBytes int64
}

// PoolStats is a point in time view of the pool counters.
// After all batches finished, Outstanding and OutstandingBytes are zero and Allocations equals Releases.
type PoolStats struct {
	Outstanding      int64
	OutstandingBytes int64
	Allocations      uint64
	Releases         uint64
}

// Pool hands out zeroed buffers for batch slots and recycles them.
//
// Thread-safety: all methods are safe for concurrent use.
type Pool struct {
	budget *semaphore.Weighted // nil if unlimited
	cache  sync.Pool           // *[]byte

	outstanding      atomic.Int64
	outstandingBytes atomic.Int64
	allocations      atomic.Uint64
	releases         atomic.Uint64
}

func NewPool(cfg PoolConfig) *Pool {
	p := &Pool{}
	if cfg.MemoryLimitBytes > 0 {
		p.budget = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	return p
}

// Allocate returns a slot with zeroed buffers of exactly keyLen and valueLen bytes.
// It never blocks: if the memory budget is exhausted ErrAllocationFailure is returned.
func (p *Pool) Allocate(keyLen, valueLen int) (*Slot, error) {
	if keyLen < 0 || valueLen < 0 {
		return nil, fmt.Errorf("%w: negative size (key %d, value %d)", ErrAllocationFailure, keyLen, valueLen)
	}

	cost := int64(keyLen) + int64(valueLen)
	if p.budget != nil && cost > 0 && !p.budget.TryAcquire(cost) {
		return nil, fmt.Errorf("%w: memory budget exhausted (%d bytes requested, %d outstanding)",
			ErrAllocationFailure, cost, p.outstandingBytes.Load())
	}

	s := &Slot{
		key:   p.get(keyLen),
		value: p.get(valueLen),
		cost:  cost,
	}

	p.outstanding.Add(1)
	p.outstandingBytes.Add(cost)
	p.allocations.Add(1)
	return s, nil
}

// Release moves the buffers out of the slot and returns them to the pool.
// Go can't consume the slot itself, so a second release is caught at run time: the slot is
// emptied here and releasing an empty slot is a no-op. A slot must not be released concurrently.
func (p *Pool) Release(s *Slot) {
	if s == nil || (s.key == nil && s.value == nil && s.cost == 0) {
		return
	}

	key, value, cost := s.key, s.value, s.cost
	s.key, s.value, s.cost = nil, nil, 0

	p.put(key)
	p.put(value)
	if p.budget != nil && cost > 0 {
		p.budget.Release(cost)
	}

	p.outstanding.Add(-1)
	p.outstandingBytes.Add(-cost)
	p.releases.Add(1)
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Outstanding:      p.outstanding.Load(),
		OutstandingBytes: p.outstandingBytes.Load(),
		Allocations:      p.allocations.Load(),
		Releases:         p.releases.Load(),
	}
}

// get returns a zeroed buffer of length n
func (p *Pool) get(n int) []byte {
	if bp, ok := p.cache.Get().(*[]byte); ok {
		if cap(*bp) >= n {
			buf := (*bp)[:n]
			clear(buf)
			return buf
		}
		p.cache.Put(bp)
	}
	return make([]byte, n)
}

func (p *Pool) put(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	buf = buf[:0]
	p.cache.Put(&buf)
}
