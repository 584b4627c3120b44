package store

import (
	"errors"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

var (
	// ErrUnknownHandle is returned when finalizing a handle that was never issued or is already finalized.
	ErrUnknownHandle = errors.New("unknown handle")
	// ErrHandleInFlight is returned when finalizing a handle whose completion has not fired yet.
	ErrHandleInFlight = errors.New("handle is still in flight")
)

type handleState[T any] struct {
	done atomic.Bool
	data T
}

// HandleTable is the handle bookkeeping shared by the IAsyncStore implementations.
// Each handle carries store specific data (a dragonboat request state, an rpc request id, ...).
//
// Thread-safety: all methods are safe for concurrent use.
type HandleTable[T any] struct {
	next    atomic.Uint64
	entries *xsync.MapOf[Handle, *handleState[T]]
}

func NewHandleTable[T any]() *HandleTable[T] {
	return &HandleTable[T]{
		entries: xsync.NewMapOf[Handle, *handleState[T]](),
	}
}

// Register issues a new in-flight handle.
func (t *HandleTable[T]) Register(data T) Handle {
	h := Handle(t.next.Add(1))
	t.entries.Store(h, &handleState[T]{data: data})
	return h
}

// Complete marks the handle as completed. It returns false if the handle is unknown or was already
// completed, so callers can use it to guard the single invocation of a completion callback.
func (t *HandleTable[T]) Complete(h Handle) bool {
	st, ok := t.entries.Load(h)
	if !ok {
		return false
	}
	return st.done.CompareAndSwap(false, true)
}

// Forget removes a handle that was registered but never handed out (e.g. submission failed afterward).
func (t *HandleTable[T]) Forget(h Handle) {
	t.entries.Delete(h)
}

// Finalize removes a completed handle and returns its data.
func (t *HandleTable[T]) Finalize(h Handle) (T, error) {
	var zero T
	st, ok := t.entries.Load(h)
	if !ok {
		return zero, ErrUnknownHandle
	}
	if !st.done.Load() {
		return zero, ErrHandleInFlight
	}
	if _, loaded := t.entries.LoadAndDelete(h); !loaded {
		return zero, ErrUnknownHandle
	}
	return st.data, nil
}

// Data returns the data of a registered handle.
func (t *HandleTable[T]) Data(h Handle) (T, bool) {
	st, ok := t.entries.Load(h)
	if !ok {
		var zero T
		return zero, false
	}
	return st.data, true
}

// InFlight returns the number of registered handles that are not finalized yet.
func (t *HandleTable[T]) InFlight() int {
	return t.entries.Size()
}
