package dstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4"
)

// asyncStoreImpl proposes commands without waiting for them. Every proposal gets its own goroutine
// waiting on the dragonboat request state, the request state is released when the handle is finalized.
type asyncStoreImpl struct {
	*storeImpl
	handles *store.HandleTable[*dragonboat.RequestState]
	waiters sync.WaitGroup

	mu     sync.RWMutex // orders waiters.Add against Close
	closed bool
}

// NewAsyncDistributedStore creates a store.IAsyncStore on top of a raft shard.
// A proposal that is not committed and applied within timeout completes with store.RetCTimeout.
func NewAsyncDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IAsyncStore {
	return &asyncStoreImpl{
		storeImpl: newStoreImpl(nh, shardID, timeout),
		handles:   store.NewHandleTable[*dragonboat.RequestState](),
	}
}

func (s *asyncStoreImpl) Submit(op store.Opcode, key, value []byte, onComplete store.CompletionFunc) (store.Handle, error) {
	if onComplete == nil {
		return 0, store.NewError(store.RetCInvalidOperation, "completion callback is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, store.NewError(store.RetCUnavailable, "store is closed")
	}

	var cmd internal.Command
	switch op {
	case store.OpPut:
		cmd = internal.Command{Type: internal.CommandTSet, Key: key, Value: value}
	case store.OpDelete:
		cmd = internal.Command{Type: internal.CommandTDelete, Key: key}
	default:
		return 0, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown opcode %d", op))
	}

	// the serialized command is a copy, key and value are not referenced after Propose returned
	rs, err := s.nh.Propose(s.cs, cmd.Serialize(), s.timeout)
	if err != nil {
		return 0, errorOf(err)
	}

	h := s.handles.Register(rs)
	s.waiters.Add(1)
	go func() {
		defer s.waiters.Done()
		res := resultOf(<-rs.ResultC())
		if s.handles.Complete(h) {
			onComplete(h, res)
		}
	}()
	return h, nil
}

// resultOf maps the outcome of a proposal to a store result
func resultOf(r dragonboat.RequestResult) store.Result {
	switch {
	case r.Completed():
		smRes := r.GetResult()
		if code := store.RetCode(smRes.Value); code != store.RetCSuccess {
			return store.Result{Code: code, Err: store.NewError(code, string(smRes.Data))}
		}
		return store.Result{Code: store.RetCSuccess}
	case r.Timeout():
		return store.Result{Code: store.RetCTimeout, Err: store.NewError(store.RetCTimeout, "proposal timed out")}
	case r.Rejected():
		return store.Result{Code: store.RetCInvalidOperation, Err: store.NewError(store.RetCInvalidOperation, "proposal rejected")}
	case r.Terminated():
		return store.Result{Code: store.RetCUnavailable, Err: store.NewError(store.RetCUnavailable, "shard terminated")}
	case r.Dropped():
		return store.Result{Code: store.RetCUnavailable, Err: store.NewError(store.RetCUnavailable, "proposal dropped")}
	default:
		return store.Result{Code: store.RetCInternalError, Err: store.NewError(store.RetCInternalError, "proposal aborted")}
	}
}

// Finalize releases the dragonboat request state of a completed proposal.
func (s *asyncStoreImpl) Finalize(h store.Handle) error {
	rs, err := s.handles.Finalize(h)
	if err != nil {
		return err
	}
	rs.Release()
	return nil
}

// Close rejects new submissions and waits until the completion of every accepted proposal fired.
// The node host is owned by the caller and stays open.
func (s *asyncStoreImpl) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.waiters.Wait()
	if n := s.handles.InFlight(); n > 0 {
		log.Warningf("closing async store with %d handles that were never finalized", n)
	}
	return nil
}
