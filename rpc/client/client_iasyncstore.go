package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/rpc/common"
	"github.com/ValentinKolb/xkv/rpc/serializer"
	"github.com/ValentinKolb/xkv/rpc/transport"
)

// NewAsyncRPCStore creates a store.IAsyncStore that multiplexes its requests over the transport.
// Completions run on the goroutines of the transport. The transport is closed with the store.
func NewAsyncRPCStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (store.IAsyncStore, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &rpcAsyncStore{
		rpcClientAdapter: rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
		handles: store.NewHandleTable[common.MessageType](),
	}, nil
}

type rpcAsyncStore struct {
	rpcClientAdapter
	handles *store.HandleTable[common.MessageType]

	// mu orders Submit against Close, so no request is added to inflight while Close waits
	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in async.go)
// --------------------------------------------------------------------------

func (s *rpcAsyncStore) Submit(op store.Opcode, key, value []byte, onComplete store.CompletionFunc) (store.Handle, error) {
	var req *common.Message
	switch op {
	case store.OpPut:
		req = common.NewSetRequest(key, value)
	case store.OpDelete:
		req = common.NewDeleteRequest(key)
	default:
		return 0, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unsupported opcode %s", op))
	}

	// the serialized request is a copy, key and value are not retained
	reqBytes, err := s.serializer.Serialize(*req)
	if err != nil {
		return 0, store.NewError(store.RetCInternalError, fmt.Sprintf("failed to serialize %s request: %v", req.MsgType, err))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, store.NewError(store.RetCUnavailable, "store is closed")
	}

	h := s.handles.Register(req.MsgType)
	s.inflight.Add(1)
	err = s.transport.SendAsync(s.shardId, reqBytes, func(resp []byte, err error) {
		defer s.inflight.Done()
		res := s.resultOf(req.MsgType, resp, err)
		if s.handles.Complete(h) {
			onComplete(h, res)
		}
	})
	if err != nil {
		s.inflight.Done()
		s.handles.Forget(h)
		return 0, transportError(err)
	}
	return h, nil
}

func (s *rpcAsyncStore) Finalize(h store.Handle) error {
	_, err := s.handles.Finalize(h)
	return err
}

func (s *rpcAsyncStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// every pending request completes by response, timeout or connection loss
	s.inflight.Wait()
	if n := s.handles.InFlight(); n > 0 {
		Logger.Warningf("closing async rpc store with %d handles not finalized", n)
	}
	return s.transport.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// resultOf converts the outcome of a request into a completion result
func (s *rpcAsyncStore) resultOf(expected common.MessageType, resp []byte, err error) store.Result {
	if err != nil {
		err = transportError(err)
	} else {
		_, err = decodeResponse(expected, resp, s.serializer)
	}
	if err == nil {
		return store.Result{Code: store.RetCSuccess}
	}

	var sErr *store.Error
	if errors.As(err, &sErr) {
		return store.Result{Code: sErr.Code, Err: err}
	}
	return store.Result{Code: store.RetCInternalError, Err: err}
}
