package astore

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

// Config configures the asynchronous adapter
type Config struct {
	Workers int // goroutines executing requests against the wrapped store (0 = number of CPUs)
}

type request struct {
	handle     store.Handle
	op         store.Opcode
	key, value []byte
	onComplete store.CompletionFunc
}

type storeImpl struct {
	backend store.IStore
	handles *store.HandleTable[struct{}]
	queue   *submissionQueue[request]
	work    chan request
	workers sync.WaitGroup
	closed  atomic.Bool
	once    sync.Once
}

// NewAsyncStore turns any synchronous store into a store.IAsyncStore.
// Requests are appended to a lock free queue and executed by a pool of workers, so Submit never blocks
// on the wrapped store.
func NewAsyncStore(backend store.IStore, cfg Config) store.IAsyncStore {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	s := &storeImpl{
		backend: backend,
		handles: store.NewHandleTable[struct{}](),
		queue:   newSubmissionQueue[request](),
		work:    make(chan request),
	}

	// dispatcher: single consumer of the queue, fans the requests out to the workers
	go func() {
		defer close(s.work)
		for req := range s.queue.Recv() {
			s.work <- req
		}
	}()

	s.workers.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go s.worker()
	}
	return s
}

func (s *storeImpl) worker() {
	defer s.workers.Done()
	for req := range s.work {
		res := s.execute(req)
		if !s.handles.Complete(req.handle) {
			log.Errorf("request %d completed twice, dropping completion", req.handle)
			continue
		}
		req.onComplete(req.handle, res)
	}
}

// execute runs a single request against the wrapped store. A panic of the backend is turned into a
// failed result, otherwise the caller would wait for the completion forever.
func (s *storeImpl) execute(req request) (res store.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s request %d panicked: %v", req.op, req.handle, r)
			res = store.Result{Code: store.RetCInternalError, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	var err error
	switch req.op {
	case store.OpPut:
		err = s.backend.Set(req.key, req.value)
	case store.OpDelete:
		err = s.backend.Delete(req.key)
	default:
		err = store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown opcode %s", req.op))
	}
	return resultOf(err)
}

// resultOf maps an error of a synchronous store to a completion result
func resultOf(err error) store.Result {
	if err == nil {
		return store.Result{Code: store.RetCSuccess}
	}
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		return store.Result{Code: storeErr.Code, Err: err}
	}
	return store.Result{Code: store.RetCInternalError, Err: err}
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/async.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Submit(op store.Opcode, key, value []byte, onComplete store.CompletionFunc) (store.Handle, error) {
	if onComplete == nil {
		return 0, store.NewError(store.RetCInvalidOperation, "completion callback is nil")
	}
	if op != store.OpPut && op != store.OpDelete {
		return 0, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown opcode %s", op))
	}
	if s.closed.Load() {
		return 0, store.NewError(store.RetCUnavailable, "store is closed")
	}

	h := s.handles.Register(struct{}{})
	if !s.queue.Push(request{handle: h, op: op, key: key, value: value, onComplete: onComplete}) {
		s.handles.Forget(h)
		return 0, store.NewError(store.RetCUnavailable, "store is closed")
	}
	return h, nil
}

func (s *storeImpl) Finalize(h store.Handle) error {
	_, err := s.handles.Finalize(h)
	return err
}

// Close stops accepting requests and waits until all submitted requests completed.
func (s *storeImpl) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		s.queue.Close()
		s.workers.Wait()
		if n := s.handles.InFlight(); n > 0 {
			log.Debugf("closed async store with %d handles not finalized", n)
		}
	})
	return nil
}
