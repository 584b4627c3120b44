package batch

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/xkv/lib/store"
)

// fakeStore is an in memory store.IAsyncStore completing requests from a pool of goroutines.
// Requests are numbered in submission order, fail and reject select requests by that number.
type fakeStore struct {
	fail   map[int]bool  // complete with a failed result
	reject map[int]bool  // reject at submit time
	hold   chan struct{} // if set, completions wait until it is closed

	pool *Pool // if set, Finalize records the pool's release counter

	handles   *store.HandleTable[int]
	jobs      chan func()
	submitted atomic.Int64
	completed atomic.Int64
	wg        sync.WaitGroup

	mu              sync.Mutex
	keys            map[int][]byte
	finalized       map[int]bool
	releasesAtFinal map[int]uint64
	violations      []string
}

func newFakeStore(workers int) *fakeStore {
	f := &fakeStore{
		fail:            map[int]bool{},
		reject:          map[int]bool{},
		handles:         store.NewHandleTable[int](),
		jobs:            make(chan func(), 1024),
		keys:            map[int][]byte{},
		finalized:       map[int]bool{},
		releasesAtFinal: map[int]uint64{},
	}
	f.wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer f.wg.Done()
			for job := range f.jobs {
				job()
			}
		}()
	}
	return f
}

func (f *fakeStore) Submit(op store.Opcode, key, value []byte, onComplete store.CompletionFunc) (store.Handle, error) {
	idx := int(f.submitted.Add(1) - 1)
	if f.reject[idx] {
		return 0, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("request %d rejected", idx))
	}

	f.mu.Lock()
	f.keys[idx] = append([]byte(nil), key...)
	f.mu.Unlock()

	h := f.handles.Register(idx)
	f.jobs <- func() {
		if f.hold != nil {
			<-f.hold
		}
		// shuffle the interleaving of the workers
		for i := rand.Intn(3); i > 0; i-- {
			runtime.Gosched()
		}

		res := store.Result{Code: store.RetCSuccess}
		if f.fail[idx] {
			res = store.Result{Code: store.RetCInternalError, Err: fmt.Errorf("request %d failed", idx)}
		}
		if !f.handles.Complete(h) {
			f.violate("request %d completed twice", idx)
			return
		}
		f.completed.Add(1)
		onComplete(h, res)
	}
	return h, nil
}

func (f *fakeStore) Finalize(h store.Handle) error {
	idx, ok := f.handles.Data(h)
	_, err := f.handles.Finalize(h)
	if err != nil {
		f.violate("finalize of handle %d: %v", h, err)
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if ok {
		f.finalized[idx] = true
		if f.pool != nil {
			f.releasesAtFinal[idx] = f.pool.Stats().Releases
		}
	}
	return nil
}

func (f *fakeStore) Close() error {
	close(f.jobs)
	f.wg.Wait()
	return nil
}

func (f *fakeStore) violate(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.violations = append(f.violations, fmt.Sprintf(format, args...))
}

func (f *fakeStore) snapshot() (keys map[int][]byte, finalized map[int]bool, releases map[int]uint64, violations []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys, f.finalized, f.releasesAtFinal, f.violations
}
