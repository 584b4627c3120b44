package astore

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/xkv/lib/db"
	"github.com/ValentinKolb/xkv/lib/db/engines/maple"
	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal() store.IStore {
	return lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
}

// failingStore rejects every key listed in fail
type failingStore struct {
	store.IStore
	fail map[string]bool
}

func (f *failingStore) Set(key, value []byte) error {
	if f.fail[string(key)] {
		return store.NewError(store.RetCInternalError, "injected failure")
	}
	return f.IStore.Set(key, value)
}

func TestAsyncStorePutAndFinalize(t *testing.T) {
	backend := newLocal()
	s := NewAsyncStore(backend, Config{Workers: 4})
	defer s.Close()

	const n = 100
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = map[store.Handle]store.Result{}
	)
	wg.Add(n)
	handles := make([]store.Handle, n)
	for i := 0; i < n; i++ {
		h, err := s.Submit(store.OpPut, []byte(fmt.Sprintf("key-%d", i)), []byte("value"), func(h store.Handle, r store.Result) {
			mu.Lock()
			results[h] = r
			mu.Unlock()
			wg.Done()
		})
		require.NoError(t, err)
		handles[i] = h
	}
	wg.Wait()

	require.Len(t, results, n)
	for _, h := range handles {
		assert.True(t, results[h].Ok())
		require.NoError(t, s.Finalize(h))
		assert.ErrorIs(t, s.Finalize(h), store.ErrUnknownHandle)
	}

	for i := 0; i < n; i++ {
		val, ok, err := backend.Get([]byte(fmt.Sprintf("key-%d", i)))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("value"), val)
	}
}

func TestAsyncStoreFailureIsReported(t *testing.T) {
	s := NewAsyncStore(&failingStore{IStore: newLocal(), fail: map[string]bool{"bad": true}}, Config{Workers: 2})
	defer s.Close()

	done := make(chan store.Result, 1)
	h, err := s.Submit(store.OpPut, []byte("bad"), []byte("v"), func(_ store.Handle, r store.Result) {
		done <- r
	})
	require.NoError(t, err)

	select {
	case r := <-done:
		assert.False(t, r.Ok())
		assert.Equal(t, store.RetCInternalError, r.Code)
		var storeErr *store.Error
		assert.True(t, errors.As(r.Err, &storeErr))
	case <-time.After(2 * time.Second):
		t.Fatal("completion did not fire")
	}
	require.NoError(t, s.Finalize(h))
}

func TestAsyncStoreFinalizeInFlight(t *testing.T) {
	block := make(chan struct{})
	backend := &blockingStore{IStore: newLocal(), block: block}
	s := NewAsyncStore(backend, Config{Workers: 1})
	defer s.Close()

	done := make(chan struct{})
	h, err := s.Submit(store.OpPut, []byte("k"), []byte("v"), func(store.Handle, store.Result) { close(done) })
	require.NoError(t, err)

	assert.ErrorIs(t, s.Finalize(h), store.ErrHandleInFlight)
	close(block)
	<-done
	assert.NoError(t, s.Finalize(h))
}

type blockingStore struct {
	store.IStore
	block chan struct{}
}

func (b *blockingStore) Set(key, value []byte) error {
	<-b.block
	return b.IStore.Set(key, value)
}

func TestAsyncStoreCloseDrainsAndRejects(t *testing.T) {
	s := NewAsyncStore(newLocal(), Config{Workers: 2})

	var completed atomic.Int32
	for i := 0; i < 50; i++ {
		_, err := s.Submit(store.OpPut, []byte(fmt.Sprintf("k%d", i)), nil, func(store.Handle, store.Result) {
			completed.Add(1)
		})
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())
	assert.Equal(t, int32(50), completed.Load())

	_, err := s.Submit(store.OpPut, []byte("late"), nil, func(store.Handle, store.Result) {})
	var storeErr *store.Error
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, store.RetCUnavailable, storeErr.Code)
}

func TestAsyncStoreRejectsInvalidRequests(t *testing.T) {
	s := NewAsyncStore(newLocal(), Config{})
	defer s.Close()

	_, err := s.Submit(store.OpPut, []byte("k"), nil, nil)
	assert.Error(t, err)

	_, err = s.Submit(store.Opcode(42), []byte("k"), nil, func(store.Handle, store.Result) {})
	assert.Error(t, err)
}

func TestAsyncStoreDelete(t *testing.T) {
	backend := newLocal()
	require.NoError(t, backend.Set([]byte("k"), []byte("v")))

	s := NewAsyncStore(backend, Config{Workers: 1})
	defer s.Close()

	done := make(chan store.Result, 1)
	_, err := s.Submit(store.OpDelete, []byte("k"), nil, func(_ store.Handle, r store.Result) { done <- r })
	require.NoError(t, err)
	assert.True(t, (<-done).Ok())

	has, err := backend.Has([]byte("k"))
	require.NoError(t, err)
	assert.False(t, has)
}
