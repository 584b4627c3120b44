package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/xkv/lib/db"
	"github.com/ValentinKolb/xkv/lib/db/engines/spruce"
	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/lib/store/astore"
	"github.com/ValentinKolb/xkv/lib/store/lstore"
	"github.com/ValentinKolb/xkv/lib/xattr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = 123456

var testValue = bytes.Repeat([]byte("*"), 512)

func newTestCoordinator(fs *fakeStore, poolCfg PoolConfig, cfg Config) (*Coordinator, *Pool) {
	pool := NewPool(poolCfg)
	fs.pool = pool
	if cfg.Class == 0 {
		cfg.Class = xattr.ClassXattr
	}
	return NewCoordinator(NewDispatcher(fs, DispatcherConfig{}), pool, cfg), pool
}

func requireBalanced(t *testing.T, pool *Pool) {
	t.Helper()
	stats := pool.Stats()
	require.Zero(t, stats.Outstanding, "outstanding slots")
	require.Zero(t, stats.OutstandingBytes, "outstanding bytes")
	require.Equal(t, stats.Allocations, stats.Releases)
}

func TestRunBatchObservesEveryCompletion(t *testing.T) {
	for _, n := range []int{1, 2, 7, 100, 1000} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			fs := newFakeStore(8)
			defer fs.Close()
			c, pool := newTestCoordinator(fs, PoolConfig{}, Config{})

			res, err := c.RunBatch(context.Background(), testOwner, "1name_of_key", testValue, n)
			require.NoError(t, err)
			assert.Equal(t, StatusSucceeded, res.Status)
			assert.Equal(t, n, res.Size)
			assert.Empty(t, res.Failed)
			assert.NotZero(t, res.Elapsed)

			// RunBatch returned after exactly n completions
			assert.Equal(t, int64(n), fs.completed.Load())
			requireBalanced(t, pool)

			_, finalized, _, violations := fs.snapshot()
			assert.Empty(t, violations)
			assert.Len(t, finalized, n)
		})
	}
}

func TestRunBatchFinalizesBeforeRelease(t *testing.T) {
	fs := newFakeStore(8)
	defer fs.Close()
	c, pool := newTestCoordinator(fs, PoolConfig{}, Config{})

	const n = 50
	_, err := c.RunBatch(context.Background(), testOwner, "order", testValue, n)
	require.NoError(t, err)
	requireBalanced(t, pool)

	// slots are cleaned up in index order: when slot i is finalized exactly i slots were released,
	// so no slot lost its buffers before its handle was finalized
	_, finalized, releases, violations := fs.snapshot()
	require.Empty(t, violations, "every finalize happened after the completion")
	require.Len(t, finalized, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, uint64(i), releases[i], "releases before finalizing slot %d", i)
	}
}

func TestRunBatchKeys(t *testing.T) {
	run := func() map[int][]byte {
		fs := newFakeStore(4)
		defer fs.Close()
		c, _ := newTestCoordinator(fs, PoolConfig{}, Config{})
		_, err := c.RunBatch(context.Background(), testOwner, "1name_of_key", testValue, 100)
		require.NoError(t, err)
		keys, _, _, _ := fs.snapshot()
		return keys
	}

	first, second := run(), run()
	require.Len(t, first, 100)

	seen := map[string]int{}
	for i, key := range first {
		// deterministic: the same batch produces byte identical keys
		assert.Equal(t, key, second[i])

		// distinct: the index is part of every name
		if prev, dup := seen[string(key)]; dup {
			t.Errorf("keys of slot %d and %d collide", prev, i)
		}
		seen[string(key)] = i

		k, err := xattr.Decode(key)
		require.NoError(t, err)
		assert.Equal(t, uint64(testOwner), k.Owner())
		assert.Equal(t, xattr.ClassXattr, k.Class())
		assert.Equal(t, fmt.Sprintf("1name_of_key_%d", i), k.Name())
	}
}

func TestRunBatchPartialFailure(t *testing.T) {
	fs := newFakeStore(8)
	defer fs.Close()
	fs.fail[3] = true
	fs.fail[7] = true
	c, pool := newTestCoordinator(fs, PoolConfig{}, Config{})

	res, err := c.RunBatch(context.Background(), testOwner, "partial", testValue, 10)
	require.Error(t, err)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, []int{3, 7}, res.FailedIndices())
	assert.ErrorIs(t, err, ErrOperationFailed)
	for _, f := range res.Failed {
		assert.ErrorIs(t, f, ErrOperationFailed)
	}

	// all 10 slots were finalized and released nonetheless
	_, finalized, _, violations := fs.snapshot()
	assert.Empty(t, violations)
	assert.Len(t, finalized, 10)
	requireBalanced(t, pool)
}

func TestRunBatchSubmissionFailure(t *testing.T) {
	fs := newFakeStore(8)
	defer fs.Close()
	fs.reject[2] = true
	fs.fail[5] = true
	c, pool := newTestCoordinator(fs, PoolConfig{}, Config{})

	res, err := c.RunBatch(context.Background(), testOwner, "reject", testValue, 8)
	require.Error(t, err)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, []int{2, 5}, res.FailedIndices())
	assert.ErrorIs(t, res.Failed[0], ErrSubmissionFailure)
	assert.ErrorIs(t, res.Failed[1], ErrOperationFailed)

	// the rejected operation has no handle to finalize
	_, finalized, _, violations := fs.snapshot()
	assert.Empty(t, violations)
	assert.Len(t, finalized, 7)
	assert.False(t, finalized[2])
	requireBalanced(t, pool)
}

func TestRunBatchNameBoundary(t *testing.T) {
	// KeyName appends "_0"
	maxPrefix := strings.Repeat("n", xattr.NameCapacity-2)

	fs := newFakeStore(2)
	defer fs.Close()
	c, pool := newTestCoordinator(fs, PoolConfig{}, Config{})

	res, err := c.RunBatch(context.Background(), testOwner, maxPrefix, testValue, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)

	res, err = c.RunBatch(context.Background(), testOwner, maxPrefix+"n", testValue, 1)
	require.ErrorIs(t, err, xattr.ErrInvalidName)
	assert.Equal(t, StatusSetupFailed, res.Status)
	assert.Equal(t, []int{0}, res.FailedIndices())

	// only the first batch reached the store
	assert.Equal(t, int64(1), fs.submitted.Load())
	requireBalanced(t, pool)
}

func TestRunBatchSetupFailureSubmitsNothing(t *testing.T) {
	fs := newFakeStore(2)
	defer fs.Close()

	// "x_9" fills the name exactly, "x_10" is one byte too long
	prefix := strings.Repeat("x", xattr.NameCapacity-2)
	c, pool := newTestCoordinator(fs, PoolConfig{}, Config{})

	res, err := c.RunBatch(context.Background(), testOwner, prefix, testValue, 20)
	require.ErrorIs(t, err, xattr.ErrInvalidName)
	assert.Equal(t, StatusSetupFailed, res.Status)
	assert.Equal(t, []int{10}, res.FailedIndices())
	assert.Zero(t, fs.submitted.Load())
	requireBalanced(t, pool)
}

func TestRunBatchAllocationFailure(t *testing.T) {
	fs := newFakeStore(2)
	defer fs.Close()

	// room for 3 slots only
	slotSize := int64(xattr.EncodedSize + len(testValue))
	c, pool := newTestCoordinator(fs, PoolConfig{MemoryLimitBytes: 3 * slotSize}, Config{})

	res, err := c.RunBatch(context.Background(), testOwner, "alloc", testValue, 4)
	require.ErrorIs(t, err, ErrAllocationFailure)
	assert.Equal(t, StatusSetupFailed, res.Status)
	assert.Equal(t, []int{3}, res.FailedIndices())
	assert.Zero(t, fs.submitted.Load())
	requireBalanced(t, pool)

	// the budget is free again
	res, err = c.RunBatch(context.Background(), testOwner, "alloc", testValue, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
}

func TestRunBatchInvalidSize(t *testing.T) {
	fs := newFakeStore(1)
	defer fs.Close()
	c, _ := newTestCoordinator(fs, PoolConfig{}, Config{})

	for _, n := range []int{0, -1} {
		res, err := c.RunBatch(context.Background(), testOwner, "size", testValue, n)
		assert.ErrorIs(t, err, ErrInvalidBatchSize)
		assert.Equal(t, StatusSetupFailed, res.Status)
	}
}

func TestRunBatchTimeoutCleansUpLater(t *testing.T) {
	fs := newFakeStore(8)
	defer fs.Close()
	fs.hold = make(chan struct{})
	c, pool := newTestCoordinator(fs, PoolConfig{}, Config{Timeout: 20 * time.Millisecond})

	const n = 16
	res, err := c.RunBatch(context.Background(), testOwner, "slow", testValue, n)
	require.ErrorIs(t, err, ErrLostCompletion)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusTimedOut, res.Status)

	// the store may still read the buffers, nothing was released or finalized
	assert.Equal(t, int64(n), pool.Stats().Outstanding)
	_, finalized, _, _ := fs.snapshot()
	assert.Empty(t, finalized)

	close(fs.hold)
	require.Eventually(t, func() bool {
		return pool.Stats().Outstanding == 0
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.WaitCleanup(ctx))

	_, finalized, _, violations := fs.snapshot()
	assert.Empty(t, violations)
	assert.Len(t, finalized, n)
	requireBalanced(t, pool)
}

func TestRunBatchTimeoutKeepsFailures(t *testing.T) {
	fs := newFakeStore(4)
	defer fs.Close()
	fs.reject[1] = true
	fs.hold = make(chan struct{})
	c, pool := newTestCoordinator(fs, PoolConfig{}, Config{Timeout: 20 * time.Millisecond})

	res, err := c.RunBatch(context.Background(), testOwner, "held", testValue, 6)
	require.ErrorIs(t, err, ErrLostCompletion)
	assert.Equal(t, StatusTimedOut, res.Status)

	// the rejection happened before the wait gave up and is reported with the timeout
	assert.Equal(t, []int{1}, res.FailedIndices())
	assert.ErrorIs(t, res.Failed[0], ErrSubmissionFailure)
	assert.ErrorIs(t, err, ErrSubmissionFailure)

	close(fs.hold)
	require.NoError(t, c.WaitCleanup(context.Background()))
	requireBalanced(t, pool)
}

func TestRunBatchErrorMatchesStatus(t *testing.T) {
	fs := newFakeStore(4)
	defer fs.Close()
	fs.fail[0] = true
	c, _ := newTestCoordinator(fs, PoolConfig{}, Config{})

	res, err := c.RunBatch(context.Background(), testOwner, "status", testValue, 3)
	require.Error(t, err)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Contains(t, err.Error(), "partial")
	assert.Equal(t, res.Err().Error(), err.Error())

	res, err = c.RunBatch(context.Background(), testOwner, strings.Repeat("s", xattr.NameCapacity), testValue, 1)
	require.Error(t, err)
	assert.Equal(t, StatusSetupFailed, res.Status)
	assert.Contains(t, err.Error(), "setup_failed")
}

func TestRunBatchCanceledContext(t *testing.T) {
	fs := newFakeStore(2)
	defer fs.Close()
	fs.hold = make(chan struct{})
	c, pool := newTestCoordinator(fs, PoolConfig{}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res, err := c.RunBatch(ctx, testOwner, "cancel", testValue, 4)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusTimedOut, res.Status)

	close(fs.hold)
	require.NoError(t, c.WaitCleanup(context.Background()))
	requireBalanced(t, pool)
}

// 100 operations completed by 8 goroutines in arbitrary interleaving, repeated 1000 times
func TestRunBatchConcurrentCompletions(t *testing.T) {
	iterations := 1000
	if testing.Short() {
		iterations = 100
	}

	fs := newFakeStore(8)
	defer fs.Close()
	c, pool := newTestCoordinator(fs, PoolConfig{}, Config{})

	for i := 0; i < iterations; i++ {
		before := fs.completed.Load()
		res, err := c.RunBatch(context.Background(), uint64(i), "stress", testValue, 100)
		require.NoError(t, err)
		require.Equal(t, StatusSucceeded, res.Status)
		require.Equal(t, int64(100), fs.completed.Load()-before, "iteration %d", i)
	}

	_, _, _, violations := fs.snapshot()
	require.Empty(t, violations)
	requireBalanced(t, pool)
}

func TestRunBatchConcurrentBatches(t *testing.T) {
	fs := newFakeStore(8)
	defer fs.Close()
	c, pool := newTestCoordinator(fs, PoolConfig{}, Config{})

	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		go func(owner uint64) {
			_, err := c.RunBatch(context.Background(), owner, "parallel", testValue, 100)
			errs <- err
		}(uint64(g))
	}
	for g := 0; g < 8; g++ {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, int64(800), fs.completed.Load())
	requireBalanced(t, pool)
}

func TestRunBatchAgainstLocalStore(t *testing.T) {
	backend := lstore.NewLocalStore(func() db.KVDB { return spruce.NewSpruceDB() })
	async := astore.NewAsyncStore(backend, astore.Config{Workers: 8})
	defer async.Close()

	pool := NewPool(PoolConfig{})
	c := NewCoordinator(NewDispatcher(async, DispatcherConfig{}), pool, Config{Class: xattr.ClassXattr})

	res, err := c.RunBatch(context.Background(), testOwner, "1name_of_key", testValue, 100)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	requireBalanced(t, pool)

	pairs, err := backend.Scan(xattr.Prefix(testOwner, xattr.ClassXattr))
	require.NoError(t, err)
	require.Len(t, pairs, 100)
	for _, p := range pairs {
		assert.Equal(t, testValue, p.Value)
	}

	// a second batch overwrites the values
	newValue := []byte("overwritten")
	_, err = c.RunBatch(context.Background(), testOwner, "1name_of_key", newValue, 100)
	require.NoError(t, err)

	k, _ := xattr.NewKey(testOwner, xattr.ClassXattr, "1name_of_key_42")
	val, ok, err := backend.Get(k.Encode())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, newValue, val)
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, Result{Status: StatusSucceeded}.Err())

	cause := errors.New("boom")
	err := Result{Status: StatusPartial, Failed: []ItemError{{Index: 1, Err: cause}}}.Err()
	assert.ErrorIs(t, err, cause)

	var item ItemError
	require.ErrorAs(t, err, &item)
	assert.Equal(t, 1, item.Index)
}

// store.Error is reported even when a store sets only the code of a failed result
func TestRunBatchFailureWithoutError(t *testing.T) {
	s := &codeOnlyStore{fakeStore: newFakeStore(1)}
	defer s.Close()
	pool := NewPool(PoolConfig{})
	c := NewCoordinator(NewDispatcher(s, DispatcherConfig{}), pool, Config{Class: xattr.ClassXattr})

	res, err := c.RunBatch(context.Background(), testOwner, "code", testValue, 1)
	require.ErrorIs(t, err, ErrOperationFailed)
	var storeErr *store.Error
	require.ErrorAs(t, res.Failed[0], &storeErr)
	assert.Equal(t, store.RetCTimeout, storeErr.Code)
	requireBalanced(t, pool)
}

type codeOnlyStore struct{ *fakeStore }

func (s *codeOnlyStore) Submit(op store.Opcode, key, value []byte, onComplete store.CompletionFunc) (store.Handle, error) {
	return s.fakeStore.Submit(op, key, value, func(h store.Handle, _ store.Result) {
		onComplete(h, store.Result{Code: store.RetCTimeout})
	})
}
