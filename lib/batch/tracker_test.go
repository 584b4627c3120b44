package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerReachesTarget(t *testing.T) {
	tr := NewTracker(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Done())
	}
	require.NoError(t, tr.Wait(context.Background()))
	assert.Equal(t, 3, tr.Count())
	assert.Equal(t, 3, tr.Target())
}

func TestTrackerRefusesOverflow(t *testing.T) {
	tr := NewTracker(1)
	require.NoError(t, tr.Done())
	assert.ErrorIs(t, tr.Done(), ErrCompletionOverflow)
	assert.Equal(t, 1, tr.Count())
}

func TestTrackerRecordsFailures(t *testing.T) {
	tr := NewTracker(4)
	boom := errors.New("boom")

	require.NoError(t, tr.Fail(3, boom))
	require.NoError(t, tr.Done())
	require.NoError(t, tr.Fail(0, boom))
	assert.Equal(t, 3, tr.Count())

	// failures are visible before the barrier is reached
	failed := tr.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, 0, failed[0].Index)
	assert.Equal(t, 3, failed[1].Index)
	assert.ErrorIs(t, failed[1], boom)

	require.NoError(t, tr.Done())
	require.NoError(t, tr.Wait(context.Background()))

	// a failure past the target is refused and not recorded
	assert.ErrorIs(t, tr.Fail(5, boom), ErrCompletionOverflow)
	assert.Len(t, tr.Failed(), 2)
}

func TestTrackerWaitHonorsContext(t *testing.T) {
	tr := NewTracker(2)
	require.NoError(t, tr.Done())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tr.Wait(ctx)
	assert.ErrorIs(t, err, ErrLostCompletion)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// a late completion still completes the barrier
	require.NoError(t, tr.Done())
	assert.NoError(t, tr.Wait(context.Background()))
}

func TestTrackerWakesWaiters(t *testing.T) {
	tr := NewTracker(1)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, tr.Wait(context.Background()))
		}()
	}

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, tr.Done())
	wg.Wait()
}

func TestTrackerConcurrentDone(t *testing.T) {
	for iter := 0; iter < 1000; iter++ {
		tr := NewTracker(100)

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				// 8 goroutines share 100 completions, the first four take one extra
				n := 12
				if w < 4 {
					n = 13
				}
				for i := 0; i < n; i++ {
					assert.NoError(t, tr.Done())
				}
			}(w)
		}

		require.NoError(t, tr.Wait(context.Background()))
		wg.Wait()
		require.Equal(t, 100, tr.Count())
		require.ErrorIs(t, tr.Done(), ErrCompletionOverflow)
	}
}
