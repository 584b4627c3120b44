package batch

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Tracker is the completion barrier of one batch. Completions count up to a fixed target, Wait
// blocks until the target is reached. Failed completions are counted like successful ones and
// their errors are kept, so a waiter that gives up can still report them. A tracker is never reused.
type Tracker struct {
	mu     sync.Mutex
	cond   *sync.Cond
	count  int
	target int
	failed []ItemError
}

func NewTracker(target int) *Tracker {
	t := &Tracker{target: target}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Done records one completion. The waiters are woken when the count reaches the target.
// A completion past the target is refused with ErrCompletionOverflow and does not change the count.
func (t *Tracker) Done() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doneLocked()
}

// Fail records one completion of the operation at index that ended with err.
// It counts toward the target exactly like Done.
func (t *Tracker) Fail(index int, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.doneLocked(); err != nil {
		return fmt.Errorf("item %d: %w", index, err)
	}
	t.failed = append(t.failed, ItemError{Index: index, Err: err})
	return nil
}

func (t *Tracker) doneLocked() error {
	if t.count >= t.target {
		return fmt.Errorf("%w: target %d already reached", ErrCompletionOverflow, t.target)
	}
	t.count++
	if t.count == t.target {
		t.cond.Broadcast()
	}
	return nil
}

// Wait blocks until the count reached the target or ctx is done.
// In the latter case the error wraps ErrLostCompletion and the context error.
func (t *Tracker) Wait(ctx context.Context) error {
	// wake the waiter when ctx ends, taking the lock so the broadcast can't slip in between
	// the predicate check and cond.Wait
	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		t.cond.Broadcast()
		t.mu.Unlock()
	})
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for t.count != t.target {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %d of %d completions observed: %w", ErrLostCompletion, t.count, t.target, err)
		}
		t.cond.Wait()
	}
	return nil
}

// Count returns the number of recorded completions
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *Tracker) Target() int { return t.target }

// Failed returns the failures recorded so far, sorted by index
func (t *Tracker) Failed() []ItemError {
	t.mu.Lock()
	out := slices.Clone(t.failed)
	t.mu.Unlock()

	slices.SortFunc(out, func(a, b ItemError) int { return a.Index - b.Index })
	return out
}
