package batch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/lib/xattr"
	"github.com/google/uuid"
)

// Status is the outcome of a batch
type Status int

const (
	StatusSucceeded   Status = iota // every operation completed successfully
	StatusPartial                   // all operations completed, some failed (see Result.Failed)
	StatusSetupFailed               // nothing was submitted
	StatusTimedOut                  // the wait ended before all completions arrived
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusPartial:
		return "partial"
	case StatusSetupFailed:
		return "setup_failed"
	case StatusTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Result describes a finished batch
type Result struct {
	BatchID uuid.UUID
	Status  Status
	Elapsed time.Duration // wall clock time from the first encode to the end of the cleanup
	Size    int
	Failed  []ItemError // sorted by index
}

// FailedIndices returns the indices of all failed operations in ascending order
func (r Result) FailedIndices() []int {
	out := make([]int, len(r.Failed))
	for i, f := range r.Failed {
		out[i] = f.Index
	}
	return out
}

// Err joins the item errors, it is nil for a successful batch
func (r Result) Err() error {
	if r.Status == StatusSucceeded {
		return nil
	}
	errs := append([]error{fmt.Errorf("batch %s %s", r.BatchID, r.Status)}, itemErrors(r.Failed)...)
	return errors.Join(errs...)
}

func itemErrors(items []ItemError) []error {
	errs := make([]error, len(items))
	for i, item := range items {
		errs[i] = item
	}
	return errs
}

// Config configures the coordinator
type Config struct {
	Class   byte          // class tag of the written keys
	Timeout time.Duration // bound of the batch wait (0 = wait until ctx is done)
}

// Coordinator runs batches of attribute writes: it prepares one slot per operation, submits all of them,
// waits for every completion and then finalizes and releases the slots.
//
// Thread-safety: RunBatch may be called concurrently, every call uses its own slots and tracker.
type Coordinator struct {
	dispatcher *Dispatcher
	pool       *Pool
	cfg        Config

	// cleanups handed to the background after a timeout
	pending sync.WaitGroup
}

func NewCoordinator(d *Dispatcher, p *Pool, cfg Config) *Coordinator {
	return &Coordinator{
		dispatcher: d,
		pool:       p,
		cfg:        cfg,
	}
}

// KeyName returns the attribute name of the operation at index i of a batch
func KeyName(prefix string, i int) string {
	return prefix + "_" + strconv.Itoa(i)
}

// RunBatch writes value to the attributes prefix_0 ... prefix_{n-1} of owner.
//
// The returned error is nil only for StatusSucceeded. For StatusPartial every operation completed and
// was cleaned up, Result.Failed lists the failed ones. For StatusSetupFailed nothing was submitted.
// For StatusTimedOut the slots are finalized and released in the background once the outstanding
// completions arrived, see WaitCleanup.
func (c *Coordinator) RunBatch(ctx context.Context, owner uint64, namePrefix string, value []byte, n int) (Result, error) {
	start := time.Now()
	res := Result{BatchID: uuid.New(), Size: n}

	if n < 1 {
		return c.done(res, start, StatusSetupFailed, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, n))
	}

	// 1. encode and allocate every slot before anything is submitted
	slots := make([]*Slot, n)
	for i := range slots {
		slot, err := c.prepare(owner, KeyName(namePrefix, i), value)
		if err != nil {
			c.releaseAll(slots)
			res.Failed = []ItemError{{Index: i, Err: err}}
			return c.done(res, start, StatusSetupFailed, nil)
		}
		slots[i] = slot
	}

	// 2. submit all operations, the tracker counts completions and keeps their failures
	tracker := NewTracker(n)
	for i, slot := range slots {
		h, err := c.dispatcher.Submit(ctx, store.OpPut, slot.key, slot.value, c.onComplete(tracker, i))
		if err != nil {
			// no completion follows a rejected submission, count it here
			c.countCompletion(tracker, i, err)
			continue
		}
		slot.handle = h
		slot.submitted = true
	}

	// 3. wait for the barrier
	waitCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	if err := tracker.Wait(waitCtx); err != nil {
		res.Failed = tracker.Failed()
		c.cleanupLater(res.BatchID, tracker, slots)
		return c.done(res, start, StatusTimedOut, err)
	}

	// 4. finalize, then release
	c.cleanup(slots)

	// 5. aggregate
	res.Failed = tracker.Failed()
	if len(res.Failed) > 0 {
		return c.done(res, start, StatusPartial, nil)
	}
	return c.done(res, start, StatusSucceeded, nil)
}

// prepare encodes the key of one operation and copies the value into a fresh slot
func (c *Coordinator) prepare(owner uint64, name string, value []byte) (*Slot, error) {
	key, err := xattr.NewKey(owner, c.cfg.Class, name)
	if err != nil {
		return nil, err
	}
	slot, err := c.pool.Allocate(xattr.EncodedSize, len(value))
	if err != nil {
		return nil, err
	}
	key.EncodeTo(slot.key)
	copy(slot.value, value)
	return slot, nil
}

func (c *Coordinator) onComplete(tracker *Tracker, i int) store.CompletionFunc {
	return func(h store.Handle, r store.Result) {
		if r.Ok() {
			opsSucceededTotal.Inc()
			c.countCompletion(tracker, i, nil)
			return
		}
		cause := r.Err
		if cause == nil {
			cause = store.NewError(r.Code, "no error message")
		}
		c.countCompletion(tracker, i, fmt.Errorf("%w: %w", ErrOperationFailed, cause))
	}
}

// countCompletion records the completion of operation i, failed if err is set
func (c *Coordinator) countCompletion(tracker *Tracker, i int, err error) {
	var overflow error
	if err != nil {
		overflow = tracker.Fail(i, err)
	} else {
		overflow = tracker.Done()
	}
	if overflow != nil {
		completionOverflows.Inc()
		log.Errorf("%v", overflow)
	}
}

// cleanup finalizes the handle of every slot and then releases its buffers.
// It must only run after all completions of the batch fired.
func (c *Coordinator) cleanup(slots []*Slot) {
	for i, slot := range slots {
		if slot.submitted {
			if err := c.dispatcher.Finalize(slot.handle); err != nil {
				log.Errorf("failed to finalize handle %d of slot %d: %v", slot.handle, i, err)
			}
		}
		c.pool.Release(slot)
		slots[i] = nil
	}
}

func (c *Coordinator) releaseAll(slots []*Slot) {
	for i, slot := range slots {
		if slot != nil {
			c.pool.Release(slot)
			slots[i] = nil
		}
	}
}

// cleanupLater waits, without a bound, for the completions still outstanding after a timeout and then
// runs the regular cleanup. Until then the store may still read the buffers.
func (c *Coordinator) cleanupLater(id uuid.UUID, tracker *Tracker, slots []*Slot) {
	backgroundCleanups.Inc()
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		_ = tracker.Wait(context.Background())
		c.cleanup(slots)

		failed := tracker.Failed()
		if len(failed) == 0 {
			log.Infof("batch %s: late cleanup of %d slots finished", id, len(slots))
			return
		}
		log.Warningf("batch %s: late cleanup of %d slots finished, %d operations failed: %v",
			id, len(slots), len(failed), errors.Join(itemErrors(failed)...))
	}()
}

// WaitCleanup blocks until the background cleanups of timed out batches finished or ctx is done.
func (c *Coordinator) WaitCleanup(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// done completes res with status and derives the returned error from it, joined with cause
func (c *Coordinator) done(res Result, start time.Time, status Status, cause error) (Result, error) {
	res.Status = status
	res.Elapsed = time.Since(start)
	batchTotal(status).Inc()
	batchDurationSeconds.Update(res.Elapsed.Seconds())

	err := res.Err()
	if err != nil && cause != nil {
		err = errors.Join(err, cause)
	}

	if err != nil {
		log.Debugf("batch %s of %d finished with status %s after %s", res.BatchID, res.Size, status, res.Elapsed)
	}
	return res, err
}
