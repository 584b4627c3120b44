package batch

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/xkv/lib/store"
	"golang.org/x/time/rate"
)

// DispatcherConfig configures the dispatcher
type DispatcherConfig struct {
	// SubmitRate limits submissions per second (0 = unlimited). With a limit Submit may block
	// until a token is available or ctx is done.
	SubmitRate  float64
	SubmitBurst int
}

// Dispatcher submits single operations to an asynchronous store.
// It makes sure every failed completion is logged and counted before the caller's handler runs.
type Dispatcher struct {
	store   store.IAsyncStore
	limiter *rate.Limiter

	submitted atomic.Uint64
	rejected  atomic.Uint64
	failed    atomic.Uint64
}

func NewDispatcher(s store.IAsyncStore, cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{store: s}
	if cfg.SubmitRate > 0 {
		burst := cfg.SubmitBurst
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRate), burst)
	}
	return d
}

// Submit issues one operation. If it returns an error (wrapping ErrSubmissionFailure) onComplete will
// never run. Otherwise onComplete runs exactly once, on a goroutine of the store, with the result of
// the operation. key and value must stay untouched until then.
func (d *Dispatcher) Submit(ctx context.Context, op store.Opcode, key, value []byte, onComplete store.CompletionFunc) (store.Handle, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			d.rejected.Add(1)
			opsRejectedTotal.Inc()
			return 0, fmt.Errorf("%w: %w", ErrSubmissionFailure, err)
		}
	}

	h, err := d.store.Submit(op, key, value, func(h store.Handle, res store.Result) {
		if !res.Ok() {
			d.failed.Add(1)
			opsFailedTotal.Inc()
			log.Warningf("%s operation %d failed (code %s): %v", op, h, res.Code, res.Err)
		}
		onComplete(h, res)
	})
	if err != nil {
		d.rejected.Add(1)
		opsRejectedTotal.Inc()
		return 0, fmt.Errorf("%w: %w", ErrSubmissionFailure, err)
	}
	d.submitted.Add(1)
	return h, nil
}

// Finalize releases the store side resources of a completed operation.
// It must only be called after the completion of the handle fired.
func (d *Dispatcher) Finalize(h store.Handle) error {
	return d.store.Finalize(h)
}

// Counters returns the number of accepted submissions, rejected submissions and failed completions
func (d *Dispatcher) Counters() (submitted, rejected, failed uint64) {
	return d.submitted.Load(), d.rejected.Load(), d.failed.Load()
}
