package batch

import (
	"errors"
	"fmt"
)

// Error kinds. Per item errors wrap one of them, use errors.Is to classify.
var (
	ErrAllocationFailure  = errors.New("buffer allocation failed")
	ErrSubmissionFailure  = errors.New("store rejected submission")
	ErrOperationFailed    = errors.New("store reported operation failure")
	ErrLostCompletion     = errors.New("batch did not observe all completions")
	ErrCompletionOverflow = errors.New("completion past batch size")
	ErrInvalidBatchSize   = errors.New("batch size must be at least 1")
)

// ItemError records the failure of the operation at Index of a batch.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }
