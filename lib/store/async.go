package store

import "fmt"

// --------------------------------------------------------------------------
// Asynchronous Interface
// --------------------------------------------------------------------------

// Opcode selects the operation a submitted request performs.
type Opcode uint8

const (
	OpPut    Opcode = iota // Unconditionally overwrite the value of the key.
	OpDelete               // Remove the key, the value is ignored.
)

func (o Opcode) String() string {
	switch o {
	case OpPut:
		return "Put"
	case OpDelete:
		return "Delete"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(o))
	}
}

// Handle identifies one in-flight request of an IAsyncStore. The zero value is never a valid handle.
type Handle uint64

// Result is passed to the completion callback of a request.
type Result struct {
	Code RetCode // RetCSuccess if the operation was applied
	Err  error   // set if Code != RetCSuccess
}

// Ok reports whether the operation succeeded.
func (r Result) Ok() bool {
	return r.Code == RetCSuccess && r.Err == nil
}

// CompletionFunc is invoked exactly once per submitted request.
type CompletionFunc func(handle Handle, result Result)

// IAsyncStore is a key–value store accepting non-blocking requests.
//
// Contract:
//   - Submit returns immediately. If it returns an error no completion will follow for the request.
//   - Otherwise onComplete runs exactly once, from a goroutine the store controls. Completions of
//     different requests may run concurrently and in any order.
//   - The store reads key and value until the completion fired and never writes to them.
//     The caller must not modify or reuse them before that.
//   - Every handle must be finalized after its completion fired. Finalizing an in-flight handle is
//     rejected with ErrHandleInFlight.
type IAsyncStore interface {
	// Submit issues a single operation.
	Submit(op Opcode, key, value []byte, onComplete CompletionFunc) (handle Handle, err error)
	// Finalize releases the store side resources of a completed request.
	Finalize(handle Handle) (err error)
	// Close stops accepting requests. Requests already submitted still complete.
	Close() (err error)
}
