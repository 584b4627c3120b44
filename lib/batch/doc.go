// Package batch implements the asynchronous batched write engine.
//
// A batch writes one value to N attributes of one owner. The Coordinator drives it in fixed steps:
//
//  1. encode the N structured keys (package xattr) and allocate one Slot per operation from the Pool,
//  2. submit every operation through the Dispatcher before waiting on any of them,
//  3. block on the batch's Tracker until all N completions were counted,
//  4. finalize each operation handle and only then release the slot buffers,
//  5. report the elapsed time and the failed indices.
//
// Completion callbacks run on goroutines of the store. The Tracker (a mutex and a condition variable)
// is the only state they share with the coordinator, apart from one error cell per operation that
// is read after the barrier. Every completion is counted whether the operation succeeded or not,
// so a failing store never stalls the barrier.
//
// With Config.Timeout set, a batch whose completions do not arrive in time returns StatusTimedOut.
// Its slots stay alive and are cleaned up in the background as soon as the stragglers complete.
package batch
