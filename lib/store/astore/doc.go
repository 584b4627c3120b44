// Package astore adapts a synchronous store.IStore to the store.IAsyncStore interface.
//
// Submit registers a handle and appends the request to an unbounded lock free multi-producer
// single-consumer queue, then returns. A dispatcher goroutine drains the queue and hands the requests
// to a fixed pool of workers. Each worker executes the request against the wrapped store and invokes
// the completion callback exactly once. Callbacks therefore run on worker goroutines, concurrently
// with each other and with the submitting goroutine.
//
// The adapter is used to run the batch engine against the local store (lstore) and against stores
// that have no native asynchronous API (DynamoDB, S3 compatible object storage).
package astore
