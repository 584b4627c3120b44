package astore

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// submissionQueue is an unbounded multi-producer single-consumer queue.
// Producers append to a linked list with CAS, a single goroutine moves the items to the Recv channel.
//
// Guarantees:
//   - every item accepted by Push is delivered, also when Close runs concurrently
//   - the Recv channel is closed once the queue is closed and drained
//   - items of a single producer keep their order
type submissionQueue[T any] struct {
	head atomic.Pointer[node[T]]
	tail atomic.Pointer[node[T]]
	out  chan T

	// closeMu orders Push against Close: a push holding the read lock either sees closed or
	// is appended before the consumer can observe closed
	closeMu sync.RWMutex
	closed  atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond
}

func newSubmissionQueue[T any]() *submissionQueue[T] {
	sentinel := &node[T]{}
	q := &submissionQueue[T]{
		out: make(chan T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.consume()
	return q
}

// Push adds an item to the queue. It returns false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *submissionQueue[T]) Push(value T) bool {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8
	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// a failed CAS means another producer already moved the tail forward
				q.tail.CompareAndSwap(tailNode, newNode)
				break
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// exponential backoff under contention
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}

	// signal under the lock, the consumer checks for items under the same lock before it waits
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
	return true
}

func (q *submissionQueue[T]) consume() {
	defer close(q.out)

	for {
		hasItems := false
		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			hasItems = true

			value := next.value
			q.head.Store(next)
			q.out <- value

			// help the gc, the node is the new sentinel
			var zero T
			next.value = zero
		}

		if !hasItems && q.closed.Load() {
			return
		}

		if !hasItems {
			q.mu.Lock()
			if q.head.Load().next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns the channel the items are delivered on
func (q *submissionQueue[T]) Recv() <-chan T {
	return q.out
}

// Close stops accepting items. Items already pushed are still delivered.
func (q *submissionQueue[T]) Close() {
	q.closeMu.Lock()
	q.closed.Store(true)
	q.closeMu.Unlock()

	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// Len returns the number of queued items. This is O(n) and should only be used for debugging.
func (q *submissionQueue[T]) Len() int {
	count := 0
	for current := q.head.Load().next.Load(); current != nil; current = current.next.Load() {
		count++
	}
	return count
}
