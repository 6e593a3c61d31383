package queue

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
)

// ErrClosed is returned by Wait once the mailbox is closed and fully drained.
var ErrClosed = errors.New("mailbox closed")

// node represents a single element in the mailbox
type node[T interface{}] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// Mailbox is a lock-free multi-producer single-consumer FIFO.
// Implementation uses a linked list of nodes with atomic operations
// for concurrent Put operations without locks.
type Mailbox[T interface{}] struct {
	head   atomic.Pointer[node[T]] // owned by the consumer
	tail   atomic.Pointer[node[T]]
	size   atomic.Int64
	closed atomic.Bool
	// puts counts Put calls between their closed check and their append
	puts atomic.Int64

	// notify holds at most one pending wake-up for a consumer blocked in Wait
	notify chan struct{}
}

// NewMailbox creates a new, empty mailbox
func NewMailbox[T interface{}]() *Mailbox[T] {
	// Create a sentinel node (dummy node at the beginning)
	sentinel := &node[T]{}

	q := &Mailbox[T]{
		notify: make(chan struct{}, 1),
	}

	// Set the initial head and tail to the sentinel node
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	return q
}

// Put appends a value to the tail of the mailbox. Ownership of the value passes to the mailbox.
// Returns true if the value was added, or false if the mailbox is closed or the value is nil.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *Mailbox[T]) Put(value *T) bool {

	if value == nil {
		return false
	}

	// registered before the closed check, so Drain waits for this append
	q.puts.Add(1)
	defer q.puts.Add(-1)

	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}

	var tailNode *node[T]
	var backoff uint8 = 0

	for {
		tailNode = q.tail.Load()

		// try to atomically append our node to the current tail
		next := tailNode.next.Load()
		if next == nil {
			// the tail has no next node yet, try to append our node
			if tailNode.next.CompareAndSwap(nil, newNode) {
				/*
				 Successfully appended, now try to update tail
				 Note: CAS may fail if another producer helps update tail,
				 but that's okay - tail will still be updated eventually
				*/
				q.tail.CompareAndSwap(tailNode, newNode)
				q.size.Add(1)

				// wake the consumer, a pending token is enough
				select {
				case q.notify <- struct{}{}:
				default:
				}

				return true
			}
		} else {
			// help update the tail pointer if another producer has already appended a node but hasn't updated the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		/*
		 Exponential backoff under contention:
		  - At low contention (<10 retries): spin with Gosched to avoid thread scheduling overhead
		  - At higher contention: yield the processor to allow other goroutines to make progress
		*/

		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// Get removes and returns the head of the mailbox without blocking.
// The boolean is false if the mailbox is empty.
//
// Thread-safety: Only a single goroutine may consume from a mailbox.
func (q *Mailbox[T]) Get() (*T, bool) {
	head := q.head.Load()
	next := head.next.Load()

	if next == nil {
		return nil, false
	}

	// Capture value before updating pointers
	value := next.value

	// move head pointer, the old sentinel becomes garbage
	q.head.Store(next)
	next.value = nil
	q.size.Add(-1)

	return value, true
}

// Wait blocks until a value is available, the context is done or the mailbox is closed and empty.
// Values put before Close are still delivered.
//
// Thread-safety: Only a single goroutine may consume from a mailbox.
func (q *Mailbox[T]) Wait(ctx context.Context) (*T, error) {
	for {
		if value, ok := q.Get(); ok {
			return value, nil
		}

		if q.closed.Load() {
			// a Put may have won the race against Close
			if value, ok := q.Get(); ok {
				return value, nil
			}
			return nil, ErrClosed
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			// a value that is already there wins over cancellation
			if value, ok := q.Get(); ok {
				return value, nil
			}
			return nil, ctx.Err()
		}
	}
}

// Close closes the mailbox, preventing further Puts.
// Any values already in the mailbox will still be delivered to the consumer.
func (q *Mailbox[T]) Close() {
	q.closed.Store(true)

	// Wake up the consumer if it's waiting
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Drain closes the mailbox and hands every remaining value to fn, including values of Puts
// that raced with the close. It returns the number of values passed to fn.
//
// Thread-safety: Only a single goroutine may consume from a mailbox.
func (q *Mailbox[T]) Drain(fn func(*T)) int {
	q.Close()

	n := 0
	for {
		for {
			value, ok := q.Get()
			if !ok {
				break
			}
			fn(value)
			n++
		}
		if q.puts.Load() == 0 {
			break
		}
		runtime.Gosched()
	}

	// every Put that saw the mailbox open has appended by now
	for {
		value, ok := q.Get()
		if !ok {
			return n
		}
		fn(value)
		n++
	}
}

// IsClosed returns true if the mailbox is closed.
func (q *Mailbox[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns an approximate count of the values in the mailbox.
func (q *Mailbox[T]) Len() int {
	return int(q.size.Load())
}
