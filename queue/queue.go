package queue

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrFull is returned by Enqueue when a bounded queue is at capacity.
var ErrFull = errors.New("queue is full")

// Queue is a generic FIFO queue that is safe for concurrent use.
// A positive capacity bounds it; zero means unbounded.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	ready    chan struct{}
}

// New creates and returns a new Queue instance.
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{
		items:    []T{},
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Enqueue adds an element to the end of the queue.
func (q *Queue[T]) Enqueue(item T) error {
	q.mu.Lock()
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.mu.Unlock()
		return ErrFull
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	// wake one waiter; a pending signal already covers this item
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue removes and returns the front element of the queue.
// The boolean indicates whether an element was dequeued (false if the queue was empty).
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Drain removes and returns every queued element in order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = []T{}
	return out
}

// Ready is signalled after an Enqueue. Consumers select on it and then drain.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of elements in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty returns true if the queue is empty.
func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}
