// Package queue provides the write-behind buffer used by database-backed
// replay stores.
package queue

import (
	"sync"
)

// Queue is a thread-safe FIFO. Producers never block; a single consumer
// drains it in batches and hands back whatever it failed to persist.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	pending chan struct{}
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:   make([]T, 0),
		pending: make(chan struct{}, 1),
	}
}

// Push appends items and wakes the consumer.
func (q *Queue[T]) Push(items ...T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, items...)
	q.mu.Unlock()
	q.notify()
}

// Requeue puts items back at the head, preserving their order ahead of
// anything pushed since they were drained.
func (q *Queue[T]) Requeue(items ...T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(append(make([]T, 0, len(items)+len(q.items)), items...), q.items...)
	q.mu.Unlock()
	q.notify()
}

// Drain returns all items and leaves the queue empty.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0, cap(q.items))
	return result
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether nothing is queued.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Pending is signalled after a Push or Requeue. Signals coalesce, so a
// consumer must Drain everything on wake.
func (q *Queue[T]) Pending() <-chan struct{} {
	return q.pending
}

func (q *Queue[T]) notify() {
	select {
	case q.pending <- struct{}{}:
	default:
	}
}
