// Package util provides shared logging, queueing and statistics helpers.
package util

// Queue is an owned FIFO buffer with drain-once semantics: Drain hands the
// caller every buffered item in arrival order and leaves the queue empty, so a
// push that happens while the caller is still working through the drained
// items lands in the next batch instead of the one being processed.
//
// Queue is not safe for concurrent use; the owner serializes access.
type Queue[T any] struct {
	items []T
}

// Push appends an item.
func (q *Queue[T]) Push(item T) {
	q.items = append(q.items, item)
}

// Len reports the number of buffered items.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Drain removes and returns all buffered items, oldest first.
func (q *Queue[T]) Drain() []T {
	items := q.items
	q.items = nil
	return items
}
