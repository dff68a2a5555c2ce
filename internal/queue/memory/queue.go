// Package memory provides the in-process candidate queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/queue"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan docs.Candidate
	closeMu sync.Mutex
	closed  bool
}

var _ queue.Queue = (*Queue)(nil)

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan docs.Candidate, capacity),
	}
}

// Enqueue pushes a candidate or returns if the context ends. Enqueueing on a
// closed queue returns queue.ErrClosed.
func (q *Queue) Enqueue(ctx context.Context, c docs.Candidate) error {
	q.closeMu.Lock()
	closed := q.closed
	q.closeMu.Unlock()
	if closed {
		return queue.ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- c:
		return nil
	}
}

// Dequeue pops the next candidate, respecting context cancellation. Items
// enqueued before Close are still delivered.
func (q *Queue) Dequeue(ctx context.Context) (docs.Candidate, error) {
	select {
	case <-ctx.Done():
		return docs.Candidate{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case c, ok := <-q.ch:
		if !ok {
			return docs.Candidate{}, queue.ErrClosed
		}
		return c, nil
	}
}

// Len reports the number of buffered candidates.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel. The single producer must not call
// Enqueue concurrently with Close.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
