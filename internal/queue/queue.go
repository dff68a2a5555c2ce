// Package queue defines the bounded hand-off between the crawl log scanner
// and the document workers.
package queue

import (
	"context"
	"errors"

	"github.com/JakeFAU/docwatch/internal/docs"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue carries candidates from one producer to many consumers.
type Queue interface {
	// Enqueue blocks until there is room or the context ends.
	Enqueue(ctx context.Context, c docs.Candidate) error
	// Dequeue blocks until an item is available, the queue is drained after
	// Close, or the context ends.
	Dequeue(ctx context.Context) (docs.Candidate, error)
	// Close signals that no more items will be enqueued.
	Close()
}
