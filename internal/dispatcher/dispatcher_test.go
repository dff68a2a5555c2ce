// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/publish"
	"github.com/JakeFAU/docwatch/internal/queue/memory"
	"github.com/JakeFAU/docwatch/internal/watch"
	"github.com/JakeFAU/docwatch/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(queue, nil, nil, nil, nil, nil, worker.Config{}, zap.NewNop())
	dispatch := New(queue, []*worker.Worker{w})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherRunDrainsOnClose verifies every buffered candidate is handled
// before Run returns.
func TestDispatcherRunDrainsOnClose(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	var mu sync.Mutex
	seen := 0
	report := func(worker.Result) {
		mu.Lock()
		seen++
		mu.Unlock()
	}
	workers := make([]*worker.Worker, 3)
	for i := range workers {
		workers[i] = worker.New(q, nil, rejectAll{}, recordAll{}, nil, report, worker.Config{}, zap.NewNop())
	}
	dispatch := New(q, workers)

	done := make(chan struct{})
	go func() {
		dispatch.Run(context.Background())
		close(done)
	}()
	for i := range 10 {
		c := docs.Candidate{DocumentURL: fmt.Sprintf("https://example.com/%d.pdf", i)}
		if err := dispatch.Enqueue(context.Background(), c); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	dispatch.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after queue close")
	}
	mu.Lock()
	defer mu.Unlock()
	if seen != 10 {
		t.Fatalf("expected 10 results, got %d", seen)
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("boom")}
	dispatch := New(queue, nil)

	err := dispatch.Enqueue(context.Background(), docs.Candidate{DocumentURL: "https://example.com/a.pdf"})
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ docs.Candidate) error {
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (docs.Candidate, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return docs.Candidate{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

func (q *blockingQueue) Close() {}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, docs.Candidate) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (docs.Candidate, error) {
	return docs.Candidate{}, nil
}

func (q *errorQueue) Close() {}

type rejectAll struct{}

func (rejectAll) Enrich(_ context.Context, c docs.Candidate, _ *watch.Snapshot) docs.Document {
	return docs.Document{Candidate: c, Status: docs.StatusRejected}
}

type recordAll struct{}

func (recordAll) Publish(_ context.Context, doc docs.Document) (publish.Outcome, error) {
	return publish.Outcome{Status: doc.Status, Record: docs.PublishRecord{Document: doc}}, nil
}
