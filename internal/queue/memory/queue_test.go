package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/queue"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan docs.Candidate, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	c := docs.Candidate{DocumentURL: "https://example.com/a.pdf"}
	if err := q.Enqueue(context.Background(), c); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.DocumentURL != c.DocumentURL {
			t.Fatalf("expected %s, got %+v", c.DocumentURL, got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return candidate")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), docs.Candidate{DocumentURL: "primed"}); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, docs.Candidate{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueCloseDrainsBufferedItems(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	for _, u := range []string{"a", "b"} {
		if err := q.Enqueue(context.Background(), docs.Candidate{DocumentURL: u}); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", u, err)
		}
	}
	q.Close()
	q.Close()

	if err := q.Enqueue(context.Background(), docs.Candidate{}); !errors.Is(err, queue.ErrClosed) {
		t.Fatalf("Enqueue() after close error = %v", err)
	}
	for _, want := range []string{"a", "b"} {
		got, err := q.Dequeue(context.Background())
		if err != nil || got.DocumentURL != want {
			t.Fatalf("Dequeue() = %+v, %v; want %s", got, err, want)
		}
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, queue.ErrClosed) {
		t.Fatalf("Dequeue() on drained queue error = %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("Len() = %d", q.Len())
	}
}
