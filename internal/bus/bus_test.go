package bus

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"chatbridge/internal/domain"
)

func testQueueLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestQueue_PollReturnsArrivalOrder(t *testing.T) {
	q := New(10, testQueueLogger())
	for _, ts := range []string{"1", "2", "3"} {
		q.Publish(domain.RawEvent{Type: "message", Timestamp: ts})
	}

	batch, err := q.Poll(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3 events, got %d", len(batch))
	}
	for i, want := range []string{"1", "2", "3"} {
		if batch[i].Timestamp != want {
			t.Errorf("event %d: expected ts %s, got %s", i, want, batch[i].Timestamp)
		}
	}
}

func TestQueue_PollTimesOutWithEmptyBatch(t *testing.T) {
	q := New(10, testQueueLogger())

	start := time.Now()
	batch, err := q.Poll(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("expected nil error on idle poll, got %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("expected empty batch, got %d", len(batch))
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("poll returned before the wait elapsed")
	}
}

func TestQueue_PollBatchLimit(t *testing.T) {
	q := New(10, testQueueLogger())
	q.maxBatch = 2
	for i := 0; i < 5; i++ {
		q.Publish(domain.RawEvent{Type: "message"})
	}

	batch, _ := q.Poll(context.Background(), time.Second)
	if len(batch) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(batch))
	}
	if q.Len() != 3 {
		t.Fatalf("expected 3 left buffered, got %d", q.Len())
	}
}

func TestQueue_PollCancelledContext(t *testing.T) {
	q := New(10, testQueueLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.Poll(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestQueue_PollAfterClose(t *testing.T) {
	q := New(10, testQueueLogger())
	q.Publish(domain.RawEvent{Type: "message"})
	q.Close()

	batch, err := q.Poll(context.Background(), time.Second)
	if err != nil || len(batch) != 1 {
		t.Fatalf("expected buffered event before close error, got %d, %v", len(batch), err)
	}
	if _, err := q.Poll(context.Background(), time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestQueue_PublishAfterClose(t *testing.T) {
	q := New(10, testQueueLogger())
	q.Close()
	q.Close() // idempotent

	if q.Publish(domain.RawEvent{Type: "message"}) {
		t.Fatal("publish to a closed queue should report a drop")
	}
}

func TestQueue_CloseReleasesBlockedPublish(t *testing.T) {
	q := New(1, testQueueLogger())
	q.Publish(domain.RawEvent{Type: "message", Timestamp: "1"})

	published := make(chan bool, 1)
	go func() {
		published <- q.Publish(domain.RawEvent{Type: "message", Timestamp: "2"})
	}()

	// Give the publisher time to block on the full buffer.
	time.Sleep(50 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close stalled behind a blocked Publish")
	}
	select {
	case ok := <-published:
		if ok {
			t.Fatal("expected the blocked event to be dropped")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Publish never returned")
	}
}
