package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chatbridge/internal/domain"
)

const (
	publishTimeout    = 10 * time.Second
	defaultPollWait   = time.Second
	defaultMaxBatch   = 64
	defaultBufferSize = 256
)

// ErrClosed is returned by Poll once the queue is closed and drained.
var ErrClosed = errors.New("event queue closed")

// Queue is a Go-channel based FIFO carrying raw events from a transport's
// reader goroutine to the single ingestion loop.
type Queue struct {
	events   chan domain.RawEvent
	maxBatch int
	mu       sync.RWMutex
	closed   bool
	done     chan struct{} // closed before events, releases a blocked Publish
	stopOnce sync.Once
	logger   *slog.Logger
}

// New creates a Queue with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *Queue {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Queue{
		events:   make(chan domain.RawEvent, bufferSize),
		maxBatch: defaultMaxBatch,
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Publish enqueues ev. Blocks up to 10 seconds if the queue is full instead of
// dropping; returns false if the event was dropped. Close cuts the wait short.
func (q *Queue) Publish(ev domain.RawEvent) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Warn("attempted to publish to closed event queue")
		return false
	}

	select {
	case q.events <- ev:
		return true
	default:
		q.logger.Warn("event queue full, waiting...", "channel", ev.ChannelID, "sender", ev.SenderID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case q.events <- ev:
			q.logger.Info("event delivered after wait", "channel", ev.ChannelID)
			return true
		case <-q.done:
			q.logger.Warn("event dropped: queue closed while full", "channel", ev.ChannelID)
			return false
		case <-timer.C:
			q.logger.Error("event dropped: queue full for 10s",
				"channel", ev.ChannelID,
				"sender", ev.SenderID,
			)
			return false
		}
	}
}

// Poll waits up to wait for the first event, then drains whatever else is
// already buffered (bounded by the batch size) without blocking again.
// An elapsed wait yields an empty batch and a nil error.
func (q *Queue) Poll(ctx context.Context, wait time.Duration) ([]domain.RawEvent, error) {
	if wait <= 0 {
		wait = defaultPollWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var batch []domain.RawEvent
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case ev, ok := <-q.events:
		if !ok {
			return nil, ErrClosed
		}
		batch = append(batch, ev)
	}

	for len(batch) < q.maxBatch {
		select {
		case ev, ok := <-q.events:
			if !ok {
				return batch, nil
			}
			batch = append(batch, ev)
		default:
			return batch, nil
		}
	}
	return batch, nil
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	return len(q.events)
}

func (q *Queue) Close() {
	q.stopOnce.Do(func() { close(q.done) })

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.events)
	}
}
