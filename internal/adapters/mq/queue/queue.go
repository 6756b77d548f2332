// Package queue carries events to the avatar loop.
//
// The queue is a bounded buffered channel. Producers are HTTP handlers, the
// websocket hub, the frame ticker and scheduler timers; the single consumer
// is the avatar loop.
package queue

import (
	"context"
	"sync"

	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/pkg/metrics"
)

const defaultQueueCapacity = 4096

// Event represents the payload type flowing through the queue.
type Event = model.Event

// Queue provides bounded enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event without blocking.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, e Event) bool

	// EnqueueWait blocks until there is room, ctx is done or the queue closes.
	EnqueueWait(ctx context.Context, e Event) bool

	// Dequeue returns a channel that receives events until the queue closes.
	Dequeue(ctx context.Context) <-chan Event

	// Len returns the current number of queued events.
	Len(ctx context.Context) int

	// Close stops accepting events. Buffered events are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int

	mu       sync.RWMutex
	closed   bool
	done     chan struct{}
	doneOnce sync.Once
}

// Option configures an InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity bounds the buffer. When it is full Enqueue fails and
// EnqueueWait blocks. Non-positive values keep the default.
func WithCapacity(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds an event to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return false
	}

	select {
	case q.events <- e:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.events))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError("context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError("queue_full")
		return false
	}
}

// EnqueueWait adds an event, waiting for room. Close wakes blocked callers
// through done before it takes the write lock.
func (q *InMemoryQueue) EnqueueWait(ctx context.Context, e Event) bool { //nolint:gocritic // hugeParam: see Enqueue
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return false
	}
	select {
	case q.events <- e:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.events))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError("context_cancelled")
		return false
	case <-q.done:
		metrics.RecordQueueEnqueueError("closed")
		return false
	}
}

// Dequeue returns a channel that will receive events as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for event := range q.events {
			select {
			case out <- event:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.events))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.events)
	metrics.UpdateQueueSize(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	// Unblock waiting producers before taking the write lock.
	q.signalDone()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

func (q *InMemoryQueue) signalDone() {
	q.doneOnce.Do(func() { close(q.done) })
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
