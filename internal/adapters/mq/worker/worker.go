// Package worker drains the event queue into the avatar state.
//
// Exactly one Loop owns the scheduler, picker and facial rig. Every producer
// goes through the queue, so handlers never need their own locking.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/pkg/logger"
	"github.com/okian/cadence/pkg/metrics"
)

// Event is the payload read off the queue.
type Event = model.Event

// Handler applies one event to the avatar state.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	return f(ctx, e)
}

// Queue defines how the loop receives events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker runs until stopped.
type Worker interface {
	// Run consumes events until ctx is canceled, Shutdown is called or the
	// queue closes.
	Run(ctx context.Context)

	// Shutdown stops the loop and waits for the in-flight event.
	Shutdown(ctx context.Context) error
}

// Loop is the single consumer of the event queue.
type Loop struct {
	queue   Queue
	handler Handler
	name    string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewLoop creates a loop that feeds queue events to handler.
func NewLoop(queue Queue, handler Handler, opts ...Option) *Loop {
	l := &Loop{
		queue:    queue,
		handler:  handler,
		name:     "avatar-loop",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().Named(l.name)
	}
	return l
}

// Run starts the loop. It returns when ctx is canceled, Shutdown is called or
// the queue channel closes.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	events := l.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.shutdown:
			return
		case event, ok := <-events:
			if !ok {
				l.logger.Info(ctx, "event queue closed, loop exiting")
				return
			}
			if err := l.process(ctx, event); err != nil {
				l.logger.Error(ctx, "error handling event",
					logger.String("kind", string(event.Kind)),
					logger.Error(err),
				)
			}
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Shutdown signals the loop to stop and waits for it.
func (l *Loop) Shutdown(ctx context.Context) error {
	select {
	case <-l.shutdown:
	default:
		close(l.shutdown)
	}

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		l.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (l *Loop) process(ctx context.Context, event Event) (err error) { //nolint:gocritic // hugeParam: see HandlerFunc.Handle
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
		metrics.RecordEventHandled(string(event.Kind), float64(time.Since(start).Microseconds())/1000, err)
	}()

	if err = l.handler.Handle(ctx, event); err != nil {
		err = fmt.Errorf("handle %s: %w", event.Kind, err)
	}
	return err
}
