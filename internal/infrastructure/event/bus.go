// Package event delivers committed domain events to in-process handlers.
package event

import (
	"context"
	"errors"
	"sync"

	"github.com/meterly/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrBusStopped is returned by Publish after Stop
var ErrBusStopped = errors.New("event bus stopped")

type envelope struct {
	ctx   context.Context
	event shared.DomainEvent
}

// AsyncEventBus queues events on a bounded channel and fans them out to
// handlers from a fixed worker pool. Delivery is best-effort: when the queue
// is full the event is dropped and logged.
type AsyncEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	queue    chan envelope
	workers  int
	onDrop   func(eventType string)

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	start   sync.Once
}

// Option configures an AsyncEventBus
type Option func(*AsyncEventBus)

// WithWorkers sets the number of delivery goroutines
func WithWorkers(n int) Option {
	return func(b *AsyncEventBus) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithQueueSize sets the channel capacity
func WithQueueSize(n int) Option {
	return func(b *AsyncEventBus) {
		if n > 0 {
			b.queue = make(chan envelope, n)
		}
	}
}

// WithDropHook is called for every event dropped on a full queue
func WithDropHook(fn func(eventType string)) Option {
	return func(b *AsyncEventBus) { b.onDrop = fn }
}

// NewAsyncEventBus creates a bus. Events published before Start wait in the queue.
func NewAsyncEventBus(logger *zap.Logger, opts ...Option) *AsyncEventBus {
	b := &AsyncEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger.Named("eventbus"),
		queue:    make(chan envelope, 1024),
		workers:  4,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish enqueues events without blocking. The handler context keeps the
// caller's values but not its cancellation, since the request that caused
// the event usually ends first.
func (b *AsyncEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return ErrBusStopped
	}

	detached := context.WithoutCancel(ctx)
	for _, event := range events {
		select {
		case b.queue <- envelope{ctx: detached, event: event}:
		default:
			b.logger.Warn("event queue full, dropping event",
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
			)
			if b.onDrop != nil {
				b.onDrop(event.EventType())
			}
		}
	}
	return nil
}

// Subscribe registers a handler for specific event types, falling back to
// the handler's own EventTypes
func (b *AsyncEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (b *AsyncEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

// Start launches the worker pool. Calling it twice is a no-op.
func (b *AsyncEventBus) Start(_ context.Context) error {
	b.start.Do(func() {
		for i := 0; i < b.workers; i++ {
			b.wg.Add(1)
			go b.work()
		}
		b.logger.Info("event bus started", zap.Int("workers", b.workers), zap.Int("queue_size", cap(b.queue)))
	})
	return nil
}

// Stop rejects new events, drains the queue and waits for the workers or
// for ctx to end.
func (b *AsyncEventBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	close(b.queue)
	b.mu.Unlock()

	// Workers never started: drain inline so queued events are not lost.
	b.start.Do(func() {
		b.wg.Add(1)
		go b.work()
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Info("event bus stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *AsyncEventBus) work() {
	defer b.wg.Done()
	for env := range b.queue {
		for _, handler := range b.registry.GetHandlers(env.event.EventType()) {
			if err := b.dispatch(env.ctx, handler, env.event); err != nil {
				b.logger.Error("handler failed to process event",
					zap.String("event_type", env.event.EventType()),
					zap.String("event_id", env.event.EventID().String()),
					zap.Error(err),
				)
			}
		}
	}
}

func (b *AsyncEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event_type", event.EventType()),
				zap.Any("panic", r),
			)
		}
	}()
	return handler.Handle(ctx, event)
}

var _ shared.EventBus = (*AsyncEventBus)(nil)
