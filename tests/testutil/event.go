package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/meterly/backend/internal/domain/shared"
)

// RecordingPublisher captures published events. It can stand in for both an
// EventPublisher and an EventHandler.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
	err    error
}

var (
	_ shared.EventPublisher = (*RecordingPublisher)(nil)
	_ shared.EventHandler   = (*RecordingPublisher)(nil)
)

// NewRecordingPublisher creates an empty recorder
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

// Publish records events and returns the configured error
func (p *RecordingPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return p.err
}

// Handle records a single event
func (p *RecordingPublisher) Handle(ctx context.Context, event shared.DomainEvent) error {
	return p.Publish(ctx, event)
}

// EventTypes subscribes to everything
func (p *RecordingPublisher) EventTypes() []string { return nil }

// SetError makes later Publish calls fail
func (p *RecordingPublisher) SetError(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Events returns a copy of everything recorded
func (p *RecordingPublisher) Events() []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.DomainEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Types returns the recorded event types in order
func (p *RecordingPublisher) Types() []string {
	events := p.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.EventType()
	}
	return out
}

// OfType returns recorded events with the given type
func (p *RecordingPublisher) OfType(eventType string) []shared.DomainEvent {
	var out []shared.DomainEvent
	for _, e := range p.Events() {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops recorded events
func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

// WaitForCount blocks until at least n events were recorded
func (p *RecordingPublisher) WaitForCount(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(p.Events()) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return len(p.Events()) >= n
}
