// Package events publishes record change events.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitabwire/dealerdesk/model"
)

// Event types.
const (
	TypeRecordCreated = "record.created"
	TypeRecordUpdated = "record.updated"
)

// ErrClosed is returned when publishing on a closed publisher.
var ErrClosed = errors.New("events: publisher closed")

// Event describes a change to a stored record.
type Event struct {
	ID            string           `json:"id"`
	Type          string           `json:"type"`
	Collection    string           `json:"collection"`
	RecordID      model.Identifier `json:"record_id"`
	Record        model.Record     `json:"record,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// NewRecordEvent builds an event for a saved record. created selects the
// event type.
func NewRecordEvent(collection string, id model.Identifier, record model.Record, created bool) Event {
	typ := TypeRecordUpdated
	if created {
		typ = TypeRecordCreated
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Collection: collection,
		RecordID:   id,
		Record:     model.CloneRecord(record),
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// MemoryPublisher keeps published events in memory. For tests and local runs.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

// NewMemoryPublisher creates an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records the event.
func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of every published event in order.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Close marks the publisher closed.
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
