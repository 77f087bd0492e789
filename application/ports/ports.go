package ports

import (
	"context"
	"time"

	"sketchroom-backend/domain/events"
)

// OutboundMessage is a server-to-client frame before encoding.
type OutboundMessage struct {
	Type      string      `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Broadcaster delivers frames to connected producers.
type Broadcaster interface {
	// Deliver enqueues msg for every recipient without blocking. Unknown
	// recipients are skipped.
	Deliver(recipients []string, msg OutboundMessage)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// Clock returns the current time. Injected so debounce windows can be driven
// from tests.
type Clock func() time.Time
