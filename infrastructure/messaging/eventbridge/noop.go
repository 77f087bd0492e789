package eventbridge

import (
	"context"

	"sketchroom-backend/domain/events"
)

// NoopPublisher discards events. Used when publishing is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, events.DomainEvent) error { return nil }

func (NoopPublisher) PublishBatch(context.Context, []events.DomainEvent) error { return nil }
