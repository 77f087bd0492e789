// Package di wires the server's components together with google/wire.
package di

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"sketchroom-backend/application/ports"
	"sketchroom-backend/application/services"
	"sketchroom-backend/application/session"
	"sketchroom-backend/interfaces/websocket"
	"sketchroom-backend/internal/config"
	"sketchroom-backend/internal/infrastructure/observability"
)

// Container holds every long-lived component.
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	Collector   *observability.Collector
	Tracing     *observability.TracerProvider
	Registry    *services.RoomRegistry
	Hub         *websocket.Hub
	Publisher   ports.EventPublisher
	Coordinator *session.Coordinator
	WebSocket   *websocket.Server
	Router      http.Handler
}

// Worker is a component with a background loop that must run for the
// lifetime of the server.
type Worker interface {
	Run(ctx context.Context) error
}

// Workers returns the background loops the container needs running.
func (c *Container) Workers() []Worker {
	workers := []Worker{hubWorker{c.Hub}}
	if w, ok := c.Publisher.(Worker); ok {
		workers = append(workers, w)
	}
	return workers
}

// Shutdown flushes the tracer.
func (c *Container) Shutdown(ctx context.Context) error {
	return c.Tracing.Shutdown(ctx)
}

type hubWorker struct{ hub *websocket.Hub }

func (w hubWorker) Run(ctx context.Context) error {
	w.hub.Run(ctx)
	return nil
}
