//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"sketchroom-backend/internal/config"
)

// ObservabilitySet provides metrics and tracing.
var ObservabilitySet = wire.NewSet(
	ProvideCollector,
	ProvideTracerProvider,
	ProvideTracer,
)

// RoomSet provides room state and the session protocol.
var RoomSet = wire.NewSet(
	ProvideRoomRegistry,
	ProvideEventPublisher,
	ProvideCoordinator,
)

// TransportSet provides the websocket and REST surfaces.
var TransportSet = wire.NewSet(
	ProvideHub,
	ProvideWebSocketServer,
	ProvideSnapshotRenderer,
	ProvideRoomHandler,
	ProvideRouter,
)

// SuperSet contains every provider.
var SuperSet = wire.NewSet(
	ObservabilitySet,
	RoomSet,
	TransportSet,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer builds the application graph.
func InitializeContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil
}
