package di

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"sketchroom-backend/application/ports"
	"sketchroom-backend/application/services"
	"sketchroom-backend/application/session"
	"sketchroom-backend/domain/core/valueobjects"
	"sketchroom-backend/infrastructure/export"
	"sketchroom-backend/infrastructure/messaging/eventbridge"
	"sketchroom-backend/interfaces/http/rest"
	"sketchroom-backend/interfaces/http/rest/handlers"
	"sketchroom-backend/interfaces/websocket"
	"sketchroom-backend/internal/config"
	"sketchroom-backend/internal/infrastructure/observability"
)

// Version is stamped into traces.
var Version = "dev"

// ProvideCollector creates the Prometheus collector. It is created even when
// the endpoint is disabled so the room and hub code can record unconditionally.
func ProvideCollector(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(cfg.Metrics.Namespace)
}

// ProvideTracerProvider installs the OpenTelemetry provider.
func ProvideTracerProvider(ctx context.Context, cfg *config.Config) (*observability.TracerProvider, error) {
	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     Version,
		Environment: string(cfg.Environment),
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	return tp, nil
}

// ProvideTracer exposes the tracer handed to the coordinator and router.
func ProvideTracer(tp *observability.TracerProvider) trace.Tracer {
	return tp.Tracer()
}

// ProvideRoomRegistry creates the in-memory room registry.
func ProvideRoomRegistry(cfg *config.Config) *services.RoomRegistry {
	return services.NewRoomRegistry(services.RegistryConfig{
		Palette:      valueobjects.Palette(cfg.Drawing.Palette),
		MaxLogLength: cfg.Drawing.MaxLogLength,
	})
}

// ProvideHub creates the connection hub. Connection counts feed the collector.
func ProvideHub(cfg *config.Config, collector *observability.Collector, logger *zap.Logger) *websocket.Hub {
	return websocket.NewHub(logger.Named("hub"), collector, cfg.WebSocket.HealthInterval)
}

// ProvideEventPublisher returns the activity publisher. With events disabled
// it is a no-op; otherwise EventBridge calls run on a background worker so
// room traffic never waits on AWS.
func ProvideEventPublisher(ctx context.Context, cfg *config.Config, collector *observability.Collector, logger *zap.Logger) (ports.EventPublisher, error) {
	if !cfg.Events.Enabled {
		return eventbridge.NoopPublisher{}, nil
	}

	client, err := eventbridge.NewClient(ctx, cfg.Events.Region)
	if err != nil {
		return nil, err
	}
	log := logger.Named("events")
	publisher := eventbridge.NewPublisher(client, eventbridge.PublisherConfig{
		EventBusName: cfg.Events.EventBusName,
		Source:       cfg.Events.Source,
		MaxRetries:   cfg.Events.MaxRetries,
	}, log)

	return eventbridge.NewAsyncPublisher(publisher, eventbridge.AsyncConfig{
		QueueSize:      cfg.Events.QueueSize,
		BatchSize:      cfg.Events.BatchSize,
		FlushInterval:  cfg.Events.FlushInterval,
		PublishTimeout: cfg.Events.PublishTimeout,
	}, collector, log), nil
}

// ProvideCoordinator creates the session coordinator.
func ProvideCoordinator(
	cfg *config.Config,
	registry *services.RoomRegistry,
	hub *websocket.Hub,
	publisher ports.EventPublisher,
	collector *observability.Collector,
	tracer trace.Tracer,
	logger *zap.Logger,
) *session.Coordinator {
	return session.NewCoordinator(registry, hub, logger.Named("session"), session.Config{
		DefaultRoom:        cfg.Drawing.DefaultRoom,
		DefaultDisplayName: cfg.Drawing.DefaultDisplayName,
		UndoDebounce:       cfg.Drawing.UndoDebounce,
	},
		session.WithMetrics(collector),
		session.WithTracer(tracer),
		session.WithPublisher(publisher),
	)
}

// ProvideWebSocketServer creates the upgrade handler.
func ProvideWebSocketServer(cfg *config.Config, hub *websocket.Hub, coordinator *session.Coordinator, logger *zap.Logger) *websocket.Server {
	ws := cfg.WebSocket
	return websocket.NewServer(hub, coordinator, &websocket.ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxConnections:  ws.MaxConnections,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		Client: websocket.ClientConfig{
			SendBufferSize:    ws.SendBufferSize,
			MaxMessageBytes:   ws.MaxMessageBytes,
			WriteWait:         ws.WriteWait,
			PongWait:          ws.PongWait,
			PingPeriod:        ws.PingPeriod,
			FramesPerSecond:   ws.FramesPerSecond,
			MaxDecodeFailures: ws.MaxDecodeFailures,
		},
		Protocol: websocket.ProtocolConfig{
			MaxRoomIDRunes:      cfg.Drawing.MaxRoomIDRunes,
			MaxDisplayNameRunes: cfg.Drawing.MaxDisplayNameRunes,
		},
	}, logger.Named("websocket"))
}

// ProvideSnapshotRenderer selects the PDF export renderer.
func ProvideSnapshotRenderer() handlers.SnapshotRenderer {
	return export.NewPDFRenderer()
}

// ProvideRoomHandler creates the room inspection handlers.
func ProvideRoomHandler(registry *services.RoomRegistry, renderer handlers.SnapshotRenderer, logger *zap.Logger) *handlers.RoomHandler {
	return handlers.NewRoomHandler(registry, renderer, logger)
}

// ProvideRouter assembles the HTTP surface. The metrics endpoint and its
// request histogram are only mounted when metrics are enabled.
func ProvideRouter(
	cfg *config.Config,
	rooms *handlers.RoomHandler,
	ws *websocket.Server,
	collector *observability.Collector,
	tracer trace.Tracer,
	logger *zap.Logger,
) http.Handler {
	var exposed *observability.Collector
	if cfg.Metrics.Enabled {
		exposed = collector
	}
	return rest.NewRouter(rest.RouterConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MetricsPath:    cfg.Metrics.Path,
		StaticDir:      cfg.Server.StaticDir,
	}, rooms, http.HandlerFunc(ws.HandleWebSocket), exposed, tracer, logger).Setup()
}
