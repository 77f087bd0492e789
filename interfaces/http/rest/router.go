package rest

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"sketchroom-backend/interfaces/http/rest/handlers"
	"sketchroom-backend/internal/infrastructure/observability"
	"sketchroom-backend/internal/middleware"
	"sketchroom-backend/pkg/api"
)

// RouterConfig selects the optional parts of the HTTP surface.
type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	MetricsPath    string
	StaticDir      string
}

// Router creates and configures the HTTP router
type Router struct {
	config    RouterConfig
	rooms     *handlers.RoomHandler
	websocket http.Handler
	collector *observability.Collector
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewRouter creates a new router instance. collector and tracer may be nil.
func NewRouter(
	config RouterConfig,
	rooms *handlers.RoomHandler,
	websocket http.Handler,
	collector *observability.Collector,
	tracer trace.Tracer,
	logger *zap.Logger,
) *Router {
	if config.ServiceName == "" {
		config.ServiceName = "sketchroom"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	return &Router{
		config:    config,
		rooms:     rooms,
		websocket: websocket,
		collector: collector,
		tracer:    tracer,
		logger:    logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Recovery(rt.logger))
	if rt.tracer != nil {
		router.Use(observability.TracingMiddleware(rt.tracer))
	}
	var recorder middleware.RequestRecorder
	if rt.collector != nil {
		recorder = rt.collector
	}
	router.Use(middleware.Logger(rt.logger, recorder))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	router.Get("/health", rt.healthCheck)
	if rt.collector != nil {
		router.Method(http.MethodGet, rt.config.MetricsPath, rt.collector.Handler())
	}
	router.Method(http.MethodGet, "/ws", rt.websocket)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", rt.rooms.ListRooms)
			r.Get("/{roomId}", rt.rooms.GetRoom)
			r.Get("/{roomId}/snapshot", rt.rooms.GetSnapshot)
			r.Get("/{roomId}/export.pdf", rt.rooms.ExportPDF)
		})
	})

	if rt.config.StaticDir != "" {
		if info, err := os.Stat(rt.config.StaticDir); err == nil && info.IsDir() {
			router.Handle("/*", http.FileServer(http.Dir(rt.config.StaticDir)))
		} else {
			rt.logger.Warn("Static directory not found, not serving client",
				zap.String("dir", rt.config.StaticDir))
		}
	}

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	api.Success(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": rt.config.ServiceName,
	})
}
