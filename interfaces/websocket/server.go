package websocket

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sketchroom-backend/application/session"
)

// Server upgrades HTTP requests into drawing sessions.
type Server struct {
	hub         *Hub
	coordinator *session.Coordinator
	dispatcher  *Dispatcher
	upgrader    websocket.Upgrader
	config      *ServerConfig
	logger      *zap.Logger
}

// ServerConfig holds WebSocket server configuration
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxConnections  int
	AllowedOrigins  []string
	Client          ClientConfig
	Protocol        ProtocolConfig
}

// DefaultServerConfig returns default WebSocket server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxConnections:  1000,
		AllowedOrigins:  []string{"*"},
		Client:          DefaultClientConfig(),
		Protocol:        ProtocolConfig{MaxRoomIDRunes: 128, MaxDisplayNameRunes: 64},
	}
}

// NewServer creates a new WebSocket server
func NewServer(hub *Hub, coordinator *session.Coordinator, config *ServerConfig, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		hub:         hub,
		coordinator: coordinator,
		dispatcher:  NewDispatcher(config.Protocol),
		config:      config,
		logger:      logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// HandleWebSocket handles WebSocket upgrade requests
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxConnections > 0 && s.hub.Count() >= s.config.MaxConnections {
		s.logger.Warn("Connection limit reached",
			zap.Int("maxConnections", s.config.MaxConnections),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		http.Error(w, "Connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	id := uuid.NewString()
	sess := s.coordinator.NewSession(id)
	client := NewClient(id, s.hub, conn, sess, s.dispatcher, s.config.Client, s.logger)
	client.Start(context.WithoutCancel(r.Context()))

	s.logger.Info("New WebSocket connection established",
		zap.String("connectionID", id),
		zap.String("remoteAddr", r.RemoteAddr),
	)
}

// checkOrigin admits requests without an Origin header (non-browser
// clients), same-host origins, and origins listed in the config. "*" admits
// everything.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	s.logger.Warn("Rejected websocket origin", zap.String("origin", origin))
	return false
}
