package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"sketchroom-backend/application/ports"
)

// HubMetrics receives connection lifecycle counts.
type HubMetrics interface {
	ConnectionOpened()
	ConnectionClosed()
	ClientDropped()
}

type noopHubMetrics struct{}

func (noopHubMetrics) ConnectionOpened() {}
func (noopHubMetrics) ConnectionClosed() {}
func (noopHubMetrics) ClientDropped()    {}

// Hub maintains active connections keyed by producer id and fans frames out
// to them. It implements ports.Broadcaster.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	healthInterval time.Duration
	metrics        HubMetrics
	logger         *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	sent    atomic.Int64
	dropped atomic.Int64
}

var _ ports.Broadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger, metrics HubMetrics, healthInterval time.Duration) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopHubMetrics{}
	}
	if healthInterval <= 0 {
		healthInterval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:        make(map[string]*Client),
		healthInterval: healthInterval,
		metrics:        metrics,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Run performs periodic health logging until ctx or the hub is stopped, then
// closes every connection.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllConnections()
			return
		case <-h.ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllConnections()
			return
		case <-ticker.C:
			h.performHealthCheck()
		}
	}
}

// Stop gracefully shuts down the hub
func (h *Hub) Stop() {
	h.logger.Info("Stopping WebSocket hub")
	h.cancel()
}

// Register adds a client. A second connection with the same producer id
// replaces the first, which is closed.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	prev := h.clients[client.producerID]
	h.clients[client.producerID] = client
	total := len(h.clients)
	h.mu.Unlock()

	if prev != nil && prev != client {
		prev.closeSend()
		h.metrics.ConnectionClosed()
	}
	h.metrics.ConnectionOpened()

	h.logger.Info("Client registered",
		zap.String("producerID", client.producerID),
		zap.String("connectionID", client.id),
		zap.Int("totalConnections", total),
	)
}

// Unregister removes a client and closes its send channel. Safe to call more
// than once.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.producerID]
	removed := ok && current == client
	if removed {
		delete(h.clients, client.producerID)
	}
	total := len(h.clients)
	h.mu.Unlock()

	client.closeSend()
	if removed {
		h.metrics.ConnectionClosed()
		h.logger.Info("Client unregistered",
			zap.String("producerID", client.producerID),
			zap.String("connectionID", client.id),
			zap.Int("totalConnections", total),
		)
	}
}

// Deliver encodes msg once and enqueues it for each connected recipient.
// A recipient whose buffer is full is disconnected rather than waited on.
func (h *Hub) Deliver(recipients []string, msg ports.OutboundMessage) {
	if len(recipients) == 0 {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal frame", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	var slow []*Client
	h.mu.RLock()
	for _, id := range recipients {
		client, ok := h.clients[id]
		if !ok {
			continue
		}
		if client.enqueue(payload) {
			h.sent.Add(1)
		} else {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Client send buffer full, disconnecting",
			zap.String("producerID", client.producerID),
			zap.String("type", msg.Type),
		)
		h.metrics.ClientDropped()
		h.dropped.Add(1)
		h.Unregister(client)
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsConnected reports whether producerID has an open connection.
func (h *Hub) IsConnected(producerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[producerID]
	return ok
}

// closeAllConnections closes every send channel; write pumps then send a
// close frame and tear the connections down.
func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, id)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.closeSend()
		h.metrics.ConnectionClosed()
	}
	h.logger.Info("All connections closed", zap.Int("count", len(clients)))
}

func (h *Hub) performHealthCheck() {
	h.logger.Debug("Hub health check",
		zap.Int("activeConnections", h.Count()),
		zap.Int64("framesSent", h.sent.Load()),
		zap.Int64("clientsDropped", h.dropped.Load()),
	)
}
