package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sketchroom-backend/application/ports"
	"sketchroom-backend/application/session"
	pkgerrors "sketchroom-backend/pkg/errors"
)

// ClientConfig bounds a single connection.
type ClientConfig struct {
	SendBufferSize    int
	MaxMessageBytes   int64
	WriteWait         time.Duration
	PongWait          time.Duration
	PingPeriod        time.Duration
	FramesPerSecond   int
	MaxDecodeFailures int
}

// DefaultClientConfig returns the keepalive and limit defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SendBufferSize:    256,
		MaxMessageBytes:   64 * 1024,
		WriteWait:         10 * time.Second,
		PongWait:          60 * time.Second,
		PingPeriod:        54 * time.Second,
		FramesPerSecond:   240,
		MaxDecodeFailures: 3,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	d := DefaultClientConfig()
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = d.SendBufferSize
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = d.MaxMessageBytes
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.MaxDecodeFailures <= 0 {
		c.MaxDecodeFailures = d.MaxDecodeFailures
	}
	return c
}

type connectionEstablished struct {
	ConnectionID string `json:"connectionId"`
}

// Client represents a WebSocket client connection
type Client struct {
	id         string
	producerID string
	hub        *Hub
	conn       *websocket.Conn
	session    *session.Session
	dispatcher *Dispatcher
	cfg        ClientConfig
	logger     *zap.Logger

	send chan []byte

	mu         sync.Mutex
	closed     bool
	closeFrame []byte

	limiter frameLimiter
}

// NewClient creates a new WebSocket client. The connection id doubles as the
// producer id its session draws under.
func NewClient(id string, hub *Hub, conn *websocket.Conn, sess *session.Session, dispatcher *Dispatcher, cfg ClientConfig, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		id:         id,
		producerID: sess.ProducerID(),
		hub:        hub,
		conn:       conn,
		session:    sess,
		dispatcher: dispatcher,
		cfg:        cfg,
		send:       make(chan []byte, cfg.SendBufferSize),
		logger: logger.With(
			zap.String("connectionID", id),
		),
		limiter: frameLimiter{limit: cfg.FramesPerSecond, window: time.Second},
	}
}

// Start registers the client and begins its read and write pumps.
func (c *Client) Start(ctx context.Context) {
	c.hub.Register(c)
	c.sendConnectionEstablished()

	go c.writePump()
	go c.readPump(ctx)
}

// enqueue hands payload to the write pump without blocking. It returns false
// when the buffer is full; a closed client swallows the frame.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend ends the write pump after it drains what is queued.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// closeWith queues a final frame, records the close reason and shuts the
// connection down.
func (c *Client) closeWith(final ports.OutboundMessage, code int, reason string) {
	if payload, err := json.Marshal(final); err == nil {
		c.enqueue(payload)
	}
	c.mu.Lock()
	c.closeFrame = websocket.FormatCloseMessage(code, reason)
	c.mu.Unlock()
	c.hub.Unregister(c)
}

func (c *Client) reply(msg ports.OutboundMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal reply", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	if !c.enqueue(payload) {
		c.logger.Warn("Client send buffer full, disconnecting")
		c.hub.metrics.ClientDropped()
		c.hub.Unregister(c)
	}
}

// readPump feeds frames to the session in arrival order.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.session.Disconnect(ctx)
		c.hub.Unregister(c)
		c.logger.Info("Read pump stopped")
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	decodeFailures := 0
	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		// Any frame proves the peer is alive.
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))

		if !c.limiter.allow(time.Now()) {
			c.logger.Warn("Frame rate exceeded, closing", zap.Int("limit", c.cfg.FramesPerSecond))
			err := pkgerrors.NewRateLimitError(c.cfg.FramesPerSecond, "1s")
			c.closeWith(errorFrame("", err), websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		var frame InboundFrame
		if messageType != websocket.TextMessage {
			err = pkgerrors.NewValidationError("only text frames are supported")
		} else {
			frame, err = DecodeFrame(bytes.TrimSpace(message))
		}
		if err != nil {
			decodeFailures++
			if decodeFailures >= c.cfg.MaxDecodeFailures {
				c.logger.Warn("Too many undecodable frames, closing", zap.Int("failures", decodeFailures))
				c.closeWith(errorFrame("", err), websocket.CloseUnsupportedData, "too many invalid frames")
				return
			}
			c.reply(errorFrame("", err))
			continue
		}
		decodeFailures = 0

		out, err := c.dispatcher.Dispatch(ctx, c.session, frame)
		if err != nil {
			c.logger.Debug("Frame rejected", zap.String("type", frame.Type), zap.Error(err))
			c.reply(errorFrame(frame.RequestID, err))
			continue
		}
		if out != nil {
			c.reply(*out)
		}
	}
}

// writePump pumps queued frames to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Debug("Write pump stopped")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.mu.Lock()
				frame := c.closeFrame
				c.mu.Unlock()
				if frame == nil {
					frame = websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				}
				_ = c.conn.WriteMessage(websocket.CloseMessage, frame)
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// sendConnectionEstablished sends an initial connection message
func (c *Client) sendConnectionEstablished() {
	c.reply(ports.OutboundMessage{
		Type: session.MsgConnectionEstablished,
		Data: connectionEstablished{ConnectionID: c.id},
	})
}

// GetID returns the client's connection ID
func (c *Client) GetID() string {
	return c.id
}

// frameLimiter counts frames in fixed windows.
type frameLimiter struct {
	limit       int
	window      time.Duration
	windowStart time.Time
	count       int
}

func (l *frameLimiter) allow(now time.Time) bool {
	if l.limit <= 0 {
		return true
	}
	if now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}
	l.count++
	return l.count <= l.limit
}
