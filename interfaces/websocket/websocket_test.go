package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sketchroom-backend/application/ports"
	"sketchroom-backend/application/services"
	"sketchroom-backend/application/session"
	"sketchroom-backend/domain/core/entities"
)

type testFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
}

type testServer struct {
	hub *Hub
	url string
}

func newTestServer(t *testing.T, mutate func(*ServerConfig)) *testServer {
	t.Helper()
	logger := zap.NewNop()
	hub := NewHub(logger, nil, time.Minute)
	registry := services.NewRoomRegistry(services.RegistryConfig{})
	coordinator := session.NewCoordinator(registry, hub, logger, session.Config{})

	cfg := DefaultServerConfig()
	if mutate != nil {
		mutate(cfg)
	}
	srv := NewServer(hub, coordinator, cfg, logger)
	httpServer := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		httpServer.Close()
	})
	go hub.Run(ctx)

	return &testServer{hub: hub, url: "ws" + strings.TrimPrefix(httpServer.URL, "http")}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(ts.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	hello := readFrame(t, conn)
	require.Equal(t, session.MsgConnectionEstablished, hello.Type)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType, requestID string, data interface{}) {
	t.Helper()
	frame := map[string]interface{}{"type": msgType}
	if requestID != "" {
		frame["requestId"] = requestID
	}
	if data != nil {
		frame["data"] = data
	}
	require.NoError(t, conn.WriteJSON(frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) testFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f testFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// readUntil skips frames until one of msgType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) testFrame {
	t.Helper()
	for i := 0; i < 50; i++ {
		f := readFrame(t, conn)
		if f.Type == msgType {
			return f
		}
	}
	t.Fatalf("no %s frame received", msgType)
	return testFrame{}
}

func TestConnectionEstablished(t *testing.T) {
	ts := newTestServer(t, nil)
	conn, _, err := websocket.DefaultDialer.Dial(ts.url, nil)
	require.NoError(t, err)
	defer conn.Close()

	f := readFrame(t, conn)
	assert.Equal(t, session.MsgConnectionEstablished, f.Type)

	var data connectionEstablished
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.NotEmpty(t, data.ConnectionID)
	require.Eventually(t, func() bool { return ts.hub.IsConnected(data.ConnectionID) }, time.Second, 10*time.Millisecond)
}

func TestJoinAck(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	send(t, conn, FrameJoin, "req-1", map[string]string{"name": "  Ada  "})
	f := readUntil(t, conn, session.MsgAck)
	assert.Equal(t, "req-1", f.RequestID)

	var ack session.JoinAck
	require.NoError(t, json.Unmarshal(f.Data, &ack))
	assert.Equal(t, session.DefaultRoomID, ack.RoomID)
	assert.Equal(t, "Ada", ack.Presence.DisplayName)
	assert.Equal(t, "#e6194b", ack.Presence.Color)
	assert.Len(t, ack.Members, 1)
	assert.Empty(t, ack.Snapshot)
}

func TestStrokeBroadcast(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := ts.dial(t)
	bob := ts.dial(t)

	send(t, alice, FrameJoin, "a", map[string]string{"roomId": "r1", "name": "alice"})
	readUntil(t, alice, session.MsgAck)
	send(t, bob, FrameJoin, "b", map[string]string{"roomId": "r1", "name": "bob"})
	readUntil(t, bob, session.MsgAck)

	send(t, alice, FrameBeginStroke, "s1", map[string]interface{}{
		"roomId":       "r1",
		"style":        map[string]interface{}{"color": "#000000", "widthPx": 4, "mode": "brush"},
		"clientTempId": "tmp-1",
	})
	began := readUntil(t, bob, session.MsgBeginStroke)
	var sb session.StrokeBegan
	require.NoError(t, json.Unmarshal(began.Data, &sb))
	assert.Equal(t, "r1", sb.RoomID)
	assert.Equal(t, "tmp-1", sb.Operation.ClientTempID)

	send(t, alice, FrameStrokePoints, "", map[string]interface{}{
		"roomId": "r1",
		"points": []map[string]float64{{"x": 1, "y": 2}, {"x": 3, "y": 4}},
	})
	pts := readUntil(t, bob, session.MsgStrokePoints)
	var sp session.StrokePointsAppended
	require.NoError(t, json.Unmarshal(pts.Data, &sp))
	assert.Equal(t, sb.Operation.ID, sp.OperationID)
	assert.Len(t, sp.Points, 2)

	send(t, alice, FrameEndStroke, "", map[string]string{"roomId": "r1"})
	ended := readUntil(t, bob, session.MsgEndStroke)
	var se session.StrokeEnded
	require.NoError(t, json.Unmarshal(ended.Data, &se))
	assert.Equal(t, sb.Operation.ID, se.Operation.ID)
	assert.Len(t, se.Operation.Points, 2)

	send(t, bob, FrameUndo, "", map[string]string{"roomId": "r1"})
	replaced := readUntil(t, alice, session.MsgOpsReplaced)
	var or session.OpsReplaced
	require.NoError(t, json.Unmarshal(replaced.Data, &or))
	assert.Empty(t, or.Snapshot)
	require.NotNil(t, or.Action)
	assert.Equal(t, "bob", or.Action.By.DisplayName)
}

func TestDisconnectUpdatesMembers(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := ts.dial(t)
	bob := ts.dial(t)

	send(t, alice, FrameJoin, "", nil)
	readUntil(t, alice, session.MsgAck)
	send(t, bob, FrameJoin, "", nil)
	readUntil(t, bob, session.MsgAck)

	var members session.MemberListChanged
	for {
		f := readUntil(t, alice, session.MsgMemberListChanged)
		require.NoError(t, json.Unmarshal(f.Data, &members))
		if len(members.Members) == 2 {
			break
		}
	}

	require.NoError(t, bob.Close())
	f := readUntil(t, alice, session.MsgMemberListChanged)
	require.NoError(t, json.Unmarshal(f.Data, &members))
	assert.Equal(t, session.DefaultRoomID, members.RoomID)
	require.Len(t, members.Members, 1)
	assert.Equal(t, "Anonymous", members.Members[0].DisplayName)
}

func TestPingPong(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	send(t, conn, FramePing, "p-7", nil)
	f := readUntil(t, conn, session.MsgPong)
	assert.Equal(t, "p-7", f.RequestID)
}

func TestInvalidFrameGetsError(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)
	send(t, conn, FrameJoin, "", nil)
	readUntil(t, conn, session.MsgAck)

	send(t, conn, FrameBeginStroke, "bad", map[string]interface{}{
		"style": map[string]interface{}{"color": "chartreuse-ish", "widthPx": 4, "mode": "brush"},
	})
	f := readUntil(t, conn, session.MsgError)
	assert.Equal(t, "bad", f.RequestID)

	var payload session.ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "INVALID_ARGUMENT", payload.Code)

	// Validation errors leave the connection usable.
	send(t, conn, FramePing, "after", nil)
	assert.Equal(t, "after", readUntil(t, conn, session.MsgPong).RequestID)
}

func TestUnknownFrameType(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	send(t, conn, "paint", "x", nil)
	f := readUntil(t, conn, session.MsgError)
	var payload session.ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "INVALID_ARGUMENT", payload.Code)
	assert.Contains(t, payload.Message, "paint")
}

func TestRepeatedDecodeFailuresClose(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, session.MsgError, readFrame(t, conn).Type)
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseUnsupportedData), "got %v", err)
}

func TestRateLimitCloses(t *testing.T) {
	ts := newTestServer(t, func(cfg *ServerConfig) {
		cfg.Client.FramesPerSecond = 5
	})
	conn := ts.dial(t)

	for i := 0; i < 10; i++ {
		if err := conn.WriteJSON(map[string]string{"type": FramePing}); err != nil {
			break
		}
	}

	f := readUntil(t, conn, session.MsgError)
	var payload session.ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "RESOURCE_EXHAUSTED", payload.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestMaxConnections(t *testing.T) {
	ts := newTestServer(t, func(cfg *ServerConfig) {
		cfg.MaxConnections = 1
	})
	ts.dial(t)
	require.Eventually(t, func() bool { return ts.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(ts.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestOriginCheck(t *testing.T) {
	srv := NewServer(NewHub(nil, nil, 0), nil, &ServerConfig{AllowedOrigins: []string{"https://draw.example"}}, nil)

	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin", "", "localhost:3000", true},
		{"listed", "https://draw.example", "localhost:3000", true},
		{"same host", "http://localhost:3000", "localhost:3000", true},
		{"foreign", "https://evil.example", "localhost:3000", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, srv.checkOrigin(r))
		})
	}
}

type hubCounts struct {
	opened, closed, dropped int
}

func (c *hubCounts) ConnectionOpened() { c.opened++ }
func (c *hubCounts) ConnectionClosed() { c.closed++ }
func (c *hubCounts) ClientDropped()    { c.dropped++ }

func TestHubDropsSlowClient(t *testing.T) {
	counts := &hubCounts{}
	hub := NewHub(zap.NewNop(), counts, time.Minute)
	fast := &Client{id: "fast", producerID: "fast", send: make(chan []byte, 4)}
	slow := &Client{id: "slow", producerID: "slow", send: make(chan []byte, 1)}
	hub.Register(fast)
	hub.Register(slow)

	msg := ports.OutboundMessage{Type: session.MsgCursorMove}
	hub.Deliver([]string{"fast", "slow", "ghost"}, msg)
	hub.Deliver([]string{"fast", "slow"}, msg)

	assert.Equal(t, 1, hub.Count())
	assert.True(t, hub.IsConnected("fast"))
	assert.False(t, hub.IsConnected("slow"))
	assert.Len(t, fast.send, 2)
	assert.Equal(t, 1, counts.dropped)

	// The slow client's channel is closed after its queued frame.
	<-slow.send
	_, open := <-slow.send
	assert.False(t, open)

	// Later deliveries and unregisters are harmless.
	hub.Deliver([]string{"slow"}, msg)
	hub.Unregister(slow)
	assert.Equal(t, 2, counts.opened)
	assert.Equal(t, 1, counts.closed)
}

func TestHubEncodesOnce(t *testing.T) {
	hub := NewHub(nil, nil, 0)
	a := &Client{id: "a", producerID: "a", send: make(chan []byte, 1)}
	b := &Client{id: "b", producerID: "b", send: make(chan []byte, 1)}
	hub.Register(a)
	hub.Register(b)

	hub.Deliver([]string{"a", "b"}, ports.OutboundMessage{
		Type: session.MsgMemberListChanged,
		Data: session.MemberListChanged{RoomID: "main", Members: []entities.Presence{{ID: "a", DisplayName: "A", Color: "#e6194b"}}},
	})
	pa, pb := <-a.send, <-b.send
	assert.Equal(t, pa, pb)
	assert.JSONEq(t, `{"type":"memberListChanged","data":{"roomId":"main","members":[{"id":"a","displayName":"A","color":"#e6194b"}]}}`, string(pa))
}

func TestFrameLimiter(t *testing.T) {
	l := frameLimiter{limit: 3, window: time.Second}
	start := time.Unix(100, 0)
	for i := 0; i < 3; i++ {
		assert.True(t, l.allow(start.Add(time.Duration(i)*time.Millisecond)))
	}
	assert.False(t, l.allow(start.Add(10*time.Millisecond)))
	assert.True(t, l.allow(start.Add(time.Second)))

	unlimited := frameLimiter{}
	for i := 0; i < 1000; i++ {
		require.True(t, unlimited.allow(start))
	}
}

func TestNormalizeDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"  Ada  ", 64, "Ada"},
		{"bell\x07name", 64, "bellname"},
		{"Cafe\u0301", 64, "Caf\u00e9"},
		{"abcdef", 3, "abc"},
		{"ab cd", 3, "ab"},
		{"\t\n", 64, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDisplayName(tt.in, tt.max))
		})
	}
}

func TestDispatchValidation(t *testing.T) {
	d := NewDispatcher(ProtocolConfig{MaxRoomIDRunes: 4})
	registry := services.NewRoomRegistry(services.RegistryConfig{})
	coordinator := session.NewCoordinator(registry, &nopBroadcaster{}, nil, session.Config{})
	s := coordinator.NewSession("p1")

	raw := func(v interface{}) json.RawMessage {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return b
	}

	tests := []struct {
		name  string
		frame InboundFrame
	}{
		{"room too long", InboundFrame{Type: FrameJoin, Data: raw(map[string]string{"roomId": "abcde"})}},
		{"bad payload", InboundFrame{Type: FrameCursorMove, Data: json.RawMessage(`[1,2]`)}},
		{"missing style", InboundFrame{Type: FrameBeginStroke, Data: raw(map[string]string{})}},
		{"width zero", InboundFrame{Type: FrameBeginStroke, Data: raw(map[string]interface{}{
			"style": map[string]interface{}{"color": "#fff", "widthPx": 0, "mode": "brush"},
		})}},
		{"bad mode", InboundFrame{Type: FrameBeginStroke, Data: raw(map[string]interface{}{
			"style": map[string]interface{}{"color": "#fff", "widthPx": 2, "mode": "spray"},
		})}},
		{"no points", InboundFrame{Type: FrameStrokePoints, Data: raw(map[string]interface{}{"points": []interface{}{}})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), s, tt.frame)
			require.Error(t, err)
			assert.Equal(t, "INVALID_ARGUMENT", errorFrame("", err).Data.(session.ErrorPayload).Code)
		})
	}

	assert.Empty(t, s.Rooms())
}

func TestDecodeFrame(t *testing.T) {
	_, err := DecodeFrame([]byte(`nope`))
	assert.Error(t, err)

	_, err = DecodeFrame([]byte(`{"data":{}}`))
	assert.Error(t, err)

	f, err := DecodeFrame([]byte(`{"type":"undo","requestId":"r","data":{"roomId":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, FrameUndo, f.Type)
	assert.Equal(t, "r", f.RequestID)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Deliver([]string, ports.OutboundMessage) {}
