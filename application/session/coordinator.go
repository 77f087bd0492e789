// Package session translates the events of one connection into room registry
// calls and decides who hears about the result.
package session

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"sketchroom-backend/application/ports"
	"sketchroom-backend/application/services"
	"sketchroom-backend/domain/core/entities"
	"sketchroom-backend/domain/core/valueobjects"
	"sketchroom-backend/domain/events"
)

const (
	DefaultRoomID       = "main"
	DefaultDisplayName  = "Anonymous"
	DefaultUndoDebounce = 300 * time.Millisecond
)

// Metrics receives coordinator counters. Implemented by the observability
// collector.
type Metrics interface {
	RecordEvent(eventType string)
	RecordBroadcast(msgType string, recipients int)
	RecordUndoSuppressed()
	RecordOperationFinalized()
	SetRoomsActive(n int)
}

type noopMetrics struct{}

func (noopMetrics) RecordEvent(string)          {}
func (noopMetrics) RecordBroadcast(string, int) {}
func (noopMetrics) RecordUndoSuppressed()       {}
func (noopMetrics) RecordOperationFinalized()   {}
func (noopMetrics) SetRoomsActive(int)          {}

// Config holds the coordinator's protocol defaults.
type Config struct {
	DefaultRoom        string
	DefaultDisplayName string
	UndoDebounce       time.Duration
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now, mainly for driving the undo debounce in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithPublisher attaches a domain event publisher.
func WithPublisher(p ports.EventPublisher) Option {
	return func(c *Coordinator) {
		c.publisher = p
	}
}

// Coordinator owns the protocol rules shared by every session.
type Coordinator struct {
	registry  *services.RoomRegistry
	out       ports.Broadcaster
	publisher ports.EventPublisher
	metrics   Metrics
	tracer    trace.Tracer
	logger    *zap.Logger
	cfg       Config
	now       func() time.Time
}

// NewCoordinator creates a coordinator over registry that delivers frames
// through out.
func NewCoordinator(registry *services.RoomRegistry, out ports.Broadcaster, logger *zap.Logger, cfg Config, opts ...Option) *Coordinator {
	if cfg.DefaultRoom == "" {
		cfg.DefaultRoom = DefaultRoomID
	}
	if cfg.DefaultDisplayName == "" {
		cfg.DefaultDisplayName = DefaultDisplayName
	}
	if cfg.UndoDebounce < 0 {
		cfg.UndoDebounce = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		registry: registry,
		out:      out,
		metrics:  noopMetrics{},
		tracer:   otel.Tracer("sketchroom/session"),
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSession starts the protocol state machine for one connection.
func (c *Coordinator) NewSession(producerID string) *Session {
	return &Session{
		c:          c,
		producerID: producerID,
		logger:     c.logger.With(zap.String("producerID", producerID)),
		joined:     make(map[string]struct{}),
	}
}

func (c *Coordinator) send(recipients []string, msg ports.OutboundMessage) {
	if len(recipients) == 0 {
		return
	}
	c.out.Deliver(recipients, msg)
	c.metrics.RecordBroadcast(msg.Type, len(recipients))
}

func (c *Coordinator) publish(ctx context.Context, event events.DomainEvent) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Debug("Domain event not published",
			zap.String("eventType", event.GetEventType()),
			zap.String("roomID", event.GetAggregateID()),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) startSpan(ctx context.Context, name, roomID, producerID string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "session."+name, trace.WithAttributes(
		attribute.String("room.id", roomID),
		attribute.String("producer.id", producerID),
	))
}

func memberIDs(members []entities.Presence) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids
}

func othersOf(members []entities.Presence, self string) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.ID != self {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Session is the per-connection state machine. A session starts unjoined,
// gains rooms through Join, and ends on Disconnect. Events naming a room the
// session has not joined are ignored.
//
// Methods are meant to be called from the connection's read loop, one at a
// time, which preserves per-connection ordering.
type Session struct {
	c          *Coordinator
	producerID string
	logger     *zap.Logger

	mu     sync.Mutex
	joined map[string]struct{}
	closed bool
}

// ProducerID returns the id this session draws under.
func (s *Session) ProducerID() string { return s.producerID }

// Rooms returns the rooms this session has joined.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.joined))
	for id := range s.joined {
		out = append(out, id)
	}
	return out
}

func (s *Session) resolveRoom(roomID string) string {
	if roomID == "" {
		return s.c.cfg.DefaultRoom
	}
	return roomID
}

func (s *Session) isJoined(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.joined[roomID]
	return ok && !s.closed
}

// admit resolves the room and reports whether the event may proceed.
func (s *Session) admit(eventType, roomID string) (string, bool) {
	s.c.metrics.RecordEvent(eventType)
	roomID = s.resolveRoom(roomID)
	if !s.isJoined(roomID) {
		s.logger.Debug("Ignoring event for unjoined room",
			zap.String("event", eventType),
			zap.String("roomID", roomID),
		)
		return roomID, false
	}
	return roomID, true
}

// Join adds the producer to the room, acks the sender with the room state and
// pushes the new member list to everyone in the room.
func (s *Session) Join(ctx context.Context, requestID, roomID, displayName string) (JoinAck, bool) {
	s.c.metrics.RecordEvent("join")
	roomID = s.resolveRoom(roomID)
	if displayName == "" {
		displayName = s.c.cfg.DefaultDisplayName
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return JoinAck{}, false
	}

	ctx, span := s.c.startSpan(ctx, "Join", roomID, s.producerID)
	defer span.End()

	reg := s.c.registry
	var ack JoinAck
	reg.Serialize(roomID, func() {
		presence := reg.AddMember(roomID, s.producerID, displayName)
		members := reg.ListMembers(roomID)
		ack = JoinAck{
			RoomID:   roomID,
			Presence: presence,
			Members:  members,
			Snapshot: reg.Snapshot(roomID),
		}
		s.c.send([]string{s.producerID}, ports.OutboundMessage{Type: MsgAck, RequestID: requestID, Data: ack})
		s.c.send(memberIDs(members), ports.OutboundMessage{
			Type: MsgMemberListChanged,
			Data: MemberListChanged{RoomID: roomID, Members: members},
		})
	})

	s.mu.Lock()
	s.joined[roomID] = struct{}{}
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("room.members", len(ack.Members)))
	s.c.metrics.SetRoomsActive(reg.Len())
	s.logger.Info("Joined room",
		zap.String("roomID", roomID),
		zap.String("displayName", displayName),
		zap.Int("members", len(ack.Members)),
	)
	s.c.publish(ctx, events.NewMemberJoined(roomID, s.producerID, displayName, len(ack.Members), s.c.now()))
	return ack, true
}

// CursorMove relays the producer's pointer position to the rest of the room.
func (s *Session) CursorMove(ctx context.Context, roomID string, x, y float64) {
	roomID, ok := s.admit("cursorMove", roomID)
	if !ok {
		return
	}
	reg := s.c.registry
	reg.Serialize(roomID, func() {
		s.c.send(othersOf(reg.ListMembers(roomID), s.producerID), ports.OutboundMessage{
			Type: MsgCursorMove,
			Data: CursorMoved{RoomID: roomID, ProducerID: s.producerID, X: x, Y: y},
		})
	})
}

// BeginStroke starts a stroke, acks the sender with the server-assigned
// operation and announces it to the rest of the room.
func (s *Session) BeginStroke(ctx context.Context, requestID, roomID string, style valueobjects.StrokeStyle, clientTempID string) (*entities.Operation, bool) {
	roomID, ok := s.admit("beginStroke", roomID)
	if !ok {
		return nil, false
	}
	_, span := s.c.startSpan(ctx, "BeginStroke", roomID, s.producerID)
	defer span.End()

	reg := s.c.registry
	var op *entities.Operation
	reg.Serialize(roomID, func() {
		op = reg.BeginOperation(roomID, s.producerID, style, clientTempID)
		payload := StrokeBegan{RoomID: roomID, Operation: op}
		s.c.send([]string{s.producerID}, ports.OutboundMessage{Type: MsgAck, RequestID: requestID, Data: payload})
		s.c.send(othersOf(reg.ListMembers(roomID), s.producerID), ports.OutboundMessage{Type: MsgBeginStroke, Data: payload})
	})
	span.SetAttributes(attribute.String("operation.id", op.ID))
	return op, true
}

// StrokePoints appends to the producer's in-progress stroke and relays the
// batch when the append succeeded.
func (s *Session) StrokePoints(ctx context.Context, roomID string, points []valueobjects.Point) bool {
	roomID, ok := s.admit("strokePoints", roomID)
	if !ok || len(points) == 0 {
		return false
	}
	reg := s.c.registry
	var appended bool
	reg.Serialize(roomID, func() {
		var op *entities.Operation
		op, appended = reg.AppendPoints(roomID, s.producerID, points)
		if !appended {
			return
		}
		s.c.send(othersOf(reg.ListMembers(roomID), s.producerID), ports.OutboundMessage{
			Type: MsgStrokePoints,
			Data: StrokePointsAppended{RoomID: roomID, ProducerID: s.producerID, OperationID: op.ID, Points: points},
		})
	})
	return appended
}

// EndStroke commits the producer's stroke and sends it to the whole room.
func (s *Session) EndStroke(ctx context.Context, roomID string) (*entities.Operation, bool) {
	roomID, ok := s.admit("endStroke", roomID)
	if !ok {
		return nil, false
	}
	ctx, span := s.c.startSpan(ctx, "EndStroke", roomID, s.producerID)
	defer span.End()

	reg := s.c.registry
	var (
		op        *entities.Operation
		finalized bool
	)
	reg.Serialize(roomID, func() {
		op, finalized = reg.FinalizeOperation(roomID, s.producerID)
		if !finalized {
			return
		}
		s.c.send(memberIDs(reg.ListMembers(roomID)), ports.OutboundMessage{
			Type: MsgEndStroke,
			Data: StrokeEnded{RoomID: roomID, Operation: op},
		})
	})
	if !finalized {
		span.SetAttributes(attribute.Bool("operation.found", false))
		return nil, false
	}
	span.SetAttributes(attribute.String("operation.id", op.ID), attribute.Int("operation.points", len(op.Points)))
	s.c.metrics.RecordOperationFinalized()
	s.c.publish(ctx, events.NewStrokeFinalized(roomID, op, s.c.now()))
	return op, true
}

// Undo pops the room's latest operation. The log always changes; the
// broadcast is dropped when another undo was broadcast in this room within
// the debounce window.
func (s *Session) Undo(ctx context.Context, roomID string) {
	roomID, ok := s.admit("undo", roomID)
	if !ok {
		return
	}
	ctx, span := s.c.startSpan(ctx, "Undo", roomID, s.producerID)
	defer span.End()

	reg := s.c.registry
	var (
		undone     bool
		broadcast  bool
		operations int
	)
	reg.Serialize(roomID, func() {
		by, _ := reg.Member(roomID, s.producerID)
		_, undone = reg.Undo(roomID)
		if !reg.AcceptUndoBroadcast(roomID, s.c.now(), s.c.cfg.UndoDebounce) {
			s.c.metrics.RecordUndoSuppressed()
			return
		}
		broadcast = true
		snapshot := reg.Snapshot(roomID)
		operations = len(snapshot)
		s.c.send(memberIDs(reg.ListMembers(roomID)), ports.OutboundMessage{
			Type: MsgOpsReplaced,
			Data: OpsReplaced{RoomID: roomID, Snapshot: snapshot, Action: &ReplaceAction{Kind: "undo", By: by}},
		})
	})
	span.SetAttributes(attribute.Bool("undo.applied", undone), attribute.Bool("undo.broadcast", broadcast))
	if undone {
		s.c.publish(ctx, events.NewLogReplaced(roomID, events.ActionUndo, s.producerID, operations, s.c.now()))
	}
}

// Redo reapplies the room's most recently undone operation and broadcasts the
// new history.
func (s *Session) Redo(ctx context.Context, roomID string) {
	roomID, ok := s.admit("redo", roomID)
	if !ok {
		return
	}
	ctx, span := s.c.startSpan(ctx, "Redo", roomID, s.producerID)
	defer span.End()

	reg := s.c.registry
	var (
		redone     bool
		operations int
	)
	reg.Serialize(roomID, func() {
		by, _ := reg.Member(roomID, s.producerID)
		_, redone = reg.Redo(roomID)
		snapshot := reg.Snapshot(roomID)
		operations = len(snapshot)
		s.c.send(memberIDs(reg.ListMembers(roomID)), ports.OutboundMessage{
			Type: MsgOpsReplaced,
			Data: OpsReplaced{RoomID: roomID, Snapshot: snapshot, Action: &ReplaceAction{Kind: "redo", By: by}},
		})
	})
	span.SetAttributes(attribute.Bool("redo.applied", redone))
	if redone {
		s.c.publish(ctx, events.NewLogReplaced(roomID, events.ActionRedo, s.producerID, operations, s.c.now()))
	}
}

// Clear wipes the room's history, including every stroke in progress.
func (s *Session) Clear(ctx context.Context, roomID string) {
	roomID, ok := s.admit("clear", roomID)
	if !ok {
		return
	}
	ctx, span := s.c.startSpan(ctx, "Clear", roomID, s.producerID)
	defer span.End()

	reg := s.c.registry
	reg.Serialize(roomID, func() {
		reg.Clear(roomID)
		s.c.send(memberIDs(reg.ListMembers(roomID)), ports.OutboundMessage{
			Type: MsgOpsReplaced,
			Data: OpsReplaced{RoomID: roomID, Snapshot: reg.Snapshot(roomID)},
		})
	})
	s.logger.Info("Cleared room", zap.String("roomID", roomID))
	s.c.publish(ctx, events.NewLogReplaced(roomID, events.ActionClear, s.producerID, 0, s.c.now()))
}

// Disconnect removes the producer from every room and pushes the new member
// lists. Any stroke left in progress is abandoned. Later events are ignored.
func (s *Session) Disconnect(ctx context.Context) []string {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	clear(s.joined)
	s.mu.Unlock()

	s.c.metrics.RecordEvent("disconnect")
	ctx, span := s.c.startSpan(ctx, "Disconnect", "", s.producerID)
	defer span.End()

	remainingByRoom := make(map[string]int)
	affected := s.c.registry.RemoveMember(s.producerID, func(roomID string, remaining []entities.Presence) {
		remainingByRoom[roomID] = len(remaining)
		s.c.send(memberIDs(remaining), ports.OutboundMessage{
			Type: MsgMemberListChanged,
			Data: MemberListChanged{RoomID: roomID, Members: remaining},
		})
	})

	span.SetAttributes(attribute.StringSlice("rooms", affected))
	for _, roomID := range affected {
		s.c.publish(ctx, events.NewMemberLeft(roomID, s.producerID, remainingByRoom[roomID], s.c.now()))
	}
	if len(affected) > 0 {
		s.logger.Info("Left rooms", zap.Strings("roomIDs", affected))
	}
	return affected
}
