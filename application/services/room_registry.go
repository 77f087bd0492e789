package services

import (
	"sync"
	"time"

	"sketchroom-backend/domain/core/aggregates"
	"sketchroom-backend/domain/core/entities"
	"sketchroom-backend/domain/core/valueobjects"
)

// Room is one shared drawing surface. Rooms are created lazily on first
// reference and live for the lifetime of the process.
//
// Two locks guard a room. seq serializes a whole event (mutation plus the
// broadcast that follows it) so every member observes the same order. mu
// protects the data itself and is held only inside registry methods.
type Room struct {
	id        string
	createdAt time.Time

	seq sync.Mutex

	mu                sync.Mutex
	order             []string
	members           map[string]entities.Presence
	log               *aggregates.OperationLog
	lastUndoBroadcast time.Time
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// CreatedAt returns when the room was first referenced.
func (r *Room) CreatedAt() time.Time { return r.createdAt }

func (r *Room) listMembersLocked() []entities.Presence {
	out := make([]entities.Presence, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.members[id])
	}
	return out
}

func (r *Room) removeLocked(producerID string) bool {
	if _, ok := r.members[producerID]; !ok {
		return false
	}
	delete(r.members, producerID)
	for i, id := range r.order {
		if id == producerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// RoomInfo is a point-in-time summary of a room.
type RoomInfo struct {
	ID         string    `json:"id"`
	Members    int       `json:"members"`
	Operations int       `json:"operations"`
	Redoable   int       `json:"redoable"`
	InProgress int       `json:"inProgress"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RegistryConfig tunes every room the registry creates.
type RegistryConfig struct {
	Palette      valueobjects.Palette
	MaxLogLength int
	// NewOperationID overrides operation id generation. Nil means uuid v4.
	NewOperationID func() string
	Clock          func() time.Time
}

// RoomRegistry owns every room in the process. It is safe for concurrent use.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	order []string

	palette valueobjects.Palette
	logOpts []aggregates.LogOption
	now     func() time.Time
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry(cfg RegistryConfig) *RoomRegistry {
	palette := cfg.Palette
	if len(palette) == 0 {
		palette = valueobjects.DefaultPalette
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &RoomRegistry{
		rooms:   make(map[string]*Room),
		palette: palette,
		logOpts: []aggregates.LogOption{
			aggregates.WithMaxLength(cfg.MaxLogLength),
			aggregates.WithIDGenerator(cfg.NewOperationID),
		},
		now: now,
	}
}

// EnsureRoom returns the room, creating it on first reference.
func (g *RoomRegistry) EnsureRoom(roomID string) *Room {
	g.mu.RLock()
	r, ok := g.rooms[roomID]
	g.mu.RUnlock()
	if ok {
		return r
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[roomID]; ok {
		return r
	}
	r = &Room{
		id:        roomID,
		createdAt: g.now(),
		members:   make(map[string]entities.Presence),
		log:       aggregates.NewOperationLog(g.logOpts...),
	}
	g.rooms[roomID] = r
	g.order = append(g.order, roomID)
	return r
}

// Lookup returns an existing room without creating it.
func (g *RoomRegistry) Lookup(roomID string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[roomID]
	return r, ok
}

// Serialize runs fn while holding the room's sequencing lock. Registry
// methods are safe to call from fn; Serialize and RemoveMember are not.
func (g *RoomRegistry) Serialize(roomID string, fn func()) {
	r := g.EnsureRoom(roomID)
	r.seq.Lock()
	defer r.seq.Unlock()
	fn()
}

// AddMember adds or replaces the producer's presence in the room. The color
// is picked from the palette by the member count before insertion; a
// re-added producer keeps its position in the member order.
func (g *RoomRegistry) AddMember(roomID, producerID, displayName string) entities.Presence {
	r := g.EnsureRoom(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	p := entities.Presence{
		ID:          producerID,
		DisplayName: displayName,
		Color:       g.palette.ColorFor(len(r.members)),
	}
	if _, exists := r.members[producerID]; !exists {
		r.order = append(r.order, producerID)
	}
	r.members[producerID] = p
	return p
}

// RemoveMember removes the producer from every room it belongs to and returns
// the affected room ids in room creation order. Each onRemoved hook runs
// under that room's sequencing lock with the remaining members, so callers
// can broadcast the new member list in order with other room events.
func (g *RoomRegistry) RemoveMember(producerID string, onRemoved ...func(roomID string, remaining []entities.Presence)) []string {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.order))
	for _, id := range g.order {
		rooms = append(rooms, g.rooms[id])
	}
	g.mu.RUnlock()

	var affected []string
	for _, r := range rooms {
		r.seq.Lock()
		r.mu.Lock()
		removed := r.removeLocked(producerID)
		var remaining []entities.Presence
		if removed {
			remaining = r.listMembersLocked()
		}
		r.mu.Unlock()

		if removed {
			affected = append(affected, r.id)
			for _, hook := range onRemoved {
				hook(r.id, remaining)
			}
		}
		r.seq.Unlock()
	}
	return affected
}

// ListMembers returns the room's members in join order. Unknown rooms have
// no members.
func (g *RoomRegistry) ListMembers(roomID string) []entities.Presence {
	r, ok := g.Lookup(roomID)
	if !ok {
		return []entities.Presence{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listMembersLocked()
}

// Member returns the producer's presence in the room.
func (g *RoomRegistry) Member(roomID, producerID string) (entities.Presence, bool) {
	r, ok := g.Lookup(roomID)
	if !ok {
		return entities.Presence{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, member := r.members[producerID]
	return p, member
}

// IsMember reports whether the producer is currently in the room.
func (g *RoomRegistry) IsMember(roomID, producerID string) bool {
	_, ok := g.Member(roomID, producerID)
	return ok
}

func (g *RoomRegistry) withLog(roomID string, fn func(l *aggregates.OperationLog)) {
	r := g.EnsureRoom(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.log)
}

// BeginOperation starts a stroke in the room.
func (g *RoomRegistry) BeginOperation(roomID, authorID string, style valueobjects.StrokeStyle, clientTempID string) *entities.Operation {
	var op *entities.Operation
	g.withLog(roomID, func(l *aggregates.OperationLog) {
		op = l.BeginOperation(authorID, style, clientTempID)
	})
	return op
}

// AppendPoints extends the author's in-progress stroke in the room.
func (g *RoomRegistry) AppendPoints(roomID, authorID string, points []valueobjects.Point) (op *entities.Operation, ok bool) {
	g.withLog(roomID, func(l *aggregates.OperationLog) {
		op, ok = l.AppendPoints(authorID, points)
	})
	return op, ok
}

// FinalizeOperation commits the author's in-progress stroke in the room.
func (g *RoomRegistry) FinalizeOperation(roomID, authorID string) (op *entities.Operation, ok bool) {
	g.withLog(roomID, func(l *aggregates.OperationLog) {
		op, ok = l.FinalizeOperation(authorID)
	})
	return op, ok
}

// Undo reverts the room's most recent operation.
func (g *RoomRegistry) Undo(roomID string) (op *entities.Operation, ok bool) {
	g.withLog(roomID, func(l *aggregates.OperationLog) {
		op, ok = l.Undo()
	})
	return op, ok
}

// Redo reapplies the room's most recently undone operation.
func (g *RoomRegistry) Redo(roomID string) (op *entities.Operation, ok bool) {
	g.withLog(roomID, func(l *aggregates.OperationLog) {
		op, ok = l.Redo()
	})
	return op, ok
}

// Clear wipes the room's history.
func (g *RoomRegistry) Clear(roomID string) {
	g.withLog(roomID, func(l *aggregates.OperationLog) {
		l.Clear()
	})
}

// Snapshot returns the room's applied operations.
func (g *RoomRegistry) Snapshot(roomID string) []*entities.Operation {
	var snap []*entities.Operation
	g.withLog(roomID, func(l *aggregates.OperationLog) {
		snap = l.Snapshot()
	})
	return snap
}

// AcceptUndoBroadcast records an undo broadcast at now unless the previous
// accepted one happened less than window ago.
func (g *RoomRegistry) AcceptUndoBroadcast(roomID string, now time.Time, window time.Duration) bool {
	r := g.EnsureRoom(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastUndoBroadcast.IsZero() && now.Sub(r.lastUndoBroadcast) < window {
		return false
	}
	r.lastUndoBroadcast = now
	return true
}

// Info summarizes an existing room.
func (g *RoomRegistry) Info(roomID string) (RoomInfo, bool) {
	r, ok := g.Lookup(roomID)
	if !ok {
		return RoomInfo{}, false
	}
	return r.info(), true
}

// Rooms summarizes every room in creation order.
func (g *RoomRegistry) Rooms() []RoomInfo {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.order))
	for _, id := range g.order {
		rooms = append(rooms, g.rooms[id])
	}
	g.mu.RUnlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.info())
	}
	return out
}

// Len returns the number of rooms.
func (g *RoomRegistry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

func (r *Room) info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomInfo{
		ID:         r.id,
		Members:    len(r.members),
		Operations: r.log.Len(),
		Redoable:   r.log.RedoLen(),
		InProgress: r.log.InProgressLen(),
		CreatedAt:  r.createdAt,
	}
}
