package events

import (
	"time"

	"sketchroom-backend/domain/core/entities"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

const (
	TypeStrokeFinalized = "stroke.finalized"
	TypeLogReplaced     = "log.replaced"
	TypeMemberJoined    = "member.joined"
	TypeMemberLeft      = "member.left"
)

// ReplaceAction names what rewrote a room's history.
type ReplaceAction string

const (
	ActionUndo  ReplaceAction = "undo"
	ActionRedo  ReplaceAction = "redo"
	ActionClear ReplaceAction = "clear"
)

func newBase(roomID, eventType string, at time.Time) BaseEvent {
	return BaseEvent{
		AggregateID: roomID,
		EventType:   eventType,
		Timestamp:   at,
		Version:     1,
	}
}

// StrokeFinalized is raised when a stroke is committed to a room's history
type StrokeFinalized struct {
	BaseEvent
	RoomID      string `json:"room_id"`
	OperationID string `json:"operation_id"`
	AuthorID    string `json:"author_id"`
	PointCount  int    `json:"point_count"`
	Mode        string `json:"mode"`
}

// NewStrokeFinalized creates a StrokeFinalized event
func NewStrokeFinalized(roomID string, op *entities.Operation, at time.Time) StrokeFinalized {
	return StrokeFinalized{
		BaseEvent:   newBase(roomID, TypeStrokeFinalized, at),
		RoomID:      roomID,
		OperationID: op.ID,
		AuthorID:    op.AuthorID,
		PointCount:  len(op.Points),
		Mode:        string(op.Style.Mode),
	}
}

// LogReplaced is raised by undo, redo and clear
type LogReplaced struct {
	BaseEvent
	RoomID         string        `json:"room_id"`
	Action         ReplaceAction `json:"action"`
	By             string        `json:"by"`
	OperationCount int           `json:"operation_count"`
}

// NewLogReplaced creates a LogReplaced event
func NewLogReplaced(roomID string, action ReplaceAction, by string, operationCount int, at time.Time) LogReplaced {
	return LogReplaced{
		BaseEvent:      newBase(roomID, TypeLogReplaced, at),
		RoomID:         roomID,
		Action:         action,
		By:             by,
		OperationCount: operationCount,
	}
}

// MemberJoined is raised when a producer joins a room
type MemberJoined struct {
	BaseEvent
	RoomID      string `json:"room_id"`
	ProducerID  string `json:"producer_id"`
	DisplayName string `json:"display_name"`
	MemberCount int    `json:"member_count"`
}

// NewMemberJoined creates a MemberJoined event
func NewMemberJoined(roomID, producerID, displayName string, memberCount int, at time.Time) MemberJoined {
	return MemberJoined{
		BaseEvent:   newBase(roomID, TypeMemberJoined, at),
		RoomID:      roomID,
		ProducerID:  producerID,
		DisplayName: displayName,
		MemberCount: memberCount,
	}
}

// MemberLeft is raised for every room a disconnecting producer leaves
type MemberLeft struct {
	BaseEvent
	RoomID      string `json:"room_id"`
	ProducerID  string `json:"producer_id"`
	MemberCount int    `json:"member_count"`
}

// NewMemberLeft creates a MemberLeft event
func NewMemberLeft(roomID, producerID string, memberCount int, at time.Time) MemberLeft {
	return MemberLeft{
		BaseEvent:   newBase(roomID, TypeMemberLeft, at),
		RoomID:      roomID,
		ProducerID:  producerID,
		MemberCount: memberCount,
	}
}
