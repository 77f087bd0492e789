package session

import (
	"sketchroom-backend/domain/core/entities"
	"sketchroom-backend/domain/core/valueobjects"
)

// Server-to-client frame types.
const (
	MsgConnectionEstablished = "connectionEstablished"
	MsgAck                   = "ack"
	MsgError                 = "error"
	MsgPong                  = "pong"
	MsgMemberListChanged     = "memberListChanged"
	MsgCursorMove            = "cursorMove"
	MsgBeginStroke           = "beginStroke"
	MsgStrokePoints          = "strokePoints"
	MsgEndStroke             = "endStroke"
	MsgOpsReplaced           = "opsReplaced"
)

// JoinAck is returned to a producer that joined a room.
type JoinAck struct {
	RoomID   string                `json:"roomId"`
	Presence entities.Presence     `json:"presence"`
	Members  []entities.Presence   `json:"members"`
	Snapshot []*entities.Operation `json:"snapshot"`
}

type MemberListChanged struct {
	RoomID  string              `json:"roomId"`
	Members []entities.Presence `json:"members"`
}

type CursorMoved struct {
	RoomID     string  `json:"roomId"`
	ProducerID string  `json:"producerId"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

// StrokeBegan is both the beginStroke ack and its broadcast.
type StrokeBegan struct {
	RoomID    string              `json:"roomId"`
	Operation *entities.Operation `json:"operation"`
}

type StrokePointsAppended struct {
	RoomID      string               `json:"roomId"`
	ProducerID  string               `json:"producerId"`
	OperationID string               `json:"operationId"`
	Points      []valueobjects.Point `json:"points"`
}

type StrokeEnded struct {
	RoomID    string              `json:"roomId"`
	Operation *entities.Operation `json:"operation"`
}

// ReplaceAction tells clients who rewrote the history.
type ReplaceAction struct {
	Kind string            `json:"kind"`
	By   entities.Presence `json:"by"`
}

// OpsReplaced carries the full history after undo, redo or clear.
type OpsReplaced struct {
	RoomID   string                `json:"roomId"`
	Snapshot []*entities.Operation `json:"snapshot"`
	Action   *ReplaceAction        `json:"action,omitempty"`
}

// ErrorPayload is sent to a producer whose frame was rejected.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
