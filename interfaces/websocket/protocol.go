package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"sketchroom-backend/application/ports"
	"sketchroom-backend/application/session"
	"sketchroom-backend/domain/core/valueobjects"
	pkgerrors "sketchroom-backend/pkg/errors"
	"sketchroom-backend/pkg/utils"
)

// Client-to-server frame types.
const (
	FrameJoin         = "join"
	FrameCursorMove   = "cursorMove"
	FrameBeginStroke  = "beginStroke"
	FrameStrokePoints = "strokePoints"
	FrameEndStroke    = "endStroke"
	FrameUndo         = "undo"
	FrameRedo         = "redo"
	FrameClear        = "clear"
	FramePing         = "ping"
)

// InboundFrame is the envelope of every client frame.
type InboundFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type roomData struct {
	RoomID string `json:"roomId"`
}

type joinData struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

type cursorMoveData struct {
	RoomID string  `json:"roomId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type styleData struct {
	Color   string  `json:"color" validate:"required,iscolor"`
	WidthPx float64 `json:"widthPx" validate:"gt=0,lte=512"`
	Mode    string  `json:"mode" validate:"required,oneof=brush eraser"`
}

type beginStrokeData struct {
	RoomID       string    `json:"roomId"`
	Style        styleData `json:"style" validate:"required"`
	ClientTempID string    `json:"clientTempId" validate:"max=128"`
}

type strokePointsData struct {
	RoomID string               `json:"roomId"`
	Points []valueobjects.Point `json:"points" validate:"min=1,max=4096"`
}

// ProtocolConfig bounds what the dispatcher accepts.
type ProtocolConfig struct {
	MaxRoomIDRunes      int
	MaxDisplayNameRunes int
}

// Dispatcher decodes client frames, validates them and drives the session.
// Anything that fails validation never reaches the session.
type Dispatcher struct {
	cfg ProtocolConfig
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg ProtocolConfig) *Dispatcher {
	if cfg.MaxRoomIDRunes <= 0 {
		cfg.MaxRoomIDRunes = 128
	}
	if cfg.MaxDisplayNameRunes <= 0 {
		cfg.MaxDisplayNameRunes = 64
	}
	return &Dispatcher{cfg: cfg}
}

// DecodeFrame parses the envelope of a raw frame.
func DecodeFrame(raw []byte) (InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, pkgerrors.NewValidationError("frame is not valid JSON").WithCause(err)
	}
	if f.Type == "" {
		return f, pkgerrors.NewValidationError("frame type is required")
	}
	return f, nil
}

// Dispatch applies one frame to the session. It returns a direct reply for
// frames that have one outside the coordinator (ping), or an error the
// caller reports back to the client.
func (d *Dispatcher) Dispatch(ctx context.Context, s *session.Session, f InboundFrame) (*ports.OutboundMessage, error) {
	switch f.Type {
	case FramePing:
		return &ports.OutboundMessage{Type: session.MsgPong, RequestID: f.RequestID}, nil

	case FrameJoin:
		var data joinData
		if err := d.decode(f, &data); err != nil {
			return nil, err
		}
		if err := d.checkRoom(data.RoomID); err != nil {
			return nil, err
		}
		s.Join(ctx, f.RequestID, data.RoomID, NormalizeDisplayName(data.Name, d.cfg.MaxDisplayNameRunes))

	case FrameCursorMove:
		var data cursorMoveData
		if err := d.decode(f, &data); err != nil {
			return nil, err
		}
		if err := d.checkRoom(data.RoomID); err != nil {
			return nil, err
		}
		if !(valueobjects.Point{X: data.X, Y: data.Y}).IsFinite() {
			return nil, pkgerrors.NewValidationError("cursor coordinates must be finite")
		}
		s.CursorMove(ctx, data.RoomID, data.X, data.Y)

	case FrameBeginStroke:
		var data beginStrokeData
		if err := d.decode(f, &data); err != nil {
			return nil, err
		}
		if err := d.checkRoom(data.RoomID); err != nil {
			return nil, err
		}
		style, err := valueobjects.NewStrokeStyle(data.Style.Color, data.Style.WidthPx, data.Style.Mode)
		if err != nil {
			return nil, err
		}
		s.BeginStroke(ctx, f.RequestID, data.RoomID, style, data.ClientTempID)

	case FrameStrokePoints:
		var data strokePointsData
		if err := d.decode(f, &data); err != nil {
			return nil, err
		}
		if err := d.checkRoom(data.RoomID); err != nil {
			return nil, err
		}
		for _, p := range data.Points {
			if !p.IsFinite() {
				return nil, pkgerrors.NewValidationError("points must have finite coordinates")
			}
		}
		s.StrokePoints(ctx, data.RoomID, data.Points)

	case FrameEndStroke, FrameUndo, FrameRedo, FrameClear:
		var data roomData
		if err := d.decode(f, &data); err != nil {
			return nil, err
		}
		if err := d.checkRoom(data.RoomID); err != nil {
			return nil, err
		}
		switch f.Type {
		case FrameEndStroke:
			s.EndStroke(ctx, data.RoomID)
		case FrameUndo:
			s.Undo(ctx, data.RoomID)
		case FrameRedo:
			s.Redo(ctx, data.RoomID)
		case FrameClear:
			s.Clear(ctx, data.RoomID)
		}

	default:
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("unknown frame type %q", f.Type))
	}
	return nil, nil
}

// decode unmarshals the frame payload and runs struct validation. A missing
// payload decodes as the zero value.
func (d *Dispatcher) decode(f InboundFrame, target interface{}) error {
	if len(f.Data) > 0 && string(f.Data) != "null" {
		if err := json.Unmarshal(f.Data, target); err != nil {
			return pkgerrors.NewValidationError(fmt.Sprintf("invalid %s payload", f.Type)).WithCause(err)
		}
	}
	return utils.ValidateStruct(target)
}

func (d *Dispatcher) checkRoom(roomID string) error {
	if utf8.RuneCountInString(roomID) > d.cfg.MaxRoomIDRunes {
		return pkgerrors.NewValidationError(fmt.Sprintf("roomId must be at most %d characters", d.cfg.MaxRoomIDRunes))
	}
	return nil
}

// NormalizeDisplayName converts name to NFC, strips control characters and
// surrounding space, and truncates it to maxRunes. The result may be empty,
// in which case the coordinator substitutes its default.
func NormalizeDisplayName(name string, maxRunes int) string {
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if maxRunes > 0 && utf8.RuneCountInString(name) > maxRunes {
		runes := []rune(name)
		name = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return name
}

// errorFrame builds the reply for a rejected frame.
func errorFrame(requestID string, err error) ports.OutboundMessage {
	msg := err.Error()
	var appErr *pkgerrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	return ports.OutboundMessage{
		Type:      session.MsgError,
		RequestID: requestID,
		Data:      session.ErrorPayload{Code: pkgerrors.CodeOf(err), Message: msg},
	}
}
