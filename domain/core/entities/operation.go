package entities

import (
	"sketchroom-backend/domain/core/valueobjects"
)

// OperationKind identifies the shape of an operation. Only strokes exist today.
type OperationKind string

const (
	KindStroke OperationKind = "stroke"
)

// Operation is one drawing action in a room's history.
// Points only grow while the operation is in progress; once finalized it is
// never mutated again.
type Operation struct {
	ID           string                   `json:"id"`
	ClientTempID string                   `json:"clientTempId,omitempty"`
	Kind         OperationKind            `json:"kind"`
	AuthorID     string                   `json:"authorId"`
	Style        valueobjects.StrokeStyle `json:"style"`
	Points       []valueobjects.Point     `json:"points"`
}

// NewStroke creates an in-progress stroke with no points.
func NewStroke(id, authorID string, style valueobjects.StrokeStyle, clientTempID string) *Operation {
	return &Operation{
		ID:           id,
		ClientTempID: clientTempID,
		Kind:         KindStroke,
		AuthorID:     authorID,
		Style:        style,
		Points:       make([]valueobjects.Point, 0, 32),
	}
}

// AppendPoints adds points in arrival order.
func (o *Operation) AppendPoints(points []valueobjects.Point) {
	o.Points = append(o.Points, points...)
}

// Bounds returns the bounding box of the operation's points.
func (o *Operation) Bounds() valueobjects.Bounds {
	return valueobjects.BoundsOf(o.Points)
}
