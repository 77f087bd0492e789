package valueobjects

import (
	"math"
	"strings"

	pkgerrors "sketchroom-backend/pkg/errors"
)

// StrokeMode selects how a stroke is composited onto the surface.
type StrokeMode string

const (
	ModeBrush  StrokeMode = "brush"
	ModeEraser StrokeMode = "eraser"
)

// ParseStrokeMode converts a wire value into a StrokeMode.
func ParseStrokeMode(s string) (StrokeMode, error) {
	switch StrokeMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeBrush:
		return ModeBrush, nil
	case ModeEraser:
		return ModeEraser, nil
	default:
		return "", pkgerrors.NewValidationError("stroke mode must be one of: brush eraser")
	}
}

// IsEraser reports whether strokes in this mode remove ink.
func (m StrokeMode) IsEraser() bool {
	return m == ModeEraser
}

// StrokeStyle is fixed for the lifetime of an operation.
type StrokeStyle struct {
	Color   string     `json:"color"`
	WidthPx float64    `json:"widthPx"`
	Mode    StrokeMode `json:"mode"`
}

// NewStrokeStyle creates a style with validation
func NewStrokeStyle(color string, widthPx float64, mode string) (StrokeStyle, error) {
	color = strings.TrimSpace(color)
	if color == "" {
		return StrokeStyle{}, pkgerrors.NewValidationError("stroke color cannot be empty")
	}
	if math.IsNaN(widthPx) || math.IsInf(widthPx, 0) || widthPx <= 0 {
		return StrokeStyle{}, pkgerrors.NewValidationError("stroke width must be a positive finite number")
	}
	m, err := ParseStrokeMode(mode)
	if err != nil {
		return StrokeStyle{}, err
	}
	return StrokeStyle{Color: color, WidthPx: widthPx, Mode: m}, nil
}
