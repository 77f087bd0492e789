package valueobjects

import "math"

// Point is a canvas-local coordinate captured while drawing.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Bounds is the axis-aligned box enclosing a set of points.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
	Empty                  bool
}

// BoundsOf returns the bounding box of points. An empty input yields
// Bounds{Empty: true}.
func BoundsOf(points []Point) Bounds {
	if len(points) == 0 {
		return Bounds{Empty: true}
	}
	b := Bounds{MinX: points[0].X, MinY: points[0].Y, MaxX: points[0].X, MaxY: points[0].Y}
	for _, p := range points[1:] {
		b = b.extend(p)
	}
	return b
}

// Union merges two boxes.
func (b Bounds) Union(other Bounds) Bounds {
	switch {
	case b.Empty:
		return other
	case other.Empty:
		return b
	}
	b = b.extend(Point{X: other.MinX, Y: other.MinY})
	return b.extend(Point{X: other.MaxX, Y: other.MaxY})
}

// Width returns the horizontal extent of the box.
func (b Bounds) Width() float64 {
	return b.MaxX - b.MinX
}

// Height returns the vertical extent of the box.
func (b Bounds) Height() float64 {
	return b.MaxY - b.MinY
}

func (b Bounds) extend(p Point) Bounds {
	b.MinX = math.Min(b.MinX, p.X)
	b.MinY = math.Min(b.MinY, p.Y)
	b.MaxX = math.Max(b.MaxX, p.X)
	b.MaxY = math.Max(b.MaxY, p.Y)
	return b
}
