// Package export renders room histories into portable documents.
package export

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"sketchroom-backend/domain/core/entities"
	"sketchroom-backend/domain/core/valueobjects"
)

const (
	// MinPageWidth and MinPageHeight are A4 in points.
	MinPageWidth  = 595.0
	MinPageHeight = 842.0
	PageMargin    = 20.0
)

// PDFRenderer draws finalized strokes onto a single page sized to fit them.
type PDFRenderer struct {
	Title string
}

// NewPDFRenderer creates a renderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{Title: "Sketchroom export"}
}

// PageSize returns the page dimensions and the translation applied to
// canvas coordinates for ops.
func PageSize(ops []*entities.Operation) (width, height, dx, dy float64) {
	bounds := valueobjects.Bounds{Empty: true}
	for _, op := range ops {
		bounds = bounds.Union(op.Bounds())
	}
	if bounds.Empty {
		return MinPageWidth, MinPageHeight, PageMargin, PageMargin
	}
	width = math.Max(bounds.Width()+2*PageMargin, MinPageWidth)
	height = math.Max(bounds.Height()+2*PageMargin, MinPageHeight)
	return width, height, PageMargin - bounds.MinX, PageMargin - bounds.MinY
}

// Render writes the PDF for ops to w.
func (r *PDFRenderer) Render(w io.Writer, ops []*entities.Operation) error {
	width, height, dx, dy := PageSize(ops)

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: width, Ht: height},
	})
	pdf.SetTitle(r.Title, true)
	pdf.SetCreator("sketchroom", true)
	pdf.AddPage()
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")

	for _, op := range ops {
		if len(op.Points) == 0 {
			continue
		}
		red, green, blue := strokeColor(op.Style)
		pdf.SetDrawColor(red, green, blue)
		pdf.SetFillColor(red, green, blue)
		pdf.SetLineWidth(op.Style.WidthPx)

		if len(op.Points) == 1 {
			p := op.Points[0]
			pdf.Circle(p.X+dx, p.Y+dy, op.Style.WidthPx/2, "F")
			continue
		}
		for i := 1; i < len(op.Points); i++ {
			a, b := op.Points[i-1], op.Points[i]
			pdf.Line(a.X+dx, a.Y+dy, b.X+dx, b.Y+dy)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

// strokeColor resolves the ink for a style. Eraser strokes paint the page
// color.
func strokeColor(style valueobjects.StrokeStyle) (int, int, int) {
	if style.Mode.IsEraser() {
		return 255, 255, 255
	}
	r, g, b, ok := ParseHexColor(style.Color)
	if !ok {
		return 0, 0, 0
	}
	return r, g, b
}

// ParseHexColor parses #rgb and #rrggbb.
func ParseHexColor(s string) (r, g, b int, ok bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	case 6:
	default:
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), true
}
