// CLAUDE:SUMMARY Synthetic floor-plan PDF generator (gofpdf) with ground-truth scale, used by the CLI sample command and tests.
// Package samplepdf draws simple vector floor plans with a known scale so the
// extraction stages can be exercised end to end.
package samplepdf

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/jung-kurt/gofpdf"
)

// Room is a rectangular room in plan feet, origin at the building's
// top-left corner.
type Room struct {
	Name string
	X, Y float64
	W, H float64
}

// Plan describes one sheet.
type Plan struct {
	Title         string
	ScaleNotation string  // title-block text, omitted when empty
	PointsPerFoot float64 // drawing scale
	Rooms         []Room
	Dimensions    bool // overall width and depth dimension strings
	NorthArrow    bool
	Doors         int // door leaves drawn outside the building, 32in x 80in
	OriginX       float64
	OriginY       float64
}

// Bounds returns the building extent in feet.
func (p Plan) Bounds() (w, h float64) {
	for _, r := range p.Rooms {
		w = math.Max(w, r.X+r.W)
		h = math.Max(h, r.Y+r.H)
	}
	return w, h
}

// ExampleHouse is a 1,500 sq ft single-story plan at 1/8" = 1'-0".
func ExampleHouse() Plan {
	return Plan{
		Title:         "FLOOR PLAN",
		ScaleNotation: `SCALE: 1/8" = 1'-0"`,
		PointsPerFoot: 9,
		Dimensions:    true,
		NorthArrow:    true,
		OriginX:       120,
		OriginY:       140,
		Rooms: []Room{
			{"LIVING ROOM", 0, 0, 20, 16},
			{"KITCHEN", 20, 0, 14, 12},
			{"DINING", 34, 0, 16, 12},
			{"HALL", 20, 12, 14, 4},
			{"BEDROOM 2", 0, 16, 13, 14},
			{"BATH", 13, 16, 7, 14},
			{"BEDROOM 3", 20, 16, 14, 14},
			{"PRIMARY BEDROOM", 34, 12, 16, 18},
		},
	}
}

// Write renders p as a single landscape Letter page.
func Write(w io.Writer, p Plan) error {
	if p.PointsPerFoot <= 0 {
		return fmt.Errorf("samplepdf: points per foot must be > 0")
	}
	return WriteSheets(w, p)
}

// WriteSheets renders one landscape Letter page per plan. A plan without
// rooms becomes a sheet carrying only its title, like a cover or notes page.
func WriteSheets(w io.Writer, plans ...Plan) error {
	if len(plans) == 0 {
		return fmt.Errorf("samplepdf: no sheets")
	}
	pdf := gofpdf.New("L", "pt", "Letter", "")
	pdf.SetAutoPageBreak(false, 0)
	for i, p := range plans {
		if len(p.Rooms) > 0 && p.PointsPerFoot <= 0 {
			return fmt.Errorf("samplepdf: sheet %d: points per foot must be > 0", i+1)
		}
		pdf.AddPage()
		drawSheet(pdf, p)
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("samplepdf: %w", err)
	}
	return pdf.Output(w)
}

func drawSheet(pdf *gofpdf.Fpdf, p Plan) {
	k := p.PointsPerFoot
	ox, oy := p.OriginX, p.OriginY
	if ox == 0 {
		ox = 72
	}
	if oy == 0 {
		oy = 108
	}

	pdf.SetLineWidth(1.5)
	for _, r := range p.Rooms {
		pdf.Rect(ox+r.X*k, oy+r.Y*k, r.W*k, r.H*k, "D")
	}

	pdf.SetFont("Helvetica", "B", 8)
	for _, r := range p.Rooms {
		cx := ox + (r.X+r.W/2)*k
		cy := oy + (r.Y+r.H/2)*k
		tw := pdf.GetStringWidth(r.Name)
		pdf.Text(cx-tw/2, cy+3, r.Name)
	}

	bw, bh := p.Bounds()
	if p.Dimensions && bw > 0 {
		drawDimensions(pdf, ox, oy, bw, bh, k)
	}
	if p.NorthArrow {
		pdf.SetLineWidth(0.5)
		ax, ay := ox+bw*k+60, oy
		pdf.Line(ax, ay+30, ax, ay)
		pdf.Line(ax, ay, ax-5, ay+8)
		pdf.Line(ax, ay, ax+5, ay+8)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.Text(ax-pdf.GetStringWidth("N")/2, ay-4, "N")
	}
	if p.Doors > 0 {
		pdf.SetLineWidth(0.5)
		dw, dh := 32.0/12*k, 80.0/12*k
		for i := range p.Doors {
			pdf.Rect(ox+float64(i)*(dw+12), oy+bh*k+40, dw, dh, "D")
		}
	}

	pdf.SetFont("Helvetica", "", 9)
	if p.Title != "" {
		pdf.Text(560, 540, p.Title)
	}
	if p.ScaleNotation != "" {
		pdf.Text(560, 555, p.ScaleNotation)
	}
}

func drawDimensions(pdf *gofpdf.Fpdf, ox, oy, bw, bh, k float64) {
	pdf.SetLineWidth(0.3)
	pdf.SetFont("Helvetica", "", 8)

	// Overall width, above the building.
	y := oy - 20
	pdf.Line(ox, y, ox+bw*k, y)
	pdf.Line(ox, y-4, ox, y+4)
	pdf.Line(ox+bw*k, y-4, ox+bw*k, y+4)
	label := FeetInches(bw)
	pdf.Text(ox+bw*k/2-pdf.GetStringWidth(label)/2, y-4, label)

	// Overall depth, left of the building.
	x := ox - 20
	pdf.Line(x, oy, x, oy+bh*k)
	pdf.Line(x-4, oy, x+4, oy)
	pdf.Line(x-4, oy+bh*k, x+4, oy+bh*k)
	label = FeetInches(bh)
	pdf.Text(x-4-pdf.GetStringWidth(label), oy+bh*k/2+3, label)
}

// FeetInches formats decimal feet as architectural notation, e.g. 12'-6".
func FeetInches(ft float64) string {
	whole := math.Floor(ft)
	in := math.Round((ft - whole) * 12)
	if in == 12 {
		whole++
		in = 0
	}
	return fmt.Sprintf(`%d'-%d"`, int(whole), int(in))
}

// WriteFile renders plans to path, one sheet each.
func WriteFile(path string, plans ...Plan) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("samplepdf: %w", err)
	}
	if err := WriteSheets(f, plans...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
