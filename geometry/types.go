// CLAUDE:SUMMARY Geometry element, polygon and result types produced by the vector extractor.
package geometry

import (
	"math"
	"time"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
)

// Kind is the primitive shape of an element.
type Kind string

const (
	KindLine Kind = "line"
	KindRect Kind = "rect"
)

// Type is the inferred role of an element.
type Type string

const (
	WallCandidate Type = "wall_candidate"
	Noise         Type = "noise"
)

// Element is a line or rectangle in page points (origin top-left). For
// rectangles X0<=X1 and Y0<=Y1.
type Element struct {
	Kind            Kind    `json:"kind"`
	X0              float64 `json:"x0"`
	Y0              float64 `json:"y0"`
	X1              float64 `json:"x1"`
	Y1              float64 `json:"y1"`
	StrokeWidth     float64 `json:"stroke_width"`
	Type            Type    `json:"type"`
	WallProbability float64 `json:"wall_probability"`
	Paired          bool    `json:"paired,omitempty"`
}

// Length is the segment length for lines and the long side for rectangles.
func (e Element) Length() float64 {
	if e.Kind == KindRect {
		return math.Max(e.X1-e.X0, e.Y1-e.Y0)
	}
	return math.Hypot(e.X1-e.X0, e.Y1-e.Y0)
}

// Horizontal reports an axis-aligned horizontal line.
func (e Element) Horizontal() bool {
	return e.Kind == KindLine && math.Abs(e.Y1-e.Y0) <= axisTolerance && math.Abs(e.X1-e.X0) > axisTolerance
}

// Vertical reports an axis-aligned vertical line.
func (e Element) Vertical() bool {
	return e.Kind == KindLine && math.Abs(e.X1-e.X0) <= axisTolerance && math.Abs(e.Y1-e.Y0) > axisTolerance
}

// Bounds returns the element's bounding box.
func (e Element) Bounds() blueprint.Rect {
	return blueprint.Rect{
		X0: math.Min(e.X0, e.X1), Y0: math.Min(e.Y0, e.Y1),
		X1: math.Max(e.X0, e.X1), Y1: math.Max(e.Y0, e.Y1),
	}
}

// Polygon is a closed room-candidate outline.
type Polygon struct {
	Points []blueprint.Point `json:"points"`
	Bounds blueprint.Rect    `json:"bounds"`
	Area   float64           `json:"area"` // square points
	Source string            `json:"source"`
}

// Result is the output of one page extraction.
type Result struct {
	PageWidth   float64       `json:"page_width"`
	PageHeight  float64       `json:"page_height"`
	Elements    []Element     `json:"elements"`
	Polygons    []Polygon     `json:"polygons"`
	WallPairs   int           `json:"wall_pairs"`
	RawSegments int           `json:"raw_segments"`
	Stride      int           `json:"stride"`
	Degraded    bool          `json:"degraded"`
	Reasons     []string      `json:"reasons,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Walls returns the wall-candidate lines.
func (r *Result) Walls() []Element {
	var out []Element
	for _, e := range r.Elements {
		if e.Kind == KindLine && e.Type == WallCandidate {
			out = append(out, e)
		}
	}
	return out
}

// Rects returns all rectangle elements.
func (r *Result) Rects() []Element {
	var out []Element
	for _, e := range r.Elements {
		if e.Kind == KindRect {
			out = append(out, e)
		}
	}
	return out
}

func (r *Result) degrade(reason string) {
	r.Degraded = true
	for _, x := range r.Reasons {
		if x == reason {
			return
		}
	}
	r.Reasons = append(r.Reasons, reason)
}
