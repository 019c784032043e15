package rooms

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/geometry"
	"github.com/adixon02/AutoHVAC-sub002/textract"
)

// GeometricConfig tunes the geometric strategy.
type GeometricConfig struct {
	// LabelReach is how far, in room sizes, a label outside any room may
	// be from a room and still name it. Default 1.5.
	LabelReach float64
	Logger     *slog.Logger
}

// GeometricStrategy builds one room per polygon, named by the labels
// inside it. It never calls external services.
type GeometricStrategy struct {
	cfg GeometricConfig
}

// NewGeometric creates the geometric strategy.
func NewGeometric(cfg GeometricConfig) *GeometricStrategy {
	if cfg.LabelReach <= 0 {
		cfg.LabelReach = 1.5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &GeometricStrategy{cfg: cfg}
}

func (g *GeometricStrategy) Name() string { return "geometric" }

const maxGeometricConfidence = 0.6

// StructureRooms implements Strategy.
func (g *GeometricStrategy) StructureRooms(ctx context.Context, in Input) ([]blueprint.Room, error) {
	if in.PointsPerFoot <= 0 {
		return nil, fmt.Errorf("rooms: geometric: no accepted scale")
	}
	if in.Geometry == nil || len(in.Geometry.Polygons) == 0 {
		return nil, fmt.Errorf("rooms: geometric: %w: no room polygons", ErrNoRooms)
	}
	polys := in.Geometry.Polygons
	ppf := in.PointsPerFoot

	bb := polys[0].Bounds
	for _, p := range polys[1:] {
		bb.X0 = math.Min(bb.X0, p.Bounds.X0)
		bb.Y0 = math.Min(bb.Y0, p.Bounds.Y0)
		bb.X1 = math.Max(bb.X1, p.Bounds.X1)
		bb.Y1 = math.Max(bb.Y1, p.Bounds.Y1)
	}
	tol := math.Max(2, 0.01*math.Max(bb.Width(), bb.Height()))
	hasNorth := northIndicator(in.Spans)

	labels := make([]textract.Span, 0, len(in.Spans))
	for _, s := range in.Spans {
		if s.Class == textract.ClassLabel {
			labels = append(labels, s)
		}
	}

	out := make([]blueprint.Room, 0, len(polys))
	for i, p := range polys {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("rooms: geometric: %w", err)
		}
		b := p.Bounds
		wFt, lFt := b.Width()/ppf, b.Height()/ppf
		area := p.Area / (ppf * ppf)

		label, labelled := labelFor(b, polys, labels, g.cfg.LabelReach)
		name := fmt.Sprintf("Room %d", i+1)
		if labelled {
			name = label.Text
		}
		typ, ok := TypeFromName(name)
		if !ok {
			aspect := 1.0
			if math.Min(wFt, lFt) > 0 {
				aspect = math.Max(wFt, lFt) / math.Min(wFt, lFt)
			}
			typ = TypeFromShape(area, aspect)
		}

		edges := exteriorEdges(b, bb, tol)
		ext := 0
		for _, e := range edges {
			if e {
				ext++
			}
		}
		windows := ext
		if typ == blueprint.Closet || typ == blueprint.Hallway {
			windows = 0
		}
		orient := blueprint.Unknown
		if hasNorth && ext > 0 {
			orient = facing(edges, b)
		}

		conf := 0.5
		if labelled {
			conf += 0.1
		}
		conf = math.Min(conf, maxGeometricConfidence)

		bounds := b
		nameProv := blueprint.Defaulted
		if labelled {
			nameProv = blueprint.Measured
		}
		orientProv := blueprint.Defaulted
		if orient != blueprint.Unknown {
			orientProv = blueprint.Measured
		}
		out = append(out, blueprint.Room{
			Name:          name,
			Type:          typ,
			WidthFt:       round2(wFt),
			LengthFt:      round2(lFt),
			AreaSqFt:      round2(area),
			Floor:         1,
			Windows:       windows,
			ExteriorWalls: ext,
			CornerRoom:    (edges[edgeTop] || edges[edgeBottom]) && (edges[edgeLeft] || edges[edgeRight]),
			Orientation:   orient,
			Center:        blueprint.Point{X: (b.X0 + b.X1) / 2, Y: (b.Y0 + b.Y1) / 2},
			Bounds:        &bounds,
			Confidence:    conf,
			FieldConfidence: map[string]float64{
				"area":           0.8,
				"dimensions":     0.8,
				"name":           pick(labelled, 0.8, 0.2),
				"exterior_walls": 0.6,
				"windows":        0.3,
				"orientation":    pick(orient != blueprint.Unknown, 0.6, 0.1),
			},
			Provenance: map[string]blueprint.Provenance{
				"area":           blueprint.Measured,
				"dimensions":     blueprint.Measured,
				"name":           nameProv,
				"exterior_walls": blueprint.Measured,
				"windows":        blueprint.Defaulted,
				"orientation":    orientProv,
				"floor":          blueprint.Defaulted,
			},
			DimensionsSource: blueprint.SourceFallback,
		})
	}
	assignEntryDoor(out)
	g.cfg.Logger.DebugContext(ctx, "rooms: geometric", "rooms", len(out), "north", hasNorth)
	return out, nil
}

const (
	edgeTop = iota
	edgeRight
	edgeBottom
	edgeLeft
)

// exteriorEdges reports which sides of b lie on the building envelope bb.
func exteriorEdges(b, bb blueprint.Rect, tol float64) [4]bool {
	return [4]bool{
		edgeTop:    math.Abs(b.Y0-bb.Y0) <= tol,
		edgeRight:  math.Abs(b.X1-bb.X1) <= tol,
		edgeBottom: math.Abs(b.Y1-bb.Y1) <= tol,
		edgeLeft:   math.Abs(b.X0-bb.X0) <= tol,
	}
}

var compass = []blueprint.Orientation{
	blueprint.East, blueprint.NorthEast, blueprint.North, blueprint.NorthWest,
	blueprint.West, blueprint.SouthWest, blueprint.South, blueprint.SouthEast,
}

// facing sums the outward normals of the exterior edges, weighted by edge
// length, with page-up as north.
func facing(edges [4]bool, b blueprint.Rect) blueprint.Orientation {
	var x, y float64
	w, h := b.Width(), b.Height()
	if edges[edgeTop] {
		y += w
	}
	if edges[edgeBottom] {
		y -= w
	}
	if edges[edgeRight] {
		x += h
	}
	if edges[edgeLeft] {
		x -= h
	}
	if math.Abs(x) < 1e-9 && math.Abs(y) < 1e-9 {
		// Opposite sides cancel; use the longer pair.
		switch {
		case edges[edgeTop] && w >= h:
			return blueprint.North
		case edges[edgeRight]:
			return blueprint.East
		}
		return blueprint.Unknown
	}
	deg := math.Atan2(y, x) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return compass[int(math.Round(deg/45))%8]
}

func northIndicator(spans []textract.Span) bool {
	for _, s := range spans {
		switch strings.ToUpper(strings.TrimSpace(s.Text)) {
		case "N", "NORTH", "TRUE NORTH", "PLAN NORTH":
			return true
		}
	}
	return false
}

// labelFor picks the label inside b, else the nearest free-standing label
// within reach room sizes.
func labelFor(b blueprint.Rect, polys []geometry.Polygon, labels []textract.Span, reach float64) (textract.Span, bool) {
	cx, cy := (b.X0+b.X1)/2, (b.Y0+b.Y1)/2
	var best textract.Span
	bestD := math.Inf(1)
	for _, l := range labels {
		if !l.Contains(b.X0, b.Y0, b.X1, b.Y1) {
			continue
		}
		lx, ly := l.Center()
		if d := math.Hypot(lx-cx, ly-cy); d < bestD {
			best, bestD = l, d
		}
	}
	if !math.IsInf(bestD, 1) {
		return best, true
	}

	limit := reach * math.Max(b.Width(), b.Height())
	for _, l := range labels {
		if insideAny(l, polys) {
			continue
		}
		lx, ly := l.Center()
		if d := math.Hypot(lx-cx, ly-cy); d <= limit && d < bestD {
			best, bestD = l, d
		}
	}
	return best, !math.IsInf(bestD, 1)
}

func insideAny(l textract.Span, polys []geometry.Polygon) bool {
	for _, p := range polys {
		if l.Contains(p.Bounds.X0, p.Bounds.Y0, p.Bounds.X1, p.Bounds.Y1) {
			return true
		}
	}
	return false
}

// assignEntryDoor gives each entry an exterior door; without an entry the
// first exterior living space gets one.
func assignEntryDoor(rs []blueprint.Room) {
	found := false
	for i := range rs {
		if rs[i].Type == blueprint.Entry && rs[i].ExteriorWalls > 0 {
			rs[i].ExteriorDoors = 1
			found = true
		}
	}
	if found {
		return
	}
	for i := range rs {
		if rs[i].Type == blueprint.Living && rs[i].ExteriorWalls > 0 {
			rs[i].ExteriorDoors = 1
			return
		}
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func pick(cond bool, a, b float64) float64 {
	if cond {
		return a
	}
	return b
}
