package geometry

import (
	"context"
	"math"
	"time"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/pdfdoc"
)

const (
	axisTolerance = 0.5
	maxStateDepth = 256
	checkEvery    = 256
	maxFormNest   = 4
)

type segment struct {
	x0, y0, x1, y1 float64
	width          float64
}

type gstate struct {
	ctm       Matrix
	lineWidth float64
}

type subpath struct {
	pts    []blueprint.Point
	closed bool
	rect   bool
}

// walker interprets path construction and painting operators. Points are
// stored in page space with a top-left origin.
type walker struct {
	ctx      context.Context
	deadline time.Time
	pageH    float64
	rawCap   int

	state gstate
	stack []gstate
	path  []*subpath
	cur   *subpath

	segs  []segment
	rects []Element
	polys [][]blueprint.Point

	ops     int
	stopped string
}

func newWalker(ctx context.Context, deadline time.Time, pageH float64, rawCap int) *walker {
	return &walker{
		ctx:      ctx,
		deadline: deadline,
		pageH:    pageH,
		rawCap:   rawCap,
		state:    gstate{ctm: Identity, lineWidth: 1},
	}
}

func (w *walker) point(x, y float64) blueprint.Point {
	px, py := w.state.ctm.Apply(x, y)
	return blueprint.Point{X: px, Y: w.pageH - py}
}

func (w *walker) run(content []byte, forms map[string]*pdfdoc.Form, depth int) {
	pdfdoc.Walk(content, func(op pdfdoc.Op) error {
		w.ops++
		if w.ops%checkEvery == 0 {
			if w.ctx.Err() != nil || time.Now().After(w.deadline) {
				w.stopped = "timeout"
				return pdfdoc.ErrStop
			}
		}
		if w.stopped != "" {
			return pdfdoc.ErrStop
		}
		w.apply(op, forms, depth)
		if len(w.segs)+len(w.rects) > w.rawCap {
			w.stopped = "raw element cap"
			return pdfdoc.ErrStop
		}
		return nil
	})
}

func (w *walker) apply(op pdfdoc.Op, forms map[string]*pdfdoc.Form, depth int) {
	switch op.Name {
	case "q":
		if len(w.stack) < maxStateDepth {
			w.stack = append(w.stack, w.state)
		}
	case "Q":
		if n := len(w.stack); n > 0 {
			w.state = w.stack[n-1]
			w.stack = w.stack[:n-1]
		}
	case "cm":
		if v, ok := op.Nums(6); ok {
			m := Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			w.state.ctm = m.Multiply(w.state.ctm)
		}
	case "w":
		if v, ok := op.Nums(1); ok {
			w.state.lineWidth = v[0]
		}
	case "m":
		if v, ok := op.Nums(2); ok {
			w.moveTo(w.point(v[0], v[1]))
		}
	case "l":
		if v, ok := op.Nums(2); ok {
			p := w.point(v[0], v[1])
			if w.cur == nil {
				w.moveTo(p)
				return
			}
			w.cur.pts = append(w.cur.pts, p)
		}
	case "c", "v", "y":
		// Curves (door swings, fixtures) are not walls; only the end
		// point is kept as the new current point.
		n := 6
		if op.Name != "c" {
			n = 4
		}
		if v, ok := op.Nums(n); ok {
			w.moveTo(w.point(v[n-2], v[n-1]))
		}
	case "h":
		w.closeSubpath()
	case "re":
		if v, ok := op.Nums(4); ok {
			x, y, rw, rh := v[0], v[1], v[2], v[3]
			sp := &subpath{
				pts: []blueprint.Point{
					w.point(x, y), w.point(x+rw, y), w.point(x+rw, y+rh), w.point(x, y+rh),
				},
				closed: true,
				rect:   true,
			}
			w.path = append(w.path, sp)
			w.cur = nil
		}
	case "S":
		w.paint(false, w.state.lineWidth)
	case "s":
		w.closeSubpath()
		w.paint(false, w.state.lineWidth)
	case "f", "F", "f*":
		w.paint(true, 0)
	case "B", "B*":
		w.paint(true, w.state.lineWidth)
	case "b", "b*":
		w.closeSubpath()
		w.paint(true, w.state.lineWidth)
	case "n":
		w.path, w.cur = nil, nil
	case "Do":
		if depth >= maxFormNest || len(op.Operands) == 0 {
			return
		}
		f, ok := forms[op.Operands[0].Str]
		if !ok {
			return
		}
		saved := w.state
		w.state.ctm = Matrix(f.Matrix).Multiply(w.state.ctm)
		w.run(f.Content, f.Forms, depth+1)
		w.state = saved
	}
}

func (w *walker) moveTo(p blueprint.Point) {
	w.cur = &subpath{pts: []blueprint.Point{p}}
	w.path = append(w.path, w.cur)
}

func (w *walker) closeSubpath() {
	if w.cur == nil || len(w.cur.pts) == 0 {
		return
	}
	w.cur.closed = true
	start := w.cur.pts[0]
	w.moveTo(start)
}

// paint converts the current path into segments, rectangles and closed
// polygons, then clears it. Fills close open subpaths implicitly.
func (w *walker) paint(fill bool, lineWidth float64) {
	width := lineWidth * w.state.ctm.Scale()
	for _, sp := range w.path {
		pts := dedupeClosing(sp.pts)
		closed := sp.closed || fill
		if sp.rect || (closed && len(pts) == 4 && isRectangle(pts)) {
			if r, ok := axisRect(pts, width); ok {
				w.rects = append(w.rects, r)
				continue
			}
		}
		if len(pts) < 2 {
			continue
		}
		for i := 0; i+1 < len(pts); i++ {
			w.addSegment(pts[i], pts[i+1], width)
		}
		if closed && len(pts) >= 3 {
			w.addSegment(pts[len(pts)-1], pts[0], width)
			w.polys = append(w.polys, pts)
		}
	}
	w.path, w.cur = nil, nil
}

func (w *walker) addSegment(a, b blueprint.Point, width float64) {
	if math.Hypot(b.X-a.X, b.Y-a.Y) < 1e-6 {
		return
	}
	w.segs = append(w.segs, segment{a.X, a.Y, b.X, b.Y, width})
}

func dedupeClosing(pts []blueprint.Point) []blueprint.Point {
	n := len(pts)
	if n > 1 && math.Abs(pts[0].X-pts[n-1].X) < 1e-6 && math.Abs(pts[0].Y-pts[n-1].Y) < 1e-6 {
		return pts[:n-1]
	}
	return pts
}

// isRectangle checks four corners for right angles (|cos| < 0.1).
func isRectangle(pts []blueprint.Point) bool {
	for i := range 4 {
		a, b, c := pts[(i+3)%4], pts[i], pts[(i+1)%4]
		ux, uy := a.X-b.X, a.Y-b.Y
		vx, vy := c.X-b.X, c.Y-b.Y
		lu, lv := math.Hypot(ux, uy), math.Hypot(vx, vy)
		if lu == 0 || lv == 0 {
			return false
		}
		if math.Abs((ux*vx+uy*vy)/(lu*lv)) >= 0.1 {
			return false
		}
	}
	return true
}

// axisRect returns the rectangle element when the corners are axis-aligned.
func axisRect(pts []blueprint.Point, width float64) (Element, bool) {
	if len(pts) != 4 {
		return Element{}, false
	}
	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		x0, y0 = math.Min(x0, p.X), math.Min(y0, p.Y)
		x1, y1 = math.Max(x1, p.X), math.Max(y1, p.Y)
	}
	for _, p := range pts {
		onX := math.Abs(p.X-x0) <= axisTolerance || math.Abs(p.X-x1) <= axisTolerance
		onY := math.Abs(p.Y-y0) <= axisTolerance || math.Abs(p.Y-y1) <= axisTolerance
		if !onX || !onY {
			return Element{}, false
		}
	}
	if x1-x0 < 1e-6 || y1-y0 < 1e-6 {
		return Element{}, false
	}
	return Element{Kind: KindRect, X0: x0, Y0: y0, X1: x1, Y1: y1, StrokeWidth: width}, true
}
