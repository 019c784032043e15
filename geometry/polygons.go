package geometry

import (
	"math"
	"sort"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
)

const (
	clusterTolerance = 2.0
	edgeCoverage     = 0.7
	maxGridLines     = 200
	minRegionSide    = 20.0
)

// findPolygons returns room-candidate polygons. Explicit rectangles and
// closed paths win; the wall grid is only consulted when there are none.
func findPolygons(r *Result, closed [][]blueprint.Point, minSide, minArea float64) []Polygon {
	var polys []Polygon
	for _, e := range r.Rects() {
		if e.X1-e.X0 < minSide || e.Y1-e.Y0 < minSide {
			continue
		}
		polys = append(polys, Polygon{
			Points: []blueprint.Point{{X: e.X0, Y: e.Y0}, {X: e.X1, Y: e.Y0}, {X: e.X1, Y: e.Y1}, {X: e.X0, Y: e.Y1}},
			Bounds: e.Bounds(),
			Area:   (e.X1 - e.X0) * (e.Y1 - e.Y0),
			Source: "rect",
		})
	}
	for _, pts := range closed {
		b := pointBounds(pts)
		if b.Width() < minSide || b.Height() < minSide {
			continue
		}
		polys = append(polys, Polygon{Points: pts, Bounds: b, Area: shoelace(pts), Source: "path"})
	}

	polys = dedupePolygons(polys)
	polys = dropContainers(polys)

	if len(polys) == 0 {
		grid, dense := gridPolygons(r.Walls())
		if dense {
			r.degrade("wall grid too dense for cell detection")
		}
		polys = grid
	}

	out := polys[:0]
	for _, p := range polys {
		if p.Area >= minArea {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Bounds.Y0 != out[j].Bounds.Y0 {
			return out[i].Bounds.Y0 < out[j].Bounds.Y0
		}
		return out[i].Bounds.X0 < out[j].Bounds.X0
	})
	return out
}

func pointBounds(pts []blueprint.Point) blueprint.Rect {
	b := blueprint.Rect{X0: math.Inf(1), Y0: math.Inf(1), X1: math.Inf(-1), Y1: math.Inf(-1)}
	for _, p := range pts {
		b.X0, b.Y0 = math.Min(b.X0, p.X), math.Min(b.Y0, p.Y)
		b.X1, b.Y1 = math.Max(b.X1, p.X), math.Max(b.Y1, p.Y)
	}
	return b
}

func shoelace(pts []blueprint.Point) float64 {
	var s float64
	for i := range pts {
		j := (i + 1) % len(pts)
		s += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(s) / 2
}

func sameBounds(a, b blueprint.Rect) bool {
	const tol = 0.5
	return math.Abs(a.X0-b.X0) <= tol && math.Abs(a.Y0-b.Y0) <= tol &&
		math.Abs(a.X1-b.X1) <= tol && math.Abs(a.Y1-b.Y1) <= tol
}

func dedupePolygons(polys []Polygon) []Polygon {
	var out []Polygon
next:
	for _, p := range polys {
		for _, q := range out {
			if sameBounds(p.Bounds, q.Bounds) {
				continue next
			}
		}
		out = append(out, p)
	}
	return out
}

func contains(outer, inner blueprint.Rect) bool {
	const tol = 1.0
	return inner.X0 >= outer.X0-tol && inner.Y0 >= outer.Y0-tol &&
		inner.X1 <= outer.X1+tol && inner.Y1 <= outer.Y1+tol
}

// dropContainers removes outlines that enclose two or more other polygons:
// sheet borders, title blocks and building footprints.
func dropContainers(polys []Polygon) []Polygon {
	var out []Polygon
	for i, p := range polys {
		inside := 0
		for j, q := range polys {
			if i != j && contains(p.Bounds, q.Bounds) && q.Area < p.Area {
				inside++
			}
		}
		if inside < 2 {
			out = append(out, p)
		}
	}
	return out
}

type interval struct{ a, b float64 }

// gridPolygons builds the cell grid spanned by wall lines and merges cells
// that are not separated by a wall. Regions that leak to the grid boundary
// are outside the building.
func gridPolygons(walls []Element) ([]Polygon, bool) {
	var hs, vs []Element
	for _, w := range walls {
		switch {
		case w.Horizontal():
			hs = append(hs, w)
		case w.Vertical():
			vs = append(vs, w)
		}
	}
	ys := clusterCoords(hs, func(e Element) float64 { return (e.Y0 + e.Y1) / 2 })
	xs := clusterCoords(vs, func(e Element) float64 { return (e.X0 + e.X1) / 2 })
	if len(xs) < 2 || len(ys) < 2 {
		return nil, false
	}
	if len(xs) > maxGridLines || len(ys) > maxGridLines {
		return nil, true
	}

	hCover := coverage(hs, ys, func(e Element) (float64, interval) {
		return (e.Y0 + e.Y1) / 2, interval{math.Min(e.X0, e.X1), math.Max(e.X0, e.X1)}
	})
	vCover := coverage(vs, xs, func(e Element) (float64, interval) {
		return (e.X0 + e.X1) / 2, interval{math.Min(e.Y0, e.Y1), math.Max(e.Y0, e.Y1)}
	})

	nx, ny := len(xs)-1, len(ys)-1
	hWall := func(i, j int) bool { return covered(hCover[j], xs[i], xs[i+1]) }
	vWall := func(i, j int) bool { return covered(vCover[i], ys[j], ys[j+1]) }

	parent := make([]int, nx*ny)
	for i := range parent {
		parent[i] = i
	}
	find := func(a int) int {
		for parent[a] != a {
			parent[a] = parent[parent[a]]
			a = parent[a]
		}
		return a
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if ra < rb {
				parent[rb] = ra
			} else {
				parent[ra] = rb
			}
		}
	}
	for j := range ny {
		for i := range nx {
			if i+1 < nx && !vWall(i+1, j) {
				union(j*nx+i, j*nx+i+1)
			}
			if j+1 < ny && !hWall(i, j+1) {
				union(j*nx+i, (j+1)*nx+i)
			}
		}
	}

	type region struct {
		b    blueprint.Rect
		area float64
		open bool
	}
	regions := map[int]*region{}
	var order []int
	for j := range ny {
		for i := range nx {
			root := find(j*nx + i)
			rg, ok := regions[root]
			if !ok {
				rg = &region{b: blueprint.Rect{X0: xs[i], Y0: ys[j], X1: xs[i+1], Y1: ys[j+1]}}
				regions[root] = rg
				order = append(order, root)
			}
			rg.b.X0, rg.b.Y0 = math.Min(rg.b.X0, xs[i]), math.Min(rg.b.Y0, ys[j])
			rg.b.X1, rg.b.Y1 = math.Max(rg.b.X1, xs[i+1]), math.Max(rg.b.Y1, ys[j+1])
			rg.area += (xs[i+1] - xs[i]) * (ys[j+1] - ys[j])
			if (i == 0 && !vWall(0, j)) || (i == nx-1 && !vWall(nx, j)) ||
				(j == 0 && !hWall(i, 0)) || (j == ny-1 && !hWall(i, ny)) {
				rg.open = true
			}
		}
	}

	var out []Polygon
	for _, root := range order {
		rg := regions[root]
		if rg.open || rg.b.Width() < minRegionSide || rg.b.Height() < minRegionSide {
			continue
		}
		out = append(out, Polygon{
			Points: []blueprint.Point{{X: rg.b.X0, Y: rg.b.Y0}, {X: rg.b.X1, Y: rg.b.Y0}, {X: rg.b.X1, Y: rg.b.Y1}, {X: rg.b.X0, Y: rg.b.Y1}},
			Bounds: rg.b,
			Area:   rg.area,
			Source: "grid",
		})
	}
	return out, false
}

func clusterCoords(elems []Element, pos func(Element) float64) []float64 {
	vals := make([]float64, 0, len(elems))
	for _, e := range elems {
		vals = append(vals, pos(e))
	}
	sort.Float64s(vals)
	var out []float64
	for i := 0; i < len(vals); {
		j, sum := i, 0.0
		for j < len(vals) && vals[j]-vals[i] <= clusterTolerance {
			sum += vals[j]
			j++
		}
		out = append(out, sum/float64(j-i))
		i = j
	}
	return out
}

// coverage groups each line's extent under the nearest cluster coordinate
// and merges overlapping intervals.
func coverage(elems []Element, coords []float64, key func(Element) (float64, interval)) [][]interval {
	out := make([][]interval, len(coords))
	for _, e := range elems {
		p, iv := key(e)
		k := sort.SearchFloat64s(coords, p)
		best := -1
		for _, c := range []int{k - 1, k} {
			if c >= 0 && c < len(coords) && math.Abs(coords[c]-p) <= clusterTolerance &&
				(best < 0 || math.Abs(coords[c]-p) < math.Abs(coords[best]-p)) {
				best = c
			}
		}
		if best >= 0 {
			out[best] = append(out[best], iv)
		}
	}
	for i, ivs := range out {
		out[i] = mergeIntervals(ivs)
	}
	return out
}

func mergeIntervals(ivs []interval) []interval {
	if len(ivs) < 2 {
		return ivs
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].a < ivs[j].a })
	out := []interval{ivs[0]}
	for _, iv := range ivs[1:] {
		last := &out[len(out)-1]
		if iv.a <= last.b+clusterTolerance {
			last.b = math.Max(last.b, iv.b)
			continue
		}
		out = append(out, iv)
	}
	return out
}

func covered(ivs []interval, a, b float64) bool {
	if b <= a {
		return false
	}
	var sum float64
	for _, iv := range ivs {
		lo, hi := math.Max(iv.a, a), math.Min(iv.b, b)
		if hi > lo {
			sum += hi - lo
		}
	}
	return sum/(b-a) >= edgeCoverage
}
