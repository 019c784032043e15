package scale

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/adixon02/AutoHVAC-sub002/geometry"
	"github.com/adixon02/AutoHVAC-sub002/textract"
)

// Method names a scale estimation technique.
const (
	MethodOverride   = "override"
	MethodTitleBlock = "title_block"
	MethodDimension  = "dimension"
	MethodDoor       = "door"
	MethodGrid       = "grid"
	MethodConsensus  = "consensus"
)

// Estimate is one method's opinion of the drawing scale.
type Estimate struct {
	PointsPerFoot float64 `json:"points_per_foot"`
	Method        string  `json:"method"`
	Confidence    float64 `json:"confidence"`
	Evidence      string  `json:"evidence"`
}

const (
	doorWidthFt     = 32.0 / 12
	titleKeywordGap = 150.0
)

// gridIntervals are structural grid spacings in feet.
var gridIntervals = []float64{10, 12, 15, 16, 20, 24, 25, 30}

// FromOverride accepts notation or a bare points-per-foot number.
func FromOverride(s string) (Estimate, error) {
	s = strings.TrimSpace(s)
	ppf, err := strconv.ParseFloat(s, 64)
	if err != nil {
		ppf, err = ParseNotation(s)
		if err != nil {
			return Estimate{}, err
		}
	}
	if ppf <= 0 || math.IsNaN(ppf) || math.IsInf(ppf, 0) {
		return Estimate{}, fmt.Errorf("scale: override must be positive, got %q", s)
	}
	return Estimate{PointsPerFoot: ppf, Method: MethodOverride, Confidence: 1, Evidence: s}, nil
}

// FromTitleBlock reads scale notation spans. A SCALE keyword in the span,
// or in a span on the same line within 150pt, raises confidence to 0.95.
func FromTitleBlock(spans []textract.Span) (Estimate, bool) {
	type cand struct {
		ppf     float64
		keyword bool
		text    string
		count   int
	}
	var cands []*cand
	for _, s := range spans {
		if s.Class != textract.ClassScale {
			continue
		}
		ppf, err := ParseNotation(s.Text)
		if err != nil {
			continue
		}
		kw := hasScaleKeyword(s, spans)
		var hit *cand
		for _, c := range cands {
			if relDiff(c.ppf, ppf) <= 0.005 {
				hit = c
				break
			}
		}
		if hit == nil {
			hit = &cand{ppf: ppf, text: s.Text}
			cands = append(cands, hit)
		}
		hit.count++
		hit.keyword = hit.keyword || kw
	}
	if len(cands) == 0 {
		return Estimate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if (c.keyword && !best.keyword) || (c.keyword == best.keyword && c.count > best.count) {
			best = c
		}
	}
	conf := 0.7
	if best.keyword {
		conf = 0.95
	}
	return Estimate{PointsPerFoot: best.ppf, Method: MethodTitleBlock, Confidence: conf, Evidence: best.text}, true
}

func hasScaleKeyword(s textract.Span, spans []textract.Span) bool {
	if strings.Contains(strings.ToUpper(s.Text), "SCALE") {
		return true
	}
	_, cy := s.Center()
	for _, o := range spans {
		if !strings.Contains(strings.ToUpper(o.Text), "SCALE") {
			continue
		}
		_, oy := o.Center()
		if math.Abs(oy-cy) > math.Max(s.Height(), o.Height()) {
			continue
		}
		gap := math.Max(o.X0-s.X1, s.X0-o.X1)
		if gap <= titleKeywordGap {
			return true
		}
	}
	return false
}

// FromDimensions pairs each dimension string with the nearest parallel
// line spanning its centre and derives points per foot from line length
// over the stated feet. The median cluster (within 3%) is kept.
func FromDimensions(spans []textract.Span, elems []geometry.Element) (Estimate, bool) {
	var ratios []float64
	for _, s := range spans {
		if s.Class != textract.ClassDimension || s.Feet <= 0 {
			continue
		}
		if len(textract.ParseDimensions(s.Text)) > 1 {
			continue // room-size callouts have no dimension line
		}
		if l, ok := nearestLine(s, elems); ok {
			ratios = append(ratios, l.Length()/s.Feet)
		}
	}
	if len(ratios) == 0 {
		return Estimate{}, false
	}
	slices.Sort(ratios)
	med := ratios[len(ratios)/2]
	var sum float64
	var n int
	for _, r := range ratios {
		if relDiff(r, med) <= 0.03 {
			sum += r
			n++
		}
	}
	ppf := sum / float64(n)
	if std, ok := Snap(ppf, 0.03); ok {
		ppf = std.PointsPerFoot
	}
	conf := math.Min(0.9, 0.6+0.1*float64(n-1))
	return Estimate{
		PointsPerFoot: ppf,
		Method:        MethodDimension,
		Confidence:    conf,
		Evidence:      fmt.Sprintf("%d of %d dimension strings agree", n, len(ratios)),
	}, true
}

func nearestLine(s textract.Span, elems []geometry.Element) (geometry.Element, bool) {
	cx, cy := s.Center()
	h := math.Max(s.Height(), 4)
	limit := 3 * h
	var best geometry.Element
	bestDist := math.Inf(1)
	for _, e := range elems {
		if e.Kind != geometry.KindLine || e.Length() < 2*h {
			continue
		}
		var d float64
		switch {
		case e.Horizontal():
			if cx < math.Min(e.X0, e.X1) || cx > math.Max(e.X0, e.X1) {
				continue
			}
			d = math.Max(0, math.Abs(e.Y0-cy)-s.Height()/2)
		case e.Vertical():
			if cy < math.Min(e.Y0, e.Y1) || cy > math.Max(e.Y0, e.Y1) {
				continue
			}
			d = math.Max(0, math.Abs(e.X0-cx)-s.Width()/2)
		default:
			continue
		}
		if d <= limit && d < bestDist {
			best, bestDist = e, d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

// FromDoors measures door leaves (rectangles with aspect 2.3 to 2.8) and
// assumes a 32 inch door width. At least two agreeing detections are needed.
func FromDoors(elems []geometry.Element) (Estimate, bool) {
	var widths []float64
	for _, e := range elems {
		if e.Kind != geometry.KindRect {
			continue
		}
		w, h := math.Abs(e.X1-e.X0), math.Abs(e.Y1-e.Y0)
		short, long := math.Min(w, h), math.Max(w, h)
		if short < 4 || short > 60 {
			continue
		}
		if a := long / short; a < 2.3 || a > 2.8 {
			continue
		}
		widths = append(widths, short/doorWidthFt)
	}
	cluster := largestCluster(widths, 0.03)
	if len(cluster) < 2 {
		return Estimate{}, false
	}
	var sum float64
	for _, v := range cluster {
		sum += v
	}
	ppf := sum / float64(len(cluster))
	if std, ok := Snap(ppf, 0.03); ok {
		ppf = std.PointsPerFoot
	}
	return Estimate{
		PointsPerFoot: ppf,
		Method:        MethodDoor,
		Confidence:    math.Min(0.75, 0.5+0.05*float64(len(cluster))),
		Evidence:      fmt.Sprintf("%d door leaves at 32in", len(cluster)),
	}, true
}

// FromGrid looks for three or more long, evenly spaced parallel lines and
// matches the spacing to common grid intervals at standard scales.
func FromGrid(elems []geometry.Element, pageW, pageH float64) (Estimate, bool) {
	var xs, ys []float64
	for _, e := range elems {
		switch {
		case e.Horizontal() && e.Length() >= 0.4*pageW:
			ys = append(ys, e.Y0)
		case e.Vertical() && e.Length() >= 0.4*pageH:
			xs = append(xs, e.X0)
		}
	}
	for _, pos := range [][]float64{xs, ys} {
		spacing, ok := regularSpacing(pos)
		if !ok {
			continue
		}
		for _, std := range Catalogue {
			for _, ft := range gridIntervals {
				if relDiff(spacing, ft*std.PointsPerFoot) <= 0.02 {
					return Estimate{
						PointsPerFoot: std.PointsPerFoot,
						Method:        MethodGrid,
						Confidence:    0.45,
						Evidence:      fmt.Sprintf("grid spacing %.1fpt as %g ft at %s", spacing, ft, std.Label),
					}, true
				}
			}
		}
	}
	return Estimate{}, false
}

func regularSpacing(pos []float64) (float64, bool) {
	slices.Sort(pos)
	var uniq []float64
	for _, p := range pos {
		if len(uniq) == 0 || p-uniq[len(uniq)-1] > 1 {
			uniq = append(uniq, p)
		}
	}
	if len(uniq) < 3 {
		return 0, false
	}
	gaps := make([]float64, 0, len(uniq)-1)
	for i := 1; i < len(uniq); i++ {
		gaps = append(gaps, uniq[i]-uniq[i-1])
	}
	sorted := slices.Clone(gaps)
	slices.Sort(sorted)
	med := sorted[len(sorted)/2]
	for _, g := range gaps {
		if relDiff(g, med) > 0.02 {
			return 0, false
		}
	}
	return med, true
}

// largestCluster returns the largest run of sorted values whose extremes
// are within tol of each other.
func largestCluster(vals []float64, tol float64) []float64 {
	if len(vals) == 0 {
		return nil
	}
	s := slices.Clone(vals)
	slices.Sort(s)
	bi, bj := 0, 1
	j := 0
	for i := range s {
		if j < i {
			j = i
		}
		for j+1 < len(s) && relDiff(s[j+1], s[i]) <= tol {
			j++
		}
		if j+1-i > bj-bi {
			bi, bj = i, j+1
		}
	}
	return s[bi:bj]
}
