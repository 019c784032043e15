package geometry

import (
	"math"
	"sort"
)

const (
	pairMinGap = 2.0
	pairMaxGap = 16.0
	wallCutoff = 0.5
)

// classify scores every element's wall probability in place and returns the
// number of parallel wall pairs found.
func classify(elems []Element, minWall float64) int {
	pairs := markPairs(elems, minWall)
	for i := range elems {
		e := &elems[i]
		switch e.Kind {
		case KindRect:
			e.WallProbability = rectWallProbability(*e, minWall)
		default:
			e.WallProbability = lineWallProbability(*e, minWall)
		}
		e.Type = Noise
		if e.WallProbability >= wallCutoff {
			e.Type = WallCandidate
		}
	}
	return pairs
}

func lineWallProbability(e Element, minWall float64) float64 {
	if !e.Horizontal() && !e.Vertical() {
		return 0.1
	}
	l := e.Length()
	p := 0.35
	p += 0.25 * math.Min(1, l/(4*minWall))
	switch {
	case e.StrokeWidth >= 1:
		p += 0.2
	case e.StrokeWidth >= 0.5:
		p += 0.1
	case e.StrokeWidth > 0 && e.StrokeWidth < 0.4:
		p -= 0.15 // annotation weight
	}
	if e.Paired {
		p += 0.2
	}
	if l < minWall {
		p = math.Min(p, 0.3)
	}
	return math.Min(p, 1)
}

func rectWallProbability(e Element, minWall float64) float64 {
	w, h := e.X1-e.X0, e.Y1-e.Y0
	short, long := math.Min(w, h), math.Max(w, h)
	switch {
	case short <= pairMaxGap && long >= 4*minWall:
		return 0.8 // filled wall section
	case short >= 2*minWall:
		return 0.6 // room outline
	}
	return 0.2
}

// markPairs flags axis-aligned lines that have a parallel partner 2-16pt
// away with at least half of the shorter one overlapping (double-line walls).
func markPairs(elems []Element, minWall float64) int {
	var hs, vs []int
	for i, e := range elems {
		if e.Length() < minWall {
			continue
		}
		switch {
		case e.Horizontal():
			hs = append(hs, i)
		case e.Vertical():
			vs = append(vs, i)
		}
	}
	pairs := 0
	pairs += sweepPairs(elems, hs, func(e Element) (pos, a, b float64) {
		return e.Y0, math.Min(e.X0, e.X1), math.Max(e.X0, e.X1)
	})
	pairs += sweepPairs(elems, vs, func(e Element) (pos, a, b float64) {
		return e.X0, math.Min(e.Y0, e.Y1), math.Max(e.Y0, e.Y1)
	})
	return pairs
}

func sweepPairs(elems []Element, idx []int, key func(Element) (float64, float64, float64)) int {
	sort.SliceStable(idx, func(i, j int) bool {
		pi, _, _ := key(elems[idx[i]])
		pj, _, _ := key(elems[idx[j]])
		return pi < pj
	})
	pairs := 0
	for i := range idx {
		pi, ai, bi := key(elems[idx[i]])
		for j := i + 1; j < len(idx); j++ {
			pj, aj, bj := key(elems[idx[j]])
			gap := pj - pi
			if gap > pairMaxGap {
				break
			}
			if gap < pairMinGap {
				continue
			}
			overlap := math.Min(bi, bj) - math.Max(ai, aj)
			shorter := math.Min(bi-ai, bj-aj)
			if shorter > 0 && overlap >= 0.5*shorter {
				if !elems[idx[i]].Paired || !elems[idx[j]].Paired {
					pairs++
				}
				elems[idx[i]].Paired = true
				elems[idx[j]].Paired = true
			}
		}
	}
	return pairs
}
