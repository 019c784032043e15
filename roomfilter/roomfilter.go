// CLAUDE:SUMMARY Room filter: drops unconditioned, implausible, duplicate and statistically outlying rooms, then re-checks building totals.
// Package roomfilter removes rooms that should not reach the load
// calculator and reports why each one was dropped.
package roomfilter

import (
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
)

// Policy holds the filter thresholds.
type Policy struct {
	MinArea          float64 `yaml:"min_area"`           // sq ft, default 40
	MaxArea          float64 `yaml:"max_area"`           // sq ft, default 1000
	MaxAspect        float64 `yaml:"max_aspect"`         // default 6
	DuplicateAreaTol float64 `yaml:"duplicate_area_tol"` // default 0.05
	DuplicateOverlap float64 `yaml:"duplicate_overlap"`  // default 0.8
	OutlierZ         float64 `yaml:"outlier_z"`          // modified z-score of log area, default 3.5
	OutlierMADFloor  float64 `yaml:"outlier_mad_floor"`  // log-area MAD floor, default 0.3
	OutlierMinRooms  int     `yaml:"outlier_min_rooms"`  // default 5
	MinTotalArea     float64 `yaml:"min_total_area"`     // default 500
	MaxTotalArea     float64 `yaml:"max_total_area"`     // default 10000
	MinRooms         int     `yaml:"min_rooms"`          // default 1
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	p := Policy{}
	p.defaults()
	return p
}

func (p *Policy) defaults() {
	set := func(v *float64, d float64) {
		if *v <= 0 {
			*v = d
		}
	}
	set(&p.MinArea, 40)
	set(&p.MaxArea, 1000)
	set(&p.MaxAspect, 6)
	set(&p.DuplicateAreaTol, 0.05)
	set(&p.DuplicateOverlap, 0.8)
	set(&p.OutlierZ, 3.5)
	set(&p.OutlierMADFloor, 0.3)
	set(&p.MinTotalArea, 500)
	set(&p.MaxTotalArea, 10000)
	if p.OutlierMinRooms <= 0 {
		p.OutlierMinRooms = 5
	}
	if p.MinRooms <= 0 {
		p.MinRooms = 1
	}
}

// Removal reasons.
const (
	Unconditioned = "unconditioned"
	TooSmall      = "too_small"
	TooLarge      = "too_large"
	Elongated     = "aspect_ratio"
	Duplicate     = "duplicate"
	Outlier       = "outlier"
)

// Removal describes one dropped room.
type Removal struct {
	Room     string  `json:"room"`
	Reason   string  `json:"reason"`
	AreaSqFt float64 `json:"area_sqft"`
}

// Report summarises a filter pass.
type Report struct {
	Kept        int       `json:"kept"`
	Removed     []Removal `json:"removed,omitempty"`
	TotalBefore float64   `json:"total_before_sqft"`
	TotalAfter  float64   `json:"total_after_sqft"`
}

// Apply filters a copy of s. The input schema is not modified. When the
// survivors fall outside the total-area bounds or below the minimum room
// count, the filtered schema is returned with a filter_collapsed error.
func Apply(s *blueprint.Schema, p Policy) (*blueprint.Schema, *Report, error) {
	p.defaults()
	out := *s
	out.Metadata.Warnings = slices.Clone(s.Metadata.Warnings)
	rep := &Report{TotalBefore: s.TotalAreaSqFt}

	drop := func(r blueprint.Room, reason string) {
		rep.Removed = append(rep.Removed, Removal{Room: r.Name, Reason: reason, AreaSqFt: r.AreaSqFt})
	}

	var kept []blueprint.Room
	for _, r := range s.Rooms {
		switch {
		case !r.Type.Conditioned():
			drop(r, Unconditioned)
		case r.AreaSqFt < p.MinArea:
			drop(r, TooSmall)
		case r.AreaSqFt > p.MaxArea:
			drop(r, TooLarge)
		case r.AspectRatio() > p.MaxAspect:
			drop(r, Elongated)
		default:
			kept = append(kept, r)
		}
	}

	kept = dedupe(kept, p, drop)

	if len(kept) >= p.OutlierMinRooms {
		// Room sizes spread multiplicatively, so the test runs on log area.
		// The floor keeps a cluster of identical bedrooms from turning every
		// other room into an outlier; with 0.3 only rooms about 4.7x off the
		// median are dropped.
		logs := make([]float64, len(kept))
		for i, r := range kept {
			logs[i] = math.Log(r.AreaSqFt)
		}
		z := modifiedZ(logs, p.OutlierMADFloor)
		var next []blueprint.Room
		for i, r := range kept {
			if math.Abs(z[i]) > p.OutlierZ {
				drop(r, Outlier)
				continue
			}
			next = append(next, r)
		}
		kept = next
	}

	out.Rooms = kept
	out.Recompute()
	rep.Kept = len(kept)
	rep.TotalAfter = out.TotalAreaSqFt

	if len(kept) < p.MinRooms || out.TotalAreaSqFt < p.MinTotalArea || out.TotalAreaSqFt > p.MaxTotalArea {
		return &out, rep, blueprint.NeedsInput(blueprint.ReasonFilterCollapsed,
			"check the page selection and scale; too little of the plan survived filtering",
			"%d rooms totalling %.0f sq ft remain after filtering (%d removed)",
			len(kept), out.TotalAreaSqFt, len(rep.Removed)).
			With("kept", len(kept)).
			With("total_area_sqft", math.Round(out.TotalAreaSqFt)).
			With("removed", rep.Removed)
	}
	return &out, rep, nil
}

// dedupe keeps the higher-confidence room of each near-duplicate pair.
func dedupe(rooms []blueprint.Room, p Policy, drop func(blueprint.Room, string)) []blueprint.Room {
	gone := make([]bool, len(rooms))
	for i := range rooms {
		for j := i + 1; j < len(rooms); j++ {
			if gone[i] || gone[j] || !duplicates(rooms[i], rooms[j], p) {
				continue
			}
			loser := j
			if rooms[j].Confidence > rooms[i].Confidence {
				loser = i
			}
			gone[loser] = true
			drop(rooms[loser], Duplicate)
		}
	}
	var out []blueprint.Room
	for i, r := range rooms {
		if !gone[i] {
			out = append(out, r)
		}
	}
	return out
}

// duplicates decides on geometry when both rooms carry bounds; plans repeat
// labels like BEDROOM, so a name match says nothing about two placed rooms.
// Without bounds (model output) a name match with a close area counts.
func duplicates(a, b blueprint.Room, p Policy) bool {
	if a.Floor != b.Floor {
		return false
	}
	if a.Bounds != nil && b.Bounds != nil {
		return a.Bounds.OverlapRatio(*b.Bounds) > p.DuplicateOverlap
	}
	if na := normalize(a.Name); na != "" && na == normalize(b.Name) {
		big := math.Max(a.AreaSqFt, b.AreaSqFt)
		return big > 0 && math.Abs(a.AreaSqFt-b.AreaSqFt)/big <= p.DuplicateAreaTol
	}
	return false
}

func normalize(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, name)
}

// modifiedZ returns 0.6745 * (x - median) / MAD per value, with MAD raised
// to at least floor. All zeros when the resulting MAD is zero.
func modifiedZ(xs []float64, floor float64) []float64 {
	z := make([]float64, len(xs))
	med := median(xs)
	dev := make([]float64, len(xs))
	for i, x := range xs {
		dev[i] = math.Abs(x - med)
	}
	mad := math.Max(median(dev), floor)
	if mad == 0 {
		return z
	}
	for i, x := range xs {
		z[i] = 0.6745 * (x - med) / mad
	}
	return z
}

func median(xs []float64) float64 {
	s := slices.Clone(xs)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
