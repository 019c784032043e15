// CLAUDE:SUMMARY Parse-quality score and the ordered validation gates that stop a job before load calculation when the parsed building is implausible.
// Package validate scores a parsed blueprint and applies the gates that
// decide whether it is trustworthy enough for load calculation.
package validate

import (
	"fmt"
	"math"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/scale"
)

// Policy holds every gate threshold.
type Policy struct {
	MinQuality      int     `yaml:"min_quality"`       // default 50
	MinAvgRoomArea  float64 `yaml:"min_avg_room_area"` // sq ft, default 40
	MinTotalArea    float64 `yaml:"min_total_area"`    // sq ft, default 500
	MaxTotalArea    float64 `yaml:"max_total_area"`    // sq ft, default 10000
	MaxRooms        int     `yaml:"max_rooms"`         // default 40
	TypicalRoomArea float64 `yaml:"typical_room_area"` // sq ft, default 150
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	p := Policy{}
	p.defaults()
	return p
}

func (p *Policy) defaults() {
	if p.MinQuality <= 0 {
		p.MinQuality = 50
	}
	if p.MinAvgRoomArea <= 0 {
		p.MinAvgRoomArea = 40
	}
	if p.MinTotalArea <= 0 {
		p.MinTotalArea = 500
	}
	if p.MaxTotalArea <= 0 {
		p.MaxTotalArea = 10000
	}
	if p.MaxRooms <= 0 {
		p.MaxRooms = 40
	}
	if p.TypicalRoomArea <= 0 {
		p.TypicalRoomArea = 150
	}
}

// Signals are the extraction facts the score needs besides the schema.
type Signals struct {
	ScaleConfidence float64
	Degradations    int
	UsedOCR         bool
}

// Score weights, summing to 100.
const (
	weightScale       = 25
	weightLabels      = 20
	weightConsistency = 15
	weightConfidence  = 20
	weightHealth      = 20
)

// QualityScore rates a parse 0..100 and lists what cost points. A schema
// without rooms scores 0.
func QualityScore(s *blueprint.Schema, sig Signals) (int, []string) {
	n := len(s.Rooms)
	if n == 0 {
		return 0, []string{"no rooms"}
	}
	var notes []string

	sc := clamp01(sig.ScaleConfidence)
	if sc < 0.8 {
		notes = append(notes, fmt.Sprintf("scale confidence %.2f", sc))
	}

	labelled, consistent := 0, 0
	var conf float64
	for _, r := range s.Rooms {
		if p, ok := r.Provenance["name"]; !ok || p != blueprint.Defaulted {
			labelled++
		}
		if r.AreaConsistent(0.1) {
			consistent++
		}
		conf += clamp01(r.Confidence)
	}
	labels := float64(labelled) / float64(n)
	if labels < 1 {
		notes = append(notes, fmt.Sprintf("%d of %d rooms unlabelled", n-labelled, n))
	}
	cons := float64(consistent) / float64(n)
	if cons < 1 {
		notes = append(notes, fmt.Sprintf("%d rooms with area/dimension mismatch", n-consistent))
	}
	mean := conf / float64(n)

	health := 1.0 - 0.35*float64(sig.Degradations)
	if sig.UsedOCR {
		health -= 0.25
		notes = append(notes, "text read by OCR")
	}
	if sig.Degradations > 0 {
		notes = append(notes, fmt.Sprintf("%d extraction degradations", sig.Degradations))
	}
	health = clamp01(health)

	score := weightScale*sc + weightLabels*labels + weightConsistency*cons +
		weightConfidence*mean + weightHealth*health
	return int(math.Round(score)), notes
}

// Gates applies the policy in a fixed order.
type Gates struct {
	policy Policy
}

// NewGates creates Gates; zero policy fields take defaults.
func NewGates(p Policy) *Gates {
	p.defaults()
	return &Gates{policy: p}
}

// Policy returns the effective thresholds.
func (g *Gates) Policy() Policy { return g.policy }

// Run checks, in order: quality, average room area, total area, room
// count, page/scale consistency. The first failure is returned as a
// *blueprint.NeedsInputError.
func (g *Gates) Run(pc *blueprint.PageContext, s *blueprint.Schema) error {
	p := g.policy
	md := s.Metadata

	if md.QualityScore < p.MinQuality {
		return blueprint.NeedsInput(blueprint.ReasonQualityTooLow,
			"provide a cleaner vector PDF or a scale override",
			"parse quality %d is below %d", md.QualityScore, p.MinQuality).
			With("quality_score", md.QualityScore).
			With("min_quality", p.MinQuality)
	}

	if avg := s.AverageRoomArea(); avg < p.MinAvgRoomArea {
		suggested := md.PointsPerFoot * math.Sqrt(avg/p.TypicalRoomArea)
		rec := fmt.Sprintf("rooms average %.1f sq ft; the scale is probably wrong, try %.2f pt/ft", avg, suggested)
		if std, ok := nearestArchitectural(suggested, 0.15); ok {
			suggested = std.PointsPerFoot
			rec = fmt.Sprintf("rooms average %.1f sq ft; the scale is probably wrong, try %s", avg, std.Label)
		}
		return blueprint.NeedsInput(blueprint.ReasonRoomsTooSmall, rec,
			"average room area %.1f sq ft is below %.0f", avg, p.MinAvgRoomArea).
			With("average_area_sqft", round1(avg)).
			With("room_count", len(s.Rooms)).
			With("suggested_points_per_foot", suggested)
	}

	if s.TotalAreaSqFt < p.MinTotalArea || s.TotalAreaSqFt > p.MaxTotalArea {
		return blueprint.NeedsInput(blueprint.ReasonTotalAreaOutOfBounds,
			"check the scale and that the page is a residential floor plan",
			"total area %.0f sq ft outside %.0f..%.0f", s.TotalAreaSqFt, p.MinTotalArea, p.MaxTotalArea).
			With("total_area_sqft", round1(s.TotalAreaSqFt))
	}

	if len(s.Rooms) > p.MaxRooms {
		return blueprint.NeedsInput(blueprint.ReasonTooManyRooms,
			"select the floor-plan page explicitly; the page may be a site plan or detail sheet",
			"%d rooms exceeds %d", len(s.Rooms), p.MaxRooms).
			With("room_count", len(s.Rooms))
	}

	if err := pc.Verify(md.Page, md.PointsPerFoot); err != nil {
		return err
	}
	return nil
}

// nearestArchitectural snaps to residential drawing scales only.
func nearestArchitectural(ppf, tol float64) (scale.Standard, bool) {
	var best scale.Standard
	bestDiff := math.Inf(1)
	for _, s := range scale.Catalogue {
		if s.Engineering {
			continue
		}
		if d := math.Abs(ppf-s.PointsPerFoot) / s.PointsPerFoot; d < bestDiff {
			best, bestDiff = s, d
		}
	}
	return best, bestDiff <= tol
}

func clamp01(v float64) float64 { return math.Min(1, math.Max(0, v)) }

func round1(v float64) float64 { return math.Round(v*10) / 10 }
