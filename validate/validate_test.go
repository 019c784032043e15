package validate

import (
	"errors"
	"fmt"
	"testing"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
)

func schema(n int, area float64) *blueprint.Schema {
	s := &blueprint.Schema{Metadata: blueprint.Metadata{Page: 1, PointsPerFoot: 18, QualityScore: 80}}
	for i := range n {
		s.Rooms = append(s.Rooms, blueprint.Room{
			Name:       fmt.Sprintf("Room %d", i+1),
			AreaSqFt:   area,
			Floor:      1,
			Confidence: 0.9,
			Provenance: map[string]blueprint.Provenance{"name": blueprint.Measured},
		})
	}
	s.Recompute()
	return s
}

func pageContext(t *testing.T, page int, ppf float64) *blueprint.PageContext {
	t.Helper()
	pc := blueprint.NewPageContext()
	if err := pc.SetPage(page, false); err != nil {
		t.Fatal(err)
	}
	if err := pc.SetScale(ppf, "consensus", false); err != nil {
		t.Fatal(err)
	}
	return pc
}

func reason(t *testing.T, err error) blueprint.Reason {
	t.Helper()
	if err == nil {
		return ""
	}
	var ni *blueprint.NeedsInputError
	if !errors.As(err, &ni) {
		t.Fatalf("not a NeedsInputError: %v", err)
	}
	return ni.Reason
}

func TestGates_TinyRoomsRecommendScale(t *testing.T) {
	s := schema(85, 26.8)
	err := NewGates(Policy{}).Run(pageContext(t, 1, 18), s)
	if got := reason(t, err); got != blueprint.ReasonRoomsTooSmall {
		t.Fatalf("reason = %s, want %s", got, blueprint.ReasonRoomsTooSmall)
	}
	var ni *blueprint.NeedsInputError
	errors.As(err, &ni)
	if ni.Recommendation == "" || ni.Details["suggested_points_per_foot"] == nil {
		t.Errorf("missing scale recommendation: %+v", ni)
	}
	if sp, _ := ni.Details["suggested_points_per_foot"].(float64); sp >= 18 {
		t.Errorf("suggested %v should be coarser than 18", sp)
	}
}

func TestGates_RoomCountBoundary(t *testing.T) {
	g := NewGates(Policy{})
	if got := reason(t, g.Run(pageContext(t, 1, 18), schema(45, 100))); got != blueprint.ReasonTooManyRooms {
		t.Errorf("45 rooms: reason = %q", got)
	}
	if got := reason(t, g.Run(pageContext(t, 1, 18), schema(39, 100))); got != "" {
		t.Errorf("39 rooms: reason = %q, want pass", got)
	}
	if got := reason(t, g.Run(pageContext(t, 1, 18), schema(40, 100))); got != "" {
		t.Errorf("40 rooms is the limit, got %q", got)
	}
}

func TestGates_Order(t *testing.T) {
	g := NewGates(Policy{})

	s := schema(85, 26.8)
	s.Metadata.QualityScore = 30
	if got := reason(t, g.Run(pageContext(t, 1, 18), s)); got != blueprint.ReasonQualityTooLow {
		t.Errorf("quality gate first: %q", got)
	}

	if got := reason(t, g.Run(pageContext(t, 1, 18), schema(3, 100))); got != blueprint.ReasonTotalAreaOutOfBounds {
		t.Errorf("300 sq ft: %q", got)
	}
	if got := reason(t, g.Run(pageContext(t, 1, 18), schema(30, 400))); got != blueprint.ReasonTotalAreaOutOfBounds {
		t.Errorf("12000 sq ft: %q", got)
	}

	if got := reason(t, g.Run(pageContext(t, 2, 18), schema(10, 150))); got != blueprint.ReasonPageScaleInconsistent {
		t.Errorf("page mismatch: %q", got)
	}
	if got := reason(t, g.Run(pageContext(t, 1, 9), schema(10, 150))); got != blueprint.ReasonPageScaleInconsistent {
		t.Errorf("scale mismatch: %q", got)
	}
}

func TestGates_PolicyOverrides(t *testing.T) {
	g := NewGates(Policy{MaxRooms: 50})
	if got := reason(t, g.Run(pageContext(t, 1, 18), schema(45, 100))); got != "" {
		t.Errorf("policy max 50 should pass 45 rooms: %q", got)
	}
	if DefaultPolicy().MinQuality != 50 || g.Policy().MinAvgRoomArea != 40 {
		t.Error("defaults")
	}
}

func TestQualityScore(t *testing.T) {
	if q, _ := QualityScore(&blueprint.Schema{}, Signals{ScaleConfidence: 1}); q != 0 {
		t.Errorf("empty schema = %d", q)
	}

	s := schema(8, 150)
	q, notes := QualityScore(s, Signals{ScaleConfidence: 0.985})
	if q < 90 || len(notes) != 0 {
		t.Errorf("clean parse = %d %v", q, notes)
	}

	s.Rooms[0].Provenance["name"] = blueprint.Defaulted
	s.Rooms[1].WidthFt, s.Rooms[1].LengthFt = 10, 10
	degraded, notes := QualityScore(s, Signals{ScaleConfidence: 0.5, Degradations: 1, UsedOCR: true})
	if degraded >= q || len(notes) < 4 {
		t.Errorf("degraded parse = %d %v", degraded, notes)
	}
}
