// CLAUDE:SUMMARY Room and BlueprintSchema entities shared by every pipeline stage.
// Package blueprint holds the entities exchanged between pipeline stages:
// rooms, the building schema, the page context and the error taxonomy.
package blueprint

import (
	"math"
	"strings"
	"time"
)

// Orientation is the compass direction a room's primary exterior wall faces.
type Orientation string

const (
	North     Orientation = "N"
	NorthEast Orientation = "NE"
	East      Orientation = "E"
	SouthEast Orientation = "SE"
	South     Orientation = "S"
	SouthWest Orientation = "SW"
	West      Orientation = "W"
	NorthWest Orientation = "NW"
	Unknown   Orientation = "unknown"
)

// ParseOrientation accepts abbreviations and full words ("north-east").
// Anything unrecognised maps to Unknown.
func ParseOrientation(s string) Orientation {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "", " ", "", "_", "").Replace(s)
	switch s {
	case "N", "NORTH":
		return North
	case "NE", "NORTHEAST":
		return NorthEast
	case "E", "EAST":
		return East
	case "SE", "SOUTHEAST":
		return SouthEast
	case "S", "SOUTH":
		return South
	case "SW", "SOUTHWEST":
		return SouthWest
	case "W", "WEST":
		return West
	case "NW", "NORTHWEST":
		return NorthWest
	}
	return Unknown
}

// RoomType is the functional classification of a room.
type RoomType string

const (
	Bedroom  RoomType = "bedroom"
	Bathroom RoomType = "bathroom"
	Kitchen  RoomType = "kitchen"
	Living   RoomType = "living"
	Dining   RoomType = "dining"
	Family   RoomType = "family"
	Office   RoomType = "office"
	Laundry  RoomType = "laundry"
	Closet   RoomType = "closet"
	Hallway  RoomType = "hallway"
	Entry    RoomType = "entry"
	Utility  RoomType = "utility"
	Garage   RoomType = "garage"
	Porch    RoomType = "porch"
	Other    RoomType = "other"
)

// Conditioned reports whether the room type is normally inside the thermal
// envelope.
func (t RoomType) Conditioned() bool {
	return t != Garage && t != Porch
}

// Provenance records where a room field came from.
type Provenance string

const (
	Measured   Provenance = "measured"
	AIInferred Provenance = "ai"
	Defaulted  Provenance = "default"
)

// Dimension sources.
const (
	SourceGeometry = "geometry"
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

// Point is a position in page points, origin top-left.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned box in page points.
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }
func (r Rect) Area() float64   { return math.Max(0, r.Width()) * math.Max(0, r.Height()) }

// OverlapRatio is the intersection area divided by the smaller box's area.
func (r Rect) OverlapRatio(o Rect) float64 {
	ix := math.Min(r.X1, o.X1) - math.Max(r.X0, o.X0)
	iy := math.Min(r.Y1, o.Y1) - math.Max(r.Y0, o.Y0)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	smaller := math.Min(r.Area(), o.Area())
	if smaller <= 0 {
		return 0
	}
	return ix * iy / smaller
}

// Room is one conditioned space as consumed by the load calculator.
type Room struct {
	Name             string                `json:"name"`
	Type             RoomType              `json:"room_type"`
	WidthFt          float64               `json:"width_ft"`
	LengthFt         float64               `json:"length_ft"`
	AreaSqFt         float64               `json:"area_sqft"`
	Floor            int                   `json:"floor"`
	Windows          int                   `json:"windows"`
	ExteriorDoors    int                   `json:"exterior_doors"`
	ExteriorWalls    int                   `json:"exterior_walls"`
	CornerRoom       bool                  `json:"corner_room"`
	Orientation      Orientation           `json:"orientation"`
	Center           Point                 `json:"center"`
	Bounds           *Rect                 `json:"bounds,omitempty"`
	Confidence       float64               `json:"confidence"`
	FieldConfidence  map[string]float64    `json:"field_confidence,omitempty"`
	Provenance       map[string]Provenance `json:"provenance,omitempty"`
	DimensionsSource string                `json:"dimensions_source"`
}

// AreaConsistent reports whether width x length agrees with the stated area
// within tol (relative). Rooms without both dimensions are consistent.
func (r Room) AreaConsistent(tol float64) bool {
	if r.WidthFt <= 0 || r.LengthFt <= 0 || r.AreaSqFt <= 0 {
		return true
	}
	return math.Abs(r.WidthFt*r.LengthFt-r.AreaSqFt)/r.AreaSqFt <= tol
}

// AspectRatio is long side over short side, 1 when dimensions are missing.
func (r Room) AspectRatio() float64 {
	if r.WidthFt <= 0 || r.LengthFt <= 0 {
		return 1
	}
	return math.Max(r.WidthFt, r.LengthFt) / math.Min(r.WidthFt, r.LengthFt)
}

// Metadata describes how a schema was produced.
type Metadata struct {
	Method        string        `json:"method"`
	Strategy      string        `json:"strategy"`
	Confidence    float64       `json:"confidence"`
	QualityScore  int           `json:"quality_score"`
	Page          int           `json:"page"`
	PointsPerFoot float64       `json:"points_per_foot"`
	ScaleLabel    string        `json:"scale_label,omitempty"`
	ScaleMethod   string        `json:"scale_method"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Warnings      []string      `json:"warnings,omitempty"`
	Degradations  []Degradation `json:"degradations,omitempty"`
}

// Schema is the structured building description produced by parsing.
type Schema struct {
	ProjectID     string   `json:"project_id"`
	ProjectLabel  string   `json:"project_label,omitempty"`
	ZIP           string   `json:"zip"`
	TotalAreaSqFt float64  `json:"total_conditioned_area_sqft"`
	Stories       int      `json:"stories"`
	Rooms         []Room   `json:"rooms"`
	Metadata      Metadata `json:"parsing_metadata"`
}

// Recompute refreshes the derived totals after the room list changes.
func (s *Schema) Recompute() {
	s.TotalAreaSqFt = 0
	stories := 1
	for _, r := range s.Rooms {
		s.TotalAreaSqFt += r.AreaSqFt
		if r.Floor > stories {
			stories = r.Floor
		}
	}
	s.Stories = stories
}

// AverageRoomArea returns 0 for an empty schema.
func (s *Schema) AverageRoomArea() float64 {
	if len(s.Rooms) == 0 {
		return 0
	}
	var sum float64
	for _, r := range s.Rooms {
		sum += r.AreaSqFt
	}
	return sum / float64(len(s.Rooms))
}

// Warn appends a warning to the parsing metadata.
func (s *Schema) Warn(msg string) {
	s.Metadata.Warnings = append(s.Metadata.Warnings, msg)
}

