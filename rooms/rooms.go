// CLAUDE:SUMMARY Room structuring: strategy interface, ordered orchestrator with fallback, room-type inference shared by the AI and geometric strategies.
// Package rooms turns page evidence (polygons, labels, the accepted scale)
// into structured rooms. Strategies are tried in order; the first that
// yields rooms wins.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/geometry"
	"github.com/adixon02/AutoHVAC-sub002/textract"
)

// Input is the evidence for one page.
type Input struct {
	PDFPath       string
	Page          int
	PageWidth     float64
	PageHeight    float64
	PointsPerFoot float64
	Geometry      *geometry.Result
	Spans         []textract.Span
}

// Strategy produces rooms from page evidence.
type Strategy interface {
	Name() string
	StructureRooms(ctx context.Context, in Input) ([]blueprint.Room, error)
}

// ErrNoRooms is returned by a strategy that found nothing usable.
var ErrNoRooms = errors.New("rooms: no valid rooms")

// Outcome is the result of structuring.
type Outcome struct {
	Rooms    []blueprint.Room `json:"rooms"`
	Strategy string           `json:"strategy"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Structurer tries strategies in order.
type Structurer struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewStructurer creates a Structurer. A nil logger uses slog.Default().
func NewStructurer(logger *slog.Logger, strategies ...Strategy) *Structurer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Structurer{strategies: strategies, logger: logger}
}

// Structure runs the strategies until one succeeds. When every strategy
// fails the error is a *blueprint.FatalParsingError naming each attempt.
func (s *Structurer) Structure(ctx context.Context, in Input) (*Outcome, error) {
	out := &Outcome{}
	attempts := map[string]string{}
	for _, st := range s.strategies {
		rooms, err := st.StructureRooms(ctx, in)
		if err == nil && len(rooms) == 0 {
			err = ErrNoRooms
		}
		if err == nil {
			out.Rooms = rooms
			out.Strategy = st.Name()
			s.logger.InfoContext(ctx, "rooms: structured", "strategy", st.Name(), "rooms", len(rooms))
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("rooms: %s: %w", st.Name(), ctxErr)
		}
		attempts[st.Name()] = err.Error()
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s strategy failed: %v", st.Name(), err))
		s.logger.WarnContext(ctx, "rooms: strategy failed", "strategy", st.Name(), "error", err)
	}
	return nil, &blueprint.FatalParsingError{Attempts: attempts}
}

// typeWords maps name tokens to room types. Earlier entries win, so
// "MASTER BATH" is a bathroom and "BEDROOM CLOSET" a closet.
var typeWords = []struct {
	t     blueprint.RoomType
	words []string
}{
	{blueprint.Closet, []string{"CLOSET", "CLO", "CL", "WIC", "PANTRY", "STORAGE"}},
	{blueprint.Bathroom, []string{"BATH", "BATHROOM", "POWDER", "WC", "TOILET"}},
	{blueprint.Garage, []string{"GARAGE"}},
	{blueprint.Porch, []string{"PORCH", "PATIO", "DECK", "LANAI"}},
	{blueprint.Laundry, []string{"LAUNDRY", "MUDROOM", "MUD"}},
	{blueprint.Kitchen, []string{"KITCHEN", "KIT"}},
	{blueprint.Dining, []string{"DINING", "NOOK", "BREAKFAST"}},
	{blueprint.Hallway, []string{"HALL", "HALLWAY", "CORRIDOR", "GALLERY"}},
	{blueprint.Entry, []string{"ENTRY", "FOYER", "VESTIBULE"}},
	{blueprint.Office, []string{"OFFICE", "STUDY", "DEN"}},
	{blueprint.Utility, []string{"UTILITY", "MECH", "MECHANICAL"}},
	{blueprint.Family, []string{"FAMILY", "REC", "BONUS", "LOFT", "MEDIA", "GAME"}},
	{blueprint.Living, []string{"LIVING", "GREAT", "SUNROOM", "PARLOR"}},
	{blueprint.Bedroom, []string{"BEDROOM", "BED", "BR", "BDRM", "MASTER", "PRIMARY", "GUEST", "NURSERY"}},
}

// TypeFromName infers a room type from its label, or reports false.
func TypeFromName(name string) (blueprint.RoomType, bool) {
	tokens := strings.FieldsFunc(strings.ToUpper(name), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, tw := range typeWords {
		for _, tok := range tokens {
			for _, w := range tw.words {
				if tok == w {
					return tw.t, true
				}
			}
		}
	}
	return "", false
}

// TypeFromShape classifies an unlabelled room by area and proportions.
func TypeFromShape(areaSqFt, aspect float64) blueprint.RoomType {
	switch {
	case areaSqFt < 50:
		return blueprint.Closet
	case aspect > 3:
		return blueprint.Hallway
	case areaSqFt < 80:
		return blueprint.Bathroom
	case areaSqFt < 200:
		return blueprint.Bedroom
	}
	return blueprint.Living
}

// validType reports whether t is a known room type.
func validType(t blueprint.RoomType) bool {
	for _, tw := range typeWords {
		if tw.t == t {
			return true
		}
	}
	return t == blueprint.Other
}
