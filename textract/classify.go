package textract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ScaleNotation matches architectural and engineering scale notation:
// 1/4"=1'-0", 1 1/2" = 1'-0", 1" = 20', 1:48. Submatches: 1 inch part,
// 2 feet, 3 inches, 4 ratio denominator.
var ScaleNotation = regexp.MustCompile(`(?i)(\d+(?:\s+\d+/\d+|/\d+|\.\d+)?)\s*"\s*=\s*(\d+(?:\.\d+)?)\s*'(?:\s*-?\s*(\d+(?:\.\d+)?)\s*")?|\b1\s*:\s*(\d+)\b`)

const dimPart = `(\d+)\s*'\s*(?:-?\s*(\d+(?:\.\d+)?)\s*")?`

var (
	dimension = regexp.MustCompile(`^\s*` + dimPart + `(?:\s*[xX×]\s*` + dimPart + `)?\s*$`)
	digits    = regexp.MustCompile(`\d`)
)

// roomWords are the words that mark a span as a room label.
var roomWords = []string{
	"BEDROOM", "BED", "BR", "MASTER", "PRIMARY", "SUITE", "BATH", "BATHROOM",
	"POWDER", "KITCHEN", "LIVING", "DINING", "FAMILY", "GREAT", "DEN",
	"OFFICE", "STUDY", "LAUNDRY", "UTILITY", "MECH", "CLOSET", "CLO", "WIC",
	"HALL", "HALLWAY", "ENTRY", "FOYER", "MUDROOM", "GARAGE", "PORCH",
	"PANTRY", "BONUS", "LOFT", "REC", "NOOK", "ROOM",
}

// titleWords mark title-block and annotation text that is never a room.
var titleWords = []string{
	"PLAN", "SCALE", "SHEET", "DATE", "DRAWN", "NOTE", "NOTES", "REV",
	"PROJECT", "ELEVATION", "SECTION", "DETAIL", "NORTH", "TITLE",
}

var fold = strings.NewReplacer(
	"′′", `"`, "‘", "'", "’", "'", "′", "'", "´", "'",
	"“", `"`, "”", `"`, "″", `"`, "''", `"`,
	"⁄", "/", "–", "-", "—", "-", "×", "x",
)

// Normalize applies NFKC and folds typographic quotes, primes and dashes
// to their ASCII forms.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = fold.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Classify assigns a class and base confidence to normalized text.
func Classify(text string) (Class, float64) {
	switch {
	case ScaleNotation.MatchString(text):
		return ClassScale, 0.95
	case dimension.MatchString(text):
		return ClassDimension, 0.9
	}
	words := strings.FieldsFunc(strings.ToUpper(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return ClassNote, 0.5
	}
	for _, w := range words {
		if contains(titleWords, w) {
			return ClassNote, 0.5
		}
	}
	for _, w := range words {
		if contains(roomWords, w) {
			return ClassLabel, 0.85
		}
	}
	letters := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters >= 2 && len(text) <= 24 && !digits.MatchString(text) && text == strings.ToUpper(text) {
		return ClassLabel, 0.6
	}
	return ClassNote, 0.5
}

func contains(list []string, w string) bool {
	for _, s := range list {
		if s == w {
			return true
		}
	}
	return false
}

// ParseFeet converts the first dimension in s to decimal feet, e.g.
// 12'-6" is 12.5.
func ParseFeet(s string) (float64, bool) {
	dims := ParseDimensions(s)
	if len(dims) == 0 {
		return 0, false
	}
	return dims[0], true
}

// ParseDimensions returns every feet-inches value in a dimension string,
// e.g. 12'-6" x 14'-0" yields 12.5 and 14.
func ParseDimensions(s string) []float64 {
	m := dimension.FindStringSubmatch(Normalize(s))
	if m == nil {
		return nil
	}
	var out []float64
	for i := 1; i+1 < len(m); i += 2 {
		if m[i] == "" {
			continue
		}
		ft, _ := strconv.ParseFloat(m[i], 64)
		if m[i+1] != "" {
			in, _ := strconv.ParseFloat(m[i+1], 64)
			ft += in / 12
		}
		out = append(out, ft)
	}
	return out
}
