package scale

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/adixon02/AutoHVAC-sub002/textract"
)

// Standard is a drawing scale from the catalogue.
type Standard struct {
	Label         string  `json:"label"`
	PointsPerFoot float64 `json:"points_per_foot"`
	Engineering   bool    `json:"engineering,omitempty"`
}

// Catalogue lists the architectural (inches per foot) and engineering
// (feet per inch) scales, most common first.
var Catalogue = []Standard{
	{`1/4"=1'-0"`, 18, false},
	{`1/8"=1'-0"`, 9, false},
	{`3/16"=1'-0"`, 13.5, false},
	{`3/8"=1'-0"`, 27, false},
	{`1/2"=1'-0"`, 36, false},
	{`3/32"=1'-0"`, 6.75, false},
	{`1/16"=1'-0"`, 4.5, false},
	{`3/4"=1'-0"`, 54, false},
	{`1"=1'-0"`, 72, false},
	{`1 1/2"=1'-0"`, 108, false},
	{`3"=1'-0"`, 216, false},
	{`1"=10'`, 7.2, true},
	{`1"=20'`, 3.6, true},
	{`1"=30'`, 2.4, true},
	{`1"=40'`, 1.8, true},
	{`1"=50'`, 1.44, true},
	{`1"=60'`, 1.2, true},
	{`1"=100'`, 0.72, true},
}

// Snap returns the catalogue scale nearest to ppf when it lies within the
// relative tolerance.
func Snap(ppf, tol float64) (Standard, bool) {
	var best Standard
	bestDiff := math.Inf(1)
	for _, s := range Catalogue {
		if d := relDiff(ppf, s.PointsPerFoot); d < bestDiff {
			best, bestDiff = s, d
		}
	}
	return best, bestDiff <= tol
}

// Label names ppf as a standard scale, or formats it as points per foot.
func Label(ppf float64) string {
	if s, ok := Snap(ppf, 0.005); ok {
		return s.Label
	}
	return fmt.Sprintf("%.2f pt/ft", ppf)
}

// ParseNotation converts scale notation to points per foot:
// 1/4"=1'-0" is 18, 1"=20' is 3.6, 1:48 is 18.
func ParseNotation(s string) (float64, error) {
	m := textract.ScaleNotation.FindStringSubmatch(textract.Normalize(s))
	if m == nil {
		return 0, fmt.Errorf("scale: unrecognized notation %q", s)
	}
	if m[4] != "" {
		n, err := strconv.ParseFloat(m[4], 64)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("scale: bad ratio %q", s)
		}
		return 864 / n, nil
	}
	inches, err := parseInches(m[1])
	if err != nil {
		return 0, err
	}
	feet, _ := strconv.ParseFloat(m[2], 64)
	if m[3] != "" {
		in, _ := strconv.ParseFloat(m[3], 64)
		feet += in / 12
	}
	if inches <= 0 || feet <= 0 {
		return 0, fmt.Errorf("scale: degenerate notation %q", s)
	}
	return inches * 72 / feet, nil
}

// parseInches reads "1/4", "1 1/2", "3" or "0.25".
func parseInches(s string) (float64, error) {
	var total float64
	for _, f := range strings.Fields(s) {
		if num, den, ok := strings.Cut(f, "/"); ok {
			n, err1 := strconv.ParseFloat(num, 64)
			d, err2 := strconv.ParseFloat(den, 64)
			if err1 != nil || err2 != nil || d == 0 {
				return 0, fmt.Errorf("scale: bad fraction %q", f)
			}
			total += n / d
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, fmt.Errorf("scale: bad number %q", f)
		}
		total += v
	}
	return total, nil
}

func relDiff(a, b float64) float64 {
	m := math.Max(math.Abs(a), math.Abs(b))
	if m == 0 {
		return 0
	}
	return math.Abs(a-b) / m
}
