// CLAUDE:SUMMARY Scale detection: override, title block, dimension, door and grid estimates reconciled by consensus into one points-per-foot decision.
// Package scale determines the drawing scale of a blueprint page in points
// per foot. Independent estimates must agree before a scale is accepted.
package scale

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/geometry"
	"github.com/adixon02/AutoHVAC-sub002/textract"
)

// Decision is the accepted scale.
type Decision struct {
	PointsPerFoot float64    `json:"points_per_foot"`
	Confidence    float64    `json:"confidence"`
	Method        string     `json:"method"`
	Estimates     []Estimate `json:"estimates"`
	Label         string     `json:"label"`
}

// Options tunes detection.
type Options struct {
	Tolerance float64      `yaml:"tolerance"` // pairwise agreement, default 0.03
	Logger    *slog.Logger `yaml:"-"`
}

func (o *Options) defaults() {
	if o.Tolerance <= 0 {
		o.Tolerance = 0.03
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Input carries the page evidence.
type Input struct {
	Override   string
	Spans      []textract.Span
	Elements   []geometry.Element
	PageWidth  float64
	PageHeight float64
}

// Detector runs the estimation methods in priority order.
type Detector struct {
	opts Options
}

// NewDetector creates a Detector.
func NewDetector(opts Options) *Detector {
	opts.defaults()
	return &Detector{opts: opts}
}

// Detect returns the scale decision. An override short-circuits the other
// methods; otherwise at least two methods must agree.
func (d *Detector) Detect(ctx context.Context, in Input) (Decision, error) {
	if in.Override != "" {
		est, err := FromOverride(in.Override)
		if err != nil {
			return Decision{}, blueprint.NeedsInput(blueprint.ReasonInvalidInput,
				`use notation such as 1/4"=1'-0" or a number of points per foot`,
				"scale override %q is not usable: %v", in.Override, err)
		}
		return Decision{
			PointsPerFoot: est.PointsPerFoot,
			Confidence:    1,
			Method:        MethodOverride,
			Estimates:     []Estimate{est},
			Label:         Label(est.PointsPerFoot),
		}, nil
	}

	var ests []Estimate
	if e, ok := FromTitleBlock(in.Spans); ok {
		ests = append(ests, e)
	}
	if e, ok := FromDimensions(in.Spans, in.Elements); ok {
		ests = append(ests, e)
	}
	if e, ok := FromDoors(in.Elements); ok {
		ests = append(ests, e)
	}
	if e, ok := FromGrid(in.Elements, in.PageWidth, in.PageHeight); ok {
		ests = append(ests, e)
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, fmt.Errorf("scale: %w", err)
	}
	for _, e := range ests {
		d.opts.Logger.Debug("scale: estimate", "method", e.Method, "ppf", e.PointsPerFoot, "confidence", e.Confidence, "evidence", e.Evidence)
	}
	return Consensus(ests, d.opts.Tolerance)
}

// Consensus accepts the largest group of estimates that agree pairwise
// within tol (ties broken by summed confidence). A lone estimate is
// returned with halved confidence together with a scale_unconfirmed error.
func Consensus(ests []Estimate, tol float64) (Decision, error) {
	if len(ests) == 0 {
		return Decision{}, blueprint.NeedsInput(blueprint.ReasonScaleAmbiguous,
			"provide a scale override such as 1/4\"=1'-0\"",
			"no scale evidence found on the page")
	}
	if len(ests) == 1 {
		e := ests[0]
		dec := Decision{
			PointsPerFoot: e.PointsPerFoot,
			Confidence:    e.Confidence / 2,
			Method:        MethodConsensus,
			Estimates:     ests,
			Label:         Label(e.PointsPerFoot),
		}
		return dec, blueprint.NeedsInput(blueprint.ReasonScaleUnconfirmed,
			fmt.Sprintf("confirm %s (%.2f pt/ft) or provide a scale override", dec.Label, e.PointsPerFoot),
			"only the %s method produced a scale", e.Method).
			With("candidate_ppf", e.PointsPerFoot).
			With("method", e.Method)
	}

	sorted := slices.Clone(ests)
	slices.SortFunc(sorted, func(a, b Estimate) int {
		switch {
		case a.PointsPerFoot < b.PointsPerFoot:
			return -1
		case a.PointsPerFoot > b.PointsPerFoot:
			return 1
		}
		return 0
	})
	var group []Estimate
	var groupConf float64
	for i := range sorted {
		j := i
		for j+1 < len(sorted) && relDiff(sorted[j+1].PointsPerFoot, sorted[i].PointsPerFoot) <= tol {
			j++
		}
		g := sorted[i : j+1]
		c := sumConfidence(g)
		if len(g) > len(group) || (len(g) == len(group) && c > groupConf) {
			group, groupConf = g, c
		}
	}
	if len(group) < 2 {
		return Decision{}, blueprint.NeedsInput(blueprint.ReasonScaleAmbiguous,
			"provide a scale override; the detected candidates disagree",
			"scale estimates disagree: %s", describe(ests)).
			With("estimates", ests)
	}

	var wsum, miss float64 = 0, 1
	for _, e := range group {
		wsum += e.Confidence * e.PointsPerFoot
		miss *= 1 - e.Confidence
	}
	ppf := wsum / groupConf
	if std, ok := Snap(ppf, 0.005); ok {
		ppf = std.PointsPerFoot
	}
	return Decision{
		PointsPerFoot: ppf,
		Confidence:    1 - miss,
		Method:        MethodConsensus,
		Estimates:     slices.Clone(group),
		Label:         Label(ppf),
	}, nil
}

func sumConfidence(g []Estimate) float64 {
	var s float64
	for _, e := range g {
		s += e.Confidence
	}
	return s
}

func describe(ests []Estimate) string {
	parts := make([]string, len(ests))
	for i, e := range ests {
		parts[i] = fmt.Sprintf("%s=%.2f", e.Method, e.PointsPerFoot)
	}
	return strings.Join(parts, ", ")
}

// Feet converts a length in points to feet at ppf.
func Feet(points, ppf float64) float64 {
	if ppf <= 0 {
		return math.NaN()
	}
	return points / ppf
}
