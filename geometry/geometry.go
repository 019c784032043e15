// CLAUDE:SUMMARY Geometry extractor: content-stream walk, deterministic sampling, element budget, timeout, wall classification and room polygons.
// Package geometry turns a page's vector drawing into typed elements: wall
// candidates, noise, and closed room-candidate polygons.
//
// Large drawings are thinned with a deterministic stride instead of being
// truncated, and extraction stops at a hard timeout or element budget with
// a partial result marked Degraded.
//
// Usage:
//
//	x := geometry.New(geometry.Options{})
//	res, err := x.Extract(ctx, geometry.Page{Content: data, Width: 792, Height: 612})
package geometry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/adixon02/AutoHVAC-sub002/pdfdoc"
)

// Options configures the extractor. Zero values take defaults.
type Options struct {
	// SampleThreshold is the segment count above which every Nth segment is
	// kept (default 5000).
	SampleThreshold int `yaml:"sample_threshold"`
	// MaxElements is the output element budget (default 20000).
	MaxElements int `yaml:"max_elements"`
	// MaxRawSegments stops parsing when this many primitives have been read
	// (default 500000).
	MaxRawSegments int `yaml:"max_raw_segments"`
	// Timeout is the hard extraction limit (default 10s).
	Timeout time.Duration `yaml:"timeout"`
	// MinWallLength in points (default 9, one foot at 1/8" scale).
	MinWallLength float64 `yaml:"min_wall_length"`
	// MinPolygonArea in square points (default 100).
	MinPolygonArea float64 `yaml:"min_polygon_area"`

	Logger *slog.Logger `yaml:"-"`
}

func (o *Options) defaults() {
	if o.SampleThreshold <= 0 {
		o.SampleThreshold = 5000
	}
	if o.MaxElements <= 0 {
		o.MaxElements = 20000
	}
	if o.MaxRawSegments <= 0 {
		o.MaxRawSegments = 500000
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MinWallLength <= 0 {
		o.MinWallLength = 9
	}
	if o.MinPolygonArea <= 0 {
		o.MinPolygonArea = 100
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Page is the input for one extraction.
type Page struct {
	Content []byte
	Forms   map[string]*pdfdoc.Form
	Width   float64
	Height  float64
}

// Extractor extracts geometry from page content streams.
type Extractor struct {
	opts Options
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	opts.defaults()
	return &Extractor{opts: opts}
}

// Extract walks the page drawing. It never blocks past the configured
// timeout: a slow or oversized page yields a partial, degraded result.
func (x *Extractor) Extract(ctx context.Context, page Page) (*Result, error) {
	if page.Width <= 0 || page.Height <= 0 {
		return nil, fmt.Errorf("geometry: invalid page size %vx%v", page.Width, page.Height)
	}
	start := time.Now()
	deadline := start.Add(x.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	res := &Result{PageWidth: page.Width, PageHeight: page.Height, Stride: 1}
	w := newWalker(ctx, deadline, page.Height, x.opts.MaxRawSegments)
	w.run(page.Content, page.Forms, 0)
	if w.stopped != "" {
		res.degrade(w.stopped)
	}
	res.RawSegments = len(w.segs) + len(w.rects)

	segs := w.segs
	if len(segs) > x.opts.SampleThreshold {
		res.Stride = int(math.Ceil(float64(len(segs)) / float64(x.opts.SampleThreshold)))
		kept := make([]segment, 0, len(segs)/res.Stride+1)
		for i := 0; i < len(segs); i += res.Stride {
			kept = append(kept, segs[i])
		}
		segs = kept
	}

	elems := make([]Element, 0, len(w.rects)+len(segs))
	elems = append(elems, w.rects...)
	for _, s := range segs {
		elems = append(elems, lineElement(s))
	}
	if len(elems) > x.opts.MaxElements {
		elems = elems[:x.opts.MaxElements]
		res.degrade("element budget exceeded")
	}

	res.WallPairs = classify(elems, x.opts.MinWallLength)
	res.Elements = elems
	res.Polygons = findPolygons(res, w.polys, 2*x.opts.MinWallLength, x.opts.MinPolygonArea)
	res.Elapsed = time.Since(start)

	x.opts.Logger.DebugContext(ctx, "geometry extracted",
		"raw", res.RawSegments,
		"elements", len(res.Elements),
		"polygons", len(res.Polygons),
		"stride", res.Stride,
		"degraded", res.Degraded,
		"elapsed_ms", res.Elapsed.Milliseconds())
	return res, nil
}

// lineElement orders endpoints left-to-right, then top-to-bottom, so equal
// drawings produce equal elements regardless of stroke direction.
func lineElement(s segment) Element {
	x0, y0, x1, y1 := s.x0, s.y0, s.x1, s.y1
	if x1 < x0 || (x1 == x0 && y1 < y0) {
		x0, y0, x1, y1 = x1, y1, x0, y0
	}
	if math.Abs(y1-y0) <= axisTolerance {
		y0 = (y0 + y1) / 2
		y1 = y0
	} else if math.Abs(x1-x0) <= axisTolerance {
		x0 = (x0 + x1) / 2
		x1 = x0
	}
	return Element{Kind: KindLine, X0: x0, Y0: y0, X1: x1, Y1: y1, StrokeWidth: s.width}
}
