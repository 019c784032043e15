// CLAUDE:SUMMARY Text/label extraction: ledongthuc glyphs merged into spans, OCR fallback on rendered pages, NFKC normalization, regex classification.
// Package textract extracts positioned, classified text spans from a
// blueprint page. Native PDF text is preferred; OCR on the rendered page
// is the fallback when the text layer is missing or unreadable.
package textract

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/ocr"
	"github.com/adixon02/AutoHVAC-sub002/render"
)

// Recognizer reads words from a PNG page image.
type Recognizer interface {
	Words(ctx context.Context, png []byte) ([]ocr.Word, error)
}

// Renderer rasterizes a PDF page.
type Renderer interface {
	Render(ctx context.Context, pdfPath string, page, dpi int) (image.Image, error)
}

// Config tunes extraction.
type Config struct {
	MinNativeChars    int     `yaml:"min_native_chars"`    // default 20
	MinPrintableRatio float64 `yaml:"min_printable_ratio"` // default 0.8
	OCRDPI            int     `yaml:"ocr_dpi"`             // default 300

	OCR      Recognizer   `yaml:"-"`
	Renderer Renderer     `yaml:"-"`
	Logger   *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.MinNativeChars <= 0 {
		c.MinNativeChars = 20
	}
	if c.MinPrintableRatio <= 0 {
		c.MinPrintableRatio = 0.8
	}
	if c.OCRDPI <= 0 {
		c.OCRDPI = 300
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Page identifies the page to read.
type Page struct {
	Path   string
	Number int
	Width  float64
	Height float64
	Native *pdf.Page // nil when the PDF has no readable text layer
}

// Result is the extracted text of one page.
type Result struct {
	Spans       []Span                  `json:"spans"`
	NativeChars int                     `json:"native_chars"`
	UsedOCR     bool                    `json:"used_ocr"`
	Degraded    []blueprint.Degradation `json:"degraded,omitempty"`
	Elapsed     time.Duration           `json:"elapsed"`
}

// ByClass returns the spans of class c.
func (r *Result) ByClass(c Class) []Span {
	var out []Span
	for _, s := range r.Spans {
		if s.Class == c {
			out = append(out, s)
		}
	}
	return out
}

// Extractor extracts text spans.
type Extractor struct {
	cfg Config
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	cfg.defaults()
	return &Extractor{cfg: cfg}
}

// Extract reads native text and falls back to OCR when it is absent or of
// low quality. OCR problems are recorded as degradations.
func (e *Extractor) Extract(ctx context.Context, p Page) (*Result, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("textract: invalid page size %.1fx%.1f", p.Width, p.Height)
	}
	start := time.Now()
	res := &Result{}

	var native []Span
	if p.Native != nil {
		glyphs, err := glyphsOf(*p.Native)
		if err != nil {
			res.Degraded = append(res.Degraded, blueprint.Degradation{Stage: "text", Reason: err.Error()})
		}
		native = FromGlyphs(glyphs, p.Height)
	}
	chars, ratio := quality(native)
	res.NativeChars = chars

	sparse := chars < e.cfg.MinNativeChars
	garbled := chars > 0 && ratio < e.cfg.MinPrintableRatio
	if garbled {
		native = nil
	}
	res.Spans = native

	if sparse || garbled {
		spans, err := e.ocr(ctx, p)
		switch {
		case err != nil:
			res.Degraded = append(res.Degraded, blueprint.Degradation{Stage: "text", Reason: "ocr unavailable: " + err.Error()})
		default:
			res.UsedOCR = true
			res.Spans = append(res.Spans, spans...)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("textract: %w", err)
	}

	slices.SortStableFunc(res.Spans, func(a, b Span) int {
		if c := cmpFloat(a.Y0, b.Y0); c != 0 {
			return c
		}
		return cmpFloat(a.X0, b.X0)
	})
	res.Elapsed = time.Since(start)
	e.cfg.Logger.Debug("textract: page done",
		"page", p.Number, "spans", len(res.Spans), "native_chars", chars,
		"ocr", res.UsedOCR, "elapsed", res.Elapsed)
	return res, nil
}

func (e *Extractor) ocr(ctx context.Context, p Page) ([]Span, error) {
	if e.cfg.OCR == nil || e.cfg.Renderer == nil {
		return nil, ocr.ErrOCRNotEnabled
	}
	img, err := e.cfg.Renderer.Render(ctx, p.Path, p.Number, e.cfg.OCRDPI)
	if err != nil {
		return nil, err
	}
	png, err := render.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	words, err := e.cfg.OCR.Words(ctx, png)
	if err != nil {
		return nil, err
	}
	return FromWords(words, e.cfg.OCRDPI), nil
}

// NativeSpans reads the text layer of p without OCR. Page selection uses it
// to score candidate pages cheaply.
func NativeSpans(p pdf.Page, pageHeight float64) ([]Span, error) {
	glyphs, err := glyphsOf(p)
	if err != nil {
		return nil, err
	}
	return FromGlyphs(glyphs, pageHeight), nil
}

// glyphsOf reads positioned glyphs; malformed streams panic inside the
// reader, so the panic is turned into an error.
func glyphsOf(p pdf.Page) (glyphs []pdf.Text, err error) {
	defer func() {
		if r := recover(); r != nil {
			glyphs, err = nil, fmt.Errorf("native text unreadable: %v", r)
		}
	}()
	return p.Content().Text, nil
}

// FromGlyphs merges glyphs into spans by baseline and horizontal gap. Glyph
// coordinates are PDF user space; spans are top-left page points.
func FromGlyphs(glyphs []pdf.Text, pageHeight float64) []Span {
	var spans []Span
	var b strings.Builder
	var cur Span
	var lastX, lastW, baseline float64
	open := false

	flush := func() {
		if !open {
			return
		}
		cur.Text = b.String()
		if est := cur.X0 + float64(utf8.RuneCountInString(cur.Text))*0.5*cur.FontSize; cur.X1 < est && lastW == 0 {
			cur.X1 = est
		}
		if s, ok := finish(cur); ok {
			spans = append(spans, s)
		}
		b.Reset()
		open = false
	}

	for _, g := range glyphs {
		fs := g.FontSize
		if fs <= 0 {
			fs = 10
		}
		if open {
			sameLine := math.Abs(g.Y-baseline) <= 0.3*fs
			gap := g.X - (lastX + lastW)
			if !sameLine || g.X < lastX-0.5 || gap > 0.3*fs {
				if sameLine && gap > 0.3*fs && gap <= fs {
					b.WriteByte(' ')
				} else {
					flush()
				}
			}
		}
		if !open {
			cur = Span{
				X0:       g.X,
				X1:       g.X,
				Y0:       pageHeight - g.Y - 0.8*fs,
				Y1:       pageHeight - g.Y + 0.2*fs,
				FontSize: fs,
				Source:   SourceNative,
			}
			baseline = g.Y
			open = true
		}
		b.WriteString(g.S)
		lastX, lastW = g.X, g.W
		cur.X1 = math.Max(cur.X1, g.X+g.W)
	}
	flush()
	return spans
}

// FromWords converts OCR words to spans, joining words on the same line
// that are closer than one text height.
func FromWords(words []ocr.Word, dpi int) []Span {
	k := 72 / float64(dpi)
	var spans []Span
	var cur Span
	open := false
	var confSum float64
	var n int

	flush := func() {
		if !open {
			return
		}
		cur.Confidence = confSum / float64(n)
		if s, ok := finish(cur); ok {
			s.Confidence *= cur.Confidence
			spans = append(spans, s)
		}
		open = false
	}
	for _, w := range words {
		x0, y0 := float64(w.X0)*k, float64(w.Y0)*k
		x1, y1 := float64(w.X1)*k, float64(w.Y1)*k
		h := y1 - y0
		if open {
			cy := (y0 + y1) / 2
			if cy < cur.Y0 || cy > cur.Y1 || x0-cur.X1 > h || x0 < cur.X0 {
				flush()
			}
		}
		if !open {
			cur = Span{X0: x0, Y0: y0, X1: x1, Y1: y1, FontSize: h, Source: SourceOCR}
			confSum, n = 0, 0
			open = true
		} else {
			cur.Text += " "
			cur.X1 = math.Max(cur.X1, x1)
			cur.Y0 = math.Min(cur.Y0, y0)
			cur.Y1 = math.Max(cur.Y1, y1)
		}
		cur.Text += w.Text
		confSum += w.Confidence
		n++
	}
	flush()
	return spans
}

// finish normalizes and classifies a merged span.
func finish(s Span) (Span, bool) {
	s.Text = Normalize(s.Text)
	if s.Text == "" {
		return s, false
	}
	s.Class, s.Confidence = Classify(s.Text)
	if s.Class == ClassDimension {
		s.Feet, _ = ParseFeet(s.Text)
	}
	return s, true
}

// quality returns the character count and printable ratio of spans.
func quality(spans []Span) (int, float64) {
	total, printable := 0, 0
	for _, s := range spans {
		for _, r := range s.Text {
			if unicode.IsSpace(r) {
				continue
			}
			total++
			if r != utf8.RuneError && unicode.IsPrint(r) {
				printable++
			}
		}
	}
	if total == 0 {
		return 0, 0
	}
	return total, float64(printable) / float64(total)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
