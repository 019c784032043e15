package textract

import (
	"context"
	"errors"
	"image"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"

	"github.com/adixon02/AutoHVAC-sub002/ocr"
	"github.com/adixon02/AutoHVAC-sub002/pdfdoc"
	"github.com/adixon02/AutoHVAC-sub002/samplepdf"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want Class
	}{
		{`SCALE: 1/4" = 1'-0"`, ClassScale},
		{`1/8"=1'-0"`, ClassScale},
		{`1" = 20'`, ClassScale},
		{`1:48`, ClassScale},
		{`12'-6"`, ClassDimension},
		{`12' 6"`, ClassDimension},
		{`12'`, ClassDimension},
		{`11'6"`, ClassDimension},
		{`12'-6" x 14'-0"`, ClassDimension},
		{"BEDROOM 2", ClassLabel},
		{"Living Room", ClassLabel},
		{"WIC", ClassLabel},
		{"SUNROOM", ClassLabel},
		{"FLOOR PLAN", ClassNote},
		{"N", ClassNote},
		{"Verify all dimensions in field", ClassNote},
	}
	for _, tc := range cases {
		got, _ := Classify(Normalize(tc.text))
		if got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestParseFeet(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{`12'-6"`, 12.5, true},
		{`12' 6"`, 12.5, true},
		{`12'`, 12, true},
		{`11'6"`, 11.5, true},
		{`12′-6″`, 12.5, true},
		{`12’-3”`, 12.25, true},
		{`50'-0"`, 50, true},
		{`kitchen`, 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseFeet(tc.in)
		if ok != tc.ok || math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("ParseFeet(%q) = %v,%v want %v,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
	dims := ParseDimensions(`12'-6" x 14'-0"`)
	if len(dims) != 2 || dims[0] != 12.5 || dims[1] != 14 {
		t.Errorf("ParseDimensions = %v", dims)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  ＢＥＤ  ROOM\t"); got != "BED ROOM" {
		t.Errorf("Normalize fullwidth = %q", got)
	}
	if got := Normalize("1⁄4“=1’-0”"); got != `1/4"=1'-0"` {
		t.Errorf("Normalize quotes = %q", got)
	}
}

func glyphs(s string, x, y, fs, w float64) []pdf.Text {
	var out []pdf.Text
	for _, r := range s {
		out = append(out, pdf.Text{FontSize: fs, X: x, Y: y, W: w, S: string(r)})
		x += w
	}
	return out
}

func TestFromGlyphs(t *testing.T) {
	var in []pdf.Text
	in = append(in, glyphs("KITCHEN", 100, 500, 8, 5)...)
	in = append(in, glyphs("DINING", 300, 500, 8, 5)...)
	in = append(in, glyphs("12'-6\"", 100, 400, 8, 0)...)

	spans := FromGlyphs(in, 612)
	if len(spans) != 3 {
		t.Fatalf("spans = %d (%+v)", len(spans), spans)
	}
	if spans[0].Text != "KITCHEN" || spans[0].Class != ClassLabel {
		t.Errorf("span 0 = %+v", spans[0])
	}
	if got := spans[0].Y1; math.Abs(got-(612-500+1.6)) > 1e-9 {
		t.Errorf("bottom = %v", got)
	}
	if spans[0].X1 != 135 {
		t.Errorf("x1 = %v, want 135", spans[0].X1)
	}
	if spans[2].Class != ClassDimension || spans[2].Feet != 12.5 {
		t.Errorf("zero-width span = %+v", spans[2])
	}
	if spans[2].Width() <= 0 {
		t.Error("zero-width glyph run should get an estimated width")
	}
}

func TestFromGlyphs_WordGap(t *testing.T) {
	in := glyphs("LIVING", 100, 500, 10, 6)
	in = append(in, glyphs("ROOM", 100+36+5, 500, 10, 6)...)
	spans := FromGlyphs(in, 612)
	if len(spans) != 1 || spans[0].Text != "LIVING ROOM" {
		t.Fatalf("spans = %+v", spans)
	}
}

func TestFromWords(t *testing.T) {
	words := []ocr.Word{
		{Text: "BEDROOM", X0: 300, Y0: 300, X1: 500, Y1: 340, Confidence: 0.9},
		{Text: "2", X0: 520, Y0: 300, X1: 540, Y1: 340, Confidence: 0.8},
		{Text: "KITCHEN", X0: 1200, Y0: 300, X1: 1400, Y1: 340, Confidence: 0.9},
	}
	spans := FromWords(words, 300)
	if len(spans) != 2 {
		t.Fatalf("spans = %+v", spans)
	}
	if spans[0].Text != "BEDROOM 2" || spans[0].Source != SourceOCR {
		t.Errorf("span 0 = %+v", spans[0])
	}
	if math.Abs(spans[0].X0-72) > 1e-9 {
		t.Errorf("x0 = %v, want 72pt", spans[0].X0)
	}
	if spans[0].Confidence >= 0.85 {
		t.Errorf("ocr confidence should be discounted, got %v", spans[0].Confidence)
	}
}

type fakeRenderer struct{ err error }

func (f fakeRenderer) Render(ctx context.Context, path string, page, dpi int) (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	return image.NewGray(image.Rect(0, 0, 10, 10)), nil
}

type fakeOCR struct{ words []ocr.Word }

func (f fakeOCR) Words(ctx context.Context, png []byte) ([]ocr.Word, error) { return f.words, nil }

func TestExtract_OCRFallback(t *testing.T) {
	x := New(Config{
		Renderer: fakeRenderer{},
		OCR:      fakeOCR{words: []ocr.Word{{Text: "KITCHEN", X0: 100, Y0: 100, X1: 300, Y1: 140, Confidence: 0.9}}},
	})
	res, err := x.Extract(context.Background(), Page{Number: 1, Width: 792, Height: 612})
	if err != nil {
		t.Fatal(err)
	}
	if !res.UsedOCR || len(res.Spans) != 1 || res.Spans[0].Text != "KITCHEN" {
		t.Fatalf("result = %+v", res)
	}
}

func TestExtract_OCRUnavailableDegrades(t *testing.T) {
	x := New(Config{Renderer: fakeRenderer{err: errors.New("no poppler")}, OCR: fakeOCR{}})
	res, err := x.Extract(context.Background(), Page{Number: 1, Width: 792, Height: 612})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Degraded) != 1 || !strings.Contains(res.Degraded[0].Reason, "no poppler") {
		t.Fatalf("degraded = %+v", res.Degraded)
	}

	res, err = New(Config{}).Extract(context.Background(), Page{Number: 1, Width: 792, Height: 612})
	if err != nil || len(res.Degraded) != 1 {
		t.Fatalf("no ocr configured: %v %+v", err, res)
	}
}

func TestExtract_SamplePDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.pdf")
	if err := samplepdf.WriteFile(path, samplepdf.ExampleHouse()); err != nil {
		t.Fatal(err)
	}
	doc, err := pdfdoc.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()
	size, _ := doc.PageSize(1)
	tp, ok := doc.TextPage(1)
	if !ok {
		t.Fatal("no text layer")
	}

	res, err := New(Config{}).Extract(context.Background(), Page{
		Path: path, Number: 1, Width: size.Width, Height: size.Height, Native: &tp,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.UsedOCR {
		t.Error("native text should be sufficient")
	}
	labels := map[string]bool{}
	for _, s := range res.ByClass(ClassLabel) {
		labels[s.Text] = true
	}
	for _, want := range []string{"LIVING ROOM", "KITCHEN", "PRIMARY BEDROOM", "BATH"} {
		if !labels[want] {
			t.Errorf("missing label %q in %v", want, labels)
		}
	}
	if n := len(res.ByClass(ClassScale)); n != 1 {
		t.Errorf("scale notations = %d", n)
	}
	var feet []float64
	for _, s := range res.ByClass(ClassDimension) {
		feet = append(feet, s.Feet)
	}
	if len(feet) != 2 {
		t.Errorf("dimensions = %v", feet)
	}

	// Label centred in the 20x16 living room drawn at origin (120,140), 9 pt/ft.
	for _, s := range res.Spans {
		if s.Text == "LIVING ROOM" && !s.Contains(120, 140, 300, 284) {
			t.Errorf("living room label outside its room: %+v", s)
		}
	}
}
