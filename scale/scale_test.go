package scale

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/geometry"
	"github.com/adixon02/AutoHVAC-sub002/pdfdoc"
	"github.com/adixon02/AutoHVAC-sub002/samplepdf"
	"github.com/adixon02/AutoHVAC-sub002/textract"
)

func TestParseNotation(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{`1/4"=1'-0"`, 18},
		{`1/8" = 1'-0"`, 9},
		{`SCALE: 3/16"=1'-0"`, 13.5},
		{`1 1/2" = 1'-0"`, 108},
		{`1" = 20'`, 3.6},
		{`1:48`, 18},
		{`1:96`, 9},
	}
	for _, tc := range cases {
		got, err := ParseNotation(tc.in)
		if err != nil {
			t.Errorf("ParseNotation(%q): %v", tc.in, err)
			continue
		}
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("ParseNotation(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseNotation("NTS"); err == nil {
		t.Error("expected error for NTS")
	}
}

func TestLabelAndSnap(t *testing.T) {
	if got := Label(18); got != `1/4"=1'-0"` {
		t.Errorf("Label(18) = %q", got)
	}
	if got := Label(11); got != "11.00 pt/ft" {
		t.Errorf("Label(11) = %q", got)
	}
	if s, ok := Snap(17.6, 0.03); !ok || s.PointsPerFoot != 18 {
		t.Errorf("Snap(17.6) = %+v %v", s, ok)
	}
	if _, ok := Snap(11, 0.03); ok {
		t.Error("11 should not snap within 3%")
	}
}

func TestFromOverride(t *testing.T) {
	e, err := FromOverride("18")
	if err != nil || e.PointsPerFoot != 18 || e.Confidence != 1 {
		t.Fatalf("numeric override = %+v %v", e, err)
	}
	e, err = FromOverride(`1/8"=1'-0"`)
	if err != nil || e.PointsPerFoot != 9 {
		t.Fatalf("notation override = %+v %v", e, err)
	}
	if _, err := FromOverride("-3"); err == nil {
		t.Error("negative override accepted")
	}
}

func span(text string, x0, y0, x1, y1 float64) textract.Span {
	c, conf := textract.Classify(text)
	s := textract.Span{Text: text, X0: x0, Y0: y0, X1: x1, Y1: y1, Class: c, Confidence: conf}
	if c == textract.ClassDimension {
		s.Feet, _ = textract.ParseFeet(text)
	}
	return s
}

func TestFromTitleBlock(t *testing.T) {
	e, ok := FromTitleBlock([]textract.Span{span(`1/4"=1'-0"`, 600, 500, 650, 508)})
	if !ok || e.PointsPerFoot != 18 || e.Confidence != 0.7 {
		t.Fatalf("bare notation = %+v %v", e, ok)
	}
	e, ok = FromTitleBlock([]textract.Span{
		span("SCALE:", 520, 500, 560, 508),
		span(`1/4"=1'-0"`, 600, 500, 650, 508),
	})
	if !ok || e.Confidence != 0.95 {
		t.Fatalf("keyword on same line = %+v %v", e, ok)
	}
	e, ok = FromTitleBlock([]textract.Span{
		span(`1/8"=1'-0"`, 100, 100, 150, 108),
		span(`1/8"=1'-0"`, 100, 300, 150, 308),
		span(`SCALE 1/4"=1'-0"`, 600, 500, 680, 508),
	})
	if !ok || e.PointsPerFoot != 18 {
		t.Fatalf("keyword-backed notation should win: %+v", e)
	}
}

func TestFromDimensions(t *testing.T) {
	// 12'-0" over a 216pt line is 18 pt/ft; 20'-0" over 360pt also.
	elems := []geometry.Element{
		{Kind: geometry.KindLine, X0: 100, Y0: 100, X1: 316, Y1: 100, StrokeWidth: 0.3},
		{Kind: geometry.KindLine, X0: 80, Y0: 150, X1: 80, Y1: 510, StrokeWidth: 0.3},
		{Kind: geometry.KindLine, X0: 100, Y0: 160, X1: 316, Y1: 160, StrokeWidth: 1.5},
	}
	spans := []textract.Span{
		span(`12'-0"`, 195, 88, 220, 96),
		span(`20'-0"`, 50, 326, 75, 334),
	}
	e, ok := FromDimensions(spans, elems)
	if !ok {
		t.Fatal("no estimate")
	}
	if e.PointsPerFoot != 18 || e.Confidence != 0.7 {
		t.Errorf("estimate = %+v", e)
	}

	// Text far from any line yields nothing.
	if _, ok := FromDimensions([]textract.Span{span(`12'-0"`, 600, 500, 625, 508)}, elems); ok {
		t.Error("unpaired dimension produced an estimate")
	}
}

func TestFromDoors(t *testing.T) {
	// 32in x 80in leaves at 1/4" scale: 48 x 120 pt.
	elems := []geometry.Element{
		{Kind: geometry.KindRect, X0: 0, Y0: 0, X1: 48, Y1: 120},
		{Kind: geometry.KindRect, X0: 200, Y0: 0, X1: 248, Y1: 120},
		{Kind: geometry.KindRect, X0: 400, Y0: 0, X1: 500, Y1: 100},
	}
	e, ok := FromDoors(elems)
	if !ok || e.PointsPerFoot != 18 || e.Confidence > 0.75 {
		t.Fatalf("doors = %+v %v", e, ok)
	}
	if _, ok := FromDoors(elems[:1]); ok {
		t.Error("a single door should not produce an estimate")
	}
}

func TestFromGrid(t *testing.T) {
	// 20 ft bays at 1/8" scale: 180pt apart, page 792 x 612.
	var elems []geometry.Element
	for i := range 4 {
		x := 100 + float64(i)*180
		elems = append(elems, geometry.Element{Kind: geometry.KindLine, X0: x, Y0: 50, X1: x, Y1: 550})
	}
	e, ok := FromGrid(elems, 792, 612)
	if !ok || e.Confidence != 0.45 {
		t.Fatalf("grid = %+v %v", e, ok)
	}
	if math.Abs(180/e.PointsPerFoot-math.Round(180/e.PointsPerFoot)) > 0.05 {
		t.Errorf("grid scale %v does not give a whole-foot interval", e.PointsPerFoot)
	}

	elems[2].X0, elems[2].X1 = 400, 400
	if _, ok := FromGrid(elems, 792, 612); ok {
		t.Error("irregular spacing accepted")
	}
}

func TestConsensus(t *testing.T) {
	t.Run("agreement", func(t *testing.T) {
		d, err := Consensus([]Estimate{
			{PointsPerFoot: 18, Method: MethodTitleBlock, Confidence: 0.95},
			{PointsPerFoot: 17.6, Method: MethodDimension, Confidence: 0.7},
			{PointsPerFoot: 9, Method: MethodGrid, Confidence: 0.45},
		}, 0.03)
		if err != nil {
			t.Fatal(err)
		}
		if len(d.Estimates) != 2 {
			t.Errorf("group size = %d", len(d.Estimates))
		}
		if math.Abs(d.Confidence-(1-0.05*0.3)) > 1e-9 {
			t.Errorf("confidence = %v", d.Confidence)
		}
		want := (18*0.95 + 17.6*0.7) / 1.65
		if math.Abs(d.PointsPerFoot-want) > 1e-9 {
			t.Errorf("ppf = %v, want %v (outside snap tolerance)", d.PointsPerFoot, want)
		}
	})
	t.Run("snap", func(t *testing.T) {
		d, err := Consensus([]Estimate{
			{PointsPerFoot: 18, Method: MethodTitleBlock, Confidence: 0.95},
			{PointsPerFoot: 17.95, Method: MethodDimension, Confidence: 0.7},
		}, 0.03)
		if err != nil || d.PointsPerFoot != 18 || d.Label != `1/4"=1'-0"` {
			t.Fatalf("decision = %+v %v", d, err)
		}
	})
	t.Run("single", func(t *testing.T) {
		d, err := Consensus([]Estimate{{PointsPerFoot: 18, Method: MethodTitleBlock, Confidence: 0.95}}, 0.03)
		var ni *blueprint.NeedsInputError
		if !errors.As(err, &ni) || ni.Reason != blueprint.ReasonScaleUnconfirmed {
			t.Fatalf("err = %v", err)
		}
		if d.Confidence != 0.475 || d.PointsPerFoot != 18 {
			t.Errorf("decision = %+v", d)
		}
	})
	t.Run("disagreement", func(t *testing.T) {
		_, err := Consensus([]Estimate{
			{PointsPerFoot: 18, Method: MethodTitleBlock, Confidence: 0.95},
			{PointsPerFoot: 9, Method: MethodDimension, Confidence: 0.7},
		}, 0.03)
		var ni *blueprint.NeedsInputError
		if !errors.As(err, &ni) || ni.Reason != blueprint.ReasonScaleAmbiguous {
			t.Fatalf("err = %v", err)
		}
	})
	t.Run("none", func(t *testing.T) {
		_, err := Consensus(nil, 0.03)
		var ni *blueprint.NeedsInputError
		if !errors.As(err, &ni) || ni.Reason != blueprint.ReasonScaleAmbiguous {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestDetect_Override(t *testing.T) {
	d, err := NewDetector(Options{}).Detect(context.Background(), Input{Override: `1/4"=1'-0"`})
	if err != nil || d.Method != MethodOverride || d.PointsPerFoot != 18 || d.Confidence != 1 {
		t.Fatalf("override = %+v %v", d, err)
	}
	_, err = NewDetector(Options{}).Detect(context.Background(), Input{Override: "banana"})
	var ni *blueprint.NeedsInputError
	if !errors.As(err, &ni) || ni.Reason != blueprint.ReasonInvalidInput {
		t.Fatalf("bad override err = %v", err)
	}
}

func TestDetect_SamplePDFWithinOnePercent(t *testing.T) {
	plan := samplepdf.ExampleHouse()
	path := filepath.Join(t.TempDir(), "plan.pdf")
	if err := samplepdf.WriteFile(path, plan); err != nil {
		t.Fatal(err)
	}
	doc, err := pdfdoc.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()
	size, _ := doc.PageSize(1)
	content, err := doc.Content(1)
	if err != nil {
		t.Fatal(err)
	}
	geo, err := geometry.New(geometry.Options{}).Extract(context.Background(), geometry.Page{
		Content: content, Forms: doc.Forms(1), Width: size.Width, Height: size.Height,
	})
	if err != nil {
		t.Fatal(err)
	}
	tp, _ := doc.TextPage(1)
	txt, err := textract.New(textract.Config{}).Extract(context.Background(), textract.Page{
		Path: path, Number: 1, Width: size.Width, Height: size.Height, Native: &tp,
	})
	if err != nil {
		t.Fatal(err)
	}

	d, err := NewDetector(Options{}).Detect(context.Background(), Input{
		Spans: txt.Spans, Elements: geo.Elements, PageWidth: size.Width, PageHeight: size.Height,
	})
	if err != nil {
		t.Fatal(err)
	}
	if relDiff(d.PointsPerFoot, plan.PointsPerFoot) > 0.01 {
		t.Errorf("ppf = %v, want %v within 1%%", d.PointsPerFoot, plan.PointsPerFoot)
	}
	methods := map[string]bool{}
	for _, e := range d.Estimates {
		methods[e.Method] = true
	}
	if !methods[MethodTitleBlock] || !methods[MethodDimension] {
		t.Errorf("corroborating methods = %v", methods)
	}
}
