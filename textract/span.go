package textract

// Class is the role a text span plays on the drawing.
type Class string

const (
	ClassLabel     Class = "label"
	ClassDimension Class = "dimension"
	ClassScale     Class = "scale_notation"
	ClassNote      Class = "note"
)

// Source records where a span came from.
type Source string

const (
	SourceNative Source = "native"
	SourceOCR    Source = "ocr"
)

// Span is one run of text in page points, top-left origin.
type Span struct {
	Text       string  `json:"text"`
	X0         float64 `json:"x0"`
	Y0         float64 `json:"top"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"bottom"`
	FontSize   float64 `json:"font_size,omitempty"`
	Class      Class   `json:"class"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
	Feet       float64 `json:"feet,omitempty"` // parsed value for dimensions
}

// Center returns the span's centre point.
func (s Span) Center() (x, y float64) { return (s.X0 + s.X1) / 2, (s.Y0 + s.Y1) / 2 }

// Height returns the span's text height.
func (s Span) Height() float64 { return s.Y1 - s.Y0 }

// Width returns the span's extent along the baseline.
func (s Span) Width() float64 { return s.X1 - s.X0 }

// Contains reports whether the span's centre lies in the rectangle.
func (s Span) Contains(x0, y0, x1, y1 float64) bool {
	cx, cy := s.Center()
	return cx >= x0 && cx <= x1 && cy >= y0 && cy <= y1
}
