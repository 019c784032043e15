// CLAUDE:SUMMARY Blueprint PDF access: pdfcpu for page structure and content streams, ledongthuc/pdf for form XObjects and positioned text.
// Package pdfdoc opens blueprint PDFs and exposes the per-page data the
// extractors need: page size, decoded content streams, form XObjects and
// image counts.
package pdfdoc

import (
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// maxFormDepth bounds nested form XObject expansion.
const maxFormDepth = 3

// Size is a page size in points.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Form is a form XObject referenced from a page content stream.
type Form struct {
	Content []byte
	Matrix  [6]float64
	Forms   map[string]*Form
}

// Document is an opened PDF. It is not safe for concurrent use of the text
// reader; content and forms are read under the caller's control.
type Document struct {
	path string
	ctx  *model.Context
	dims []types.Dim

	file *os.File
	text *pdf.Reader
}

type config struct {
	maxBytes int64
}

// Option customises Open.
type Option func(*config)

// WithMaxBytes rejects files larger than n bytes. Default: 100 MB.
func WithMaxBytes(n int64) Option { return func(c *config) { c.maxBytes = n } }

// Open reads and validates path with pdfcpu. The ledongthuc text reader is
// opened alongside; if it cannot parse the file, text access reports no
// native text instead of failing.
func Open(path string, opts ...Option) (*Document, error) {
	cfg := config{maxBytes: 100 << 20}
	for _, o := range opts {
		o(&cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("pdfdoc: stat %s: %w", path, err)
	}
	if info.Size() > cfg.maxBytes {
		return nil, fmt.Errorf("pdfdoc: file too large: %d bytes (max %d)", info.Size(), cfg.maxBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pdfdoc: open %s: %w", path, err)
	}
	defer f.Close()

	ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("pdfdoc: pdfcpu read: %w", err)
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("pdfdoc: page dims: %w", err)
	}

	d := &Document{path: path, ctx: ctx, dims: dims}
	d.openText()
	return d, nil
}

func (d *Document) openText() {
	defer func() {
		if recover() != nil {
			d.file, d.text = nil, nil
		}
	}()
	f, r, err := pdf.Open(d.path)
	if err != nil {
		return
	}
	d.file, d.text = f, r
}

// Close releases the text reader's file handle.
func (d *Document) Close() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

// Path returns the file the document was opened from.
func (d *Document) Path() string { return d.path }

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return d.ctx.PageCount }

// PageSize returns the size of page n (1-based).
func (d *Document) PageSize(n int) (Size, error) {
	if n < 1 || n > len(d.dims) {
		return Size{}, fmt.Errorf("pdfdoc: page %d out of range (1..%d)", n, len(d.dims))
	}
	return Size{Width: d.dims[n-1].Width, Height: d.dims[n-1].Height}, nil
}

// Content returns the decoded content stream of page n. Pages without
// content return an empty slice.
func (d *Document) Content(n int) ([]byte, error) {
	if n < 1 || n > d.ctx.PageCount {
		return nil, fmt.Errorf("pdfdoc: page %d out of range (1..%d)", n, d.ctx.PageCount)
	}
	r, err := pdfcpu.ExtractPageContent(d.ctx, n)
	if err != nil {
		return nil, fmt.Errorf("pdfdoc: page %d content: %w", n, err)
	}
	if r == nil {
		return []byte{}, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("pdfdoc: page %d read: %w", n, err)
	}
	return data, nil
}

// ImageCount returns the number of image XObjects used by page n.
func (d *Document) ImageCount(n int) int {
	if d.ctx.Optimize == nil || n < 1 || n > d.ctx.PageCount {
		return 0
	}
	return len(pdfcpu.ImageObjNrs(d.ctx, n))
}

// TextPage returns the ledongthuc page for n, or false when the text reader
// is unavailable.
func (d *Document) TextPage(n int) (pdf.Page, bool) {
	if d.text == nil || n < 1 || n > d.text.NumPage() {
		return pdf.Page{}, false
	}
	p := d.text.Page(n)
	if p.V.IsNull() {
		return pdf.Page{}, false
	}
	return p, true
}

// Forms returns the form XObjects reachable from page n's resources, keyed
// by resource name. Malformed resources yield an empty map.
func (d *Document) Forms(n int) (forms map[string]*Form) {
	forms = map[string]*Form{}
	p, ok := d.TextPage(n)
	if !ok {
		return forms
	}
	defer func() {
		if recover() != nil {
			forms = map[string]*Form{}
		}
	}()
	return collectForms(p.Resources(), 0)
}

func collectForms(res pdf.Value, depth int) map[string]*Form {
	out := map[string]*Form{}
	if depth >= maxFormDepth || res.IsNull() {
		return out
	}
	xobjs := res.Key("XObject")
	for _, name := range xobjs.Keys() {
		v := xobjs.Key(name)
		if v.Kind() != pdf.Stream || v.Key("Subtype").Name() != "Form" {
			continue
		}
		rc := v.Reader()
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		f := &Form{Content: data, Matrix: [6]float64{1, 0, 0, 1, 0, 0}}
		if m := v.Key("Matrix"); m.Kind() == pdf.Array && m.Len() == 6 {
			for i := range 6 {
				f.Matrix[i] = m.Index(i).Float64()
			}
		}
		f.Forms = collectForms(v.Key("Resources"), depth+1)
		out[name] = f
	}
	return out
}
