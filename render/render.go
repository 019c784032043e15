// CLAUDE:SUMMARY Page rasterization: poppler pdftoppm for full-fidelity renders, x/image vector fallback from extracted geometry, downscaling for model input.
// Package render produces page images for OCR and the vision model.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// ErrUnavailable is returned when the poppler binary cannot be found.
var ErrUnavailable = errors.New("render: pdftoppm not available")

// Poppler renders pages by running pdftoppm.
type Poppler struct {
	// Binary is the pdftoppm executable (default "pdftoppm").
	Binary string
	// Timeout bounds one render (default 30s).
	Timeout time.Duration
}

func (p *Poppler) binary() string {
	if p.Binary == "" {
		return "pdftoppm"
	}
	return p.Binary
}

// Available reports whether the binary is on PATH.
func (p *Poppler) Available() bool {
	_, err := exec.LookPath(p.binary())
	return err == nil
}

// Render rasterizes one page (1-based) at dpi.
func (p *Poppler) Render(ctx context.Context, pdfPath string, page, dpi int) (image.Image, error) {
	bin, err := exec.LookPath(p.binary())
	if err != nil {
		return nil, ErrUnavailable
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "render-*")
	if err != nil {
		return nil, fmt.Errorf("render: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	pg := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, bin,
		"-png", "-r", strconv.Itoa(dpi),
		"-f", pg, "-l", pg, "-singlefile",
		pdfPath, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("render: pdftoppm page %d: %w (%s)", page, err, bytes.TrimSpace(out))
	}

	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("render: read output: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("render: decode output: %w", err)
	}
	return img, nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("render: encode png: %w", err)
	}
	return buf.Bytes(), nil
}
