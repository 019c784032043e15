//go:build ocr

// Package ocr recognizes words on rendered blueprint pages with Tesseract
// (gosseract). Build with -tags ocr; Tesseract must be installed:
//
//	apt-get install tesseract-ocr libtesseract-dev
package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Available reports whether OCR support was compiled in.
const Available = true

// Client wraps a Tesseract handle. Calls are serialized.
type Client struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// New creates a client for the given language ("eng" when empty). Sparse
// text segmentation suits drawings: labels are scattered, not in columns.
func New(lang string) (*Client, error) {
	c := gosseract.NewClient()
	if lang == "" {
		lang = "eng"
	}
	if err := c.SetLanguage(lang); err != nil {
		c.Close()
		return nil, fmt.Errorf("ocr: set language: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		c.Close()
		return nil, fmt.Errorf("ocr: set page seg mode: %w", err)
	}
	return &Client{client: c}, nil
}

// Words returns word boxes in image pixel coordinates.
func (c *Client) Words(ctx context.Context, png []byte) ([]Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.client.SetImageFromBytes(png); err != nil {
		return nil, fmt.Errorf("ocr: set image: %w", err)
	}
	boxes, err := c.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("ocr: recognize: %w", err)
	}
	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		words = append(words, Word{
			Text:       text,
			X0:         b.Box.Min.X,
			Y0:         b.Box.Min.Y,
			X1:         b.Box.Max.X,
			Y1:         b.Box.Max.Y,
			Confidence: b.Confidence / 100,
		})
	}
	return words, nil
}

// Close releases the Tesseract handle.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
