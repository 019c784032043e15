//go:build !ocr

// Package ocr recognizes words on rendered blueprint pages. This build has
// no OCR engine; rebuild with -tags ocr to enable Tesseract.
package ocr

import (
	"context"
	"errors"
)

// Available reports whether OCR support was compiled in.
const Available = false

// ErrOCRNotEnabled is returned by every call in builds without OCR.
var ErrOCRNotEnabled = errors.New("ocr: support not enabled; rebuild with -tags ocr")

// Client is the stub client.
type Client struct{}

// New always fails with ErrOCRNotEnabled.
func New(lang string) (*Client, error) {
	return nil, ErrOCRNotEnabled
}

// Words always fails with ErrOCRNotEnabled.
func (c *Client) Words(ctx context.Context, png []byte) ([]Word, error) {
	return nil, ErrOCRNotEnabled
}

// Close is a no-op and safe on a nil client.
func (c *Client) Close() error { return nil }
