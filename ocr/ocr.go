// Package ocr defines the contract for recovering text from scanned
// document pages. Engines are pluggable; the tesseract subpackage supplies
// the default implementation.
package ocr

import "context"

// Input is a single page image submitted for recognition.
type Input struct {
	// PageNumber is the 1-based page the image came from.
	PageNumber int
	// Image is the encoded image payload (PNG, JPEG or TIFF).
	Image []byte
	// Languages is a list of trained-data hints (e.g. "eng").
	Languages []string
}

// Result is the recognized text for one input page.
type Result struct {
	PageNumber int
	Text       string
	// Confidence is the mean word confidence in [0,1], zero when the
	// engine does not report it.
	Confidence float64
}

// Engine recognizes text in page images.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (Result, error)
}

// RecognizePages runs an engine over a set of pages and returns text keyed
// by page number. It stops at the first engine error or context
// cancellation.
func RecognizePages(ctx context.Context, e Engine, inputs []Input) (map[int]string, error) {
	out := make(map[int]string, len(inputs))
	for _, in := range inputs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		res, err := e.Recognize(ctx, in)
		if err != nil {
			return nil, err
		}
		out[in.PageNumber] = res.Text
	}
	return out, nil
}
