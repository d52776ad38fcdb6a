// Package ocr defines the OCR engine boundary and the token model shared by
// the rest of the pipeline. The engine is a black box that turns a rasterized
// page image into positioned text tokens.
package ocr

import "context"

// Engine extracts positioned text tokens from a page image.
// Implementations must not mutate the input image and must be safe for
// concurrent use across pages.
type Engine interface {
	// Name returns the engine identifier (e.g., "tesseract", "mock").
	Name() string

	// Recognize extracts tokens from a single rasterized page.
	// Token order is not guaranteed; callers impose reading order.
	Recognize(ctx context.Context, image []byte, pageIndex int) ([]Token, error)
}
