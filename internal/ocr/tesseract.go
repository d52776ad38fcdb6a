package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

const TesseractName = "tesseract"

// TesseractConfig holds configuration for the Tesseract engine.
type TesseractConfig struct {
	// Languages passed to tesseract (default: ["eng"]).
	Languages []string
	// TessdataPrefix overrides the traineddata directory (optional).
	TessdataPrefix string
}

// TesseractEngine implements Engine using a local Tesseract installation
// via gosseract. A fresh client is created per call since the underlying
// API handle is not safe for concurrent use.
type TesseractEngine struct {
	languages      []string
	tessdataPrefix string
}

// NewTesseractEngine creates a Tesseract-backed engine.
func NewTesseractEngine(cfg TesseractConfig) *TesseractEngine {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &TesseractEngine{
		languages:      langs,
		tessdataPrefix: cfg.TessdataPrefix,
	}
}

// Name returns the engine identifier.
func (e *TesseractEngine) Name() string {
	return TesseractName
}

// Recognize extracts word-level tokens with bounding boxes from the image.
// Tesseract reports confidence 0-100; it is normalized to 0..1 here.
func (e *TesseractEngine) Recognize(ctx context.Context, image []byte, pageIndex int) ([]Token, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("empty page image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if e.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.tessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(e.languages...); err != nil {
		return nil, fmt.Errorf("failed to set languages: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("failed to load page image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract recognition failed: %w", err)
	}

	tokens := make([]Token, 0, len(boxes))
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		tokens = append(tokens, Token{
			Text: word,
			Box: Box{
				X0: float64(b.Box.Min.X),
				Y0: float64(b.Box.Min.Y),
				X1: float64(b.Box.Max.X),
				Y1: float64(b.Box.Max.Y),
			},
			Confidence: b.Confidence / 100.0,
			PageIndex:  pageIndex,
		})
	}

	return tokens, nil
}

// Verify interface
var _ Engine = (*TesseractEngine)(nil)
