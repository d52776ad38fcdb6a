// Package extract drives the OCR engine for one page and normalizes its
// output into a token stream in reading order.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/formfill/formfill/internal/ocr"
)

// DefaultMinConfidence is the flag floor applied when the config passes 0.
const DefaultMinConfidence = 0.35

// PageError is a page-scoped extraction failure. The orchestrator records the
// page as failed and continues with the remaining pages.
type PageError struct {
	PageIndex int
	Err       error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("extraction failed on page %d: %v", e.PageIndex, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Extractor produces the per-page token stream consumed by the locator.
type Extractor struct {
	engine        ocr.Engine
	minConfidence float64
	logger        *slog.Logger
}

// Config configures a new Extractor.
type Config struct {
	Engine ocr.Engine
	// MinConfidence is the floor below which tokens are flagged.
	// Flagged tokens stay in the stream: their positions still feed the
	// locator's spatial heuristics.
	MinConfidence float64
	Logger        *slog.Logger
}

// New creates an Extractor.
func New(cfg Config) (*Extractor, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("ocr engine is required")
	}
	minConf := cfg.MinConfidence
	if minConf <= 0 {
		minConf = DefaultMinConfidence
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		engine:        cfg.Engine,
		minConfidence: minConf,
		logger:        logger.With("component", "extract"),
	}, nil
}

// Page extracts tokens from one rasterized page image in reading order:
// top-to-bottom by line band, left-to-right within a band. Failures are
// returned as a *PageError.
func (e *Extractor) Page(ctx context.Context, image []byte, pageIndex int) ([]ocr.Token, error) {
	if len(image) == 0 {
		return nil, &PageError{PageIndex: pageIndex, Err: fmt.Errorf("empty page image")}
	}

	tokens, err := e.engine.Recognize(ctx, image, pageIndex)
	if err != nil {
		return nil, &PageError{PageIndex: pageIndex, Err: err}
	}

	flagged := 0
	for i := range tokens {
		tokens[i].PageIndex = pageIndex
		if tokens[i].Confidence < e.minConfidence {
			tokens[i].Flagged = true
			flagged++
		}
	}

	sortReadingOrder(tokens)

	e.logger.Debug("extracted page tokens",
		"page", pageIndex, "tokens", len(tokens), "flagged", flagged)

	return tokens, nil
}

// sortReadingOrder orders tokens top-to-bottom, left-to-right. Tokens whose
// boxes overlap vertically by at least half the shorter height are treated as
// one line and ordered by X.
func sortReadingOrder(tokens []ocr.Token) {
	sort.SliceStable(tokens, func(i, j int) bool {
		a, b := tokens[i], tokens[j]
		if a.Box.VerticalOverlap(b.Box) >= 0.5 {
			return a.Box.X0 < b.Box.X0
		}
		return a.Box.CenterY() < b.Box.CenterY()
	})
}
