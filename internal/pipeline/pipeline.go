// Package pipeline orchestrates one document run: rasterize, extract, locate,
// normalize, write. Pages run in parallel workers; page failures degrade to
// report entries, and only document-scoped failures abort the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/formfill/formfill/internal/classify"
	"github.com/formfill/formfill/internal/extract"
	"github.com/formfill/formfill/internal/fill"
	"github.com/formfill/formfill/internal/llm"
	"github.com/formfill/formfill/internal/locate"
	"github.com/formfill/formfill/internal/normalize"
	"github.com/formfill/formfill/internal/ocr"
	"github.com/formfill/formfill/internal/raster"
	"github.com/formfill/formfill/internal/template"
)

const (
	// DefaultPagesParallel bounds concurrent page workers.
	DefaultPagesParallel = 4
	// DefaultPageTimeout bounds one page's rasterize+OCR round trip.
	DefaultPageTimeout = 90 * time.Second
	// DefaultReportConfidence is the floor below which a filled value is
	// also listed for review.
	DefaultReportConfidence = 0.5
)

// Config wires the orchestrator's collaborators. Rasterizer, Templates and
// Opener are required; the rest default.
type Config struct {
	Rasterizer raster.Rasterizer
	Engine     ocr.Engine
	Templates  *template.Registry
	Opener     fill.Opener

	Extractor  *extract.Extractor
	Locator    *locate.Locator
	Normalizer *normalize.Normalizer

	// LLM optionally backfills fields the positional locator missed.
	LLM *llm.Extractor

	DPI              int
	PagesParallel    int
	PageTimeout      time.Duration
	DocumentDeadline time.Duration
	ReportConfidence float64

	Logger *slog.Logger
}

// Orchestrator runs documents through the pipeline. Safe for concurrent use:
// all per-document state lives in the run, and the template registry is
// read-only after load.
type Orchestrator struct {
	rasterizer raster.Rasterizer
	templates  *template.Registry
	opener     fill.Opener
	extractor  *extract.Extractor
	locator    *locate.Locator
	normalizer *normalize.Normalizer
	writer     *fill.Writer
	llm        *llm.Extractor
	classifier *classify.Classifier

	dpi              int
	pagesParallel    int
	pageTimeout      time.Duration
	documentDeadline time.Duration
	reportConfidence float64

	logger *slog.Logger
}

// New creates an Orchestrator, constructing default stage collaborators for
// any left nil in the config.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Rasterizer == nil {
		return nil, fmt.Errorf("rasterizer is required")
	}
	if cfg.Templates == nil {
		return nil, fmt.Errorf("template registry is required")
	}
	if cfg.Opener == nil {
		return nil, fmt.Errorf("form opener is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	extractor := cfg.Extractor
	if extractor == nil {
		if cfg.Engine == nil {
			return nil, fmt.Errorf("ocr engine is required when no extractor is given")
		}
		var err error
		extractor, err = extract.New(extract.Config{Engine: cfg.Engine, Logger: logger})
		if err != nil {
			return nil, err
		}
	}

	dpi := cfg.DPI
	if dpi <= 0 {
		dpi = raster.DefaultDPI
	}
	locator := cfg.Locator
	if locator == nil {
		locator = locate.New(locate.Config{Scale: float64(dpi) / 72.0, Logger: logger})
	}
	normalizer := cfg.Normalizer
	if normalizer == nil {
		normalizer = normalize.Default()
	}

	pagesParallel := cfg.PagesParallel
	if pagesParallel <= 0 {
		pagesParallel = DefaultPagesParallel
	}
	pageTimeout := cfg.PageTimeout
	if pageTimeout <= 0 {
		pageTimeout = DefaultPageTimeout
	}
	reportConfidence := cfg.ReportConfidence
	if reportConfidence <= 0 {
		reportConfidence = DefaultReportConfidence
	}

	return &Orchestrator{
		rasterizer:       cfg.Rasterizer,
		templates:        cfg.Templates,
		opener:           cfg.Opener,
		extractor:        extractor,
		locator:          locator,
		normalizer:       normalizer,
		writer:           fill.NewWriter(logger),
		llm:              cfg.LLM,
		classifier:       classify.New(logger),
		dpi:              dpi,
		pagesParallel:    pagesParallel,
		pageTimeout:      pageTimeout,
		documentDeadline: cfg.DocumentDeadline,
		reportConfidence: reportConfidence,
		logger:           logger.With("component", "pipeline"),
	}, nil
}

// pageResult carries one page worker's output back to the collector.
type pageResult struct {
	pageIndex int
	pairs     []locate.Pair
	err       error
}

// Process runs one document end to end and returns the filled PDF with its
// report. Document-scoped failures (unknown template, unreadable input)
// return an error with a Result in the aborted state; page- and field-scoped
// failures are folded into the report.
func (o *Orchestrator) Process(ctx context.Context, templateID, inputPath string) (*Result, error) {
	started := time.Now()
	result := &Result{State: StateReceived}
	result.Report.TemplateID = templateID

	tmpl, err := o.templates.Get(templateID)
	if err != nil {
		result.State = StateAborted
		return result, err
	}

	doc, err := o.opener.Open(tmpl)
	if err != nil {
		result.State = StateAborted
		return result, err
	}

	result.State = StateRasterizing
	pageCount, err := o.pageCount(inputPath)
	if err != nil {
		result.State = StateAborted
		return result, &template.Error{TemplateID: templateID, Err: fmt.Errorf("unreadable input %s: %w", inputPath, err)}
	}
	result.Report.Pages = pageCount

	if o.documentDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.documentDeadline)
		defer cancel()
	}

	result.State = StateExtracting
	pairs, failedPages := o.runPages(ctx, tmpl, inputPath, pageCount)
	result.Report.FailedPages = failedPages

	result.State = StateLocating
	pairs = locate.ResolveConflicts(pairs)
	result.Report.Unmatched = locate.Unmatched(tmpl, pairs)

	result.State = StateNormalizing
	values := make([]normalize.Value, 0, len(pairs))
	for _, p := range pairs {
		values = append(values, o.normalizer.Normalize(p))
	}

	result.State = StateWriting
	filled, writeErrs := o.writer.Write(doc, values)
	result.Report.Filled = filled
	for _, we := range writeErrs {
		result.Report.WriteErrors = append(result.Report.WriteErrors, we.Error())
	}
	for _, v := range values {
		if !v.Valid || v.Confidence < o.reportConfidence {
			result.Report.LowConfidence = append(result.Report.LowConfidence, LowConfidence{
				Name:  v.Spec.LogicalName,
				Score: v.Confidence,
				Raw:   v.Raw,
			})
		}
	}

	pdf, err := doc.Render()
	if err != nil {
		result.State = StateAborted
		return result, &template.Error{TemplateID: templateID, Err: fmt.Errorf("render failed: %w", err)}
	}
	result.PDF = pdf
	result.Report.sortForOutput()
	result.State = StateCompleted

	o.logger.Info("document processed",
		"template", templateID,
		"pages", pageCount,
		"filled", len(result.Report.Filled),
		"unmatched", len(result.Report.Unmatched),
		"failed_pages", len(result.Report.FailedPages),
		"duration", time.Since(started))

	return result, nil
}

// Extraction is the result of an extraction-only run: typed values keyed by
// logical name, no output document.
type Extraction struct {
	Values map[string]normalize.Value
	Report Report
}

// Extract runs a document through rasterize/extract/locate/normalize without
// a fill stage, for templates that describe a source form rather than an
// output form. The report carries the same soft-failure channels as a full
// run.
func (o *Orchestrator) Extract(ctx context.Context, templateID, inputPath string) (*Extraction, error) {
	tmpl, err := o.templates.Get(templateID)
	if err != nil {
		return nil, err
	}

	pageCount, err := o.pageCount(inputPath)
	if err != nil {
		return nil, &template.Error{TemplateID: templateID, Err: fmt.Errorf("unreadable input %s: %w", inputPath, err)}
	}

	if o.documentDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.documentDeadline)
		defer cancel()
	}

	pairs, failedPages := o.runPages(ctx, tmpl, inputPath, pageCount)
	pairs = locate.ResolveConflicts(pairs)

	ext := &Extraction{Values: make(map[string]normalize.Value, len(pairs))}
	ext.Report.TemplateID = templateID
	ext.Report.Pages = pageCount
	ext.Report.FailedPages = failedPages
	ext.Report.Unmatched = locate.Unmatched(tmpl, pairs)

	for _, p := range pairs {
		v := o.normalizer.Normalize(p)
		ext.Values[v.Spec.LogicalName] = v
		if !v.Valid || v.Confidence < o.reportConfidence {
			ext.Report.LowConfidence = append(ext.Report.LowConfidence, LowConfidence{
				Name:  v.Spec.LogicalName,
				Score: v.Confidence,
				Raw:   v.Raw,
			})
		}
	}
	ext.Report.sortForOutput()

	return ext, nil
}

// pageCount treats PDFs as multi-page and any other input as one page image.
func (o *Orchestrator) pageCount(path string) (int, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return o.rasterizer.PageCount(path)
	}
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	return 1, nil
}

// runPages fans page work out to bounded workers. Each page rasterizes,
// extracts and locates in isolation under its own timeout; results come back
// over a channel so no goroutine touches shared state. A page timeout fails
// that page only.
func (o *Orchestrator) runPages(ctx context.Context, tmpl *template.Template, inputPath string, pageCount int) ([]locate.Pair, []int) {
	results := make(chan pageResult, pageCount)
	sem := make(chan struct{}, o.pagesParallel)
	var wg sync.WaitGroup

	for i := 0; i < pageCount; i++ {
		wg.Add(1)
		go func(pageIndex int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- pageResult{pageIndex: pageIndex, err: ctx.Err()}
				return
			}

			pageCtx, cancel := context.WithTimeout(ctx, o.pageTimeout)
			defer cancel()

			pairs, err := o.runPage(pageCtx, tmpl, inputPath, pageIndex)
			results <- pageResult{pageIndex: pageIndex, pairs: pairs, err: err}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var pairs []locate.Pair
	var failed []int
	for r := range results {
		if r.err != nil {
			o.logger.Warn("page failed", "page", r.pageIndex, "error", r.err)
			failed = append(failed, r.pageIndex)
			continue
		}
		pairs = append(pairs, r.pairs...)
	}

	// Channel arrival order is nondeterministic; restore page order so the
	// downstream conflict resolution sees a stable sequence.
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].PageIndex < pairs[j].PageIndex
	})
	sort.Ints(failed)

	return pairs, failed
}

// runPage is the per-page unit of work: render, OCR, locate. Failures are
// page-scoped; no retry, a persistently failing page should be visible in the
// report rather than masked.
func (o *Orchestrator) runPage(ctx context.Context, tmpl *template.Template, inputPath string, pageIndex int) ([]locate.Pair, error) {
	image, err := o.renderPage(ctx, inputPath, pageIndex)
	if err != nil {
		return nil, &extract.PageError{PageIndex: pageIndex, Err: err}
	}

	tokens, err := o.extractor.Page(ctx, image, pageIndex)
	if err != nil {
		return nil, err
	}

	return o.locator.Locate(tmpl, tokens, pageIndex), nil
}

// documentTokens extracts every page's token stream without locating, for
// callers that need the raw text first (classification). Same worker bounds
// and page-scoped failure handling as a full run.
func (o *Orchestrator) documentTokens(ctx context.Context, inputPath string, pageCount int) (map[int][]ocr.Token, []int) {
	type tokenResult struct {
		pageIndex int
		tokens    []ocr.Token
		err       error
	}

	results := make(chan tokenResult, pageCount)
	sem := make(chan struct{}, o.pagesParallel)
	var wg sync.WaitGroup

	for i := 0; i < pageCount; i++ {
		wg.Add(1)
		go func(pageIndex int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- tokenResult{pageIndex: pageIndex, err: ctx.Err()}
				return
			}

			pageCtx, cancel := context.WithTimeout(ctx, o.pageTimeout)
			defer cancel()

			image, err := o.renderPage(pageCtx, inputPath, pageIndex)
			if err != nil {
				results <- tokenResult{pageIndex: pageIndex, err: err}
				return
			}
			tokens, err := o.extractor.Page(pageCtx, image, pageIndex)
			results <- tokenResult{pageIndex: pageIndex, tokens: tokens, err: err}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	pages := make(map[int][]ocr.Token, pageCount)
	var failed []int
	for r := range results {
		if r.err != nil {
			o.logger.Warn("page failed", "page", r.pageIndex, "error", r.err)
			failed = append(failed, r.pageIndex)
			continue
		}
		pages[r.pageIndex] = r.tokens
	}
	sort.Ints(failed)

	return pages, failed
}

func (o *Orchestrator) renderPage(ctx context.Context, inputPath string, pageIndex int) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(inputPath), ".pdf") {
		return o.rasterizer.RenderPage(ctx, inputPath, pageIndex, o.dpi)
	}
	return os.ReadFile(inputPath)
}
