// Package raster renders PDF pages to images for OCR. Rendering shells out
// to pdftoppm (poppler-utils); page counting uses pdfcpu.
package raster

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// DefaultDPI is the render resolution used when the caller passes 0.
const DefaultDPI = 150

// Rasterizer renders source document pages to PNG images.
type Rasterizer interface {
	// PageCount returns the number of pages in the source document.
	PageCount(path string) (int, error)

	// RenderPage renders one page (0-based index) to PNG bytes at the
	// given DPI. It must not modify the source document.
	RenderPage(ctx context.Context, path string, pageIndex int, dpi int) ([]byte, error)
}

// PDFToPPM is a Rasterizer backed by the pdftoppm binary.
type PDFToPPM struct {
	// Attempts is the number of tries for transient exec failures
	// (default 2). OCR itself is never retried; this only covers the
	// render subprocess.
	Attempts uint
}

// NewPDFToPPM creates a pdftoppm-backed rasterizer.
func NewPDFToPPM() *PDFToPPM {
	return &PDFToPPM{Attempts: 2}
}

// PageCount returns the page count of a PDF.
func (r *PDFToPPM) PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	count, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count for %s: %w", path, err)
	}
	return count, nil
}

// RenderPage renders a single page using pdftoppm.
func (r *PDFToPPM) RenderPage(ctx context.Context, path string, pageIndex int, dpi int) ([]byte, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	attempts := r.Attempts
	if attempts == 0 {
		attempts = 2
	}

	var data []byte
	err := retry.Do(
		func() error {
			var renderErr error
			data, renderErr = renderPage(ctx, path, pageIndex, dpi)
			return renderErr
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// renderPage runs pdftoppm for one page and returns the PNG bytes.
func renderPage(ctx context.Context, pdfPath string, pageIndex, dpi int) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "formfill-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")

	// pdftoppm pages are 1-indexed.
	pageStr := fmt.Sprintf("%d", pageIndex+1)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", fmt.Sprintf("%d", dpi),
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	srcPath := outputPrefix + ".png"
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("pdftoppm produced an empty image for page %d", pageIndex)
	}

	return data, nil
}

// Verify interface
var _ Rasterizer = (*PDFToPPM)(nil)
