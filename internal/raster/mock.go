package raster

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Mock is a Rasterizer for testing.
type Mock struct {
	Count      int            // reported page count
	CountErr   error          // error returned by PageCount
	FailPages  map[int]bool   // pages whose render fails
	PageImages map[int][]byte // canned image bytes per page

	renderCalls atomic.Int64
}

// NewMock creates a mock rasterizer with the given page count.
func NewMock(pages int) *Mock {
	return &Mock{
		Count:      pages,
		FailPages:  make(map[int]bool),
		PageImages: make(map[int][]byte),
	}
}

// PageCount returns the configured count.
func (m *Mock) PageCount(path string) (int, error) {
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	return m.Count, nil
}

// RenderPage returns canned bytes, or a placeholder derived from the page index.
func (m *Mock) RenderPage(ctx context.Context, path string, pageIndex int, dpi int) ([]byte, error) {
	m.renderCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.FailPages[pageIndex] {
		return nil, fmt.Errorf("mock rasterizer configured to fail page %d", pageIndex)
	}
	if img, ok := m.PageImages[pageIndex]; ok {
		return img, nil
	}
	return []byte(fmt.Sprintf("mock-image-%d", pageIndex)), nil
}

// RenderCalls returns the number of RenderPage invocations.
func (m *Mock) RenderCalls() int64 {
	return m.renderCalls.Load()
}

// Verify interface
var _ Rasterizer = (*Mock)(nil)
