package ocr

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

const MockEngineName = "mock"

// MockEngine is an Engine for testing. It returns canned tokens per page and
// can be configured to fail globally or for specific pages.
type MockEngine struct {
	// Configurable behavior
	Latency     time.Duration
	PageLatency map[int]time.Duration // per-page latency overrides
	ShouldFail  bool
	FailPages   map[int]bool    // pages that return an error
	Pages       map[int][]Token // canned tokens keyed by page index
	Tokens      []Token         // fallback when Pages has no entry

	// State
	requestCount atomic.Int64
}

// NewMockEngine creates a mock engine with no canned tokens.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		Pages: make(map[int][]Token),
	}
}

// Name returns the engine identifier.
func (e *MockEngine) Name() string {
	return MockEngineName
}

// Recognize returns the canned tokens for the page.
func (e *MockEngine) Recognize(ctx context.Context, image []byte, pageIndex int) ([]Token, error) {
	e.requestCount.Add(1)

	if e.ShouldFail {
		return nil, fmt.Errorf("mock engine configured to fail")
	}
	if e.FailPages[pageIndex] {
		return nil, fmt.Errorf("mock engine configured to fail page %d", pageIndex)
	}

	latency := e.Latency
	if d, ok := e.PageLatency[pageIndex]; ok {
		latency = d
	}
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if toks, ok := e.Pages[pageIndex]; ok {
		return cloneTokens(toks, pageIndex), nil
	}
	return cloneTokens(e.Tokens, pageIndex), nil
}

// RequestCount returns the number of Recognize calls made.
func (e *MockEngine) RequestCount() int64 {
	return e.requestCount.Load()
}

func cloneTokens(toks []Token, pageIndex int) []Token {
	out := make([]Token, len(toks))
	for i, t := range toks {
		t.PageIndex = pageIndex
		out[i] = t
	}
	return out
}

// Verify interface
var _ Engine = (*MockEngine)(nil)
