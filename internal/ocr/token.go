package ocr

import "math"

// Box is an axis-aligned bounding box in page raster coordinates.
// Y grows downward, matching image space.
type Box struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 {
	return b.X1 - b.X0
}

// Height returns the vertical extent of the box.
func (b Box) Height() float64 {
	return b.Y1 - b.Y0
}

// CenterX returns the horizontal midpoint.
func (b Box) CenterX() float64 {
	return (b.X0 + b.X1) / 2
}

// CenterY returns the vertical midpoint.
func (b Box) CenterY() float64 {
	return (b.Y0 + b.Y1) / 2
}

// VerticalOverlap returns the fraction of the shorter box's height that
// overlaps vertically with the other box. Returns 0 when they don't overlap.
func (b Box) VerticalOverlap(other Box) float64 {
	top := max(b.Y0, other.Y0)
	bottom := min(b.Y1, other.Y1)
	if bottom <= top {
		return 0
	}
	shorter := min(b.Height(), other.Height())
	if shorter <= 0 {
		return 0
	}
	return (bottom - top) / shorter
}

// DistanceTo returns the euclidean distance between the centers of two boxes.
func (b Box) DistanceTo(other Box) float64 {
	dx := b.CenterX() - other.CenterX()
	dy := b.CenterY() - other.CenterY()
	return math.Sqrt(dx*dx + dy*dy)
}

// Token is a single unit of recognized text with its position and recognition
// confidence. Tokens are immutable once produced by the extractor.
type Token struct {
	Text       string  `json:"text"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"` // 0..1
	PageIndex  int     `json:"page_index"` // 0-based

	// Flagged marks tokens whose confidence fell below the configured
	// floor. They are kept in the stream since their positions still
	// inform spatial heuristics downstream.
	Flagged bool `json:"flagged,omitempty"`
}
