package locate

import (
	"sort"
	"strings"

	"github.com/formfill/formfill/internal/ocr"
)

// band is a horizontal cluster of tokens forming one printed line.
type band struct {
	tokens []ocr.Token
	y0, y1 float64
}

func (b *band) centerY() float64 {
	return (b.y0 + b.y1) / 2
}

func (b *band) height() float64 {
	return b.y1 - b.y0
}

// text concatenates token text left-to-right with single spaces.
func (b *band) text() string {
	parts := make([]string, len(b.tokens))
	for i, t := range b.tokens {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}

// buildBands clusters tokens into line bands. A token joins the current band
// when its box overlaps the band's vertical range by at least overlapTol of
// the shorter height. Tokens within a band are ordered left-to-right.
func buildBands(tokens []ocr.Token, overlapTol float64) []band {
	if len(tokens) == 0 {
		return nil
	}
	if overlapTol <= 0 {
		overlapTol = DefaultBandOverlap
	}

	sorted := make([]ocr.Token, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Box.CenterY() < sorted[j].Box.CenterY()
	})

	var bands []band
	for _, tok := range sorted {
		placed := false
		if len(bands) > 0 {
			cur := &bands[len(bands)-1]
			bandBox := ocr.Box{X0: 0, Y0: cur.y0, X1: 1, Y1: cur.y1}
			if tok.Box.VerticalOverlap(bandBox) >= overlapTol {
				cur.tokens = append(cur.tokens, tok)
				cur.y0 = min(cur.y0, tok.Box.Y0)
				cur.y1 = max(cur.y1, tok.Box.Y1)
				placed = true
			}
		}
		if !placed {
			bands = append(bands, band{
				tokens: []ocr.Token{tok},
				y0:     tok.Box.Y0,
				y1:     tok.Box.Y1,
			})
		}
	}

	for i := range bands {
		sort.SliceStable(bands[i].tokens, func(a, b int) bool {
			return bands[i].tokens[a].Box.X0 < bands[i].tokens[b].Box.X0
		})
	}

	return bands
}
