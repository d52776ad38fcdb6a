// Package locate reduces a page's token stream to candidate label/value pairs
// keyed to the active template's field specs. It is the sole gate between raw
// tokens and the typed pipeline: every pair it emits references a spec that
// exists in the template.
package locate

import (
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"

	"github.com/formfill/formfill/internal/ocr"
	"github.com/formfill/formfill/internal/template"
)

// Default thresholds, applied when the config passes zero values.
const (
	DefaultMatchThreshold = 0.78
	DefaultBandOverlap    = 0.4
	DefaultCheckboxRadius = 14.0 // PDF points

	defaultScale = 150.0 / 72.0

	labelWeight     = 0.7
	proximityWeight = 0.3
)

// Pair is a candidate association between a field spec and the tokens that
// carry its label and value on the page.
type Pair struct {
	Spec        *template.FieldSpec
	LabelTokens []ocr.Token
	ValueTokens []ocr.Token
	Checked     bool // checkbox kinds only
	Score       float64
	PageIndex   int
}

// ValueText returns the raw value-span text, space joined.
func (p *Pair) ValueText() string {
	parts := make([]string, len(p.ValueTokens))
	for i, t := range p.ValueTokens {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}

// ValueConfidence returns the minimum recognition confidence across the value
// span, or 1.0 for spatially determined checkboxes.
func (p *Pair) ValueConfidence() float64 {
	if len(p.ValueTokens) == 0 {
		return 1.0
	}
	conf := 1.0
	for _, t := range p.ValueTokens {
		if t.Confidence < conf {
			conf = t.Confidence
		}
	}
	return conf
}

// Config configures a Locator.
type Config struct {
	// MatchThreshold is the minimum label similarity (0..1) for a match.
	MatchThreshold float64
	// BandOverlap is the vertical-overlap fraction for line clustering.
	BandOverlap float64
	// CheckboxRadius is the search radius around a checkbox anchor,
	// in PDF points.
	CheckboxRadius float64
	// Scale converts PDF points to raster pixels (dpi/72).
	Scale  float64
	Logger *slog.Logger
}

// Locator matches template field specs against page tokens.
type Locator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Locator, applying defaults for zero-valued config fields.
func New(cfg Config) *Locator {
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = DefaultMatchThreshold
	}
	if cfg.BandOverlap <= 0 {
		cfg.BandOverlap = DefaultBandOverlap
	}
	if cfg.CheckboxRadius <= 0 {
		cfg.CheckboxRadius = DefaultCheckboxRadius
	}
	if cfg.Scale <= 0 {
		cfg.Scale = defaultScale
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{cfg: cfg, logger: logger.With("component", "locate")}
}

// Locate produces at most one Pair per field spec for one page's tokens.
// Text kinds are matched by fuzzy label lookup; checkbox kinds anchored on
// this page are decided by mark presence near the anchor, independent of
// text matching.
func (l *Locator) Locate(tmpl *template.Template, tokens []ocr.Token, pageIndex int) []Pair {
	bands := buildBands(tokens, l.cfg.BandOverlap)

	var pairs []Pair
	for i := range tmpl.Fields {
		spec := &tmpl.Fields[i]

		if spec.Kind == template.KindCheckbox && spec.Anchor != nil {
			if spec.Anchor.Page != pageIndex {
				continue
			}
			pairs = append(pairs, l.locateCheckbox(spec, tokens, pageIndex))
			continue
		}

		if pair, ok := l.locateLabeled(spec, bands, pageIndex); ok {
			pairs = append(pairs, pair)
		}
	}

	return ResolveConflicts(pairs)
}

// locateCheckbox applies the spatial mark rule: a mark glyph within the
// configured radius of the anchor means checked, absence means unchecked.
func (l *Locator) locateCheckbox(spec *template.FieldSpec, tokens []ocr.Token, pageIndex int) Pair {
	center := ocr.Box{
		X0: spec.Anchor.X * l.cfg.Scale,
		Y0: spec.Anchor.Y * l.cfg.Scale,
		X1: spec.Anchor.X * l.cfg.Scale,
		Y1: spec.Anchor.Y * l.cfg.Scale,
	}
	radius := l.cfg.CheckboxRadius * l.cfg.Scale

	pair := Pair{Spec: spec, Score: 1.0, PageIndex: pageIndex}
	for _, tok := range tokens {
		if !isMarkGlyph(tok.Text) {
			continue
		}
		if tok.Box.DistanceTo(center) <= radius {
			pair.Checked = true
			pair.ValueTokens = []ocr.Token{tok}
			break
		}
	}
	return pair
}

// locateLabeled fuzzy-matches the spec's aliases against each line band and
// assembles the value span per the spec's layout rule.
func (l *Locator) locateLabeled(spec *template.FieldSpec, bands []band, pageIndex int) (Pair, bool) {
	best := Pair{Spec: spec, PageIndex: pageIndex}
	found := false

	for bi := range bands {
		b := &bands[bi]
		words := normalizedWords(b.tokens)

		for _, alias := range spec.Aliases {
			aliasNorm := normalizeLabel(alias)
			if aliasNorm == "" {
				continue
			}
			aliasLen := len(strings.Fields(aliasNorm))

			sim, start, end := bestWindow(words, aliasNorm, aliasLen)
			if sim < l.cfg.MatchThreshold {
				continue
			}

			labelSpan := b.tokens[start:end]
			var next *band
			if bi+1 < len(bands) {
				next = &bands[bi+1]
			}
			valueSpan := valueSpanFor(spec, b, labelSpan, end, next)
			if len(valueSpan) == 0 {
				continue
			}

			score := labelWeight*sim + proximityWeight*proximity(spec, b, labelSpan, valueSpan)
			if !found || score > best.Score {
				best.LabelTokens = labelSpan
				best.ValueTokens = valueSpan
				best.Score = score
				found = true
			}
		}
	}

	return best, found
}

// bestWindow slides token windows of roughly the alias length across the band
// and returns the best similarity with its [start,end) range.
func bestWindow(words []string, aliasNorm string, aliasLen int) (float64, int, int) {
	bestSim := 0.0
	bestStart, bestEnd := 0, 0

	for _, width := range []int{aliasLen - 1, aliasLen, aliasLen + 1} {
		if width < 1 || width > len(words) {
			continue
		}
		for start := 0; start+width <= len(words); start++ {
			// Collapse placeholders left by punctuation-only tokens.
			window := strings.Join(strings.Fields(strings.Join(words[start:start+width], " ")), " ")
			if window == "" {
				continue
			}
			sim := levenshtein.Similarity(aliasNorm, window, nil)
			if sim > bestSim {
				bestSim = sim
				bestStart, bestEnd = start, start+width
			}
		}
	}

	return bestSim, bestStart, bestEnd
}

// valueSpanFor collects the value tokens for a matched label per the spec's
// layout: the remainder of the band, or the slice of the next band under the
// label.
func valueSpanFor(spec *template.FieldSpec, b *band, labelSpan []ocr.Token, labelEnd int, next *band) []ocr.Token {
	switch spec.EffectiveLayout() {
	case template.LayoutBelow:
		if next == nil || len(labelSpan) == 0 {
			return nil
		}
		x0 := labelSpan[0].Box.X0
		x1 := labelSpan[len(labelSpan)-1].Box.X1
		// Boxed forms print the value slightly indented from the label,
		// so allow a margin on both sides.
		margin := max(40.0, (x1-x0)/2)
		var span []ocr.Token
		for _, tok := range next.tokens {
			if tok.Box.X1 >= x0-margin && tok.Box.X0 <= x1+margin {
				span = append(span, tok)
			}
		}
		return span
	default: // same line
		if labelEnd >= len(b.tokens) {
			return nil
		}
		return b.tokens[labelEnd:]
	}
}

// proximity scores how tightly the value span hugs the label: adjacent on the
// same line or directly below scores near 1, drifting apart decays.
func proximity(spec *template.FieldSpec, b *band, labelSpan, valueSpan []ocr.Token) float64 {
	if len(labelSpan) == 0 || len(valueSpan) == 0 {
		return 0
	}
	ref := b.height()
	if ref <= 0 {
		ref = 1
	}
	var gap float64
	if spec.EffectiveLayout() == template.LayoutBelow {
		gap = valueSpan[0].Box.Y0 - labelSpan[0].Box.Y1
	} else {
		gap = valueSpan[0].Box.X0 - labelSpan[len(labelSpan)-1].Box.X1
	}
	if gap < 0 {
		gap = 0
	}
	return 1 / (1 + gap/(4*ref))
}

// ResolveConflicts keeps only the highest-scoring pair per field spec, so no
// two pairs claim the same spec with overlapping value tokens.
func ResolveConflicts(pairs []Pair) []Pair {
	bestBySpec := make(map[string]int)
	var out []Pair
	for _, p := range pairs {
		name := p.Spec.LogicalName
		if idx, ok := bestBySpec[name]; ok {
			if p.Score > out[idx].Score {
				out[idx] = p
			}
			continue
		}
		bestBySpec[name] = len(out)
		out = append(out, p)
	}
	return out
}

// Unmatched returns the logical names of template fields with no pair,
// sorted. An unmatched field is an expected outcome, not an error.
func Unmatched(tmpl *template.Template, pairs []Pair) []string {
	matched := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		matched[p.Spec.LogicalName] = true
	}
	var names []string
	for _, f := range tmpl.Fields {
		if !matched[f.LogicalName] {
			names = append(names, f.LogicalName)
		}
	}
	sort.Strings(names)
	return names
}

// markGlyphs are token texts that count as a filled checkbox mark.
var markGlyphs = map[string]bool{
	"x": true, "xx": true, "v": true, "✓": true, "✔": true, "✗": true,
	"*": true, "■": true, "●": true, "☑": true,
}

func isMarkGlyph(s string) bool {
	return markGlyphs[strings.ToLower(strings.TrimSpace(s))]
}

// normalizeLabel lowercases and strips punctuation so matching is
// case- and punctuation-insensitive.
func normalizeLabel(s string) string {
	var sb strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			sb.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(sb.String())
}

// normalizedWords returns per-token normalized text, preserving positions so
// window indices map back to tokens. Tokens that normalize to nothing keep an
// empty placeholder.
func normalizedWords(tokens []ocr.Token) []string {
	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = strings.Join(strings.Fields(normalizeLabel(t.Text)), "")
	}
	return words
}
