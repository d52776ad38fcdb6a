// Package normalize coerces raw recognized value spans into each field's
// value domain. Normalization never drops a value: failed validation yields a
// best-effort raw string with confidence forced to zero, which the report
// surfaces for human review.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/formfill/formfill/internal/locate"
	"github.com/formfill/formfill/internal/template"
)

// Value is a typed, validated field value ready for the form writer.
type Value struct {
	Spec *template.FieldSpec

	// Text is the normalized string written to the PDF. Empty for
	// checkbox kinds.
	Text string

	// Checked carries checkbox state.
	Checked bool

	// Raw is the original value-span text, preserved even when
	// validation fails.
	Raw string

	// Valid reports whether the value passed its kind's format check.
	Valid bool

	// Confidence is the final confidence (0..1); forced to 0 when
	// validation fails.
	Confidence float64

	// SourceConfidence is the OCR confidence of the value span.
	SourceConfidence float64
}

// DefaultDateFormats are tried in order; the first successful parse wins.
var DefaultDateFormats = []string{
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Config selects which correction tables are applied.
type Config struct {
	// SSNCorrections applies the letter-for-digit substitution table to
	// identifier fields before validation (default on when constructed
	// via New with a zero Config).
	SSNCorrections bool
	// CurrencyCorrections applies the same table to currency fields.
	CurrencyCorrections bool
	// DateFormats overrides the ordered parse list.
	DateFormats []string
}

// Normalizer maps candidate pairs into typed values.
type Normalizer struct {
	cfg Config
}

// New creates a Normalizer. A zero Config enables all correction tables.
func New(cfg Config) *Normalizer {
	if cfg.DateFormats == nil {
		cfg.DateFormats = DefaultDateFormats
	}
	return &Normalizer{cfg: cfg}
}

// Default returns a Normalizer with every correction table enabled.
func Default() *Normalizer {
	return New(Config{SSNCorrections: true, CurrencyCorrections: true})
}

// Normalize converts one candidate pair into a Value, dispatching on the
// spec's kind.
func (n *Normalizer) Normalize(pair locate.Pair) Value {
	if pair.Spec.Kind == template.KindCheckbox {
		return Value{
			Spec:             pair.Spec,
			Raw:              strings.TrimSpace(pair.ValueText()),
			SourceConfidence: pair.ValueConfidence(),
			Checked:          pair.Checked,
			Valid:            true,
			Confidence:       pair.ValueConfidence() * clamp01(pair.Score),
		}
	}
	return n.NormalizeRaw(pair.Spec, pair.ValueText(), pair.ValueConfidence(), pair.Score)
}

// NormalizeRaw converts one raw string into a Value for the spec's kind. It
// is the entry point for value sources that bypass the locator (a model
// extraction, a computed amount).
func (n *Normalizer) NormalizeRaw(spec *template.FieldSpec, raw string, sourceConfidence, score float64) Value {
	v := Value{
		Spec:             spec,
		Raw:              strings.TrimSpace(raw),
		SourceConfidence: sourceConfidence,
	}

	switch spec.Kind {
	case template.KindCurrency:
		v.Text, v.Valid = n.normalizeCurrency(v.Raw)
	case template.KindSSN:
		v.Text, v.Valid = n.normalizeSSN(v.Raw)
	case template.KindDate:
		v.Text, v.Valid = n.normalizeDate(v.Raw)
	default: // text
		v.Text = collapseWhitespace(v.Raw)
		v.Valid = true
	}

	if v.Valid {
		v.Confidence = v.SourceConfidence * clamp01(score)
	} else {
		// Preserve the raw string but force the confidence floor so
		// the value surfaces for review instead of being trusted.
		v.Text = v.Raw
		v.Confidence = 0
	}

	return v
}

// confusions maps characters Tesseract commonly misreads in numeric contexts
// to the intended digit.
var confusions = map[rune]rune{
	'O': '0', 'o': '0',
	'l': '1', 'I': '1', '|': '1',
	'S': '5', 's': '5',
	'B': '8',
}

func applyConfusions(s string) string {
	return strings.Map(func(r rune) rune {
		if d, ok := confusions[r]; ok {
			return d
		}
		return r
	}, s)
}

func (n *Normalizer) normalizeCurrency(raw string) (string, bool) {
	s := raw
	if n.cfg.CurrencyCorrections {
		s = applyConfusions(s)
	}

	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' || r == '.' || r == '-' {
			sb.WriteRune(r)
		}
	}
	cleaned := sb.String()
	if cleaned == "" {
		return "", false
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%.2f", f), true
}

func (n *Normalizer) normalizeSSN(raw string) (string, bool) {
	s := raw
	if n.cfg.SSNCorrections {
		s = applyConfusions(s)
	}

	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	digits := sb.String()
	if len(digits) != 9 {
		return "", false
	}
	return digits, true
}

func (n *Normalizer) normalizeDate(raw string) (string, bool) {
	s := collapseWhitespace(raw)
	for _, layout := range n.cfg.DateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("01/02/2006"), true
		}
	}
	return "", false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
