// Package classify identifies which source tax form a scanned document is,
// from its recognized page text. Classification is cue based: a header match
// decides immediately, otherwise the highest cumulative cue score wins.
package classify

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/formfill/formfill/internal/ocr"
)

// DocType is a recognized source form kind. The value doubles as the
// extraction template ID in the registry.
type DocType string

const (
	DocW2      DocType = "w2"
	Doc1099INT DocType = "1099-int"
	Doc1099NEC DocType = "1099-nec"
	DocUnknown DocType = ""
)

// TemplateID returns the registry ID of the extraction template for this
// document type.
func (d DocType) TemplateID() string {
	return string(d)
}

// cueSet holds the patterns for one document type. The header pattern is
// decisive on its own; the cues accumulate a score when no header matches.
type cueSet struct {
	docType DocType
	header  *regexp.Regexp
	cues    []*regexp.Regexp
}

var cueSets = []cueSet{
	{
		docType: DocW2,
		header:  regexp.MustCompile(`(?i)Form\s*W-2`),
		cues: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Wage\s+and\s+Tax\s+Statement`),
			regexp.MustCompile(`(?i)Wages,?\s+tips,?\s+other\s+compensation`),
			regexp.MustCompile(`(?i)Federal\s+income\s+tax\s+withheld`),
		},
	},
	{
		docType: Doc1099INT,
		header:  regexp.MustCompile(`(?i)Form\s*1099-INT`),
		cues: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Interest\s+Income`),
			regexp.MustCompile(`(?i)Early\s+withdrawal\s+penalty`),
			regexp.MustCompile(`(?i)Payer'?s\s+TIN`),
		},
	},
	{
		docType: Doc1099NEC,
		header:  regexp.MustCompile(`(?i)Form\s*1099-NEC`),
		cues: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Nonemployee\s+Compensation`),
			regexp.MustCompile(`(?i)Payer'?s\s+TIN`),
			regexp.MustCompile(`(?i)Federal\s+income\s+tax\s+withheld`),
		},
	},
}

// Classifier identifies source form documents from OCR text.
type Classifier struct {
	logger *slog.Logger
}

// New creates a Classifier.
func New(logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{logger: logger.With("component", "classify")}
}

// Classify decides the document type from per-page token streams and returns
// it with the index of the page that carried the strongest cues. DocUnknown
// with page -1 means no cue matched anywhere.
func (c *Classifier) Classify(pages map[int][]ocr.Token) (DocType, int) {
	type tally struct {
		score     int
		page      int
		pageScore int
	}
	scores := make(map[DocType]*tally, len(cueSets))
	for _, cs := range cueSets {
		scores[cs.docType] = &tally{page: -1}
	}

	// Iterate pages in index order so ties resolve to the earliest page.
	maxPage := -1
	for p := range pages {
		if p > maxPage {
			maxPage = p
		}
	}
	for pageIndex := 0; pageIndex <= maxPage; pageIndex++ {
		tokens, ok := pages[pageIndex]
		if !ok {
			continue
		}
		text := pageText(tokens)
		if text == "" {
			continue
		}

		for _, cs := range cueSets {
			if cs.header.MatchString(text) {
				c.logger.Debug("header match", "type", cs.docType, "page", pageIndex)
				return cs.docType, pageIndex
			}
		}

		for _, cs := range cueSets {
			pageScore := 0
			for _, cue := range cs.cues {
				if cue.MatchString(text) {
					pageScore++
				}
			}
			t := scores[cs.docType]
			t.score += pageScore
			if pageScore > t.pageScore {
				t.pageScore = pageScore
				t.page = pageIndex
			}
		}
	}

	best := DocUnknown
	bestScore := 0
	bestPage := -1
	for _, cs := range cueSets {
		t := scores[cs.docType]
		if t.score > bestScore {
			best = cs.docType
			bestScore = t.score
			bestPage = t.page
		}
	}

	if best == DocUnknown || bestScore == 0 {
		return DocUnknown, -1
	}
	c.logger.Debug("cue score match", "type", best, "score", bestScore, "page", bestPage)
	return best, bestPage
}

// BestPage returns the page whose text matches the most of the type's cues,
// or -1 when no page matches any cue. Used to restrict field extraction to
// the page that actually carries the form.
func (c *Classifier) BestPage(pages map[int][]ocr.Token, docType DocType) int {
	var cs *cueSet
	for i := range cueSets {
		if cueSets[i].docType == docType {
			cs = &cueSets[i]
			break
		}
	}
	if cs == nil {
		return -1
	}

	bestPage, bestScore := -1, 0
	// Iterate indices in order, not map order, for a stable result.
	maxPage := -1
	for p := range pages {
		if p > maxPage {
			maxPage = p
		}
	}
	for p := 0; p <= maxPage; p++ {
		tokens, ok := pages[p]
		if !ok {
			continue
		}
		text := pageText(tokens)
		score := 0
		if cs.header.MatchString(text) {
			score++
		}
		for _, cue := range cs.cues {
			if cue.MatchString(text) {
				score++
			}
		}
		if score > bestScore {
			bestScore, bestPage = score, p
		}
	}
	return bestPage
}

func pageText(tokens []ocr.Token) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, " ")
}
