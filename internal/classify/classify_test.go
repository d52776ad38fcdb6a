package classify

import (
	"strings"
	"testing"

	"github.com/formfill/formfill/internal/ocr"
)

func tokensFor(text string) []ocr.Token {
	words := strings.Fields(text)
	toks := make([]ocr.Token, len(words))
	for i, w := range words {
		toks[i] = ocr.Token{Text: w, Confidence: 0.9}
	}
	return toks
}

func TestClassifyHeaderIsDecisive(t *testing.T) {
	c := New(nil)

	pages := map[int][]ocr.Token{
		0: tokensFor("Instructions for the attached forms"),
		1: tokensFor("Form W-2 Wage and Tax Statement 2024"),
	}

	docType, page := c.Classify(pages)
	if docType != DocW2 {
		t.Errorf("docType = %q, want %q", docType, DocW2)
	}
	if page != 1 {
		t.Errorf("page = %d, want 1", page)
	}
}

func TestClassifyByCueScore(t *testing.T) {
	c := New(nil)

	tests := []struct {
		name string
		text string
		want DocType
	}{
		{
			name: "w2 cues without header",
			text: "Wage and Tax Statement Wages, tips, other compensation Federal income tax withheld",
			want: DocW2,
		},
		{
			name: "1099-int cues",
			text: "Payer's TIN Interest Income Early withdrawal penalty",
			want: Doc1099INT,
		},
		{
			name: "1099-nec cues",
			text: "Payer's TIN Nonemployee Compensation amounts reported",
			want: Doc1099NEC,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docType, page := c.Classify(map[int][]ocr.Token{0: tokensFor(tt.text)})
			if docType != tt.want {
				t.Errorf("docType = %q, want %q", docType, tt.want)
			}
			if page != 0 {
				t.Errorf("page = %d, want 0", page)
			}
		})
	}
}

func TestClassifyUnknown(t *testing.T) {
	c := New(nil)

	docType, page := c.Classify(map[int][]ocr.Token{
		0: tokensFor("A grocery list with no tax form text at all"),
	})
	if docType != DocUnknown {
		t.Errorf("docType = %q, want unknown", docType)
	}
	if page != -1 {
		t.Errorf("page = %d, want -1", page)
	}

	docType, page = c.Classify(map[int][]ocr.Token{})
	if docType != DocUnknown || page != -1 {
		t.Errorf("empty input: got (%q, %d), want (unknown, -1)", docType, page)
	}
}

func TestClassifyCuesAccumulateAcrossPages(t *testing.T) {
	c := New(nil)

	// Interest cues split across two pages still outscore the single
	// shared-withholding cue the W-2 set picks up.
	pages := map[int][]ocr.Token{
		0: tokensFor("Interest Income statement for the year"),
		1: tokensFor("Payer's TIN Early withdrawal penalty"),
	}
	docType, page := c.Classify(pages)
	if docType != Doc1099INT {
		t.Errorf("docType = %q, want %q", docType, Doc1099INT)
	}
	// Page 1 matched two cues to page 0's one.
	if page != 1 {
		t.Errorf("page = %d, want 1", page)
	}
}

func TestBestPage(t *testing.T) {
	c := New(nil)

	pages := map[int][]ocr.Token{
		0: tokensFor("Cover sheet"),
		1: tokensFor("Form W-2 Wage and Tax Statement Wages, tips, other compensation"),
		2: tokensFor("Federal income tax withheld"),
	}

	if got := c.BestPage(pages, DocW2); got != 1 {
		t.Errorf("BestPage = %d, want 1", got)
	}
	if got := c.BestPage(pages, Doc1099INT); got != -1 {
		t.Errorf("BestPage for absent type = %d, want -1", got)
	}
	if got := c.BestPage(pages, DocUnknown); got != -1 {
		t.Errorf("BestPage for unknown type = %d, want -1", got)
	}
}

func TestTemplateID(t *testing.T) {
	if DocW2.TemplateID() != "w2" {
		t.Errorf("w2 template ID = %q", DocW2.TemplateID())
	}
	if Doc1099INT.TemplateID() != "1099-int" {
		t.Errorf("1099-int template ID = %q", Doc1099INT.TemplateID())
	}
}
