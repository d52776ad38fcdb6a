package locate

import (
	"testing"

	"github.com/formfill/formfill/internal/ocr"
	"github.com/formfill/formfill/internal/template"
)

// tok builds a token on a single text line; x advances left to right.
func tok(text string, x0, y0, x1, y1 float64) ocr.Token {
	return ocr.Token{
		Text:       text,
		Box:        ocr.Box{X0: x0, Y0: y0, X1: x1, Y1: y1},
		Confidence: 0.9,
	}
}

func testLocator() *Locator {
	return New(Config{Scale: 1.0})
}

func TestLocateSameLine(t *testing.T) {
	tmpl := &template.Template{
		ID: "test",
		Fields: []template.FieldSpec{
			{LogicalName: "wages", Kind: template.KindCurrency, Aliases: []string{"Wages"}},
		},
	}
	tokens := []ocr.Token{
		tok("Wages", 10, 10, 50, 22),
		tok("50,000.00", 60, 10, 130, 22),
	}

	pairs := testLocator().Locate(tmpl, tokens, 0)
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	p := pairs[0]
	if p.Spec.LogicalName != "wages" {
		t.Errorf("spec = %q, want wages", p.Spec.LogicalName)
	}
	if got := p.ValueText(); got != "50,000.00" {
		t.Errorf("value = %q, want %q", got, "50,000.00")
	}
	if p.Score <= 0 {
		t.Errorf("score = %v, want > 0", p.Score)
	}
}

func TestLocateBelowLayout(t *testing.T) {
	tmpl := &template.Template{
		ID: "test",
		Fields: []template.FieldSpec{
			{
				LogicalName: "employee_ssn",
				Kind:        template.KindSSN,
				Aliases:     []string{"Employee's social security number"},
				ValueLayout: template.LayoutBelow,
			},
		},
	}
	tokens := []ocr.Token{
		tok("Employee's", 10, 10, 80, 22),
		tok("social", 85, 10, 125, 22),
		tok("security", 130, 10, 185, 22),
		tok("number", 190, 10, 240, 22),
		tok("123-45-6789", 20, 30, 110, 42),
	}

	pairs := testLocator().Locate(tmpl, tokens, 0)
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	if got := pairs[0].ValueText(); got != "123-45-6789" {
		t.Errorf("value = %q, want %q", got, "123-45-6789")
	}
}

func TestLocateFuzzyLabelMatch(t *testing.T) {
	tmpl := &template.Template{
		ID: "test",
		Fields: []template.FieldSpec{
			{
				LogicalName: "wages",
				Kind:        template.KindCurrency,
				Aliases:     []string{"Wages, tips, other compensation"},
			},
		},
	}
	// The label text carries a typical recognition error.
	tokens := []ocr.Token{
		tok("Wages,", 10, 10, 60, 22),
		tok("tips,", 65, 10, 95, 22),
		tok("other", 100, 10, 135, 22),
		tok("compensatlon", 140, 10, 230, 22),
		tok("62,500.00", 240, 10, 310, 22),
	}

	pairs := testLocator().Locate(tmpl, tokens, 0)
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	if got := pairs[0].ValueText(); got != "62,500.00" {
		t.Errorf("value = %q, want %q", got, "62,500.00")
	}
}

func TestLocateNoMatchBelowThreshold(t *testing.T) {
	tmpl := &template.Template{
		ID: "test",
		Fields: []template.FieldSpec{
			{LogicalName: "wages", Kind: template.KindCurrency, Aliases: []string{"Wages"}},
		},
	}
	tokens := []ocr.Token{
		tok("Totally", 10, 10, 60, 22),
		tok("unrelated", 65, 10, 130, 22),
	}

	if pairs := testLocator().Locate(tmpl, tokens, 0); len(pairs) != 0 {
		t.Fatalf("got %d pairs, want 0", len(pairs))
	}
}

func TestLocateCheckbox(t *testing.T) {
	spec := template.FieldSpec{
		LogicalName: "filing_status_single",
		Kind:        template.KindCheckbox,
		Anchor:      &template.Coord{Page: 0, X: 100, Y: 100},
	}
	tmpl := &template.Template{ID: "test", Fields: []template.FieldSpec{spec}}
	l := testLocator()

	t.Run("mark near anchor means checked", func(t *testing.T) {
		tokens := []ocr.Token{tok("X", 98, 96, 106, 106)}
		pairs := l.Locate(tmpl, tokens, 0)
		if len(pairs) != 1 {
			t.Fatalf("got %d pairs, want 1", len(pairs))
		}
		if !pairs[0].Checked {
			t.Error("expected checked")
		}
	})

	t.Run("no mark means unchecked pair", func(t *testing.T) {
		tokens := []ocr.Token{tok("Single", 140, 96, 190, 106)}
		pairs := l.Locate(tmpl, tokens, 0)
		if len(pairs) != 1 {
			t.Fatalf("got %d pairs, want 1", len(pairs))
		}
		if pairs[0].Checked {
			t.Error("expected unchecked")
		}
	})

	t.Run("mark outside radius is ignored", func(t *testing.T) {
		tokens := []ocr.Token{tok("X", 200, 200, 208, 210)}
		pairs := l.Locate(tmpl, tokens, 0)
		if len(pairs) != 1 || pairs[0].Checked {
			t.Errorf("distant mark should not check the box")
		}
	})

	t.Run("anchor on another page is skipped", func(t *testing.T) {
		tokens := []ocr.Token{tok("X", 98, 96, 106, 106)}
		if pairs := l.Locate(tmpl, tokens, 1); len(pairs) != 0 {
			t.Errorf("got %d pairs on the wrong page, want 0", len(pairs))
		}
	})
}

func TestResolveConflictsKeepsBestScore(t *testing.T) {
	spec := &template.FieldSpec{LogicalName: "wages", Kind: template.KindCurrency}
	pairs := []Pair{
		{Spec: spec, Score: 0.6, ValueTokens: []ocr.Token{{Text: "100"}}},
		{Spec: spec, Score: 0.9, ValueTokens: []ocr.Token{{Text: "200"}}},
		{Spec: spec, Score: 0.7, ValueTokens: []ocr.Token{{Text: "300"}}},
	}

	out := ResolveConflicts(pairs)
	if len(out) != 1 {
		t.Fatalf("got %d pairs, want 1", len(out))
	}
	if got := out[0].ValueText(); got != "200" {
		t.Errorf("kept value %q, want the highest scoring %q", got, "200")
	}
}

func TestUnmatched(t *testing.T) {
	tmpl := &template.Template{
		ID: "test",
		Fields: []template.FieldSpec{
			{LogicalName: "wages", Kind: template.KindCurrency},
			{LogicalName: "employer_name", Kind: template.KindText},
			{LogicalName: "employee_ssn", Kind: template.KindSSN},
		},
	}
	pairs := []Pair{
		{Spec: &tmpl.Fields[0], Score: 0.9},
	}

	got := Unmatched(tmpl, pairs)
	want := []string{"employee_ssn", "employer_name"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}
}

func TestBuildBandsClustersLines(t *testing.T) {
	tokens := []ocr.Token{
		tok("second", 10, 30, 60, 42),
		tok("first", 10, 10, 50, 22),
		tok("line", 55, 11, 90, 21),
	}

	bands := buildBands(tokens, DefaultBandOverlap)
	if len(bands) != 2 {
		t.Fatalf("got %d bands, want 2", len(bands))
	}
	if got := bands[0].text(); got != "first line" {
		t.Errorf("band 0 = %q, want %q", got, "first line")
	}
	if got := bands[1].text(); got != "second" {
		t.Errorf("band 1 = %q, want %q", got, "second")
	}
}
