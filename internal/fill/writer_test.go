package fill

import (
	"testing"

	"github.com/formfill/formfill/internal/normalize"
	"github.com/formfill/formfill/internal/template"
)

func textValue(spec *template.FieldSpec, text string) normalize.Value {
	return normalize.Value{Spec: spec, Text: text, Valid: true, Confidence: 0.9}
}

func TestWriteInteractiveFields(t *testing.T) {
	w := NewWriter(nil)
	doc := NewMockDoc("f1_04[0]", "f1_06[0]", "c1_1[0]")

	first := &template.FieldSpec{LogicalName: "first_name", Kind: template.KindText, PDFField: "f1_04[0]"}
	ssn := &template.FieldSpec{LogicalName: "ssn", Kind: template.KindSSN, PDFField: "f1_06[0]"}
	status := &template.FieldSpec{LogicalName: "filing_status_single", Kind: template.KindCheckbox, PDFField: "c1_1[0]"}

	filled, errs := w.Write(doc, []normalize.Value{
		textValue(first, "Jane"),
		textValue(ssn, "123456789"),
		{Spec: status, Checked: true, Valid: true, Confidence: 1.0},
	})

	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(filled) != 3 {
		t.Fatalf("filled %d fields, want 3", len(filled))
	}
	if doc.Texts["f1_04[0]"] != "Jane" {
		t.Errorf("first name = %q, want Jane", doc.Texts["f1_04[0]"])
	}
	if doc.Texts["f1_06[0]"] != "123456789" {
		t.Errorf("ssn = %q, want 123456789", doc.Texts["f1_06[0]"])
	}
	if !doc.Checks["c1_1[0]"] {
		t.Error("checkbox should be checked")
	}
}

func TestWriteSkipsInvalidValues(t *testing.T) {
	w := NewWriter(nil)
	doc := NewMockDoc("f1_04[0]")

	spec := &template.FieldSpec{LogicalName: "first_name", Kind: template.KindText, PDFField: "f1_04[0]"}
	filled, errs := w.Write(doc, []normalize.Value{
		{Spec: spec, Text: "garbled", Valid: false},
	})

	if len(filled) != 0 || len(errs) != 0 {
		t.Fatalf("invalid value should be skipped silently: filled=%v errs=%v", filled, errs)
	}
	if len(doc.Texts) != 0 {
		t.Errorf("nothing should be written, got %v", doc.Texts)
	}
}

func TestWriteOverlayFallback(t *testing.T) {
	w := NewWriter(nil)
	// The declared PDF field does not exist in the document, so the write
	// falls through to the overlay coordinate.
	doc := NewMockDoc("other_field")

	spec := &template.FieldSpec{
		LogicalName: "wages",
		Kind:        template.KindCurrency,
		PDFField:    "missing[0]",
		Overlay:     &template.Coord{Page: 0, X: 420, Y: 510},
	}
	filled, errs := w.Write(doc, []normalize.Value{textValue(spec, "50000.00")})

	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(filled) != 1 {
		t.Fatalf("filled %d fields, want 1", len(filled))
	}
	if len(doc.Overlays) != 1 {
		t.Fatalf("got %d overlays, want 1", len(doc.Overlays))
	}
	ov := doc.Overlays[0]
	if ov.Page != 0 || ov.X != 420 || ov.Y != 510 || ov.Value != "50000.00" {
		t.Errorf("overlay = %+v", ov)
	}
}

func TestWriteOverlayOnlyField(t *testing.T) {
	w := NewWriter(nil)
	doc := NewMockDoc()

	spec := &template.FieldSpec{
		LogicalName: "wages",
		Kind:        template.KindCurrency,
		Overlay:     &template.Coord{Page: 1, X: 100, Y: 200},
	}
	filled, errs := w.Write(doc, []normalize.Value{textValue(spec, "12.00")})
	if len(errs) != 0 || len(filled) != 1 {
		t.Fatalf("filled=%v errs=%v", filled, errs)
	}
}

func TestWriteCheckboxOverlayMark(t *testing.T) {
	w := NewWriter(nil)
	doc := NewMockDoc()

	spec := &template.FieldSpec{
		LogicalName: "filing_status_single",
		Kind:        template.KindCheckbox,
		Overlay:     &template.Coord{Page: 0, X: 33, Y: 44},
	}
	_, errs := w.Write(doc, []normalize.Value{
		{Spec: spec, Checked: true, Valid: true, Confidence: 1.0},
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(doc.Overlays) != 1 || doc.Overlays[0].Value != "X" {
		t.Fatalf("overlays = %+v, want a single X mark", doc.Overlays)
	}
}

func TestWriteNoTargetIsFieldError(t *testing.T) {
	w := NewWriter(nil)
	doc := NewMockDoc()

	spec := &template.FieldSpec{LogicalName: "orphan", Kind: template.KindText}
	filled, errs := w.Write(doc, []normalize.Value{textValue(spec, "v")})

	if len(filled) != 0 {
		t.Fatalf("filled = %v, want none", filled)
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if errs[0].Field != "orphan" {
		t.Errorf("Field = %q, want orphan", errs[0].Field)
	}
}

func TestWritePartialFailure(t *testing.T) {
	w := NewWriter(nil)
	doc := NewMockDoc("good[0]", "bad[0]")
	doc.FailFields["bad[0]"] = true

	good := &template.FieldSpec{LogicalName: "good", Kind: template.KindText, PDFField: "good[0]"}
	bad := &template.FieldSpec{LogicalName: "bad", Kind: template.KindText, PDFField: "bad[0]"}

	filled, errs := w.Write(doc, []normalize.Value{
		textValue(bad, "x"),
		textValue(good, "y"),
	})

	if len(filled) != 1 || filled[0] != "good" {
		t.Errorf("filled = %v, want [good]", filled)
	}
	if len(errs) != 1 || errs[0].Field != "bad" {
		t.Errorf("errs = %v, want one failure for bad", errs)
	}
}

func TestWriteDeterministicOrder(t *testing.T) {
	w := NewWriter(nil)

	a := &template.FieldSpec{LogicalName: "alpha", Kind: template.KindText, PDFField: "a[0]"}
	b := &template.FieldSpec{LogicalName: "beta", Kind: template.KindText, PDFField: "b[0]"}
	values := []normalize.Value{textValue(b, "2"), textValue(a, "1")}

	doc1 := NewMockDoc("a[0]", "b[0]")
	filled1, _ := w.Write(doc1, values)
	doc2 := NewMockDoc("a[0]", "b[0]")
	filled2, _ := w.Write(doc2, values)

	if len(filled1) != 2 || filled1[0] != "alpha" {
		t.Errorf("filled = %v, want alphabetical order", filled1)
	}
	for i := range filled1 {
		if filled1[i] != filled2[i] {
			t.Fatalf("order differs between runs: %v vs %v", filled1, filled2)
		}
	}

	r1, err := doc1.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	r2, err := doc2.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if string(r1) != string(r2) {
		t.Error("identical writes should render identical bytes")
	}
}
