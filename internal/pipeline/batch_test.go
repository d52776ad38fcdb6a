package pipeline

import (
	"context"
	"testing"

	"github.com/formfill/formfill/internal/classify"
	"github.com/formfill/formfill/internal/fill"
	"github.com/formfill/formfill/internal/ocr"
	"github.com/formfill/formfill/internal/raster"
	"github.com/formfill/formfill/internal/taxcalc"
)

// w2SameLine overrides the builtin W-2 descriptor with a same-line layout
// matching the canned token geometry.
const w2SameLine = `id: w2
description: W-2 descriptor for a single-column scan
fields:
  - name: employee_name
    kind: text
    aliases: ["Employee Name"]
  - name: employee_ssn
    kind: ssn
    aliases: ["SSN"]
  - name: wages
    kind: currency
    aliases: ["Wages"]
  - name: federal_income_tax_withheld
    kind: currency
    aliases: ["Federal income tax withheld"]
`

func w2PageTokens() []ocr.Token {
	var toks []ocr.Token
	toks = append(toks, lineTokens(10, 0.95, "Form", "W-2")...)
	toks = append(toks, lineTokens(30, 0.9, "Employee", "Name", "Jane", "A", "Doe")...)
	toks = append(toks, lineTokens(50, 0.9, "SSN", "123-45-6789")...)
	toks = append(toks, lineTokens(70, 0.9, "Wages", "50,000.00")...)
	toks = append(toks, lineTokens(90, 0.9, "Federal", "income", "tax", "withheld", "6,000.00")...)
	return toks
}

func TestProcessBatchFillsReturn(t *testing.T) {
	engine := ocr.NewMockEngine()
	engine.Pages[0] = w2PageTokens()
	opener := fill.NewMockOpener()
	o := newTestOrchestrator(t, engine, raster.NewMock(1), opener, newTestRegistry(t, w2SameLine))

	result, err := o.ProcessBatch(context.Background(), BatchRequest{
		InputPaths:   []string{"w2.pdf"},
		FilingStatus: taxcalc.Single,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Forms) != 1 {
		t.Fatalf("got %d forms, want 1", len(result.Forms))
	}
	form := result.Forms[0]
	if form.DocType != classify.DocW2 {
		t.Errorf("DocType = %q, want w2", form.DocType)
	}
	if got := form.Values["wages"].Text; got != "50000.00" {
		t.Errorf("wages = %q, want 50000.00", got)
	}

	if result.Summary == nil {
		t.Fatal("summary missing")
	}
	if result.Summary.TotalIncome != 50000 {
		t.Errorf("TotalIncome = %v, want 50000", result.Summary.TotalIncome)
	}
	if result.Summary.Refund != 1984 {
		t.Errorf("Refund = %v, want 1984", result.Summary.Refund)
	}

	if len(result.PDF) == 0 {
		t.Error("PDF should not be empty")
	}

	doc := opener.LastDoc
	if doc == nil {
		t.Fatal("output document was never opened")
	}
	if doc.Texts["f1_04[0]"] != "Jane" {
		t.Errorf("first name = %q, want Jane", doc.Texts["f1_04[0]"])
	}
	if doc.Texts["f1_05[0]"] != "Doe" {
		t.Errorf("last name = %q, want Doe", doc.Texts["f1_05[0]"])
	}
	if doc.Texts["f1_06[0]"] != "123456789" {
		t.Errorf("ssn = %q, want 123456789", doc.Texts["f1_06[0]"])
	}
	if !doc.Checks["c1_3[0]"] {
		t.Error("single filing status box should be checked")
	}
	if doc.Checks["c1_3[1]"] {
		t.Error("joint filing status box must stay unchecked")
	}
}

func TestProcessBatchUnclassifiedUploadIsSkipped(t *testing.T) {
	engine := ocr.NewMockEngine()
	engine.Pages[0] = lineTokens(10, 0.9, "A", "completely", "unrelated", "document")
	opener := fill.NewMockOpener()
	o := newTestOrchestrator(t, engine, raster.NewMock(1), opener, newTestRegistry(t, w2SameLine))

	result, err := o.ProcessBatch(context.Background(), BatchRequest{
		InputPaths:   []string{"mystery.pdf"},
		FilingStatus: taxcalc.Single,
	})
	if err != nil {
		t.Fatalf("an unclassified upload must not abort the batch: %v", err)
	}
	if result.Forms[0].DocType != classify.DocUnknown {
		t.Errorf("DocType = %q, want unknown", result.Forms[0].DocType)
	}
	// Zero income return still renders.
	if result.Summary.TotalIncome != 0 {
		t.Errorf("TotalIncome = %v, want 0", result.Summary.TotalIncome)
	}
	if len(result.PDF) == 0 {
		t.Error("PDF should still render")
	}
}

func TestProcessBatchValidation(t *testing.T) {
	o := newTestOrchestrator(t, ocr.NewMockEngine(), raster.NewMock(1), fill.NewMockOpener(), newTestRegistry(t))

	if _, err := o.ProcessBatch(context.Background(), BatchRequest{FilingStatus: taxcalc.Single}); err == nil {
		t.Error("expected error for empty input list")
	}
	if _, err := o.ProcessBatch(context.Background(), BatchRequest{InputPaths: []string{"a.pdf"}}); err == nil {
		t.Error("expected error for missing filing status")
	}
}

func TestProcessBatchDependentCredits(t *testing.T) {
	engine := ocr.NewMockEngine()
	engine.Pages[0] = w2PageTokens()
	o := newTestOrchestrator(t, engine, raster.NewMock(1), fill.NewMockOpener(), newTestRegistry(t, w2SameLine))

	result, err := o.ProcessBatch(context.Background(), BatchRequest{
		InputPaths:         []string{"w2.pdf"},
		FilingStatus:       taxcalc.Single,
		QualifyingChildren: 1,
		OtherDependents:    1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary.TotalCredits != 2500 {
		t.Errorf("TotalCredits = %v, want 2500", result.Summary.TotalCredits)
	}
}
