package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/formfill/formfill/internal/classify"
	"github.com/formfill/formfill/internal/locate"
	"github.com/formfill/formfill/internal/normalize"
	"github.com/formfill/formfill/internal/ocr"
	"github.com/formfill/formfill/internal/taxcalc"
	"github.com/formfill/formfill/internal/template"
)

// OutputTemplateID is the return template a batch run fills.
const OutputTemplateID = "f1040"

// BatchRequest is one return-preparation run: a set of uploaded source forms
// plus the taxpayer facts that cannot be read off them.
type BatchRequest struct {
	InputPaths []string

	FilingStatus       taxcalc.FilingStatus
	QualifyingChildren int
	OtherDependents    int
}

// ParsedForm is one classified and extracted upload.
type ParsedForm struct {
	File    string
	DocType classify.DocType
	Values  map[string]normalize.Value
	Report  Report
}

// BatchResult carries the per-form extractions, the computed return summary,
// and the filled output document with its report.
type BatchResult struct {
	Forms   []ParsedForm
	Summary *taxcalc.Summary
	PDF     []byte
	Report  Report
}

// ProcessBatch classifies each upload, extracts its fields, aggregates the
// amounts into a return summary, and fills the output form. Uploads that
// cannot be classified are reported and skipped; the run aborts only when the
// output template itself cannot be processed.
func (o *Orchestrator) ProcessBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if len(req.InputPaths) == 0 {
		return nil, fmt.Errorf("no input documents")
	}
	if req.FilingStatus == "" {
		return nil, fmt.Errorf("filing status is required")
	}

	result := &BatchResult{}
	for _, path := range req.InputPaths {
		form := o.parseSourceForm(ctx, path)
		result.Forms = append(result.Forms, form)
	}

	summary, err := o.aggregate(result.Forms, req)
	if err != nil {
		return nil, err
	}
	result.Summary = summary

	pdf, report, err := o.fillReturn(result.Forms, summary, req)
	if err != nil {
		return nil, err
	}
	result.PDF = pdf
	result.Report = *report

	return result, nil
}

// parseSourceForm runs classification and extraction for one upload. Failures
// degrade to an unknown-type form with the failure in its report.
func (o *Orchestrator) parseSourceForm(ctx context.Context, path string) ParsedForm {
	form := ParsedForm{File: filepath.Base(path), DocType: classify.DocUnknown}

	pageCount, err := o.pageCount(path)
	if err != nil {
		o.logger.Warn("unreadable upload", "file", form.File, "error", err)
		form.Report.WriteErrors = append(form.Report.WriteErrors, fmt.Sprintf("unreadable upload: %v", err))
		return form
	}
	form.Report.Pages = pageCount

	pages, failedPages := o.documentTokens(ctx, path, pageCount)
	form.Report.FailedPages = failedPages

	docType, _ := o.classifier.Classify(pages)
	if docType == classify.DocUnknown {
		o.logger.Warn("unclassified upload", "file", form.File)
		return form
	}
	form.DocType = docType
	form.Report.TemplateID = docType.TemplateID()

	tmpl, err := o.templates.Get(docType.TemplateID())
	if err != nil {
		form.Report.WriteErrors = append(form.Report.WriteErrors, err.Error())
		return form
	}

	// Restrict field location to the page that carries the form; the other
	// pages of a scan bundle are instructions or duplicates.
	bestPage := o.classifier.BestPage(pages, docType)
	if bestPage < 0 {
		bestPage = 0
	}

	pairs := locate.ResolveConflicts(o.locator.Locate(tmpl, pages[bestPage], bestPage))
	form.Values = make(map[string]normalize.Value, len(pairs))
	for _, p := range pairs {
		v := o.normalizer.Normalize(p)
		form.Values[v.Spec.LogicalName] = v
	}
	form.Report.Unmatched = locate.Unmatched(tmpl, pairs)

	o.backfillFromModel(ctx, tmpl, pages[bestPage], &form)

	for name, v := range form.Values {
		form.Report.Filled = append(form.Report.Filled, name)
		if !v.Valid || v.Confidence < o.reportConfidence {
			form.Report.LowConfidence = append(form.Report.LowConfidence, LowConfidence{
				Name: name, Score: v.Confidence, Raw: v.Raw,
			})
		}
	}
	form.Report.sortForOutput()

	return form
}

// backfillFromModel fills extraction gaps with model-read values when the LLM
// path is enabled. Positional values always win; the model only supplies
// fields the locator left unmatched.
func (o *Orchestrator) backfillFromModel(ctx context.Context, tmpl *template.Template, tokens []ocr.Token, form *ParsedForm) {
	if o.llm == nil || len(form.Report.Unmatched) == 0 {
		return
	}

	extracted, err := o.llm.ExtractFields(ctx, tmpl, tokens)
	if err != nil {
		o.logger.Warn("model backfill failed", "file", form.File, "error", err)
		return
	}

	var stillUnmatched []string
	for _, name := range form.Report.Unmatched {
		raw, ok := extracted[name]
		if !ok {
			stillUnmatched = append(stillUnmatched, name)
			continue
		}
		spec := tmpl.Field(name)
		form.Values[name] = o.normalizer.NormalizeRaw(spec, raw, o.llm.Confidence(), 1.0)
	}
	form.Report.Unmatched = stillUnmatched
}

// aggregate pulls the return amounts out of the parsed forms, first form of
// each type wins.
func (o *Orchestrator) aggregate(forms []ParsedForm, req BatchRequest) (*taxcalc.Summary, error) {
	w2 := valuesFor(forms, classify.DocW2)
	interest := valuesFor(forms, classify.Doc1099INT)
	nec := valuesFor(forms, classify.Doc1099NEC)

	return taxcalc.Compute(taxcalc.Input{
		FilingStatus:           req.FilingStatus,
		W2Income:               amount(w2, "wages"),
		W2Withheld:             amount(w2, "federal_income_tax_withheld"),
		InterestIncome:         amount(interest, "interest_income"),
		InterestWithheld:       amount(interest, "federal_income_tax_withheld"),
		EarlyWithdrawalPenalty: amount(interest, "early_withdrawal_penalty"),
		NonemployeeComp:        amount(nec, "nonemployee_compensation"),
		NonemployeeWithheld:    amount(nec, "federal_income_tax_withheld"),
		QualifyingChildren:     req.QualifyingChildren,
		OtherDependents:        req.OtherDependents,
	})
}

// fillReturn maps the summary and taxpayer identity onto the output template
// and writes the document.
func (o *Orchestrator) fillReturn(forms []ParsedForm, summary *taxcalc.Summary, req BatchRequest) ([]byte, *Report, error) {
	tmpl, err := o.templates.Get(OutputTemplateID)
	if err != nil {
		return nil, nil, err
	}
	doc, err := o.opener.Open(tmpl)
	if err != nil {
		return nil, nil, err
	}

	w2 := valuesFor(forms, classify.DocW2)
	values := o.returnValues(tmpl, w2, summary, req)

	report := &Report{TemplateID: OutputTemplateID}
	filled, writeErrs := o.writer.Write(doc, values)
	report.Filled = filled
	for _, we := range writeErrs {
		report.WriteErrors = append(report.WriteErrors, we.Error())
	}
	for _, v := range values {
		if !v.Valid || v.Confidence < o.reportConfidence {
			report.LowConfidence = append(report.LowConfidence, LowConfidence{
				Name: v.Spec.LogicalName, Score: v.Confidence, Raw: v.Raw,
			})
		}
	}
	report.sortForOutput()

	pdf, err := doc.Render()
	if err != nil {
		return nil, nil, &template.Error{TemplateID: OutputTemplateID, Err: fmt.Errorf("render failed: %w", err)}
	}
	return pdf, report, nil
}

// returnValues assembles the output form's values: identity carried over from
// the W-2, the filing status checkbox, and the computed line amounts.
func (o *Orchestrator) returnValues(tmpl *template.Template, w2 map[string]normalize.Value, summary *taxcalc.Summary, req BatchRequest) []normalize.Value {
	var values []normalize.Value

	carry := func(logical, sourceName string, transform func(string) string) {
		spec := tmpl.Field(logical)
		src, ok := w2[sourceName]
		if spec == nil || !ok || !src.Valid {
			return
		}
		text := src.Text
		if transform != nil {
			text = transform(text)
		}
		v := o.normalizer.NormalizeRaw(spec, text, src.Confidence, 1.0)
		values = append(values, v)
	}

	carry("first_name", "employee_name", firstWord)
	carry("last_name", "employee_name", lastWord)
	carry("ssn", "employee_ssn", nil)

	if spec := tmpl.Field(filingStatusField(req.FilingStatus)); spec != nil {
		values = append(values, normalize.Value{
			Spec: spec, Checked: true, Valid: true, Confidence: 1.0, SourceConfidence: 1.0,
		})
	}

	line := func(logical string, v float64) {
		spec := tmpl.Field(logical)
		if spec == nil {
			return
		}
		values = append(values, o.normalizer.NormalizeRaw(spec, strconv.FormatFloat(v, 'f', 2, 64), 1.0, 1.0))
	}

	line("wages", summary.TotalIncome)
	line("total_income", summary.TotalIncome)
	line("adjusted_gross_income", summary.AdjustedGrossIncome)
	line("standard_deduction", summary.StandardDeduction)
	line("taxable_income", summary.TaxableIncome)
	line("tax", summary.InitialTaxLiability)
	line("child_tax_credit", summary.TotalCredits)
	line("total_tax", summary.FinalTaxLiability)
	line("total_withheld", summary.TotalWithheld)
	line("total_payments", summary.TotalWithheld)
	if summary.Refund > 0 {
		line("overpaid", summary.Refund)
		line("refund", summary.Refund)
	}
	if summary.BalanceDue > 0 {
		line("amount_owed", summary.BalanceDue)
	}

	return values
}

func filingStatusField(status taxcalc.FilingStatus) string {
	switch status {
	case taxcalc.Single:
		return "filing_status_single"
	case taxcalc.MarriedFilingJointly:
		return "filing_status_married_filing_jointly"
	case taxcalc.MarriedFilingSeparate:
		return "filing_status_married_filing_separately"
	case taxcalc.HeadOfHousehold:
		return "filing_status_head_of_household"
	case taxcalc.QualifyingWidow:
		return "filing_status_qualifying_surviving_spouse"
	}
	return ""
}

func valuesFor(forms []ParsedForm, docType classify.DocType) map[string]normalize.Value {
	for _, f := range forms {
		if f.DocType == docType && f.Values != nil {
			return f.Values
		}
	}
	return nil
}

// amount reads a validated currency value; missing or invalid means zero.
func amount(values map[string]normalize.Value, name string) float64 {
	v, ok := values[name]
	if !ok || !v.Valid {
		return 0
	}
	f, err := strconv.ParseFloat(v.Text, 64)
	if err != nil {
		return 0
	}
	return f
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	return fields[0]
}

func lastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	return fields[len(fields)-1]
}
