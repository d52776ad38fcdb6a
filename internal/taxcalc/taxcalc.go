// Package taxcalc computes a 2024 federal return summary from aggregated
// source-form amounts: progressive bracket tax, standard deduction, and the
// child/other-dependent credits.
package taxcalc

import (
	"fmt"
	"math"
	"strings"
)

// FilingStatus selects the bracket table and standard deduction.
type FilingStatus string

const (
	Single                FilingStatus = "single"
	MarriedFilingJointly  FilingStatus = "married_filing_jointly"
	MarriedFilingSeparate FilingStatus = "married_filing_separately"
	HeadOfHousehold       FilingStatus = "head_of_household"
	QualifyingWidow       FilingStatus = "qualifying_widow"
)

// ParseFilingStatus normalizes user input ("Married Filing Jointly",
// "married-filing-jointly") to a FilingStatus.
func ParseFilingStatus(s string) (FilingStatus, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	switch FilingStatus(key) {
	case Single, MarriedFilingJointly, MarriedFilingSeparate, HeadOfHousehold, QualifyingWidow:
		return FilingStatus(key), nil
	}
	return "", fmt.Errorf("unknown filing status %q", s)
}

// bracket is one progressive rate band [Lower, Upper).
type bracket struct {
	Lower, Upper float64
	Rate         float64
}

var brackets2024 = map[FilingStatus][]bracket{
	Single: {
		{0, 11600, 0.10}, {11600, 47150, 0.12}, {47150, 100525, 0.22},
		{100525, 191950, 0.24}, {191950, 243725, 0.32}, {243725, 609350, 0.35},
		{609350, math.Inf(1), 0.37},
	},
	MarriedFilingJointly: {
		{0, 23200, 0.10}, {23200, 94300, 0.12}, {94300, 201050, 0.22},
		{201050, 383900, 0.24}, {383900, 487450, 0.32}, {487450, 731200, 0.35},
		{731200, math.Inf(1), 0.37},
	},
	HeadOfHousehold: {
		{0, 16550, 0.10}, {16550, 63100, 0.12}, {63100, 100500, 0.22},
		{100500, 191950, 0.24}, {191950, 243700, 0.32}, {243700, 609350, 0.35},
		{609350, math.Inf(1), 0.37},
	},
	MarriedFilingSeparate: {
		{0, 11600, 0.10}, {11600, 47150, 0.12}, {47150, 100525, 0.22},
		{100525, 191950, 0.24}, {191950, 243725, 0.32}, {243725, 365600, 0.35},
		{365600, math.Inf(1), 0.37},
	},
}

var standardDeduction2024 = map[FilingStatus]float64{
	Single:                14600,
	MarriedFilingJointly:  29200,
	MarriedFilingSeparate: 14600,
	HeadOfHousehold:       21900,
	QualifyingWidow:       29200,
}

const (
	childTaxCredit       = 2000
	otherDependentCredit = 500
)

// Input aggregates the amounts pulled off the source forms.
type Input struct {
	FilingStatus FilingStatus

	W2Income   float64
	W2Withheld float64

	InterestIncome         float64
	InterestWithheld       float64
	EarlyWithdrawalPenalty float64

	NonemployeeComp     float64
	NonemployeeWithheld float64

	QualifyingChildren int
	OtherDependents    int
}

// Summary is the computed return, line for line.
type Summary struct {
	TotalIncome          float64 `json:"total_income" yaml:"total_income"`
	Adjustments          float64 `json:"adjustments" yaml:"adjustments"`
	AdjustedGrossIncome  float64 `json:"adjusted_gross_income" yaml:"adjusted_gross_income"`
	StandardDeduction    float64 `json:"standard_deduction" yaml:"standard_deduction"`
	TaxableIncome        float64 `json:"taxable_income" yaml:"taxable_income"`
	InitialTaxLiability  float64 `json:"initial_tax_liability" yaml:"initial_tax_liability"`
	TotalCredits         float64 `json:"total_credits" yaml:"total_credits"`
	FinalTaxLiability    float64 `json:"final_tax_liability" yaml:"final_tax_liability"`
	TotalWithheld        float64 `json:"total_withheld" yaml:"total_withheld"`
	BalanceDue           float64 `json:"tax_due" yaml:"tax_due"`
	Refund               float64 `json:"refund" yaml:"refund"`
}

// Compute derives the return summary. Taxable income and the final liability
// floor at zero; credits are nonrefundable.
func Compute(in Input) (*Summary, error) {
	status := in.FilingStatus
	brs, ok := brackets2024[status]
	if !ok {
		if status == QualifyingWidow {
			// Qualifying widow(er) uses the joint brackets.
			brs = brackets2024[MarriedFilingJointly]
		} else {
			return nil, fmt.Errorf("unknown filing status %q", in.FilingStatus)
		}
	}

	s := &Summary{}
	s.TotalIncome = in.W2Income + in.InterestIncome + in.NonemployeeComp
	s.Adjustments = in.EarlyWithdrawalPenalty
	s.AdjustedGrossIncome = s.TotalIncome - s.Adjustments

	deduction, ok := standardDeduction2024[status]
	if !ok {
		deduction = standardDeduction2024[Single]
	}
	s.StandardDeduction = deduction
	s.TaxableIncome = math.Max(0, s.AdjustedGrossIncome-deduction)

	s.InitialTaxLiability = bracketedTax(s.TaxableIncome, brs)

	s.TotalCredits = float64(in.QualifyingChildren)*childTaxCredit +
		float64(in.OtherDependents)*otherDependentCredit
	s.FinalTaxLiability = math.Max(0, s.InitialTaxLiability-s.TotalCredits)

	s.TotalWithheld = in.W2Withheld + in.InterestWithheld + in.NonemployeeWithheld

	if s.FinalTaxLiability > s.TotalWithheld {
		s.BalanceDue = round2(s.FinalTaxLiability - s.TotalWithheld)
	} else {
		s.Refund = round2(s.TotalWithheld - s.FinalTaxLiability)
	}

	return s, nil
}

// bracketedTax sums the marginal tax across every band the income reaches.
func bracketedTax(taxableIncome float64, brs []bracket) float64 {
	tax := 0.0
	for _, b := range brs {
		if taxableIncome <= b.Lower {
			break
		}
		tax += (math.Min(taxableIncome, b.Upper) - b.Lower) * b.Rate
	}
	return round2(tax)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
