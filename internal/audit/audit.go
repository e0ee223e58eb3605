// Package audit cross-checks declared tax figures against recomputed ones
// and scans transaction lists for inconsistencies. Detection is pure: the
// auditor holds no mutable state and is safe for concurrent use.
package audit

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/taxpadi/taxpadi/internal/ledger"
	"github.com/taxpadi/taxpadi/internal/money"
	"github.com/taxpadi/taxpadi/internal/tax"
)

// Severity ranks an anomaly for triage.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// Anomaly types.
const (
	AnomalyDeviation        = "declared_figure_deviation"
	AnomalyTierMismatch     = "cit_tier_mismatch"
	AnomalyUnverifiable     = "unverifiable_declaration"
	AnomalyDuplicatePayment = "duplicate_payment"
	AnomalyDeductionRatio   = "excessive_deduction_ratio"
)

// Anomaly is one detected inconsistency.
type Anomaly struct {
	Type           string
	Severity       Severity
	Title          string
	Description    string
	Recommendation string
	// PotentialPenalty is the exposure in kobo, zero when not estimable.
	PotentialPenalty money.Amount
}

// DeclaredFigure is one tax figure as the filer declared it.
type DeclaredFigure struct {
	TaxType tax.Type
	// Input is the basis the declaration claims to be computed from.
	Input tax.Input
	// DeclaredTax is the tax figure the filer reported.
	DeclaredTax money.Amount
	// DeclaredRateBps is the rate the filer claims to have applied, in
	// basis points. Used by the CIT tier check.
	DeclaredRateBps int64
}

// Filing is a declared return for one owner and period.
type Filing struct {
	Owner string
	// AsOf selects the rule set version figures are verified against.
	AsOf    time.Time
	Figures []DeclaredFigure
}

// Transaction is a ledger line examined by the cross-cutting checks.
type Transaction struct {
	ID          string
	Kind        ledger.Kind
	Amount      money.Amount
	Description string
	Date        time.Time
}

const (
	// defaultMateriality is the deviation floor in kobo below which
	// declared figures are accepted as-is.
	defaultMateriality = money.Amount(1000)

	duplicateWindow = 7 * 24 * time.Hour

	// deductionRatioLimitBps flags expense totals above 80% of income.
	deductionRatioLimitBps = 8000
)

// Auditor recomputes expected figures with a tax engine and compares them
// to declarations.
type Auditor struct {
	engine      *tax.Engine
	materiality money.Amount
}

// New creates an auditor over the given engine. A nil engine uses the
// built-in rule sets.
func New(engine *tax.Engine) *Auditor {
	if engine == nil {
		engine = tax.Default()
	}
	return &Auditor{engine: engine, materiality: defaultMateriality}
}

// DetectAnomalies verifies each declared figure against a recomputation and
// runs the transaction-level checks. The result is sorted by severity,
// critical first, and is stable within each severity.
func (a *Auditor) DetectAnomalies(filing Filing, transactions []Transaction) []Anomaly {
	var anomalies []Anomaly
	for _, figure := range filing.Figures {
		anomalies = append(anomalies, a.checkFigure(figure, filing.AsOf)...)
	}
	anomalies = append(anomalies, detectDuplicatePayments(transactions)...)
	anomalies = append(anomalies, checkDeductionRatio(transactions)...)

	sort.SliceStable(anomalies, func(i, j int) bool {
		return severityRank[anomalies[i].Severity] < severityRank[anomalies[j].Severity]
	})
	return anomalies
}

func (a *Auditor) checkFigure(figure DeclaredFigure, asOf time.Time) []Anomaly {
	expected, err := a.engine.Compute(figure.Input, asOf)
	if err != nil {
		return []Anomaly{{
			Type:     AnomalyUnverifiable,
			Severity: SeverityMedium,
			Title:    fmt.Sprintf("%s declaration could not be verified", figure.TaxType),
			Description: fmt.Sprintf("recomputing the declared %s figure failed: %v",
				figure.TaxType, err),
			Recommendation: "complete the declaration's basis figures so it can be recomputed",
		}}
	}

	var anomalies []Anomaly
	if mismatch := checkCITTier(figure, expected); mismatch != nil {
		anomalies = append(anomalies, *mismatch)
	}

	expectedDue := expected.TaxDue()
	deviation := expectedDue.Sub(figure.DeclaredTax)
	magnitude := deviation
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude <= a.materiality {
		return anomalies
	}

	// Understating the tax due is never below high severity.
	severity := SeverityMedium
	if deviation > 0 || magnitude*10 >= expectedDue {
		severity = SeverityHigh
	}
	var penalty money.Amount
	if deviation > 0 {
		penalty = deviation
	}
	anomalies = append(anomalies, Anomaly{
		Type:     AnomalyDeviation,
		Severity: severity,
		Title:    fmt.Sprintf("%s declaration deviates from computed figure", figure.TaxType),
		Description: fmt.Sprintf("declared %s but recomputation yields %s under rule set %s",
			figure.DeclaredTax.FormatNaira(), expectedDue.FormatNaira(), expected.RuleVersion),
		Recommendation:   "re-derive the figure from the underlying records and amend the declaration",
		PotentialPenalty: penalty,
	})
	return anomalies
}

// checkCITTier flags companies in an excluded sector declaring the
// zero-rated small-company tier.
func checkCITTier(figure DeclaredFigure, expected tax.Output) *Anomaly {
	if figure.TaxType != tax.TypeCIT || expected.CIT == nil {
		return nil
	}
	if !expected.CIT.SectorExcluded || figure.DeclaredRateBps != 0 {
		return nil
	}
	return &Anomaly{
		Type:     AnomalyTierMismatch,
		Severity: SeverityCritical,
		Title:    "professional services company declared the zero-rate tier",
		Description: fmt.Sprintf(
			"the company's sector is excluded from small-company relief; the applicable tier is %s at %d bps, not 0%%",
			expected.CIT.Tier, expected.CIT.RateBps),
		Recommendation:   "refile under the correct tier before assessment",
		PotentialPenalty: expected.CIT.TaxDue,
	}
}

// detectDuplicatePayments flags expense or payment pairs with identical
// amounts and overlapping descriptions dated within a week of each other.
// Recurring payments at identical amounts (rent, subscriptions) can trip
// this check; the window keeps monthly cycles out of range.
func detectDuplicatePayments(transactions []Transaction) []Anomaly {
	var outgoing []Transaction
	for _, txn := range transactions {
		if txn.Kind == ledger.KindExpense || txn.Kind == ledger.KindPayment {
			outgoing = append(outgoing, txn)
		}
	}

	var anomalies []Anomaly
	for i := 0; i < len(outgoing); i++ {
		for j := i + 1; j < len(outgoing); j++ {
			first, second := outgoing[i], outgoing[j]
			if first.Amount != second.Amount {
				continue
			}
			gap := second.Date.Sub(first.Date)
			if gap < 0 {
				gap = -gap
			}
			if gap > duplicateWindow {
				continue
			}
			if !descriptionsOverlap(first.Description, second.Description) {
				continue
			}
			anomalies = append(anomalies, Anomaly{
				Type:     AnomalyDuplicatePayment,
				Severity: SeverityMedium,
				Title:    "possible duplicate payment",
				Description: fmt.Sprintf("%s paid twice (%s, %s) within %d days: %q and %q",
					first.Amount.FormatNaira(), first.ID, second.ID,
					int(gap/(24*time.Hour)), first.Description, second.Description),
				Recommendation:   "confirm both payments are intentional or correct the duplicate",
				PotentialPenalty: first.Amount,
			})
		}
	}
	return anomalies
}

func descriptionsOverlap(a, b string) bool {
	na, nb := normalizeDescription(a), normalizeDescription(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

func normalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// checkDeductionRatio flags expense totals above 80% of income.
func checkDeductionRatio(transactions []Transaction) []Anomaly {
	var income, expense money.Amount
	for _, txn := range transactions {
		switch txn.Kind {
		case ledger.KindIncome:
			income = income.Add(txn.Amount)
		case ledger.KindExpense:
			expense = expense.Add(txn.Amount)
		}
	}
	if income <= 0 {
		return nil
	}
	if expense*money.BasisPointDenominator <= income*deductionRatioLimitBps {
		return nil
	}
	return []Anomaly{{
		Type:     AnomalyDeductionRatio,
		Severity: SeverityHigh,
		Title:    "deductions exceed 80% of income",
		Description: fmt.Sprintf("claimed deductions of %s against income of %s",
			expense.FormatNaira(), income.FormatNaira()),
		Recommendation: "attach supporting evidence for the claimed deductions",
	}}
}
