package audit

import (
	"testing"
	"time"

	"github.com/taxpadi/taxpadi/internal/ledger"
	"github.com/taxpadi/taxpadi/internal/money"
	"github.com/taxpadi/taxpadi/internal/tax"
)

var auditDate = time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

func findAnomaly(anomalies []Anomaly, anomalyType string) (Anomaly, bool) {
	for _, a := range anomalies {
		if a.Type == anomalyType {
			return a, true
		}
	}
	return Anomaly{}, false
}

func TestAccurateDeclarationProducesNoAnomalies(t *testing.T) {
	t.Parallel()

	auditor := New(nil)
	anomalies := auditor.DetectAnomalies(Filing{
		Owner: "user-1",
		AsOf:  auditDate,
		Figures: []DeclaredFigure{{
			TaxType: tax.TypePIT,
			Input: tax.Input{
				Type: tax.TypePIT,
				PIT:  &tax.PITInput{AnnualIncome: money.Parse("3,000,000")},
			},
			DeclaredTax: money.Parse("330,000"),
		}},
	}, nil)
	if len(anomalies) != 0 {
		t.Fatalf("anomalies = %+v, want none for an accurate declaration", anomalies)
	}
}

func TestUnderstatedDeclarationIsHighSeverity(t *testing.T) {
	t.Parallel()

	auditor := New(nil)
	anomalies := auditor.DetectAnomalies(Filing{
		Owner: "user-1",
		AsOf:  auditDate,
		Figures: []DeclaredFigure{{
			TaxType: tax.TypePIT,
			Input: tax.Input{
				Type: tax.TypePIT,
				PIT:  &tax.PITInput{AnnualIncome: money.Parse("3,000,000")},
			},
			DeclaredTax: money.Parse("250,000"),
		}},
	}, nil)

	anomaly, ok := findAnomaly(anomalies, AnomalyDeviation)
	if !ok {
		t.Fatalf("anomalies = %+v, want a deviation anomaly", anomalies)
	}
	if anomaly.Severity != SeverityHigh {
		t.Fatalf("severity = %q, want high for understatement", anomaly.Severity)
	}
	if want := money.Parse("80,000"); anomaly.PotentialPenalty != want {
		t.Fatalf("penalty = %d, want %d", anomaly.PotentialPenalty, want)
	}
}

func TestDeviationWithinMaterialityIgnored(t *testing.T) {
	t.Parallel()

	auditor := New(nil)
	// Declared within ₦10 of the computed ₦330,000 figure.
	anomalies := auditor.DetectAnomalies(Filing{
		Owner: "user-1",
		AsOf:  auditDate,
		Figures: []DeclaredFigure{{
			TaxType: tax.TypePIT,
			Input: tax.Input{
				Type: tax.TypePIT,
				PIT:  &tax.PITInput{AnnualIncome: money.Parse("3,000,000")},
			},
			DeclaredTax: money.Parse("330,000").Sub(500),
		}},
	}, nil)
	if len(anomalies) != 0 {
		t.Fatalf("anomalies = %+v, want none within materiality", anomalies)
	}
}

func TestExcludedSectorDeclaringZeroRateIsCritical(t *testing.T) {
	t.Parallel()

	auditor := New(nil)
	anomalies := auditor.DetectAnomalies(Filing{
		Owner: "firm-1",
		AsOf:  auditDate,
		Figures: []DeclaredFigure{{
			TaxType: tax.TypeCIT,
			Input: tax.Input{
				Type: tax.TypeCIT,
				CIT: &tax.CITInput{
					Sector:           "legal_services",
					AnnualTurnover:   money.Parse("50,000,000"),
					AssessableProfit: money.Parse("5,000,000"),
				},
			},
			DeclaredTax:     0,
			DeclaredRateBps: 0,
		}},
	}, nil)

	anomaly, ok := findAnomaly(anomalies, AnomalyTierMismatch)
	if !ok {
		t.Fatalf("anomalies = %+v, want a tier mismatch", anomalies)
	}
	if anomaly.Severity != SeverityCritical {
		t.Fatalf("severity = %q, want critical", anomaly.Severity)
	}
	if anomaly.PotentialPenalty == 0 {
		t.Fatal("tier mismatch must carry the unpaid tax as penalty")
	}
	// The tier mismatch must sort ahead of the accompanying deviation.
	if anomalies[0].Type != AnomalyTierMismatch {
		t.Fatalf("first anomaly = %q, want the critical tier mismatch", anomalies[0].Type)
	}
}

func TestDuplicatePaymentsWithinWindow(t *testing.T) {
	t.Parallel()

	auditor := New(nil)
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	anomalies := auditor.DetectAnomalies(Filing{Owner: "user-1", AsOf: auditDate}, []Transaction{
		{ID: "txn-1", Kind: ledger.KindExpense, Amount: money.Parse("28,750"), Description: "Shoprite", Date: base},
		{ID: "txn-2", Kind: ledger.KindExpense, Amount: money.Parse("28,750"), Description: "SHOPRITE Lekki", Date: base.AddDate(0, 0, 3)},
	})

	anomaly, ok := findAnomaly(anomalies, AnomalyDuplicatePayment)
	if !ok {
		t.Fatalf("anomalies = %+v, want a duplicate payment", anomalies)
	}
	if anomaly.Severity != SeverityMedium {
		t.Fatalf("severity = %q, want medium", anomaly.Severity)
	}
}

func TestDuplicatePaymentsOutsideWindowNotFlagged(t *testing.T) {
	t.Parallel()

	auditor := New(nil)
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	anomalies := auditor.DetectAnomalies(Filing{Owner: "user-1", AsOf: auditDate}, []Transaction{
		{ID: "txn-1", Kind: ledger.KindExpense, Amount: money.Parse("28,750"), Description: "Shoprite", Date: base},
		{ID: "txn-2", Kind: ledger.KindExpense, Amount: money.Parse("28,750"), Description: "Shoprite", Date: base.AddDate(0, 0, 40)},
	})
	if _, ok := findAnomaly(anomalies, AnomalyDuplicatePayment); ok {
		t.Fatalf("anomalies = %+v, want no duplicate flag 40 days apart", anomalies)
	}
}

func TestDifferentDescriptionsNotDuplicates(t *testing.T) {
	t.Parallel()

	auditor := New(nil)
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	anomalies := auditor.DetectAnomalies(Filing{Owner: "user-1", AsOf: auditDate}, []Transaction{
		{ID: "txn-1", Kind: ledger.KindExpense, Amount: money.Parse("28,750"), Description: "Shoprite", Date: base},
		{ID: "txn-2", Kind: ledger.KindExpense, Amount: money.Parse("28,750"), Description: "Fuel", Date: base.AddDate(0, 0, 1)},
	})
	if _, ok := findAnomaly(anomalies, AnomalyDuplicatePayment); ok {
		t.Fatalf("anomalies = %+v, want no duplicate flag for unrelated descriptions", anomalies)
	}
}

func TestExcessiveDeductionRatio(t *testing.T) {
	t.Parallel()

	auditor := New(nil)
	anomalies := auditor.DetectAnomalies(Filing{Owner: "user-1", AsOf: auditDate}, []Transaction{
		{ID: "txn-1", Kind: ledger.KindIncome, Amount: money.Parse("100,000")},
		{ID: "txn-2", Kind: ledger.KindExpense, Amount: money.Parse("90,000"), Description: "supplies"},
	})

	anomaly, ok := findAnomaly(anomalies, AnomalyDeductionRatio)
	if !ok {
		t.Fatalf("anomalies = %+v, want a deduction ratio anomaly", anomalies)
	}
	if anomaly.Severity != SeverityHigh {
		t.Fatalf("severity = %q, want high", anomaly.Severity)
	}
}

func TestDeductionRatioAtLimitNotFlagged(t *testing.T) {
	t.Parallel()

	auditor := New(nil)
	anomalies := auditor.DetectAnomalies(Filing{Owner: "user-1", AsOf: auditDate}, []Transaction{
		{ID: "txn-1", Kind: ledger.KindIncome, Amount: money.Parse("100,000")},
		{ID: "txn-2", Kind: ledger.KindExpense, Amount: money.Parse("80,000"), Description: "supplies"},
	})
	if _, ok := findAnomaly(anomalies, AnomalyDeductionRatio); ok {
		t.Fatalf("anomalies = %+v, want no flag exactly at the 80%% limit", anomalies)
	}
}

func TestAnomaliesSortedBySeverity(t *testing.T) {
	t.Parallel()

	auditor := New(nil)
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	anomalies := auditor.DetectAnomalies(Filing{
		Owner: "firm-1",
		AsOf:  auditDate,
		Figures: []DeclaredFigure{{
			TaxType: tax.TypeCIT,
			Input: tax.Input{
				Type: tax.TypeCIT,
				CIT: &tax.CITInput{
					Sector:           "legal_services",
					AnnualTurnover:   money.Parse("50,000,000"),
					AssessableProfit: money.Parse("5,000,000"),
				},
			},
			DeclaredTax:     0,
			DeclaredRateBps: 0,
		}},
	}, []Transaction{
		{ID: "txn-1", Kind: ledger.KindExpense, Amount: money.Parse("28,750"), Description: "Shoprite", Date: base},
		{ID: "txn-2", Kind: ledger.KindExpense, Amount: money.Parse("28,750"), Description: "Shoprite", Date: base.AddDate(0, 0, 3)},
	})

	if len(anomalies) < 3 {
		t.Fatalf("anomalies = %+v, want tier mismatch, deviation and duplicate", anomalies)
	}
	for i := 1; i < len(anomalies); i++ {
		if severityRank[anomalies[i].Severity] < severityRank[anomalies[i-1].Severity] {
			t.Fatalf("anomalies out of order: %q after %q", anomalies[i].Severity, anomalies[i-1].Severity)
		}
	}
}
