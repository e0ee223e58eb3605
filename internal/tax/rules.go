package tax

import (
	"time"

	"github.com/taxpadi/taxpadi/internal/money"
)

// Band is one progressive tax band. Width is the band's income span in kobo;
// a zero Width marks the unbounded top band. Rates are integer basis points.
type Band struct {
	Width   money.Amount
	RateBps int64
}

// RuleSet is one dated, versioned set of tax tables. A computation performed
// against a rule set is reproducible forever from its Version.
type RuleSet struct {
	Version string
	// EffectiveFrom is the first date the set applies to (inclusive).
	EffectiveFrom time.Time
	// EffectiveTo is the first date the set no longer applies to
	// (exclusive); zero means still in force.
	EffectiveTo time.Time

	// PITBands are cumulative progressive bands, exempt band first.
	PITBands []Band

	VATRateBps int64

	// WHTRateBps maps normalized transaction types to withholding rates.
	// There is deliberately no fallback rate.
	WHTRateBps map[string]int64

	// CIT turnover tiers: turnover at or below SmallTurnoverMax is the
	// zero-rated small tier, at or below MediumTurnoverMax the medium tier,
	// above it the large tier.
	CITSmallTurnoverMax  money.Amount
	CITMediumTurnoverMax money.Amount
	CITSmallRateBps      int64
	CITMediumRateBps     int64
	CITLargeRateBps      int64
	// CITExcludedSectors lose access to the zero tier regardless of
	// turnover (normalized sector names).
	CITExcludedSectors []string

	CGTRateBps int64
	// CGTAnnualExemption is the per-person annual exempt gain.
	CGTAnnualExemption money.Amount
}

// Covers reports whether the rule set applies to the given date.
func (r RuleSet) Covers(date time.Time) bool {
	if date.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo.IsZero() {
		return true
	}
	return date.Before(r.EffectiveTo)
}

// SectorExcluded reports whether a sector is on the zero-tier exclusion list.
func (r RuleSet) SectorExcluded(sector string) bool {
	normalized := NormalizeSector(sector)
	for _, excluded := range r.CITExcludedSectors {
		if normalized == excluded {
			return true
		}
	}
	return false
}

const naira = 100 // kobo per naira

// RuleSetNG2012 reflects the Personal Income Tax (Amendment) Act 2011 era
// tables, in force until the 2026 reform.
func RuleSetNG2012() RuleSet {
	return RuleSet{
		Version:       "NG-2012",
		EffectiveFrom: time.Date(2012, time.January, 1, 0, 0, 0, 0, time.UTC),
		EffectiveTo:   time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		PITBands: []Band{
			{Width: 300_000 * naira, RateBps: 700},
			{Width: 300_000 * naira, RateBps: 1100},
			{Width: 500_000 * naira, RateBps: 1500},
			{Width: 500_000 * naira, RateBps: 1900},
			{Width: 1_600_000 * naira, RateBps: 2100},
			{Width: 0, RateBps: 2400},
		},
		VATRateBps: 750,
		WHTRateBps: map[string]int64{
			"dividends":         1000,
			"interest":          1000,
			"rent":              1000,
			"royalties":         1000,
			"directors_fees":    1000,
			"professional_fees": 500,
			"technical_fees":    500,
			"commission":        500,
			"construction":      250,
		},
		CITSmallTurnoverMax:  25_000_000 * naira,
		CITMediumTurnoverMax: 100_000_000 * naira,
		CITSmallRateBps:      0,
		CITMediumRateBps:     2000,
		CITLargeRateBps:      3000,
		CITExcludedSectors: []string{
			"legal_services",
			"accounting_services",
			"audit_services",
			"management_consulting",
			"engineering_consulting",
			"architectural_services",
		},
		CGTRateBps:         1000,
		CGTAnnualExemption: 100_000 * naira,
	}
}

// RuleSetNG2026 reflects the Nigeria Tax Act bands in force from January
// 2026: an exempt first band, then increasing marginal rates.
func RuleSetNG2026() RuleSet {
	return RuleSet{
		Version:       "NG-2026",
		EffectiveFrom: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		PITBands: []Band{
			{Width: 800_000 * naira, RateBps: 0},
			{Width: 2_200_000 * naira, RateBps: 1500},
			{Width: 9_000_000 * naira, RateBps: 1800},
			{Width: 13_000_000 * naira, RateBps: 2100},
			{Width: 25_000_000 * naira, RateBps: 2300},
			{Width: 0, RateBps: 2500},
		},
		VATRateBps: 750,
		WHTRateBps: map[string]int64{
			"dividends":         1000,
			"interest":          1000,
			"rent":              1000,
			"royalties":         1000,
			"directors_fees":    1500,
			"professional_fees": 500,
			"technical_fees":    500,
			"commission":        500,
			"construction":      200,
			"supply_of_goods":   200,
		},
		CITSmallTurnoverMax:  25_000_000 * naira,
		CITMediumTurnoverMax: 100_000_000 * naira,
		CITSmallRateBps:      0,
		CITMediumRateBps:     2000,
		CITLargeRateBps:      3000,
		CITExcludedSectors: []string{
			"legal_services",
			"accounting_services",
			"audit_services",
			"management_consulting",
			"engineering_consulting",
			"architectural_services",
		},
		CGTRateBps:         1000,
		CGTAnnualExemption: 100_000 * naira,
	}
}
