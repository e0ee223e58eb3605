// Package tax implements deterministic, versioned tax computation.
//
// All computation is pure: an Engine holds immutable effective-dated rule
// sets, and Compute selects the set covering the requested date. Every
// result records the rule version actually applied so a calculation can be
// re-derived later with the exact tables it used, even after newer rules
// are published.
package tax

import (
	"fmt"
	"strings"

	"github.com/taxpadi/taxpadi/internal/money"
)

// Type identifies a tax type.
type Type string

const (
	// TypePIT is personal income tax (cumulative progressive bands).
	TypePIT Type = "PIT"
	// TypeVAT is value added tax (flat rate, output netted against input).
	TypeVAT Type = "VAT"
	// TypeWHT is withholding tax (rate by transaction type).
	TypeWHT Type = "WHT"
	// TypeCIT is companies income tax (turnover tiers + sector exclusions).
	TypeCIT Type = "CIT"
	// TypeCGT is capital gains tax (flat rate on net gains above exemption).
	TypeCGT Type = "CGT"
)

// IsValid reports whether the tax type is one of the known types.
func (t Type) IsValid() bool {
	switch t {
	case TypePIT, TypeVAT, TypeWHT, TypeCIT, TypeCGT:
		return true
	}
	return false
}

// Input is a tagged union of per-type computation inputs. Exactly one of the
// per-type pointers must be set, matching Type.
type Input struct {
	Type Type
	PIT  *PITInput
	VAT  *VATInput
	WHT  *WHTInput
	CIT  *CITInput
	CGT  *CGTInput
}

// PITInput carries the basis for a personal income tax computation.
type PITInput struct {
	// AnnualIncome is the taxable annual income in kobo.
	AnnualIncome money.Amount
}

// VATInput carries the basis for a value added tax computation.
type VATInput struct {
	// TaxableSales is the VATable sales total for the period.
	TaxableSales money.Amount
	// TaxablePurchases is the VATable purchases total for the period.
	TaxablePurchases money.Amount
}

// WHTInput carries the basis for a withholding tax computation.
type WHTInput struct {
	// TransactionType selects the withholding rate; unknown types are a
	// validation error, never a default rate.
	TransactionType string
	// Payment is the gross payment the tax is withheld from.
	Payment money.Amount
}

// CITInput carries the basis for a companies income tax computation.
type CITInput struct {
	// Sector is the registered business sector, e.g. "legal_services".
	Sector string
	// AnnualTurnover selects the rate tier.
	AnnualTurnover money.Amount
	// AssessableProfit is the profit the selected rate applies to.
	AssessableProfit money.Amount
}

// CGTInput carries the basis for a capital gains tax computation.
type CGTInput struct {
	Proceeds        money.Amount
	Cost            money.Amount
	IncidentalCosts money.Amount
}

// Output is a tagged union of per-type computation results. RuleVersion is
// always set to the version of the rule set actually applied.
type Output struct {
	Type        Type
	RuleVersion string
	PIT         *PITOutput
	VAT         *VATOutput
	WHT         *WHTOutput
	CIT         *CITOutput
	CGT         *CGTOutput
}

// TaxDue returns the headline tax figure of the result regardless of type.
func (o Output) TaxDue() money.Amount {
	switch o.Type {
	case TypePIT:
		if o.PIT != nil {
			return o.PIT.TaxDue
		}
	case TypeVAT:
		if o.VAT != nil {
			return o.VAT.NetVAT
		}
	case TypeWHT:
		if o.WHT != nil {
			return o.WHT.TaxWithheld
		}
	case TypeCIT:
		if o.CIT != nil {
			return o.CIT.TaxDue
		}
	case TypeCGT:
		if o.CGT != nil {
			return o.CGT.TaxDue
		}
	}
	return 0
}

// BandSlice records how much of the income one progressive band absorbed.
type BandSlice struct {
	Width   money.Amount
	RateBps int64
	Taxable money.Amount
	Tax     money.Amount
}

// PITOutput is the result of a personal income tax computation.
type PITOutput struct {
	GrossIncome money.Amount
	TaxDue      money.Amount
	// EffectiveRateBps is total tax over gross income in basis points.
	EffectiveRateBps int64
	Bands            []BandSlice
}

// FormatEffectiveRate renders the effective rate as a display percentage.
func (o PITOutput) FormatEffectiveRate() string {
	return fmt.Sprintf("%d.%02d%%", o.EffectiveRateBps/100, o.EffectiveRateBps%100)
}

// VATOutput is the result of a value added tax computation. OutputVAT and
// InputVAT are kept separate; NetVAT is the only combined figure.
type VATOutput struct {
	RateBps   int64
	OutputVAT money.Amount
	InputVAT  money.Amount
	// NetVAT is OutputVAT - InputVAT; negative means a refund position.
	NetVAT money.Amount
}

// WHTOutput is the result of a withholding tax computation.
type WHTOutput struct {
	TransactionType string
	RateBps         int64
	TaxWithheld     money.Amount
}

// CITTier identifies the turnover tier a company falls in.
type CITTier string

const (
	// CITTierSmall is the zero-rated tier for small companies.
	CITTierSmall CITTier = "small"
	// CITTierMedium is the reduced-rate tier.
	CITTierMedium CITTier = "medium"
	// CITTierLarge is the standard-rate tier.
	CITTierLarge CITTier = "large"
)

// CITOutput is the result of a companies income tax computation.
type CITOutput struct {
	Tier CITTier
	// SectorExcluded reports that the sector exclusion list removed the
	// zero tier regardless of turnover.
	SectorExcluded bool
	RateBps        int64
	TaxDue         money.Amount
}

// CGTOutput is the result of a capital gains tax computation.
type CGTOutput struct {
	// ChargeableGain is proceeds - cost - incidental costs, floored at zero,
	// before the annual exemption.
	ChargeableGain money.Amount
	// ExemptionApplied is the portion of the annual exemption consumed.
	ExemptionApplied money.Amount
	RateBps          int64
	TaxDue           money.Amount
}

// NormalizeTransactionType canonicalizes a WHT transaction type for lookup.
func NormalizeTransactionType(transactionType string) string {
	return strings.ToLower(strings.TrimSpace(transactionType))
}

// NormalizeSector canonicalizes a CIT sector name for exclusion checks.
func NormalizeSector(sector string) string {
	return strings.ToLower(strings.TrimSpace(sector))
}
