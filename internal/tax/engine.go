package tax

import (
	"sort"
	"time"

	"github.com/taxpadi/taxpadi/internal/money"
	"github.com/taxpadi/taxpadi/internal/platform/errors"
)

// Engine computes taxes against a fixed list of effective-dated rule sets.
// Engines are immutable after construction and safe for concurrent use.
type Engine struct {
	sets []RuleSet
}

// NewEngine creates an engine over the given rule sets, ordered by effective
// date. Later-starting sets win when ranges overlap.
func NewEngine(sets ...RuleSet) *Engine {
	ordered := make([]RuleSet, len(sets))
	copy(ordered, sets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EffectiveFrom.Before(ordered[j].EffectiveFrom)
	})
	return &Engine{sets: ordered}
}

// Default returns an engine loaded with the built-in Nigerian rule sets.
func Default() *Engine {
	return NewEngine(RuleSetNG2012(), RuleSetNG2026())
}

// VersionFor returns the rule set in force on the given date.
func (e *Engine) VersionFor(asOf time.Time) (RuleSet, error) {
	for i := len(e.sets) - 1; i >= 0; i-- {
		if e.sets[i].Covers(asOf) {
			return e.sets[i], nil
		}
	}
	return RuleSet{}, errors.WithMetadata(errors.CodeRuleVersionNotFound,
		"no rule set covers the requested date", map[string]string{
			"as_of": asOf.Format("2006-01-02"),
		})
}

// RuleSetByVersion returns the rule set with the given version id.
func (e *Engine) RuleSetByVersion(version string) (RuleSet, error) {
	for _, set := range e.sets {
		if set.Version == version {
			return set, nil
		}
	}
	return RuleSet{}, errors.WithMetadata(errors.CodeRuleVersionNotFound,
		"unknown rule version", map[string]string{"rule_version": version})
}

// Compute runs a tax computation using the rule set in force on asOf. The
// returned Output records the version applied, for audit reproducibility.
func (e *Engine) Compute(input Input, asOf time.Time) (Output, error) {
	set, err := e.VersionFor(asOf)
	if err != nil {
		return Output{}, err
	}
	return computeWithSet(input, set)
}

// ComputeWithVersion re-runs a computation against an explicitly named
// historical rule version, reproducing the original figures exactly.
func (e *Engine) ComputeWithVersion(input Input, version string) (Output, error) {
	set, err := e.RuleSetByVersion(version)
	if err != nil {
		return Output{}, err
	}
	return computeWithSet(input, set)
}

func computeWithSet(input Input, set RuleSet) (Output, error) {
	if !input.Type.IsValid() {
		return Output{}, errors.WithMetadata(errors.CodeTaxTypeInvalid,
			"unknown tax type", map[string]string{"tax_type": string(input.Type)})
	}
	out := Output{Type: input.Type, RuleVersion: set.Version}
	switch input.Type {
	case TypePIT:
		if input.PIT == nil {
			return Output{}, missingInput(input.Type)
		}
		out.PIT = computePIT(*input.PIT, set)
	case TypeVAT:
		if input.VAT == nil {
			return Output{}, missingInput(input.Type)
		}
		out.VAT = computeVAT(*input.VAT, set)
	case TypeWHT:
		if input.WHT == nil {
			return Output{}, missingInput(input.Type)
		}
		result, err := computeWHT(*input.WHT, set)
		if err != nil {
			return Output{}, err
		}
		out.WHT = result
	case TypeCIT:
		if input.CIT == nil {
			return Output{}, missingInput(input.Type)
		}
		out.CIT = computeCIT(*input.CIT, set)
	case TypeCGT:
		if input.CGT == nil {
			return Output{}, missingInput(input.Type)
		}
		out.CGT = computeCGT(*input.CGT, set)
	}
	return out, nil
}

func missingInput(taxType Type) error {
	return errors.WithMetadata(errors.CodeTaxInputMissing,
		"input payload does not match tax type", map[string]string{
			"tax_type": string(taxType),
		})
}

// computePIT applies cumulative progressive bands: each band taxes the slice
// of income falling inside it at the band's marginal rate.
func computePIT(input PITInput, set RuleSet) *PITOutput {
	income := input.AnnualIncome.Max(0)
	out := &PITOutput{GrossIncome: income}

	remaining := income
	for _, band := range set.PITBands {
		if remaining <= 0 {
			break
		}
		slice := remaining
		if band.Width > 0 {
			slice = remaining.Min(band.Width)
		}
		tax := money.ApplyBasisPoints(slice, band.RateBps)
		out.Bands = append(out.Bands, BandSlice{
			Width:   band.Width,
			RateBps: band.RateBps,
			Taxable: slice,
			Tax:     tax,
		})
		out.TaxDue = out.TaxDue.Add(tax)
		remaining = remaining.Sub(slice)
	}

	if income > 0 {
		out.EffectiveRateBps = out.TaxDue.Kobo() * money.BasisPointDenominator / income.Kobo()
	}
	return out
}

func computeVAT(input VATInput, set RuleSet) *VATOutput {
	outputVAT := money.ApplyBasisPoints(input.TaxableSales.Max(0), set.VATRateBps)
	inputVAT := money.ApplyBasisPoints(input.TaxablePurchases.Max(0), set.VATRateBps)
	return &VATOutput{
		RateBps:   set.VATRateBps,
		OutputVAT: outputVAT,
		InputVAT:  inputVAT,
		NetVAT:    outputVAT.Sub(inputVAT),
	}
}

func computeWHT(input WHTInput, set RuleSet) (*WHTOutput, error) {
	transactionType := NormalizeTransactionType(input.TransactionType)
	rate, ok := set.WHTRateBps[transactionType]
	if !ok {
		return nil, errors.WithMetadata(errors.CodeWHTUnknownTransaction,
			"no withholding rate for transaction type", map[string]string{
				"transaction_type": input.TransactionType,
				"rule_version":     set.Version,
			})
	}
	return &WHTOutput{
		TransactionType: transactionType,
		RateBps:         rate,
		TaxWithheld:     money.ApplyBasisPoints(input.Payment.Max(0), rate),
	}, nil
}

// computeCIT checks the sector exclusion list before the turnover-tier
// lookup: turnover alone is an insufficient predicate for the zero tier.
func computeCIT(input CITInput, set RuleSet) *CITOutput {
	out := &CITOutput{}
	if set.SectorExcluded(input.Sector) {
		out.SectorExcluded = true
		if input.AnnualTurnover <= set.CITMediumTurnoverMax {
			out.Tier = CITTierMedium
			out.RateBps = set.CITMediumRateBps
		} else {
			out.Tier = CITTierLarge
			out.RateBps = set.CITLargeRateBps
		}
	} else {
		switch {
		case input.AnnualTurnover <= set.CITSmallTurnoverMax:
			out.Tier = CITTierSmall
			out.RateBps = set.CITSmallRateBps
		case input.AnnualTurnover <= set.CITMediumTurnoverMax:
			out.Tier = CITTierMedium
			out.RateBps = set.CITMediumRateBps
		default:
			out.Tier = CITTierLarge
			out.RateBps = set.CITLargeRateBps
		}
	}
	out.TaxDue = money.ApplyBasisPoints(input.AssessableProfit.Max(0), out.RateBps)
	return out
}

func computeCGT(input CGTInput, set RuleSet) *CGTOutput {
	gain := input.Proceeds.Sub(input.Cost).Sub(input.IncidentalCosts).Max(0)
	exemption := set.CGTAnnualExemption.Min(gain)
	taxable := gain.Sub(exemption)
	return &CGTOutput{
		ChargeableGain:   gain,
		ExemptionApplied: exemption,
		RateBps:          set.CGTRateBps,
		TaxDue:           money.ApplyBasisPoints(taxable, set.CGTRateBps),
	}
}
