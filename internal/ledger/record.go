// Package ledger defines the financial record domain model and its
// lifecycle rules.
//
// Records are append-only: a correction never edits a record in place, it
// supersedes it with a new version in the same chain. Within one chain at
// most one record is active at any time; every other member is superseded
// and its monetary fields are read-only forever. Archiving is an orthogonal
// visibility flag and never changes status.
package ledger

import (
	"time"

	"github.com/taxpadi/taxpadi/internal/money"
	"github.com/taxpadi/taxpadi/internal/platform/errors"
	"github.com/taxpadi/taxpadi/internal/platform/id"
	"github.com/taxpadi/taxpadi/internal/tax"
)

// Kind identifies the business type of a financial record.
type Kind string

const (
	// KindIncome is a logged income event.
	KindIncome Kind = "income"
	// KindExpense is a logged expense event.
	KindExpense Kind = "expense"
	// KindFiling is a submitted tax filing.
	KindFiling Kind = "filing"
	// KindPayment is a tax payment.
	KindPayment Kind = "payment"
	// KindTaxCalculation is a stored tax computation result.
	KindTaxCalculation Kind = "tax_calculation"
)

// IsValid reports whether the kind is one of the known record kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindIncome, KindExpense, KindFiling, KindPayment, KindTaxCalculation:
		return true
	}
	return false
}

// Status is the lifecycle status of one record version.
type Status string

const (
	// StatusActive marks the current version of a chain.
	StatusActive Status = "active"
	// StatusSuperseded marks a version replaced by a correction.
	StatusSuperseded Status = "superseded"
)

// Record is one immutable version of a financial record.
type Record struct {
	ID string
	// ChainID is the logical entity id shared by every version in a
	// correction chain. It equals the original record's ID.
	ChainID string
	Owner   string
	Kind    Kind
	Status  Status
	// Archived hides the record from active queries without changing
	// status; it is reversible.
	Archived bool
	// Supersedes points at the immediately prior version; empty for
	// originals.
	Supersedes  string
	Amount      money.Amount
	Description string
	Category    string
	// OccurredOn is the business date of the underlying event.
	OccurredOn time.Time
	// Calculation is set only for KindTaxCalculation records.
	Calculation *Calculation
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Calculation holds the tax-calculation-specific fields of a record.
// Once Finalized is true the whole record is immutable: it can be archived
// (hidden) but never corrected or un-finalized.
type Calculation struct {
	TaxType           tax.Type
	Finalized         bool
	FinalizedAt       time.Time
	RuleVersionUsed   string
	EffectiveDateUsed time.Time
}

// CreateRecordInput describes the data needed to create an original record.
type CreateRecordInput struct {
	Owner       string
	Kind        Kind
	Amount      money.Amount
	Description string
	Category    string
	OccurredOn  time.Time
	Calculation *Calculation
}

// NewRecord creates an original record: active, unarchived, starting its own
// chain. The injectable clock and id generator keep the domain testable.
func NewRecord(input CreateRecordInput, now func() time.Time, idGenerator func() (string, error)) (Record, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	if err := validateCreateRecordInput(input); err != nil {
		return Record{}, err
	}

	recordID, err := idGenerator()
	if err != nil {
		return Record{}, errors.Wrap(errors.CodeUnknown, "generate record id", err)
	}

	createdAt := now().UTC()
	record := Record{
		ID:          recordID,
		ChainID:     recordID,
		Owner:       input.Owner,
		Kind:        input.Kind,
		Status:      StatusActive,
		Archived:    false,
		Amount:      input.Amount,
		Description: input.Description,
		Category:    input.Category,
		OccurredOn:  input.OccurredOn,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if input.Calculation != nil {
		calc := *input.Calculation
		calc.Finalized = false
		calc.FinalizedAt = time.Time{}
		record.Calculation = &calc
	}
	return record, nil
}

func validateCreateRecordInput(input CreateRecordInput) error {
	if input.Owner == "" {
		return errors.New(errors.CodeOwnerEmpty, "record owner is required")
	}
	if !input.Kind.IsValid() {
		return errors.WithMetadata(errors.CodeRecordKindInvalid,
			"unknown record kind", map[string]string{"kind": string(input.Kind)})
	}
	// Income, expense and payment events are magnitudes; only calculations
	// and filings may carry signed figures (e.g. a VAT refund position).
	switch input.Kind {
	case KindIncome, KindExpense, KindPayment:
		if input.Amount < 0 {
			return errors.WithMetadata(errors.CodeAmountInvalid,
				"amount must not be negative", map[string]string{
					"kind":   string(input.Kind),
					"amount": input.Amount.Format(),
				})
		}
	}
	if input.Kind == KindTaxCalculation {
		if input.Calculation == nil {
			return errors.New(errors.CodeTaxInputMissing,
				"tax calculation records require calculation fields")
		}
		if !input.Calculation.TaxType.IsValid() {
			return errors.WithMetadata(errors.CodeTaxTypeInvalid,
				"unknown tax type", map[string]string{
					"tax_type": string(input.Calculation.TaxType),
				})
		}
	}
	return nil
}

// IsFinalized reports whether the record is a finalized tax calculation.
func (r Record) IsFinalized() bool {
	return r.Calculation != nil && r.Calculation.Finalized
}

// stateMetadata captures the lifecycle context every state error must carry.
func (r Record) stateMetadata(attempted string) map[string]string {
	meta := map[string]string{
		"record_id": r.ID,
		"chain_id":  r.ChainID,
		"attempted": attempted,
		"status":    string(r.Status),
	}
	if r.Archived {
		meta["archived"] = "true"
	}
	if r.IsFinalized() {
		meta["finalized"] = "true"
	}
	return meta
}

// CanCorrect reports whether the record may be superseded by a correction.
func (r Record) CanCorrect() error {
	if r.IsFinalized() {
		return errors.WithMetadata(errors.CodeCalculationFinalized,
			"finalized calculations are immutable", r.stateMetadata("correct"))
	}
	if r.Status != StatusActive {
		return errors.WithMetadata(errors.CodeRecordNotActive,
			"only the active version of a chain can be corrected", r.stateMetadata("correct"))
	}
	if r.Archived {
		return errors.WithMetadata(errors.CodeRecordArchived,
			"archived records cannot be corrected; restore first", r.stateMetadata("correct"))
	}
	return nil
}

// CanFinalize reports whether the record may be finalized.
func (r Record) CanFinalize() error {
	if r.Kind != KindTaxCalculation || r.Calculation == nil {
		return errors.WithMetadata(errors.CodeNotACalculation,
			"only tax calculations can be finalized", r.stateMetadata("finalize"))
	}
	if r.Calculation.Finalized {
		// Finalize is deliberately not idempotent: a repeat call is a
		// caller bug, and succeeding silently could mask double submission.
		return errors.WithMetadata(errors.CodeAlreadyFinalized,
			"calculation is already finalized", r.stateMetadata("finalize"))
	}
	if r.Status != StatusActive {
		return errors.WithMetadata(errors.CodeRecordNotActive,
			"only the active version of a chain can be finalized", r.stateMetadata("finalize"))
	}
	if r.Archived {
		return errors.WithMetadata(errors.CodeRecordArchived,
			"archived calculations cannot be finalized; restore first", r.stateMetadata("finalize"))
	}
	return nil
}

// CanArchive reports whether the record may be archived.
func (r Record) CanArchive() error {
	if r.Archived {
		return errors.WithMetadata(errors.CodeRecordAlreadyArchived,
			"record is already archived", r.stateMetadata("archive"))
	}
	return nil
}

// CanRestore reports whether the record may be restored from the archive.
func (r Record) CanRestore() error {
	if !r.Archived {
		return errors.WithMetadata(errors.CodeRecordNotArchived,
			"record is not archived", r.stateMetadata("restore"))
	}
	return nil
}

// CorrectionFields carries the fields a correction may change. Nil fields
// keep the original value.
type CorrectionFields struct {
	Amount      *money.Amount
	Description *string
	Category    *string
	OccurredOn  *time.Time
}

// IsEmpty reports whether the correction changes nothing.
func (f CorrectionFields) IsEmpty() bool {
	return f.Amount == nil && f.Description == nil && f.Category == nil && f.OccurredOn == nil
}

// NewCorrection builds the successor record for a correction: same chain and
// owner, merged field values, active status, supersedes back-pointer.
func (r Record) NewCorrection(fields CorrectionFields, now func() time.Time, idGenerator func() (string, error)) (Record, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	if fields.IsEmpty() {
		return Record{}, errors.WithMetadata(errors.CodeCorrectionNoFields,
			"correction must change at least one field", map[string]string{
				"record_id": r.ID,
			})
	}
	if err := r.CanCorrect(); err != nil {
		return Record{}, err
	}

	successorID, err := idGenerator()
	if err != nil {
		return Record{}, errors.Wrap(errors.CodeUnknown, "generate record id", err)
	}

	successor := r
	successor.ID = successorID
	successor.Status = StatusActive
	successor.Supersedes = r.ID
	successor.CreatedAt = now().UTC()
	successor.UpdatedAt = successor.CreatedAt
	if r.Calculation != nil {
		calc := *r.Calculation
		successor.Calculation = &calc
	}

	if fields.Amount != nil {
		switch r.Kind {
		case KindIncome, KindExpense, KindPayment:
			if *fields.Amount < 0 {
				return Record{}, errors.WithMetadata(errors.CodeAmountInvalid,
					"amount must not be negative", map[string]string{
						"record_id": r.ID,
						"amount":    fields.Amount.Format(),
					})
			}
		}
		successor.Amount = *fields.Amount
	}
	if fields.Description != nil {
		successor.Description = *fields.Description
	}
	if fields.Category != nil {
		successor.Category = *fields.Category
	}
	if fields.OccurredOn != nil {
		successor.OccurredOn = *fields.OccurredOn
	}
	return successor, nil
}
