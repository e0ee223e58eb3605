// Package service orchestrates record lifecycle operations over storage:
// creation, archival, corrections, finalization, and audit-trail access.
package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/taxpadi/taxpadi/internal/ledger"
	"github.com/taxpadi/taxpadi/internal/ledger/storage"
	"github.com/taxpadi/taxpadi/internal/money"
	"github.com/taxpadi/taxpadi/internal/platform/cache"
	"github.com/taxpadi/taxpadi/internal/platform/errors"
	"github.com/taxpadi/taxpadi/internal/platform/id"
	"github.com/taxpadi/taxpadi/internal/tax"
)

// Audit-trail actions.
const (
	ActionRecordCreated        = "record.created"
	ActionRecordCorrected      = "record.corrected"
	ActionRecordArchived       = "record.archived"
	ActionRecordRestored       = "record.restored"
	ActionCalculationFinalized = "calculation.finalized"
)

const auditEntityKind = "record"

const defaultSummaryTTL = time.Minute

// Service exposes the record ledger operations consumed by the application
// layer. All mutating operations run as single storage transactions; the
// computational paths (tax computation, summaries) are pure over store reads.
type Service struct {
	store     storage.RecordStore
	engine    *tax.Engine
	clock     func() time.Time
	newID     func() (string, error)
	summaries *cache.Cache[string, OwnerSummary]
}

// New creates a ledger service over the given store and tax engine.
func New(store storage.RecordStore, engine *tax.Engine) *Service {
	if engine == nil {
		engine = tax.Default()
	}
	return &Service{
		store:     store,
		engine:    engine,
		clock:     time.Now,
		newID:     id.NewID,
		summaries: cache.New[string, OwnerSummary](defaultSummaryTTL, time.Now),
	}
}

// Engine returns the tax engine the service computes with.
func (s *Service) Engine() *tax.Engine {
	return s.engine
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// recordSnapshot is the audit-trail representation of one record version.
type recordSnapshot struct {
	ID          string    `json:"id"`
	ChainID     string    `json:"chain_id"`
	Owner       string    `json:"owner"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	Archived    bool      `json:"archived"`
	Supersedes  string    `json:"supersedes,omitempty"`
	Amount      int64     `json:"amount_kobo"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	OccurredOn  time.Time `json:"occurred_on,omitempty"`
	TaxType     string    `json:"tax_type,omitempty"`
	Finalized   bool      `json:"finalized,omitempty"`
	RuleVersion string    `json:"rule_version,omitempty"`
}

func snapshotJSON(record ledger.Record) []byte {
	snapshot := recordSnapshot{
		ID:          record.ID,
		ChainID:     record.ChainID,
		Owner:       record.Owner,
		Kind:        string(record.Kind),
		Status:      string(record.Status),
		Archived:    record.Archived,
		Supersedes:  record.Supersedes,
		Amount:      record.Amount.Kobo(),
		Description: record.Description,
		Category:    record.Category,
		OccurredOn:  record.OccurredOn,
	}
	if record.Calculation != nil {
		snapshot.TaxType = string(record.Calculation.TaxType)
		snapshot.Finalized = record.Calculation.Finalized
		snapshot.RuleVersion = record.Calculation.RuleVersionUsed
	}
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return nil
	}
	return encoded
}

func (s *Service) auditEntry(action, actor, entityID string, before, after []byte) storage.AuditEntry {
	return storage.AuditEntry{
		Action:     action,
		Actor:      actor,
		EntityKind: auditEntityKind,
		EntityID:   entityID,
		BeforeJSON: before,
		AfterJSON:  after,
		CreatedAt:  s.now(),
	}
}

// Create inserts an original record with status active and its own chain.
func (s *Service) Create(ctx context.Context, actor string, input ledger.CreateRecordInput) (ledger.Record, error) {
	record, err := ledger.NewRecord(input, s.clock, s.newID)
	if err != nil {
		return ledger.Record{}, err
	}
	audit := s.auditEntry(ActionRecordCreated, actor, record.ChainID, nil, snapshotJSON(record))
	if err := s.store.CreateRecord(ctx, record, audit); err != nil {
		return ledger.Record{}, s.mapStorageError(err, record.ID, "create")
	}
	s.summaries.Delete(record.Owner)
	return record, nil
}

// CreateCalculation computes a tax figure for the given input and stores it
// as a tax calculation record, recording the rule version actually applied.
func (s *Service) CreateCalculation(ctx context.Context, actor, owner string, input tax.Input, asOf time.Time) (ledger.Record, tax.Output, error) {
	output, err := s.engine.Compute(input, asOf)
	if err != nil {
		return ledger.Record{}, tax.Output{}, err
	}
	record, err := s.Create(ctx, actor, ledger.CreateRecordInput{
		Owner:      owner,
		Kind:       ledger.KindTaxCalculation,
		Amount:     output.TaxDue(),
		OccurredOn: asOf,
		Calculation: &ledger.Calculation{
			TaxType:           input.Type,
			RuleVersionUsed:   output.RuleVersion,
			EffectiveDateUsed: asOf,
		},
	})
	if err != nil {
		return ledger.Record{}, tax.Output{}, err
	}
	return record, output, nil
}

// Get returns one record version by id.
func (s *Service) Get(ctx context.Context, recordID string) (ledger.Record, error) {
	record, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return ledger.Record{}, s.mapStorageError(err, recordID, "get")
	}
	return record, nil
}

// Archive hides a record from active queries without changing its status.
func (s *Service) Archive(ctx context.Context, actor, recordID string) error {
	return s.setArchived(ctx, actor, recordID, true)
}

// Restore unhides an archived record.
func (s *Service) Restore(ctx context.Context, actor, recordID string) error {
	return s.setArchived(ctx, actor, recordID, false)
}

func (s *Service) setArchived(ctx context.Context, actor, recordID string, archived bool) error {
	record, err := s.Get(ctx, recordID)
	if err != nil {
		return err
	}
	action := ActionRecordArchived
	check := record.CanArchive
	if !archived {
		action = ActionRecordRestored
		check = record.CanRestore
	}
	if err := check(); err != nil {
		return err
	}

	after := record
	after.Archived = archived
	audit := s.auditEntry(action, actor, record.ChainID, snapshotJSON(record), snapshotJSON(after))
	if err := s.store.SetArchived(ctx, recordID, archived, s.now(), audit); err != nil {
		return s.mapStorageError(err, recordID, action)
	}
	s.summaries.Delete(record.Owner)
	return nil
}

// QueryActive returns the owner's unarchived active records. It never
// returns two records belonging to the same correction chain.
func (s *Service) QueryActive(ctx context.Context, owner string) ([]ledger.Record, error) {
	if owner == "" {
		return nil, errors.New(errors.CodeOwnerEmpty, "owner is required")
	}
	return s.store.QueryActive(ctx, owner)
}

// QueryChain returns the full superseded-to-active sequence of the chain
// containing the given record, oldest first, for audit display.
func (s *Service) QueryChain(ctx context.Context, recordID string) ([]ledger.Record, error) {
	record, err := s.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	chain, err := s.store.QueryChain(ctx, record.ChainID)
	if err != nil {
		return nil, s.mapStorageError(err, recordID, "query_chain")
	}
	return chain, nil
}

// Correct supersedes the active record with a corrected successor. The whole
// transition is one storage transaction; if another correction consumed the
// original first, the caller receives a conflict error and must re-fetch the
// new active tip before deciding whether to reattempt.
func (s *Service) Correct(ctx context.Context, actor, originalID string, fields ledger.CorrectionFields) (ledger.Record, error) {
	original, err := s.Get(ctx, originalID)
	if err != nil {
		return ledger.Record{}, err
	}
	successor, err := original.NewCorrection(fields, s.clock, s.newID)
	if err != nil {
		return ledger.Record{}, err
	}

	audit := s.auditEntry(ActionRecordCorrected, actor, original.ChainID,
		snapshotJSON(original), snapshotJSON(successor))
	if err := s.store.CorrectRecord(ctx, original.ID, successor, audit); err != nil {
		return ledger.Record{}, s.mapStorageError(err, original.ID, "correct")
	}
	s.summaries.Delete(original.Owner)
	return successor, nil
}

// Finalize makes a tax calculation permanently immutable. It is deliberately
// not idempotent: a repeat call fails so double submission cannot pass
// unnoticed.
func (s *Service) Finalize(ctx context.Context, actor, calculationID string) error {
	record, err := s.Get(ctx, calculationID)
	if err != nil {
		return err
	}
	if err := record.CanFinalize(); err != nil {
		return err
	}

	finalizedAt := s.now()
	effectiveDate := record.Calculation.EffectiveDateUsed
	if effectiveDate.IsZero() {
		effectiveDate = finalizedAt
	}

	after := record
	calc := *record.Calculation
	calc.Finalized = true
	calc.FinalizedAt = finalizedAt
	calc.EffectiveDateUsed = effectiveDate
	after.Calculation = &calc

	audit := s.auditEntry(ActionCalculationFinalized, actor, record.ChainID,
		snapshotJSON(record), snapshotJSON(after))
	if err := s.store.FinalizeRecord(ctx, calculationID, finalizedAt, effectiveDate, audit); err != nil {
		return s.mapStorageError(err, calculationID, "finalize")
	}
	s.summaries.Delete(record.Owner)
	return nil
}

// AuditTrail returns the audit entries recorded for a chain, oldest first.
func (s *Service) AuditTrail(ctx context.Context, recordID string) ([]storage.AuditEntry, error) {
	record, err := s.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.QueryAuditTrail(ctx, record.ChainID)
	if err != nil {
		return nil, s.mapStorageError(err, recordID, "audit_trail")
	}
	return entries, nil
}

// OwnerSummary aggregates an owner's active, unarchived records.
type OwnerSummary struct {
	ActiveRecords int
	TotalIncome   money.Amount
	TotalExpense  money.Amount
}

// Summary aggregates the owner's active records. Results are cached briefly;
// every mutating call on the owner's records invalidates the cache entry.
func (s *Service) Summary(ctx context.Context, owner string) (OwnerSummary, error) {
	if cached, ok := s.summaries.Get(owner); ok {
		return cached, nil
	}
	records, err := s.QueryActive(ctx, owner)
	if err != nil {
		return OwnerSummary{}, err
	}
	var summary OwnerSummary
	summary.ActiveRecords = len(records)
	for _, record := range records {
		switch record.Kind {
		case ledger.KindIncome:
			summary.TotalIncome = summary.TotalIncome.Add(record.Amount)
		case ledger.KindExpense:
			summary.TotalExpense = summary.TotalExpense.Add(record.Amount)
		}
	}
	s.summaries.Set(owner, summary)
	return summary, nil
}

// mapStorageError converts storage sentinels into domain errors carrying the
// context the calling layer needs to explain the failure.
func (s *Service) mapStorageError(err error, recordID, attempted string) error {
	switch {
	case stderrors.Is(err, storage.ErrNotFound):
		return errors.WithMetadata(errors.CodeRecordNotFound,
			"record not found", map[string]string{
				"record_id": recordID,
				"attempted": attempted,
			})
	case stderrors.Is(err, storage.ErrConflict):
		return errors.WithMetadata(errors.CodeCorrectionConflict,
			"record state changed concurrently; re-fetch the active tip before retrying",
			map[string]string{
				"record_id": recordID,
				"attempted": attempted,
			})
	case stderrors.Is(err, storage.ErrAlreadyFinalized):
		return errors.WithMetadata(errors.CodeAlreadyFinalized,
			"calculation is already finalized", map[string]string{
				"record_id": recordID,
				"attempted": attempted,
			})
	default:
		return errors.Wrap(errors.CodeUnknown, "storage operation failed", err)
	}
}
