// Package storage defines persistence contracts for the record ledger.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/taxpadi/taxpadi/internal/ledger"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a guarded write lost a concurrent race: the
	// record's state changed between read and write time.
	ErrConflict = errors.New("record state changed concurrently")
	// ErrAlreadyFinalized indicates a finalize write hit an already
	// finalized calculation.
	ErrAlreadyFinalized = errors.New("calculation already finalized")
)

// AuditEntry is one append-only audit-trail line. Entries are written in the
// same transaction as the mutation they describe.
type AuditEntry struct {
	// ID is assigned by storage on append.
	ID         int64
	Action     string
	Actor      string
	EntityKind string
	EntityID   string
	// BeforeJSON and AfterJSON are snapshots of the affected record.
	BeforeJSON []byte
	AfterJSON  []byte
	CreatedAt  time.Time
}

// RecordStore persists record versions and their audit trail.
//
// CorrectRecord and FinalizeRecord are the only mutating chains of writes;
// each executes as a single transaction so no reader ever observes a
// half-applied correction or finalization.
type RecordStore interface {
	// CreateRecord inserts an original record and its audit entry.
	CreateRecord(ctx context.Context, record ledger.Record, audit AuditEntry) error

	// GetRecord returns one record version by id.
	GetRecord(ctx context.Context, id string) (ledger.Record, error)

	// SetArchived flips the archived flag, guarded on the current value,
	// and appends the audit entry in the same transaction.
	SetArchived(ctx context.Context, id string, archived bool, updatedAt time.Time, audit AuditEntry) error

	// QueryActive returns unarchived active records for an owner, oldest
	// first. At most one record per correction chain can appear.
	QueryActive(ctx context.Context, owner string) ([]ledger.Record, error)

	// QueryChain returns every version in a chain, oldest first.
	QueryChain(ctx context.Context, chainID string) ([]ledger.Record, error)

	// CorrectRecord atomically supersedes the original and inserts its
	// successor. The supersede write is guarded on the original still
	// being active; losing that guard returns ErrConflict.
	CorrectRecord(ctx context.Context, originalID string, successor ledger.Record, audit AuditEntry) error

	// FinalizeRecord atomically finalizes an active, unarchived, not yet
	// finalized calculation. A finalized target returns ErrAlreadyFinalized;
	// any other state change since read time returns ErrConflict.
	FinalizeRecord(ctx context.Context, id string, finalizedAt time.Time, effectiveDate time.Time, audit AuditEntry) error

	// QueryAuditTrail returns the audit entries for an entity, oldest first.
	QueryAuditTrail(ctx context.Context, entityID string) ([]AuditEntry, error)
}
