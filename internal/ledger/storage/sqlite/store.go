// Package sqlite provides a SQLite-backed ledger storage implementation.
//
// The correction and finalization writes are the concurrency-critical part:
// each runs as a single transaction whose status flip is guarded on the
// record still being in the state observed at read time. A lost guard rolls
// the whole transaction back, so no reader ever sees a chain with two active
// versions or a half-applied finalization.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/taxpadi/taxpadi/internal/ledger"
	"github.com/taxpadi/taxpadi/internal/ledger/storage"
	"github.com/taxpadi/taxpadi/internal/ledger/storage/sqlite/migrations"
	"github.com/taxpadi/taxpadi/internal/money"
	"github.com/taxpadi/taxpadi/internal/platform/storage/sqlitemigrate"
	"github.com/taxpadi/taxpadi/internal/tax"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists ledger state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite ledger store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type execContext interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const recordColumns = `id, chain_id, owner, kind, status, archived, supersedes,
       amount, description, category, occurred_on,
       tax_type, finalized, finalized_at, rule_version, effective_date,
       created_at, updated_at`

func insertRecord(ctx context.Context, ex execContext, record ledger.Record) error {
	var supersedes sql.NullString
	if record.Supersedes != "" {
		supersedes = sql.NullString{String: record.Supersedes, Valid: true}
	}
	var occurredOn sql.NullInt64
	if !record.OccurredOn.IsZero() {
		occurredOn = sql.NullInt64{Int64: toMillis(record.OccurredOn), Valid: true}
	}
	taxType := ""
	finalized := 0
	var finalizedAt, effectiveDate sql.NullInt64
	ruleVersion := ""
	if record.Calculation != nil {
		taxType = string(record.Calculation.TaxType)
		ruleVersion = record.Calculation.RuleVersionUsed
		if record.Calculation.Finalized {
			finalized = 1
		}
		if !record.Calculation.FinalizedAt.IsZero() {
			finalizedAt = sql.NullInt64{Int64: toMillis(record.Calculation.FinalizedAt), Valid: true}
		}
		if !record.Calculation.EffectiveDateUsed.IsZero() {
			effectiveDate = sql.NullInt64{Int64: toMillis(record.Calculation.EffectiveDateUsed), Valid: true}
		}
	}

	_, err := ex.ExecContext(ctx, `INSERT INTO records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.ChainID,
		record.Owner,
		string(record.Kind),
		string(record.Status),
		boolToInt(record.Archived),
		supersedes,
		record.Amount.Kobo(),
		record.Description,
		record.Category,
		occurredOn,
		taxType,
		finalized,
		finalizedAt,
		ruleVersion,
		effectiveDate,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	return err
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (ledger.Record, error) {
	var record ledger.Record
	var kind, status string
	var archived int
	var supersedes sql.NullString
	var amount int64
	var occurredOn sql.NullInt64
	var taxType string
	var finalized int
	var finalizedAt, effectiveDate sql.NullInt64
	var ruleVersion string
	var createdAt, updatedAt int64

	err := row.Scan(
		&record.ID,
		&record.ChainID,
		&record.Owner,
		&kind,
		&status,
		&archived,
		&supersedes,
		&amount,
		&record.Description,
		&record.Category,
		&occurredOn,
		&taxType,
		&finalized,
		&finalizedAt,
		&ruleVersion,
		&effectiveDate,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return ledger.Record{}, err
	}

	record.Kind = ledger.Kind(kind)
	record.Status = ledger.Status(status)
	record.Archived = archived != 0
	if supersedes.Valid {
		record.Supersedes = supersedes.String
	}
	record.Amount = money.Amount(amount)
	if occurredOn.Valid {
		record.OccurredOn = fromMillis(occurredOn.Int64)
	}
	if record.Kind == ledger.KindTaxCalculation {
		calc := &ledger.Calculation{
			TaxType:         tax.Type(taxType),
			Finalized:       finalized != 0,
			RuleVersionUsed: ruleVersion,
		}
		if finalizedAt.Valid {
			calc.FinalizedAt = fromMillis(finalizedAt.Int64)
		}
		if effectiveDate.Valid {
			calc.EffectiveDateUsed = fromMillis(effectiveDate.Int64)
		}
		record.Calculation = calc
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func insertAuditEntry(ctx context.Context, ex execContext, entry storage.AuditEntry) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO audit_entries (action, actor, entity_kind, entity_id, before_json, after_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Action,
		entry.Actor,
		entry.EntityKind,
		entry.EntityID,
		string(entry.BeforeJSON),
		string(entry.AfterJSON),
		toMillis(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// CreateRecord inserts an original record and its audit entry atomically.
func (s *Store) CreateRecord(ctx context.Context, record ledger.Record, audit storage.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertRecord(ctx, tx, record); err != nil {
		if isChainActiveViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create record: %w", err)
	}
	if err := insertAuditEntry(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create transaction: %w", err)
	}
	return nil
}

// GetRecord returns one record version by id.
func (s *Store) GetRecord(ctx context.Context, id string) (ledger.Record, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Record{}, err
	}
	if s == nil || s.sqlDB == nil {
		return ledger.Record{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ledger.Record{}, fmt.Errorf("record id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Record{}, storage.ErrNotFound
		}
		return ledger.Record{}, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// SetArchived flips the archived flag, guarded on the current value.
func (s *Store) SetArchived(ctx context.Context, id string, archived bool, updatedAt time.Time, audit storage.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE records SET archived = ?, updated_at = ? WHERE id = ? AND archived = ?`,
		boolToInt(archived),
		toMillis(updatedAt),
		id,
		boolToInt(!archived),
	)
	if err != nil {
		return fmt.Errorf("set archived: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set archived rows affected: %w", err)
	}
	if affected == 0 {
		return s.classifyMissedWrite(ctx, tx, id, storage.ErrConflict)
	}
	if err := insertAuditEntry(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive transaction: %w", err)
	}
	return nil
}

// QueryActive returns unarchived active records for an owner, oldest first.
func (s *Store) QueryActive(ctx context.Context, owner string) ([]ledger.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("owner is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records
		  WHERE owner = ? AND status = ? AND archived = 0
		  ORDER BY created_at ASC, id ASC`,
		owner, string(ledger.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("query active records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// QueryChain returns every version of a chain, oldest first.
func (s *Store) QueryChain(ctx context.Context, chainID string) ([]ledger.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	chainID = strings.TrimSpace(chainID)
	if chainID == "" {
		return nil, fmt.Errorf("chain id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records
		  WHERE chain_id = ?
		  ORDER BY created_at ASC, id ASC`,
		chainID)
	if err != nil {
		return nil, fmt.Errorf("query chain: %w", err)
	}
	defer rows.Close()

	chain, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, storage.ErrNotFound
	}
	return chain, nil
}

func collectRecords(rows *sql.Rows) ([]ledger.Record, error) {
	var records []ledger.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// CorrectRecord supersedes the original and inserts its successor in one
// transaction. The supersede update is the compare-and-swap guard: it only
// matches while the original is still the active, correctable tip.
func (s *Store) CorrectRecord(ctx context.Context, originalID string, successor ledger.Record, audit storage.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin correction transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE records SET status = ?, updated_at = ?
		  WHERE id = ? AND status = ? AND archived = 0 AND finalized = 0`,
		string(ledger.StatusSuperseded),
		toMillis(successor.CreatedAt),
		originalID,
		string(ledger.StatusActive),
	)
	if err != nil {
		return fmt.Errorf("supersede original: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("supersede rows affected: %w", err)
	}
	if affected == 0 {
		return s.classifyMissedWrite(ctx, tx, originalID, storage.ErrConflict)
	}

	if err := insertRecord(ctx, tx, successor); err != nil {
		if isChainActiveViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert successor: %w", err)
	}
	if err := insertAuditEntry(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit correction transaction: %w", err)
	}
	return nil
}

// FinalizeRecord flips the one-way finalized flag on an active calculation.
func (s *Store) FinalizeRecord(ctx context.Context, id string, finalizedAt time.Time, effectiveDate time.Time, audit storage.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finalize transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var effective sql.NullInt64
	if !effectiveDate.IsZero() {
		effective = sql.NullInt64{Int64: toMillis(effectiveDate), Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE records SET finalized = 1, finalized_at = ?, effective_date = ?, updated_at = ?
		  WHERE id = ? AND kind = ? AND status = ? AND archived = 0 AND finalized = 0`,
		toMillis(finalizedAt),
		effective,
		toMillis(finalizedAt),
		id,
		string(ledger.KindTaxCalculation),
		string(ledger.StatusActive),
	)
	if err != nil {
		return fmt.Errorf("finalize record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize rows affected: %w", err)
	}
	if affected == 0 {
		return s.classifyMissedFinalize(ctx, tx, id)
	}
	if err := insertAuditEntry(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finalize transaction: %w", err)
	}
	return nil
}

// QueryAuditTrail returns audit entries for an entity, oldest first.
func (s *Store) QueryAuditTrail(ctx context.Context, entityID string) ([]storage.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, fmt.Errorf("entity id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, action, actor, entity_kind, entity_id, before_json, after_json, created_at
		   FROM audit_entries
		  WHERE entity_id = ?
		  ORDER BY id ASC`,
		entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer rows.Close()

	var entries []storage.AuditEntry
	for rows.Next() {
		var entry storage.AuditEntry
		var beforeJSON, afterJSON string
		var createdAt int64
		if err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.Actor,
			&entry.EntityKind,
			&entry.EntityID,
			&beforeJSON,
			&afterJSON,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.BeforeJSON = []byte(beforeJSON)
		entry.AfterJSON = []byte(afterJSON)
		entry.CreatedAt = fromMillis(createdAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// classifyMissedWrite decides whether a zero-row guarded update means the
// record is missing or its state changed concurrently.
func (s *Store) classifyMissedWrite(ctx context.Context, tx *sql.Tx, id string, stateErr error) error {
	var found int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM records WHERE id = ?`, id).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("classify missed write: %w", err)
	}
	return stateErr
}

func (s *Store) classifyMissedFinalize(ctx context.Context, tx *sql.Tx, id string) error {
	var finalized int
	err := tx.QueryRowContext(ctx, `SELECT finalized FROM records WHERE id = ?`, id).Scan(&finalized)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("classify missed finalize: %w", err)
	}
	if finalized != 0 {
		return storage.ErrAlreadyFinalized
	}
	return storage.ErrConflict
}

func isChainActiveViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed")
}

var _ storage.RecordStore = (*Store)(nil)
