/*
Package sqlite provides a SQLite-backed implementation of pdc.Store.

PURPOSE:
  Persists the PDC registry and the withdrawal ledger. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  pdcs:        One row per registered cheque. Never deleted; terminal
               statuses (CLEARED/CANCELLED/REPLACED/WITHDRAWN) stay put.
  withdrawals: Append-only ledger. No UPDATE or DELETE statements exist
               for this table.

CONCURRENCY:
  Every record write is a compare-and-swap on the version column:

    UPDATE pdcs SET ..., version = version + 1
    WHERE id = ? AND version = ?

  Zero rows affected means either the record is gone (ErrNotFound) or a
  concurrent transition won the race (ErrConflict). Multi-write
  operations (replace, withdraw, bulk registration) run inside one SQL
  transaction.

WAL MODE:
  SQLite is opened with WAL so readers don't block behind the writer.

USAGE:
  st, err := sqlite.New("./data/lease.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()
  machine := pdc.NewMachine(st)

SEE ALSO:
  - pdc/registry.go: Interface definition
  - pdc/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/lease-engine/pdc"
)

// Store implements pdc.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Compile-time check.
var _ pdc.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and
	// serializes writers the way SQLite expects.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- PDC registry (records are never physically deleted)
	CREATE TABLE IF NOT EXISTS pdcs (
		id TEXT PRIMARY KEY,
		cheque_number TEXT NOT NULL UNIQUE,
		bank_name TEXT NOT NULL,
		amount TEXT NOT NULL,
		cheque_date TEXT NOT NULL,
		status TEXT NOT NULL,
		tenant_ref TEXT,
		replaces_id TEXT,
		replaced_by_id TEXT,
		withdrawal_id TEXT,
		deposit_bank_ref TEXT,
		deposited_at TEXT,
		cleared_at TEXT,
		bounced_at TEXT,
		bounce_reason TEXT,
		notes TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pdcs_status ON pdcs(status);
	CREATE INDEX IF NOT EXISTS idx_pdcs_tenant ON pdcs(tenant_ref);
	CREATE INDEX IF NOT EXISTS idx_pdcs_bank ON pdcs(bank_name);
	CREATE INDEX IF NOT EXISTS idx_pdcs_cheque_date ON pdcs(cheque_date);

	-- Withdrawal ledger (append-only)
	CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		pdc_id TEXT NOT NULL,
		cheque_number TEXT NOT NULL,
		tenant_ref TEXT,
		withdrawn_at TEXT NOT NULL,
		reason TEXT NOT NULL,
		replacement_method TEXT,
		replacement_ref TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawals_pdc ON withdrawals(pdc_id);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_reason ON withdrawals(reason);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_date ON withdrawals(withdrawn_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WRITES
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, rec pdc.Record) error {
	query := `
		INSERT INTO pdcs
		(id, cheque_number, bank_name, amount, cheque_date, status, tenant_ref,
		 replaces_id, replaced_by_id, withdrawal_id, deposit_bank_ref,
		 deposited_at, cleared_at, bounced_at, bounce_reason, notes,
		 version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		rec.ID,
		rec.ChequeNumber,
		rec.BankName,
		rec.Amount.String(),
		rec.ChequeDate.UTC().Format(time.RFC3339),
		rec.Status,
		nullString(rec.TenantRef),
		nullString(rec.ReplacesID),
		nullString(rec.ReplacedByID),
		nullString(rec.WithdrawalID),
		nullString(rec.DepositBankRef),
		nullTime(rec.DepositedAt),
		nullTime(rec.ClearedAt),
		nullTime(rec.BouncedAt),
		nullString(rec.BounceReason),
		nullString(rec.Notes),
		rec.Version,
		rec.CreatedAt.UTC().Format(time.RFC3339),
		rec.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return pdc.ErrDuplicateCheque
		}
		return fmt.Errorf("failed to insert pdc: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, rec pdc.Record) error {
	return insertRecord(ctx, s.db, rec)
}

// InsertBatch persists all records or none. Pre-checks cheque numbers so
// the caller gets every failing item, not just the first constraint hit.
func (s *Store) InsertBatch(ctx context.Context, recs []pdc.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var failures []pdc.BatchFailure
	for i, rec := range recs {
		var count int
		err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM pdcs WHERE cheque_number = ?", rec.ChequeNumber,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check cheque number: %w", err)
		}
		if count > 0 {
			failures = append(failures, pdc.BatchFailure{
				Index:        i,
				ChequeNumber: rec.ChequeNumber,
				Reason:       "cheque number already registered",
			})
		}
	}
	if len(failures) > 0 {
		return &pdc.BatchError{Failures: failures}
	}

	for _, rec := range recs {
		if err := insertRecord(ctx, tx, rec); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// updateRecord is the guarded write: it applies only when the stored
// version matches, bumping it by one.
func updateRecord(ctx context.Context, db execer, rec pdc.Record, expectedVersion int) (int64, error) {
	query := `
		UPDATE pdcs SET
			status = ?, tenant_ref = ?, replaces_id = ?, replaced_by_id = ?,
			withdrawal_id = ?, deposit_bank_ref = ?, deposited_at = ?,
			cleared_at = ?, bounced_at = ?, bounce_reason = ?, notes = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	res, err := db.ExecContext(ctx, query,
		rec.Status,
		nullString(rec.TenantRef),
		nullString(rec.ReplacesID),
		nullString(rec.ReplacedByID),
		nullString(rec.WithdrawalID),
		nullString(rec.DepositBankRef),
		nullTime(rec.DepositedAt),
		nullTime(rec.ClearedAt),
		nullTime(rec.BouncedAt),
		nullString(rec.BounceReason),
		nullString(rec.Notes),
		rec.UpdatedAt.UTC().Format(time.RFC3339),
		rec.ID,
		expectedVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update pdc: %w", err)
	}
	return res.RowsAffected()
}

// versionFailure decides whether a zero-row update means the record is
// missing or a concurrent transition won the race.
func (s *Store) versionFailure(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id string) error {
	var count int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM pdcs WHERE id = ?", id).Scan(&count); err != nil {
		return fmt.Errorf("failed to check pdc existence: %w", err)
	}
	if count == 0 {
		return pdc.ErrNotFound
	}
	return pdc.ErrConflict
}

func (s *Store) Update(ctx context.Context, rec pdc.Record, expectedVersion int) error {
	n, err := updateRecord(ctx, s.db, rec, expectedVersion)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.versionFailure(ctx, s.db, rec.ID)
	}
	return nil
}

func (s *Store) CreateReplacement(ctx context.Context, original pdc.Record, expectedVersion int, replacement pdc.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := updateRecord(ctx, tx, original, expectedVersion)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.versionFailure(ctx, tx, original.ID)
	}
	if err := insertRecord(ctx, tx, replacement); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AppendWithdrawal(ctx context.Context, rec pdc.Record, expectedVersion int, wr pdc.WithdrawalRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := updateRecord(ctx, tx, rec, expectedVersion)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.versionFailure(ctx, tx, rec.ID)
	}

	query := `
		INSERT INTO withdrawals
		(id, pdc_id, cheque_number, tenant_ref, withdrawn_at, reason,
		 replacement_method, replacement_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		wr.ID,
		wr.PDCID,
		wr.ChequeNumber,
		nullString(wr.TenantRef),
		wr.WithdrawnAt.UTC().Format(time.RFC3339),
		wr.Reason,
		nullString(wr.ReplacementMethod),
		nullString(wr.ReplacementRef),
		wr.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert withdrawal: %w", err)
	}
	return tx.Commit()
}

// =============================================================================
// READS
// =============================================================================

const recordColumns = `id, cheque_number, bank_name, amount, cheque_date, status, tenant_ref,
	replaces_id, replaced_by_id, withdrawal_id, deposit_bank_ref,
	deposited_at, cleared_at, bounced_at, bounce_reason, notes,
	version, created_at, updated_at`

func (s *Store) Get(ctx context.Context, id string) (*pdc.Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM pdcs WHERE id = ?", id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, pdc.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, f pdc.ListFilter) ([]pdc.Record, int, error) {
	asOf := f.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	where, args := buildListWhere(f, asOf)

	var total int
	countQuery := "SELECT COUNT(*) FROM pdcs" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count pdcs: %w", err)
	}

	query := "SELECT " + recordColumns + " FROM pdcs" + where +
		" ORDER BY cheque_date ASC, id ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	} else if f.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query pdcs: %w", err)
	}
	defer rows.Close()

	var records []pdc.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *rec)
	}
	return records, total, rows.Err()
}

func buildListWhere(f pdc.ListFilter, asOf time.Time) (string, []any) {
	var conds []string
	var args []any

	// RECEIVED/DUE split on the derived view: DUE means the cheque date
	// has arrived, RECEIVED means it hasn't. Stored state is RECEIVED
	// either way.
	switch f.Status {
	case "":
	case pdc.StatusDue:
		conds = append(conds, "status = ? AND cheque_date <= ?")
		args = append(args, pdc.StatusReceived, asOf.UTC().Format(time.RFC3339))
	case pdc.StatusReceived:
		conds = append(conds, "status = ? AND cheque_date > ?")
		args = append(args, pdc.StatusReceived, asOf.UTC().Format(time.RFC3339))
	default:
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.TenantRef != "" {
		conds = append(conds, "tenant_ref = ?")
		args = append(args, f.TenantRef)
	}
	if f.BankName != "" {
		conds = append(conds, "bank_name = ? COLLATE NOCASE")
		args = append(args, f.BankName)
	}
	if f.ChequeDateFrom != nil {
		conds = append(conds, "cheque_date >= ?")
		args = append(args, f.ChequeDateFrom.UTC().Format(time.RFC3339))
	}
	if f.ChequeDateTo != nil {
		conds = append(conds, "cheque_date <= ?")
		args = append(args, f.ChequeDateTo.UTC().Format(time.RFC3339))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Summary aggregates in Go rather than SQL so amounts stay in decimal.
func (s *Store) Summary(ctx context.Context, asOf time.Time) ([]pdc.StatusSummary, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	rows, err := s.db.QueryContext(ctx, "SELECT status, amount, cheque_date FROM pdcs")
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	defer rows.Close()

	byStatus := make(map[pdc.Status]*pdc.StatusSummary)
	for rows.Next() {
		var status, amount, chequeDate string
		if err := rows.Scan(&status, &amount, &chequeDate); err != nil {
			return nil, err
		}
		st := pdc.Status(status)
		if st == pdc.StatusReceived {
			if d, err := time.Parse(time.RFC3339, chequeDate); err == nil && !d.After(asOf) {
				st = pdc.StatusDue
			}
		}
		sum, ok := byStatus[st]
		if !ok {
			sum = &pdc.StatusSummary{Status: st, Total: decimal.Zero}
			byStatus[st] = sum
		}
		sum.Count++
		sum.Total = sum.Total.Add(mustDecimal(amount))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]pdc.StatusSummary, 0, len(byStatus))
	for _, sum := range byStatus {
		out = append(out, *sum)
	}
	sortSummaries(out)
	return out, nil
}

func sortSummaries(sums []pdc.StatusSummary) {
	for i := 1; i < len(sums); i++ {
		for j := i; j > 0 && sums[j].Status < sums[j-1].Status; j-- {
			sums[j], sums[j-1] = sums[j-1], sums[j]
		}
	}
}

var withdrawalSortColumns = map[string]string{
	pdc.SortWithdrawnAt:  "withdrawn_at",
	pdc.SortReason:       "reason",
	pdc.SortChequeNumber: "cheque_number",
	pdc.SortCreatedAt:    "created_at",
}

func (s *Store) ListWithdrawals(ctx context.Context, f pdc.WithdrawalFilter) ([]pdc.WithdrawalRecord, int, error) {
	var conds []string
	var args []any

	if f.Reason != "" {
		conds = append(conds, "reason = ? COLLATE NOCASE")
		args = append(args, f.Reason)
	}
	if f.From != nil {
		conds = append(conds, "withdrawn_at >= ?")
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		conds = append(conds, "withdrawn_at <= ?")
		args = append(args, f.To.UTC().Format(time.RFC3339))
	}
	if f.Search != "" {
		conds = append(conds, "(cheque_number LIKE ? OR tenant_ref LIKE ?)")
		needle := "%" + f.Search + "%"
		args = append(args, needle, needle)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM withdrawals"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count withdrawals: %w", err)
	}

	col, ok := withdrawalSortColumns[f.SortBy]
	if !ok {
		col = "withdrawn_at"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}

	query := `SELECT id, pdc_id, cheque_number, tenant_ref, withdrawn_at, reason,
		replacement_method, replacement_ref, created_at
		FROM withdrawals` + where +
		fmt.Sprintf(" ORDER BY %s %s, id ASC", col, dir)
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	} else if f.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query withdrawals: %w", err)
	}
	defer rows.Close()

	var out []pdc.WithdrawalRecord
	for rows.Next() {
		var wr pdc.WithdrawalRecord
		var tenantRef, replMethod, replRef sql.NullString
		var withdrawnAt, createdAt string
		if err := rows.Scan(&wr.ID, &wr.PDCID, &wr.ChequeNumber, &tenantRef,
			&withdrawnAt, &wr.Reason, &replMethod, &replRef, &createdAt); err != nil {
			return nil, 0, err
		}
		wr.TenantRef = tenantRef.String
		wr.ReplacementMethod = replMethod.String
		wr.ReplacementRef = replRef.String
		wr.WithdrawnAt, _ = time.Parse(time.RFC3339, withdrawnAt)
		wr.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, wr)
	}
	return out, total, rows.Err()
}

// =============================================================================
// SCANNING / HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*pdc.Record, error) {
	var rec pdc.Record
	var amount, chequeDate, createdAt, updatedAt string
	var tenantRef, replacesID, replacedByID, withdrawalID sql.NullString
	var depositBankRef, bounceReason, notes sql.NullString
	var depositedAt, clearedAt, bouncedAt sql.NullString

	err := row.Scan(
		&rec.ID, &rec.ChequeNumber, &rec.BankName, &amount, &chequeDate,
		&rec.Status, &tenantRef, &replacesID, &replacedByID, &withdrawalID,
		&depositBankRef, &depositedAt, &clearedAt, &bouncedAt, &bounceReason,
		&notes, &rec.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Amount = mustDecimal(amount)
	rec.ChequeDate, _ = time.Parse(time.RFC3339, chequeDate)
	rec.TenantRef = tenantRef.String
	rec.ReplacesID = replacesID.String
	rec.ReplacedByID = replacedByID.String
	rec.WithdrawalID = withdrawalID.String
	rec.DepositBankRef = depositBankRef.String
	rec.BounceReason = bounceReason.String
	rec.Notes = notes.String
	rec.DepositedAt = parseNullTime(depositedAt)
	rec.ClearedAt = parseNullTime(clearedAt)
	rec.BouncedAt = parseNullTime(bouncedAt)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
