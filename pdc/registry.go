/*
registry.go - Persistence interface for PDC records and withdrawals

PURPOSE:
  Defines the interface between the state machine and the database. The
  registry exclusively owns PDC records; the withdrawal ledger exclusively
  owns withdrawal records. Different implementations back this with
  SQLite or in-memory storage.

WRITE CONTRACT:
  - Records are inserted (single or batch) and updated through
    compare-and-swap on Version. There is no Delete: cancellation and
    withdrawal are statuses.
  - CreateReplacement and AppendWithdrawal are the two multi-write
    operations; each is atomic. A caller must never observe a replacement
    record without the back-reference on the original, or a WITHDRAWN
    record without its ledger entry.
  - InsertBatch is all-or-nothing and reports per-item failures.

IMPLEMENTATIONS:
  - pdc/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go: SQLite with WAL

SEE ALSO:
  - machine.go: The only intended writer
*/
package pdc

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Registry + withdrawal ledger persistence
// =============================================================================

type Store interface {
	// Insert persists a new record. Returns ErrDuplicateCheque if the
	// cheque number is already registered.
	Insert(ctx context.Context, rec Record) error

	// InsertBatch persists all records or none. On rejection it returns
	// a *BatchError listing every failing item.
	InsertBatch(ctx context.Context, recs []Record) error

	// Get returns a record by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Update overwrites a record iff the stored version equals
	// expectedVersion, bumping the version by one. Returns ErrConflict on
	// a version mismatch, ErrNotFound for an unknown id.
	Update(ctx context.Context, rec Record, expectedVersion int) error

	// CreateReplacement atomically applies the updated original (version
	// guarded like Update) and inserts the replacement record.
	CreateReplacement(ctx context.Context, original Record, expectedVersion int, replacement Record) error

	// AppendWithdrawal atomically applies the updated record (version
	// guarded like Update) and appends its withdrawal ledger entry.
	AppendWithdrawal(ctx context.Context, rec Record, expectedVersion int, wr WithdrawalRecord) error

	// List returns a page of records matching the filter plus the total
	// match count.
	List(ctx context.Context, f ListFilter) ([]Record, int, error)

	// Summary returns per-status counts and amount totals as of a point
	// in time (RECEIVED/DUE split on the derived view).
	Summary(ctx context.Context, asOf time.Time) ([]StatusSummary, error)

	// ListWithdrawals returns a page of the withdrawal ledger plus the
	// total match count.
	ListWithdrawals(ctx context.Context, f WithdrawalFilter) ([]WithdrawalRecord, int, error)
}

// =============================================================================
// QUERY FILTERS
// =============================================================================

// ListFilter narrows a registry listing. Zero values mean "no constraint".
//
// Status filtering works on the derived view: StatusDue matches RECEIVED
// records whose cheque date has arrived by AsOf, StatusReceived matches
// those still in the future. Every other status matches stored state.
type ListFilter struct {
	Status         Status
	TenantRef      string
	BankName       string
	ChequeDateFrom *time.Time
	ChequeDateTo   *time.Time
	AsOf           time.Time // zero = now

	Limit  int // 0 = no limit
	Offset int
}

// Withdrawal ledger sort fields.
const (
	SortWithdrawnAt  = "withdrawn_at"
	SortReason       = "reason"
	SortChequeNumber = "cheque_number"
	SortCreatedAt    = "created_at"
)

// WithdrawalFilter narrows and orders a ledger listing.
type WithdrawalFilter struct {
	Reason string
	From   *time.Time
	To     *time.Time
	Search string // matches cheque number or payer reference, case-insensitive

	SortBy   string // one of the Sort* constants; default SortWithdrawnAt
	SortDesc bool

	Limit  int
	Offset int
}

// StatusSummary is a dashboard aggregate: how many cheques sit in a
// status and what they are worth. Read-only; not part of the write
// contract.
type StatusSummary struct {
	Status Status
	Count  int
	Total  decimal.Decimal
}
