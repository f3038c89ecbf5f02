/*
machine.go - The PDC lifecycle state machine

PURPOSE:
  Centralizes every status transition in one function per operation, so
  the valid source set for each operation is a closed, reviewable table
  instead of scattered conditionals.

TRANSITIONS:
  deposit   RECEIVED/DUE                   -> DEPOSITED
  clear     DEPOSITED                      -> CLEARED
  bounce    DEPOSITED                      -> BOUNCED
  replace   BOUNCED                        -> REPLACED + new RECEIVED record
  withdraw  RECEIVED/DUE/DEPOSITED/BOUNCED -> WITHDRAWN + ledger entry
  cancel    RECEIVED/DUE                   -> CANCELLED

  DUE is a derived view of RECEIVED, so the source sets below list only
  the stored entry state.

ATOMICITY:
  Each operation is validate-then-apply: load, check the source set, then
  hand the store a single guarded write (compare-and-swap on Version).
  Linked-record creation (replace, withdraw) rides inside that same store
  operation. A concurrent transition on the same record loses the version
  race and fails fast with ErrConflict; the machine never retries.

SEE ALSO:
  - registry.go: Store contract the machine drives
  - types.go: Record and Status
*/
package pdc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// transitionSources is the closed transition table. An operation is valid
// iff the record's stored status is in its source set.
var transitionSources = map[string][]Status{
	"deposit":  {StatusReceived},
	"clear":    {StatusDeposited},
	"bounce":   {StatusDeposited},
	"replace":  {StatusBounced},
	"withdraw": {StatusReceived, StatusDeposited, StatusBounced},
	"cancel":   {StatusReceived},
}

// =============================================================================
// MACHINE
// =============================================================================

// Machine executes lifecycle transitions against a Store. Safe for
// concurrent use; per-record serialization is the store's version check.
type Machine struct {
	store Store
	now   func() time.Time
	newID func() string
}

func NewMachine(store Store) *Machine {
	return &Machine{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return randomID("pdc") },
	}
}

// Store exposes the underlying registry for read-only query surfaces.
func (m *Machine) Store() Store { return m.store }

func randomID(prefix string) string {
	var b [8]byte
	rand.Read(b[:])
	return prefix + "-" + hex.EncodeToString(b[:])
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Registration is the caller-supplied data for a new cheque.
type Registration struct {
	ChequeNumber string
	BankName     string
	Amount       decimal.Decimal
	ChequeDate   time.Time
	TenantRef    string
	Notes        string
}

func (r Registration) validate() error {
	if strings.TrimSpace(r.ChequeNumber) == "" {
		return &ValidationError{Field: "cheque_number", Reason: "required"}
	}
	if strings.TrimSpace(r.BankName) == "" {
		return &ValidationError{Field: "bank_name", Reason: "required"}
	}
	if r.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Reason: "must be non-negative"}
	}
	if r.ChequeDate.IsZero() {
		return &ValidationError{Field: "cheque_date", Reason: "required"}
	}
	return nil
}

func (m *Machine) newRecord(reg Registration) Record {
	now := m.now()
	return Record{
		ID:           m.newID(),
		ChequeNumber: strings.TrimSpace(reg.ChequeNumber),
		BankName:     strings.TrimSpace(reg.BankName),
		Amount:       reg.Amount,
		ChequeDate:   reg.ChequeDate,
		Status:       StatusReceived,
		TenantRef:    reg.TenantRef,
		Notes:        reg.Notes,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Register creates a single cheque record in RECEIVED state.
func (m *Machine) Register(ctx context.Context, reg Registration) (*Record, error) {
	if err := reg.validate(); err != nil {
		return nil, err
	}
	rec := m.newRecord(reg)
	if err := m.store.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// RegisterBulk creates N cheque records for a payment plan, all-or-nothing.
// Validation failures and in-batch duplicates are collected into a
// *BatchError before the store is touched; store-level duplicates roll
// the whole batch back the same way.
func (m *Machine) RegisterBulk(ctx context.Context, regs []Registration) ([]Record, error) {
	var failures []BatchFailure
	seen := make(map[string]bool, len(regs))

	recs := make([]Record, 0, len(regs))
	for i, reg := range regs {
		number := strings.TrimSpace(reg.ChequeNumber)
		if err := reg.validate(); err != nil {
			failures = append(failures, BatchFailure{Index: i, ChequeNumber: number, Reason: err.Error()})
			continue
		}
		if seen[number] {
			failures = append(failures, BatchFailure{Index: i, ChequeNumber: number, Reason: "duplicate cheque number within batch"})
			continue
		}
		seen[number] = true
		recs = append(recs, m.newRecord(reg))
	}
	if len(failures) > 0 {
		return nil, &BatchError{Failures: failures}
	}

	if err := m.store.InsertBatch(ctx, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// =============================================================================
// TRANSITION OPERATIONS
// =============================================================================

// load fetches the record and validates the operation's source set.
func (m *Machine) load(ctx context.Context, id, op string) (*Record, error) {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, s := range transitionSources[op] {
		if rec.Status == s {
			return rec, nil
		}
	}
	return nil, &InvalidTransitionError{ID: id, From: rec.EffectiveStatus(m.now()), Op: op}
}

// Deposit marks a cheque as handed to the bank.
func (m *Machine) Deposit(ctx context.Context, id, bankAccountRef string, depositDate time.Time) (*Record, error) {
	rec, err := m.load(ctx, id, "deposit")
	if err != nil {
		return nil, err
	}

	expected := rec.Version
	rec.Status = StatusDeposited
	rec.DepositBankRef = bankAccountRef
	rec.DepositedAt = &depositDate
	rec.UpdatedAt = m.now()

	if err := m.store.Update(ctx, *rec, expected); err != nil {
		return nil, err
	}
	rec.Version = expected + 1
	return rec, nil
}

// Clear confirms a deposited cheque settled. Terminal.
func (m *Machine) Clear(ctx context.Context, id string, clearedDate time.Time) (*Record, error) {
	rec, err := m.load(ctx, id, "clear")
	if err != nil {
		return nil, err
	}

	expected := rec.Version
	rec.Status = StatusCleared
	rec.ClearedAt = &clearedDate
	rec.UpdatedAt = m.now()

	if err := m.store.Update(ctx, *rec, expected); err != nil {
		return nil, err
	}
	rec.Version = expected + 1
	return rec, nil
}

// Bounce records a bank rejection of a deposited cheque. Tenant bounce
// counts and notifications are external aggregations over this status.
func (m *Machine) Bounce(ctx context.Context, id, reason string, bounceDate time.Time) (*Record, error) {
	rec, err := m.load(ctx, id, "bounce")
	if err != nil {
		return nil, err
	}

	expected := rec.Version
	rec.Status = StatusBounced
	rec.BounceReason = reason
	rec.BouncedAt = &bounceDate
	rec.UpdatedAt = m.now()

	if err := m.store.Update(ctx, *rec, expected); err != nil {
		return nil, err
	}
	rec.Version = expected + 1
	return rec, nil
}

// Replace issues a new cheque covering a bounced one. Returns the updated
// original and the new RECEIVED record; the bidirectional link and both
// writes land atomically.
func (m *Machine) Replace(ctx context.Context, id string, repl Registration) (*Record, *Record, error) {
	if err := repl.validate(); err != nil {
		return nil, nil, err
	}
	rec, err := m.load(ctx, id, "replace")
	if err != nil {
		return nil, nil, err
	}

	replacement := m.newRecord(repl)
	replacement.TenantRef = rec.TenantRef
	if repl.TenantRef != "" {
		replacement.TenantRef = repl.TenantRef
	}
	replacement.ReplacesID = rec.ID

	expected := rec.Version
	rec.Status = StatusReplaced
	rec.ReplacedByID = replacement.ID
	rec.UpdatedAt = m.now()

	if err := m.store.CreateReplacement(ctx, *rec, expected, replacement); err != nil {
		return nil, nil, err
	}
	rec.Version = expected + 1
	return rec, &replacement, nil
}

// Withdraw returns an un-cleared cheque to the payer, optionally noting a
// replacement payment (e.g. a direct bank transfer instead of a new
// cheque). Appends exactly one immutable ledger entry, atomically with
// the status change.
func (m *Machine) Withdraw(ctx context.Context, id string, withdrawalDate time.Time, reason, replacementMethod, replacementRef string) (*Record, *WithdrawalRecord, error) {
	rec, err := m.load(ctx, id, "withdraw")
	if err != nil {
		return nil, nil, err
	}

	wr := WithdrawalRecord{
		ID:                randomID("wdr"),
		PDCID:             rec.ID,
		ChequeNumber:      rec.ChequeNumber,
		TenantRef:         rec.TenantRef,
		WithdrawnAt:       withdrawalDate,
		Reason:            reason,
		ReplacementMethod: replacementMethod,
		ReplacementRef:    replacementRef,
		CreatedAt:         m.now(),
	}

	expected := rec.Version
	rec.Status = StatusWithdrawn
	rec.WithdrawalID = wr.ID
	rec.UpdatedAt = m.now()

	if err := m.store.AppendWithdrawal(ctx, *rec, expected, wr); err != nil {
		return nil, nil, err
	}
	rec.Version = expected + 1
	return rec, &wr, nil
}

// Cancel voids an undeposited cheque. No replacement, no ledger entry.
func (m *Machine) Cancel(ctx context.Context, id string) (*Record, error) {
	rec, err := m.load(ctx, id, "cancel")
	if err != nil {
		return nil, err
	}

	expected := rec.Version
	rec.Status = StatusCancelled
	rec.UpdatedAt = m.now()

	if err := m.store.Update(ctx, *rec, expected); err != nil {
		return nil, err
	}
	rec.Version = expected + 1
	return rec, nil
}
