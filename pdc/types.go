/*
Package pdc tracks the lifecycle of post-dated cheques backing a rent
payment plan.

PURPOSE:
  One Record per physical cheque, mutated only through the state machine
  in machine.go. Bounce/replace/withdraw flows maintain linked records and
  an append-only withdrawal ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Status: Closed set of lifecycle states (wire-stable values)
  - Record: A registered cheque with its links and transition timestamps
  - WithdrawalRecord: Immutable ledger entry for a returned cheque

STATUS MODEL:
  RECEIVED and DUE are both pre-deposit states. DUE is never stored: it is
  derived from the cheque date (see Record.EffectiveStatus). There is no
  transition between them. CLEARED, CANCELLED, REPLACED, and WITHDRAWN are
  terminal.

SEE ALSO:
  - machine.go: Transition operations
  - registry.go: Store interface and query filters
  - errors.go: Error taxonomy
*/
package pdc

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS - Closed lifecycle state set
// =============================================================================

// Status values are wire-stable; external systems persist and match on
// these exact strings.
type Status string

const (
	StatusReceived  Status = "RECEIVED"
	StatusDue       Status = "DUE" // derived view only, never stored
	StatusDeposited Status = "DEPOSITED"
	StatusCleared   Status = "CLEARED"
	StatusBounced   Status = "BOUNCED"
	StatusCancelled Status = "CANCELLED"
	StatusReplaced  Status = "REPLACED"
	StatusWithdrawn Status = "WITHDRAWN"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusReceived, StatusDue, StatusDeposited, StatusCleared,
		StatusBounced, StatusCancelled, StatusReplaced, StatusWithdrawn:
		return true
	}
	return false
}

// Terminal reports whether no further transition is valid from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCleared, StatusCancelled, StatusReplaced, StatusWithdrawn:
		return true
	}
	return false
}

// =============================================================================
// PDC RECORD
// =============================================================================

// Record is one registered cheque. Records are created in RECEIVED state
// and never physically deleted: cancellation and withdrawal are terminal
// statuses, not removal.
//
// ReplacesID/ReplacedByID form the bidirectional replacement link. The
// link is informational: archiving either record must never cascade to
// the other.
type Record struct {
	ID           string
	ChequeNumber string
	BankName     string
	Amount       decimal.Decimal
	ChequeDate   time.Time
	Status       Status
	TenantRef    string

	ReplacesID   string // set on a replacement cheque, points at the bounced original
	ReplacedByID string // set on the original when replaced
	WithdrawalID string // set by the withdraw transition

	DepositBankRef string
	DepositedAt    *time.Time
	ClearedAt      *time.Time
	BouncedAt      *time.Time
	BounceReason   string
	Notes          string

	// Version guards the validate-then-apply critical section: every
	// store write compares it against the stored value and fails fast
	// with ErrConflict on mismatch.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveStatus is the time-based view of the record's status: a
// RECEIVED cheque whose date has arrived reads as DUE. Stored state is
// unchanged; transition eligibility treats both as the entry state.
func (r *Record) EffectiveStatus(asOf time.Time) Status {
	if r.Status == StatusReceived && !r.ChequeDate.After(asOf) {
		return StatusDue
	}
	return r.Status
}

// =============================================================================
// WITHDRAWAL RECORD
// =============================================================================

// WithdrawalRecord is one ledger entry for a cheque returned to the payer.
// Created exactly once per withdraw transition; immutable afterward. It
// holds a non-owning reference back to the PDC: deleting or archiving the
// ledger entry never cascades to the cheque record.
//
// ChequeNumber and TenantRef are denormalized so the ledger's free-text
// search works without reaching back into the registry.
type WithdrawalRecord struct {
	ID           string
	PDCID        string
	ChequeNumber string
	TenantRef    string

	WithdrawnAt       time.Time
	Reason            string
	ReplacementMethod string // e.g. "bank_transfer"; empty when nothing replaces the cheque
	ReplacementRef    string // transaction reference for the replacement payment

	CreatedAt time.Time
}
