/*
errors.go - Centralized error types for the PDC lifecycle

PURPOSE:
  All error types in one place. Every condition here is local and
  recoverable by the caller; storage unavailability is the persistence
  layer's concern and surfaces as a wrapped driver error instead.

ERROR CATEGORIES:
  1. Not-found        - unknown record id (distinct from invalid transition)
  2. Invalid transition - current status not in the operation's source set
  3. Conflict         - concurrent transition lost the version race
  4. Duplicates       - cheque number already registered
  5. Batch            - per-item failure report for bulk registration

USAGE:
  if errors.Is(err, pdc.ErrInvalidTransition) { ... }

  var batchErr *pdc.BatchError
  if errors.As(err, &batchErr) {
      for _, f := range batchErr.Failures { ... }
  }
*/
package pdc

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("pdc record not found")

	// ErrInvalidTransition is returned when the record's current status
	// is not in the requested operation's source set.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConflict is returned when a transition was attempted against
	// stale expected state. The caller must re-fetch and decide; the core
	// never auto-retries.
	ErrConflict = errors.New("concurrent transition conflict")

	// ErrDuplicateCheque is returned when a cheque number is already
	// registered.
	ErrDuplicateCheque = errors.New("duplicate cheque number")

	// ErrValidation is returned for malformed registration input.
	ErrValidation = errors.New("invalid pdc input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTransitionError names the current and requested status so the
// rejection is never silent or ambiguous.
type InvalidTransitionError struct {
	ID   string
	From Status
	Op   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s pdc %s: status is %s", e.Op, e.ID, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidationError reports a single bad registration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid pdc input: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// BatchFailure is one rejected item of a bulk registration.
type BatchFailure struct {
	Index        int
	ChequeNumber string
	Reason       string
}

// BatchError reports why a bulk registration was rolled back. No partial
// set of records is ever left behind; the caller corrects the listed
// items and resubmits the whole batch.
type BatchError struct {
	Failures []BatchFailure
}

func (e *BatchError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("item %d (%s): %s", f.Index, f.ChequeNumber, f.Reason)
	}
	return "bulk registration rejected: " + strings.Join(parts, "; ")
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether the error is a lost version race.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsClientError reports whether the caller can fix the input and retry.
func IsClientError(err error) bool {
	var batchErr *BatchError
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateCheque) ||
		errors.Is(err, ErrValidation) ||
		errors.As(err, &batchErr)
}
