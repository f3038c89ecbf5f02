package pdc_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lease-engine/pdc"
	"github.com/warp/lease-engine/pdc/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestMachine() (*pdc.Machine, *store.Memory) {
	mem := store.NewMemory()
	return pdc.NewMachine(mem), mem
}

func chequeReg(number string) pdc.Registration {
	return pdc.Registration{
		ChequeNumber: number,
		BankName:     "Emirates NBD",
		Amount:       decimal.NewFromInt(2000),
		ChequeDate:   time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		TenantRef:    "tenant-1",
	}
}

func registered(t *testing.T, m *pdc.Machine, number string) *pdc.Record {
	t.Helper()
	rec, err := m.Register(context.Background(), chequeReg(number))
	require.NoError(t, err)
	return rec
}

var day = time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)

// =============================================================================
// REGISTRATION TESTS
// =============================================================================

func TestRegister_CreatesReceivedRecord(t *testing.T) {
	m, _ := newTestMachine()

	rec, err := m.Register(context.Background(), chequeReg("CHQ-001"))
	require.NoError(t, err)

	assert.Equal(t, pdc.StatusReceived, rec.Status)
	assert.Equal(t, "CHQ-001", rec.ChequeNumber)
	assert.Equal(t, 1, rec.Version)
	assert.NotEmpty(t, rec.ID)
}

func TestRegister_DuplicateChequeNumber_Rejected(t *testing.T) {
	m, _ := newTestMachine()
	ctx := context.Background()

	_, err := m.Register(ctx, chequeReg("CHQ-001"))
	require.NoError(t, err)

	_, err = m.Register(ctx, chequeReg("CHQ-001"))
	assert.ErrorIs(t, err, pdc.ErrDuplicateCheque)
}

func TestRegister_MissingFields_Rejected(t *testing.T) {
	m, _ := newTestMachine()
	ctx := context.Background()

	reg := chequeReg("CHQ-001")
	reg.ChequeNumber = "  "
	_, err := m.Register(ctx, reg)
	assert.ErrorIs(t, err, pdc.ErrValidation)

	reg = chequeReg("CHQ-002")
	reg.Amount = decimal.NewFromInt(-5)
	_, err = m.Register(ctx, reg)
	assert.ErrorIs(t, err, pdc.ErrValidation)
}

func TestRegisterBulk_AllOrNothing(t *testing.T) {
	// GIVEN: A batch of 5 cheques where one duplicates an in-batch number
	// WHEN: Registering the batch
	// THEN: Zero records persisted, one failure referencing the duplicate

	m, mem := newTestMachine()
	ctx := context.Background()

	regs := []pdc.Registration{
		chequeReg("CHQ-001"), chequeReg("CHQ-002"), chequeReg("CHQ-003"),
		chequeReg("CHQ-002"), // duplicate
		chequeReg("CHQ-005"),
	}

	_, err := m.RegisterBulk(ctx, regs)
	require.Error(t, err)

	var batchErr *pdc.BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Failures, 1)
	assert.Equal(t, 3, batchErr.Failures[0].Index)
	assert.Equal(t, "CHQ-002", batchErr.Failures[0].ChequeNumber)

	_, total, err := mem.List(ctx, pdc.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total, "no partial batch may be left behind")
}

func TestRegisterBulk_DuplicateAgainstRegistry(t *testing.T) {
	m, mem := newTestMachine()
	ctx := context.Background()

	registered(t, m, "CHQ-001")

	_, err := m.RegisterBulk(ctx, []pdc.Registration{chequeReg("CHQ-001"), chequeReg("CHQ-002")})
	var batchErr *pdc.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, "CHQ-001", batchErr.Failures[0].ChequeNumber)

	_, total, _ := mem.List(ctx, pdc.ListFilter{})
	assert.Equal(t, 1, total, "only the pre-existing record should remain")
}

func TestRegisterBulk_Success(t *testing.T) {
	m, mem := newTestMachine()
	ctx := context.Background()

	recs, err := m.RegisterBulk(ctx, []pdc.Registration{
		chequeReg("CHQ-001"), chequeReg("CHQ-002"), chequeReg("CHQ-003"),
	})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for _, rec := range recs {
		assert.Equal(t, pdc.StatusReceived, rec.Status)
	}

	_, total, _ := mem.List(ctx, pdc.ListFilter{})
	assert.Equal(t, 3, total)
}

// =============================================================================
// HAPPY PATH TRANSITIONS
// =============================================================================

func TestLifecycle_DepositThenClear(t *testing.T) {
	m, _ := newTestMachine()
	ctx := context.Background()

	rec := registered(t, m, "CHQ-001")

	rec, err := m.Deposit(ctx, rec.ID, "acct-main", day)
	require.NoError(t, err)
	assert.Equal(t, pdc.StatusDeposited, rec.Status)
	assert.Equal(t, "acct-main", rec.DepositBankRef)
	require.NotNil(t, rec.DepositedAt)
	assert.Equal(t, 2, rec.Version)

	rec, err = m.Clear(ctx, rec.ID, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, pdc.StatusCleared, rec.Status)
	require.NotNil(t, rec.ClearedAt)
}

func TestLifecycle_BounceThenReplace(t *testing.T) {
	// GIVEN: A deposited cheque that bounced
	// WHEN: Replacing it
	// THEN: A new RECEIVED record exists and the cross-links are set both ways

	m, mem := newTestMachine()
	ctx := context.Background()

	rec := registered(t, m, "CHQ-001")
	_, err := m.Deposit(ctx, rec.ID, "acct-main", day)
	require.NoError(t, err)

	bounced, err := m.Bounce(ctx, rec.ID, "insufficient funds", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, pdc.StatusBounced, bounced.Status)
	assert.Equal(t, "insufficient funds", bounced.BounceReason)

	repl := chequeReg("CHQ-001-R")
	original, replacement, err := m.Replace(ctx, rec.ID, repl)
	require.NoError(t, err)

	assert.Equal(t, pdc.StatusReplaced, original.Status)
	assert.Equal(t, pdc.StatusReceived, replacement.Status)
	assert.Equal(t, original.ID, replacement.ReplacesID)
	assert.Equal(t, replacement.ID, original.ReplacedByID)
	assert.Equal(t, original.TenantRef, replacement.TenantRef)

	// Both sides persisted
	stored, err := mem.Get(ctx, replacement.ID)
	require.NoError(t, err)
	assert.Equal(t, original.ID, stored.ReplacesID)
}

func TestLifecycle_BounceThenWithdraw(t *testing.T) {
	// GIVEN: A bounced cheque
	// WHEN: Withdrawing it with a replacement bank transfer
	// THEN: Status is WITHDRAWN and exactly one ledger entry exists

	m, mem := newTestMachine()
	ctx := context.Background()

	rec := registered(t, m, "CHQ-001")
	_, err := m.Deposit(ctx, rec.ID, "acct-main", day)
	require.NoError(t, err)
	_, err = m.Bounce(ctx, rec.ID, "signature mismatch", day)
	require.NoError(t, err)

	updated, wr, err := m.Withdraw(ctx, rec.ID, day.AddDate(0, 0, 3),
		"tenant settled by transfer", "bank_transfer", "TXN-778")
	require.NoError(t, err)

	assert.Equal(t, pdc.StatusWithdrawn, updated.Status)
	assert.Equal(t, wr.ID, updated.WithdrawalID)
	assert.Equal(t, rec.ID, wr.PDCID)
	assert.Equal(t, "CHQ-001", wr.ChequeNumber)
	assert.Equal(t, "bank_transfer", wr.ReplacementMethod)

	entries, total, err := mem.ListWithdrawals(ctx, pdc.WithdrawalFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, wr.ID, entries[0].ID)
}

func TestLifecycle_WithdrawFromReceivedAndDeposited(t *testing.T) {
	m, _ := newTestMachine()
	ctx := context.Background()

	// Withdraw straight from RECEIVED
	a := registered(t, m, "CHQ-A")
	_, _, err := m.Withdraw(ctx, a.ID, day, "lease terminated", "", "")
	assert.NoError(t, err)

	// Withdraw from DEPOSITED
	b := registered(t, m, "CHQ-B")
	_, err = m.Deposit(ctx, b.ID, "acct-main", day)
	require.NoError(t, err)
	_, _, err = m.Withdraw(ctx, b.ID, day, "deposit recalled", "", "")
	assert.NoError(t, err)
}

func TestLifecycle_Cancel(t *testing.T) {
	m, mem := newTestMachine()
	ctx := context.Background()

	rec := registered(t, m, "CHQ-001")
	cancelled, err := m.Cancel(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, pdc.StatusCancelled, cancelled.Status)

	// Cancel writes no ledger entry
	_, total, _ := mem.ListWithdrawals(ctx, pdc.WithdrawalFilter{})
	assert.Zero(t, total)
}

// =============================================================================
// INVALID TRANSITION TESTS
// =============================================================================

func TestTransition_ClearBeforeDeposit_Rejected(t *testing.T) {
	m, _ := newTestMachine()
	ctx := context.Background()

	rec := registered(t, m, "CHQ-001")
	_, err := m.Clear(ctx, rec.ID, day)

	require.Error(t, err)
	assert.ErrorIs(t, err, pdc.ErrInvalidTransition)

	var invalidErr *pdc.InvalidTransitionError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, "clear", invalidErr.Op)
}

func TestTransition_DepositAfterClear_Rejected(t *testing.T) {
	m, _ := newTestMachine()
	ctx := context.Background()

	rec := registered(t, m, "CHQ-001")
	_, err := m.Deposit(ctx, rec.ID, "acct-main", day)
	require.NoError(t, err)
	_, err = m.Clear(ctx, rec.ID, day)
	require.NoError(t, err)

	_, err = m.Deposit(ctx, rec.ID, "acct-main", day)
	assert.ErrorIs(t, err, pdc.ErrInvalidTransition)
}

func TestTransition_TerminalStatesRejectEverything(t *testing.T) {
	// GIVEN: Records driven into each terminal status
	// WHEN: Attempting any further transition
	// THEN: Every attempt fails with invalid-transition

	m, _ := newTestMachine()
	ctx := context.Background()

	// CLEARED
	cleared := registered(t, m, "CHQ-CLR")
	m.Deposit(ctx, cleared.ID, "acct", day)
	m.Clear(ctx, cleared.ID, day)

	// CANCELLED
	cancelled := registered(t, m, "CHQ-CAN")
	m.Cancel(ctx, cancelled.ID)

	// WITHDRAWN
	withdrawn := registered(t, m, "CHQ-WDR")
	m.Withdraw(ctx, withdrawn.ID, day, "returned", "", "")

	// REPLACED
	replaced := registered(t, m, "CHQ-REP")
	m.Deposit(ctx, replaced.ID, "acct", day)
	m.Bounce(ctx, replaced.ID, "bounced", day)
	m.Replace(ctx, replaced.ID, chequeReg("CHQ-REP-2"))

	for _, rec := range []*pdc.Record{cleared, cancelled, withdrawn, replaced} {
		_, err := m.Deposit(ctx, rec.ID, "acct", day)
		assert.ErrorIs(t, err, pdc.ErrInvalidTransition, "deposit on %s", rec.ChequeNumber)
		_, err = m.Cancel(ctx, rec.ID)
		assert.ErrorIs(t, err, pdc.ErrInvalidTransition, "cancel on %s", rec.ChequeNumber)
		_, _, err = m.Withdraw(ctx, rec.ID, day, "late", "", "")
		assert.ErrorIs(t, err, pdc.ErrInvalidTransition, "withdraw on %s", rec.ChequeNumber)
	}
}

func TestTransition_ReplaceRequiresBounced(t *testing.T) {
	m, _ := newTestMachine()
	ctx := context.Background()

	rec := registered(t, m, "CHQ-001")
	_, _, err := m.Replace(ctx, rec.ID, chequeReg("CHQ-002"))
	assert.ErrorIs(t, err, pdc.ErrInvalidTransition)
}

func TestTransition_CancelAfterDeposit_Rejected(t *testing.T) {
	m, _ := newTestMachine()
	ctx := context.Background()

	rec := registered(t, m, "CHQ-001")
	_, err := m.Deposit(ctx, rec.ID, "acct", day)
	require.NoError(t, err)

	_, err = m.Cancel(ctx, rec.ID)
	assert.ErrorIs(t, err, pdc.ErrInvalidTransition)
}

func TestTransition_UnknownRecord_NotFound(t *testing.T) {
	m, _ := newTestMachine()

	_, err := m.Deposit(context.Background(), "no-such-id", "acct", day)
	assert.ErrorIs(t, err, pdc.ErrNotFound)
	assert.NotErrorIs(t, err, pdc.ErrInvalidTransition, "not-found must stay distinct from invalid-transition")
}

// =============================================================================
// CONCURRENCY CONFLICT TESTS
// =============================================================================

func TestStore_StaleVersion_Conflict(t *testing.T) {
	// GIVEN: A record whose version moved on after we read it
	// WHEN: Writing with the stale expected version
	// THEN: ErrConflict, fail fast, no retry

	m, mem := newTestMachine()
	ctx := context.Background()

	rec := registered(t, m, "CHQ-001")
	stale := *rec // version 1

	_, err := m.Deposit(ctx, rec.ID, "acct", day) // bumps to version 2
	require.NoError(t, err)

	stale.Status = pdc.StatusCancelled
	err = mem.Update(ctx, stale, 1)
	assert.ErrorIs(t, err, pdc.ErrConflict)

	// The winning transition is untouched
	current, err := mem.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, pdc.StatusDeposited, current.Status)
	assert.Equal(t, 2, current.Version)
}

// =============================================================================
// DERIVED DUE STATUS TESTS
// =============================================================================

func TestEffectiveStatus_DueIsDerivedNotStored(t *testing.T) {
	m, mem := newTestMachine()
	ctx := context.Background()

	rec := registered(t, m, "CHQ-001") // cheque date 2026-03-01

	before := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	after := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, pdc.StatusReceived, rec.EffectiveStatus(before))
	assert.Equal(t, pdc.StatusDue, rec.EffectiveStatus(after))

	// Stored status is still RECEIVED either way
	stored, _ := mem.Get(ctx, rec.ID)
	assert.Equal(t, pdc.StatusReceived, stored.Status)

	// A due cheque is still depositable: DUE is not a separate source state
	_, err := m.Deposit(ctx, rec.ID, "acct", after)
	assert.NoError(t, err)
}

func TestList_DueFilterSplitsOnChequeDate(t *testing.T) {
	m, mem := newTestMachine()
	ctx := context.Background()

	early := chequeReg("CHQ-EARLY")
	early.ChequeDate = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	_, err := m.Register(ctx, early)
	require.NoError(t, err)

	late := chequeReg("CHQ-LATE")
	late.ChequeDate = time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	_, err = m.Register(ctx, late)
	require.NoError(t, err)

	asOf := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	due, total, err := mem.List(ctx, pdc.ListFilter{Status: pdc.StatusDue, AsOf: asOf})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "CHQ-EARLY", due[0].ChequeNumber)

	pending, total, err := mem.List(ctx, pdc.ListFilter{Status: pdc.StatusReceived, AsOf: asOf})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "CHQ-LATE", pending[0].ChequeNumber)
}
