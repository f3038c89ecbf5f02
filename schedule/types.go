/*
Package schedule implements the rent payment-schedule generator.

PURPOSE:
  This package contains the pure computation core for splitting an annual
  rent obligation - plus one-time fees - into a due-dated sequence of
  payments. There is no I/O here: callers hand in a Config and a reference
  date and get back an ordered list of payment items.

KEY CONCEPTS IN THIS FILE (types.go):
  - Config: Yearly rent, installment count, fees, and the due-day policy
  - Fees: One-time charges bundled with the first payment
  - Item: A single installment with sequence number, amount, and due date
  - ConfigError: Rejected-before-computation input problems

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for money math to avoid float errors
  2. Determinism: Same config + reference date = same schedule, always
  3. Conservation: sum of item amounts == round(yearly rent), exactly

USAGE:
  cfg := schedule.Config{
      YearlyRent:   decimal.NewFromInt(120000),
      Installments: 4,
      DueDay:       1,
  }
  items, err := schedule.Generate(cfg, time.Now())

SEE ALSO:
  - generate.go: The split algorithm
  - plan.go: First-payment override engine
*/
package schedule

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT METHOD
// =============================================================================

// Method is how the first payment is settled. It does not affect the split
// algorithm; callers use it to decide whether installments become cheques.
type Method string

const (
	MethodCash   Method = "cash"
	MethodCheque Method = "cheque"
)

// =============================================================================
// ONE-TIME FEES
// =============================================================================

// Fees are the one-time charges attached to the first payment only.
// ParkingFee is always a single annual charge, never split across
// installments.
type Fees struct {
	SecurityDeposit decimal.Decimal
	AdminFee        decimal.Decimal
	ServiceCharge   decimal.Decimal
	ParkingFee      decimal.Decimal
}

// Total returns the sum of all one-time fees.
func (f Fees) Total() decimal.Decimal {
	return f.SecurityDeposit.Add(f.AdminFee).Add(f.ServiceCharge).Add(f.ParkingFee)
}

// =============================================================================
// CONFIG
// =============================================================================

// Installment counts the generator accepts. Anything else is a
// configuration error, not a recoverable runtime condition.
var allowedInstallments = map[int]bool{1: true, 2: true, 3: true, 4: true, 6: true}

// Config describes one lease's payment plan inputs.
type Config struct {
	YearlyRent         decimal.Decimal
	Installments       int
	FirstPaymentMethod Method
	DueDay             int // day-of-month for trailing installments (1-31)
	Fees               Fees
	LeaseType          string // display tag only, never affects the split
}

// Validate rejects invalid configs before any computation runs.
func (c Config) Validate() error {
	if !allowedInstallments[c.Installments] {
		return &ConfigError{Field: "installments", Reason: fmt.Sprintf("count %d not in {1,2,3,4,6}", c.Installments)}
	}
	if c.YearlyRent.IsNegative() {
		return &ConfigError{Field: "yearly_rent", Reason: "must be non-negative"}
	}
	if c.DueDay < 1 || c.DueDay > 31 {
		return &ConfigError{Field: "due_day", Reason: fmt.Sprintf("day %d not in 1-31", c.DueDay)}
	}
	return nil
}

// =============================================================================
// SCHEDULE ITEM
// =============================================================================

// Item is one scheduled portion of annual rent. Amount is rent-only, in
// integer currency units; one-time fees are bundled onto item 1 by the
// caller (see Summary.FirstPaymentTotal).
type Item struct {
	Sequence int   // 1..n
	Amount   int64 // rent portion, integer currency units
	DueDate  Date
}

// Summary aggregates a generated schedule for display and registration.
type Summary struct {
	TotalRent         int64
	FeesTotal         decimal.Decimal
	GrandTotal        decimal.Decimal // TotalRent + FeesTotal
	FirstPaymentTotal decimal.Decimal // fees + item 1 rent portion
}

// Summarize computes plan totals from a generated item list.
func Summarize(cfg Config, items []Item) Summary {
	var total int64
	for _, it := range items {
		total += it.Amount
	}
	feesTotal := cfg.Fees.Total()
	first := decimal.Zero
	if len(items) > 0 {
		first = decimal.NewFromInt(items[0].Amount)
	}
	return Summary{
		TotalRent:         total,
		FeesTotal:         feesTotal,
		GrandTotal:        decimal.NewFromInt(total).Add(feesTotal),
		FirstPaymentTotal: feesTotal.Add(first),
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ConfigError marks input that must be fixed by the caller. It is never
// retried automatically.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid schedule config: %s: %s", e.Field, e.Reason)
}
