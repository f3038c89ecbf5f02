/*
generate.go - The rent split algorithm

PURPOSE:
  Turns a yearly rent into n installments with due dates.

ALGORITHM:
  1. Round the yearly rent once: total = round(yearlyRent).
  2. Item 1 = round(yearlyRent / n), due on the reference date.
  3. remaining = total - item1. base = floor(remaining / (n-1)).
  4. The first `remaining - base*(n-1)` trailing items each absorb +1.
  5. Trailing item i is due (i+1) * floor(12/n) months after the
     reference date, day-of-month clamped to the target month.

INVARIANTS:
  - sum(amounts) == round(yearlyRent), for every valid count and every
    non-negative rent, including zero.
  - The remainder lands on the FIRST trailing installments, not the last.
    This tie-break is deterministic and load-bearing: external systems
    reconcile against it.

SEE ALSO:
  - types.go: Config and Item
  - plan.go: Override engine reusing the trailing split
*/
package schedule

import "github.com/shopspring/decimal"

// Generate produces the default payment plan for a config.
// Item 1 is due on the reference date; trailing items follow at
// floor(12/n)-month intervals.
func Generate(cfg Config, ref Date) ([]Item, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	total := roundToUnit(cfg.YearlyRent)
	perInstallment := cfg.YearlyRent.Div(decimal.NewFromInt(int64(cfg.Installments)))
	first := roundToUnit(perInstallment)

	return build(cfg, ref, total, first), nil
}

// build assembles the item list given the conserved total and the (already
// rounded) first rent portion. Shared by Generate and the override engine.
func build(cfg Config, ref Date, total, first int64) []Item {
	n := cfg.Installments
	if n == 1 {
		// The single item carries the whole rounded rent.
		return []Item{{Sequence: 1, Amount: total, DueDate: ref}}
	}

	items := make([]Item, 0, n)
	items = append(items, Item{Sequence: 1, Amount: first, DueDate: ref})

	interval := 12 / n // floor(12/n): 12, 6, 4, 3, 2
	for i, amount := range splitTrailing(total, first, n) {
		items = append(items, Item{
			Sequence: i + 2,
			Amount:   amount,
			DueDate:  dueDate(ref, (i+1)*interval, cfg.DueDay),
		})
	}
	return items
}

// splitTrailing distributes total-first over n-1 trailing installments.
// The first `remainder` items get base+1 so the rounding surplus is
// absorbed up front.
func splitTrailing(total, first int64, n int) []int64 {
	remaining := total - first
	k := int64(n - 1)
	base := floorDiv(remaining, k)
	remainder := remaining - base*k // 0..k-1

	amounts := make([]int64, k)
	for i := range amounts {
		if int64(i) < remainder {
			amounts[i] = base + 1
		} else {
			amounts[i] = base
		}
	}
	return amounts
}

// roundToUnit rounds to whole currency units, half away from zero.
func roundToUnit(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// floorDiv divides rounding toward negative infinity. Go's integer
// division truncates toward zero, which misplaces the remainder when an
// override pushes the trailing total negative.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
