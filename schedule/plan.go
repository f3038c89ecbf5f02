/*
plan.go - First-payment override engine

PURPOSE:
  Wraps the generator with an explicit default/override mode. The override
  target is the TOTAL due at the first payment (one-time fees + first rent
  portion), not the rent-only portion. Given a custom total, the rent
  portion is recomputed as max(0, total - fees) and fed into the trailing
  split in place of the default first amount.

MODE OWNERSHIP:
  "Override vs default" is state owned by the Plan, set explicitly by the
  caller. Replacing the config resets the plan to default mode; an
  override never survives a config change unless re-applied.

INVARIANT:
  The grand total across all installments still equals round(yearlyRent)
  after any override. Only the shape of the distribution changes.

SEE ALSO:
  - generate.go: build() and splitTrailing()
*/
package schedule

import "github.com/shopspring/decimal"

// Plan owns one lease's schedule config plus the override mode.
// A Plan is caller-owned mutable state; it is not safe for concurrent use.
type Plan struct {
	cfg        Config
	overridden bool
	firstTotal decimal.Decimal // custom first-payment total, fees included
}

// NewPlan creates a plan in default mode. The config is validated up front
// so an invalid plan can never be constructed.
func NewPlan(cfg Config) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Plan{cfg: cfg}, nil
}

func (p *Plan) Config() Config   { return p.cfg }
func (p *Plan) Overridden() bool { return p.overridden }

// SetConfig replaces the underlying config and resets the plan to default
// mode. Callers that still want an override must re-apply it.
func (p *Plan) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.cfg = cfg
	p.overridden = false
	p.firstTotal = decimal.Zero
	return nil
}

// ApplyOverride fixes the total due at the first payment.
func (p *Plan) ApplyOverride(firstTotal decimal.Decimal) error {
	if firstTotal.IsNegative() {
		return &ConfigError{Field: "first_total", Reason: "must be non-negative"}
	}
	p.overridden = true
	p.firstTotal = firstTotal
	return nil
}

// ClearOverride returns the plan to default mode.
func (p *Plan) ClearOverride() {
	p.overridden = false
	p.firstTotal = decimal.Zero
}

// Generate produces the schedule for the current mode.
func (p *Plan) Generate(ref Date) ([]Item, error) {
	if !p.overridden {
		return Generate(p.cfg, ref)
	}

	total := roundToUnit(p.cfg.YearlyRent)
	first := p.firstRentPortion()
	return build(p.cfg, ref, total, first), nil
}

// ExtraCollected reports how much more rent the override front-loads onto
// the first payment compared to the default split. Positive values mean
// "extra collected now, reduces other payments". Informational only; no
// ledger entry is written.
func (p *Plan) ExtraCollected() int64 {
	if !p.overridden || p.cfg.Installments == 1 {
		return 0
	}
	extra := p.firstRentPortion() - p.defaultFirstRentPortion()
	if extra < 0 {
		return 0
	}
	return extra
}

// firstRentPortion is the rent-only share of the overridden first payment:
// max(0, customTotal - fees), rounded to whole units.
func (p *Plan) firstRentPortion() int64 {
	rent := p.firstTotal.Sub(p.cfg.Fees.Total())
	if rent.IsNegative() {
		return 0
	}
	return roundToUnit(rent)
}

func (p *Plan) defaultFirstRentPortion() int64 {
	per := p.cfg.YearlyRent.Div(decimal.NewFromInt(int64(p.cfg.Installments)))
	return roundToUnit(per)
}
