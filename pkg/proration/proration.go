package proration

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// Direction of a plan change, decided by monthly-normalized price.
type Direction string

const (
	DirectionUpgrade   Direction = "upgrade"
	DirectionDowngrade Direction = "downgrade"
)

// UpgradeCharge selects how the new plan is charged when the change applies now.
type UpgradeCharge string

const (
	// ChargeFull bills the full new price and restarts the billing cycle.
	ChargeFull UpgradeCharge = "charge_full"
	// ChargeProrated bills the new price for the remaining fraction and keeps the anchor.
	ChargeProrated UpgradeCharge = "charge_prorated"
)

// DowngradeTiming selects when a downgrade takes effect.
type DowngradeTiming string

const (
	ApplyAtRenewal   DowngradeTiming = "apply_at_renewal"
	ApplyImmediately DowngradeTiming = "apply_immediately"
)

// Policy bundles the upgrade and downgrade rules.
type Policy struct {
	Upgrade   UpgradeCharge   `env:"PRORATION_UPGRADE" envDefault:"charge_full"`
	Downgrade DowngradeTiming `env:"PRORATION_DOWNGRADE" envDefault:"apply_at_renewal"`
}

func DefaultPolicy() Policy {
	return Policy{Upgrade: ChargeFull, Downgrade: ApplyAtRenewal}
}

// Validate reports unknown policy values. Empty fields fall back to defaults.
func (p Policy) Validate() error {
	switch p.Upgrade {
	case "", ChargeFull, ChargeProrated:
	default:
		return fmt.Errorf("%w: upgrade %q", ErrInvalidPolicy, p.Upgrade)
	}
	switch p.Downgrade {
	case "", ApplyAtRenewal, ApplyImmediately:
	default:
		return fmt.Errorf("%w: downgrade %q", ErrInvalidPolicy, p.Downgrade)
	}
	return nil
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Upgrade == "" {
		p.Upgrade = d.Upgrade
	}
	if p.Downgrade == "" {
		p.Downgrade = d.Downgrade
	}
	return p
}

// CalculationInput describes a plan change inside the current billing period.
type CalculationInput struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	OldPlan     plan.Plan
	NewPlan     plan.Plan
	Now         time.Time
	Policy      Policy
}

// Result is the money owed for a plan change. NetAmount may be negative,
// meaning the customer is owed a credit.
type Result struct {
	Direction           Direction  `json:"direction"`
	CreditForUnusedTime plan.Money `json:"credit_for_unused_time"`
	ChargeForNewPlan    plan.Money `json:"charge_for_new_plan"`
	NetAmount           plan.Money `json:"net_amount"`
	EffectiveDate       time.Time  `json:"effective_date"`
	ResetsBillingCycle  bool       `json:"resets_billing_cycle"`
	// Deferred is set when the new plan only applies at the end of the period.
	Deferred bool `json:"deferred"`
	// PeriodStart and PeriodEnd bound the billing period once the change applies.
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// Calculate computes credit and charge for moving from OldPlan to NewPlan at Now.
// Inputs are not modified.
func Calculate(in CalculationInput) (Result, error) {
	if in.PeriodEnd.Before(in.PeriodStart) {
		return Result{}, ErrInvalidPeriod
	}
	if err := in.Policy.Validate(); err != nil {
		return Result{}, err
	}
	policy := in.Policy.withDefaults()

	currency, err := commonCurrency(in.OldPlan.Price, in.NewPlan.Price)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Direction:           directionOf(in.OldPlan, in.NewPlan),
		CreditForUnusedTime: plan.Money{Currency: currency},
		ChargeForNewPlan:    plan.Money{Currency: currency},
		NetAmount:           plan.Money{Currency: currency},
	}

	if res.Direction == DirectionDowngrade && policy.Downgrade == ApplyAtRenewal {
		res.Deferred = true
		res.EffectiveDate = in.PeriodEnd
		res.PeriodStart = in.PeriodStart
		res.PeriodEnd = in.PeriodEnd
		return res, nil
	}

	fraction := RemainingFraction(in.PeriodStart, in.PeriodEnd, in.Now)
	res.EffectiveDate = in.Now
	res.CreditForUnusedTime.Amount = prorate(in.OldPlan.Price.Amount, fraction)

	switch policy.Upgrade {
	case ChargeProrated:
		res.ChargeForNewPlan.Amount = prorate(in.NewPlan.Price.Amount, fraction)
		res.PeriodStart = in.PeriodStart
		res.PeriodEnd = in.PeriodEnd
	default:
		res.ChargeForNewPlan.Amount = in.NewPlan.Price.Amount
		res.ResetsBillingCycle = true
		res.PeriodStart = in.Now
		res.PeriodEnd = in.NewPlan.Interval.PeriodEnd(in.Now)
	}

	res.NetAmount.Amount = res.ChargeForNewPlan.Amount - res.CreditForUnusedTime.Amount
	return res, nil
}

// RemainingFraction is the unused share of [start, end) at now, clamped to [0, 1].
func RemainingFraction(start, end, now time.Time) decimal.Decimal {
	total := end.Sub(start)
	if total <= 0 || !now.Before(end) {
		return decimal.Zero
	}
	if !now.After(start) {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(int64(end.Sub(now))).Div(decimal.NewFromInt(int64(total)))
}

func prorate(amount int64, fraction decimal.Decimal) int64 {
	// Round uses half away from zero, which is half-up for non-negative prices.
	return decimal.NewFromInt(amount).Mul(fraction).Round(0).IntPart()
}

func directionOf(oldPlan, newPlan plan.Plan) Direction {
	if newPlan.MonthlyPrice() < oldPlan.MonthlyPrice() {
		return DirectionDowngrade
	}
	return DirectionUpgrade
}

// commonCurrency allows a zero-priced side without a currency.
func commonCurrency(a, b plan.Money) (string, error) {
	switch {
	case a.Currency == "" || a.IsZero():
		if b.Currency != "" {
			return b.Currency, nil
		}
		return a.Currency, nil
	case b.Currency == "" || b.IsZero():
		return a.Currency, nil
	case a.SameCurrency(b):
		return a.Currency, nil
	}
	return "", errors.Join(ErrCurrencyMismatch, fmt.Errorf("%s vs %s", a.Currency, b.Currency))
}
