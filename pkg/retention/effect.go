package retention

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// EffectKind names an OfferEffect variant.
type EffectKind string

const (
	KindPercentDiscount EffectKind = "percent_discount"
	KindFixedDiscount   EffectKind = "fixed_discount"
	KindFreeMonths      EffectKind = "free_months"
	KindDowngrade       EffectKind = "downgrade"
)

// Target is the part of a subscription an offer may change.
type Target struct {
	PlanID              string
	Discount            *Discount
	FreeMonthsRemaining int
}

// OfferEffect is a closed set of incentives. Only types in this package implement it.
type OfferEffect interface {
	Kind() EffectKind
	// Apply returns t with the effect applied. t is not modified.
	Apply(t Target) Target
	Validate() error
	isOfferEffect()
}

// PercentDiscount lowers the price by Percent for the next Cycles renewals.
type PercentDiscount struct {
	Percent int
	Cycles  int
}

// FixedDiscount lowers the price by Amount for the next Cycles renewals.
type FixedDiscount struct {
	Amount plan.Money
	Cycles int
}

// FreeMonths waives Months months of billing. Longer cycles consume several
// months at once and bill the remainder pro rata.
type FreeMonths struct {
	Months int
}

// Downgrade moves the subscription to a cheaper plan.
type Downgrade struct {
	PlanID string
}

func (PercentDiscount) Kind() EffectKind { return KindPercentDiscount }
func (FixedDiscount) Kind() EffectKind   { return KindFixedDiscount }
func (FreeMonths) Kind() EffectKind      { return KindFreeMonths }
func (Downgrade) Kind() EffectKind       { return KindDowngrade }

func (PercentDiscount) isOfferEffect() {}
func (FixedDiscount) isOfferEffect()   {}
func (FreeMonths) isOfferEffect()      {}
func (Downgrade) isOfferEffect()       {}

func (e PercentDiscount) Apply(t Target) Target {
	t.Discount = &Discount{Kind: DiscountPercent, Percent: e.Percent, CyclesRemaining: e.Cycles}
	return t
}

func (e FixedDiscount) Apply(t Target) Target {
	t.Discount = &Discount{Kind: DiscountFixed, Amount: e.Amount, CyclesRemaining: e.Cycles}
	return t
}

func (e FreeMonths) Apply(t Target) Target {
	t.FreeMonthsRemaining += e.Months
	return t
}

func (e Downgrade) Apply(t Target) Target {
	t.PlanID = e.PlanID
	return t
}

func (e PercentDiscount) Validate() error {
	if e.Percent <= 0 || e.Percent > 100 || e.Cycles <= 0 {
		return fmt.Errorf("%w: %d%% for %d cycles", ErrInvalidEffect, e.Percent, e.Cycles)
	}
	return nil
}

func (e FixedDiscount) Validate() error {
	if e.Amount.Amount <= 0 || e.Amount.Currency == "" || e.Cycles <= 0 {
		return fmt.Errorf("%w: %s for %d cycles", ErrInvalidEffect, e.Amount, e.Cycles)
	}
	return nil
}

func (e FreeMonths) Validate() error {
	if e.Months <= 0 {
		return fmt.Errorf("%w: %d free months", ErrInvalidEffect, e.Months)
	}
	return nil
}

func (e Downgrade) Validate() error {
	if e.PlanID == "" {
		return fmt.Errorf("%w: downgrade without plan", ErrInvalidEffect)
	}
	return nil
}

// DiscountKind distinguishes percentage and fixed discounts.
type DiscountKind string

const (
	DiscountPercent DiscountKind = "percent"
	DiscountFixed   DiscountKind = "fixed"
)

// Discount is a price reduction applied to a limited number of renewals.
type Discount struct {
	Kind            DiscountKind `json:"kind"`
	Percent         int          `json:"percent,omitempty"`
	Amount          plan.Money   `json:"amount,omitzero"`
	CyclesRemaining int          `json:"cycles_remaining"`
}

// Active reports whether renewals are still discounted.
func (d *Discount) Active() bool {
	return d != nil && d.CyclesRemaining > 0
}

// ApplyTo returns price reduced by the discount, never below zero.
// Percent discounts round half-up to minor units.
func (d *Discount) ApplyTo(price plan.Money) plan.Money {
	if !d.Active() {
		return price
	}
	switch d.Kind {
	case DiscountPercent:
		off := decimal.NewFromInt(price.Amount).
			Mul(decimal.NewFromInt(int64(d.Percent))).
			Div(decimal.NewFromInt(100)).
			Round(0).IntPart()
		price.Amount -= off
	case DiscountFixed:
		if d.Amount.SameCurrency(price) {
			price.Amount -= d.Amount.Amount
		}
	}
	price.Amount = max(price.Amount, 0)
	return price
}

// Consume returns the discount after one renewal, or nil once exhausted.
func (d *Discount) Consume() *Discount {
	if !d.Active() {
		return nil
	}
	next := *d
	next.CyclesRemaining--
	if next.CyclesRemaining == 0 {
		return nil
	}
	return &next
}

// effectRecord is the storage shape of an OfferEffect.
type effectRecord struct {
	Kind    EffectKind  `json:"kind"`
	Percent int         `json:"percent,omitempty"`
	Amount  *plan.Money `json:"amount,omitempty"`
	Cycles  int         `json:"cycles,omitempty"`
	Months  int         `json:"months,omitempty"`
	PlanID  string      `json:"plan_id,omitempty"`
}

// MarshalEffect encodes e as JSON with a kind tag.
func MarshalEffect(e OfferEffect) ([]byte, error) {
	var r effectRecord
	switch v := e.(type) {
	case PercentDiscount:
		r = effectRecord{Kind: v.Kind(), Percent: v.Percent, Cycles: v.Cycles}
	case FixedDiscount:
		amount := v.Amount
		r = effectRecord{Kind: v.Kind(), Amount: &amount, Cycles: v.Cycles}
	case FreeMonths:
		r = effectRecord{Kind: v.Kind(), Months: v.Months}
	case Downgrade:
		r = effectRecord{Kind: v.Kind(), PlanID: v.PlanID}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEffect, e)
	}
	return json.Marshal(r)
}

// UnmarshalEffect decodes output of MarshalEffect.
func UnmarshalEffect(data []byte) (OfferEffect, error) {
	var r effectRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownEffect, err)
	}

	var e OfferEffect
	switch r.Kind {
	case KindPercentDiscount:
		e = PercentDiscount{Percent: r.Percent, Cycles: r.Cycles}
	case KindFixedDiscount:
		var amount plan.Money
		if r.Amount != nil {
			amount = *r.Amount
		}
		e = FixedDiscount{Amount: amount, Cycles: r.Cycles}
	case KindFreeMonths:
		e = FreeMonths{Months: r.Months}
	case KindDowngrade:
		e = Downgrade{PlanID: r.PlanID}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEffect, r.Kind)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}
