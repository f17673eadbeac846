package retention

import (
	"cmp"
	"slices"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// Policy decides which incentive, if any, a cancelling subscription receives.
type Policy interface {
	Select(c Candidate) (OfferEffect, bool)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(c Candidate) (OfferEffect, bool)

func (f PolicyFunc) Select(c Candidate) (OfferEffect, bool) { return f(c) }

// Tier grants Effect to plans whose monthly price is at least MinMonthlyPrice.
type Tier struct {
	MinMonthlyPrice int64
	Effect          func(p plan.Plan) OfferEffect
}

// TieredPolicy picks the highest tier the plan reaches. Free plans never qualify.
type TieredPolicy struct {
	tiers []Tier
}

// NewTieredPolicy sorts tiers by descending threshold.
func NewTieredPolicy(tiers ...Tier) *TieredPolicy {
	sorted := slices.Clone(tiers)
	slices.SortStableFunc(sorted, func(a, b Tier) int {
		return cmp.Compare(b.MinMonthlyPrice, a.MinMonthlyPrice)
	})
	return &TieredPolicy{tiers: sorted}
}

func (p *TieredPolicy) Select(c Candidate) (OfferEffect, bool) {
	price := c.Plan.MonthlyPrice()
	if price <= 0 {
		return nil, false
	}
	for _, t := range p.tiers {
		if price >= t.MinMonthlyPrice && t.Effect != nil {
			e := t.Effect(c.Plan)
			if e == nil || e.Validate() != nil {
				return nil, false
			}
			return e, true
		}
	}
	return nil, false
}

// DefaultPolicy: 40.00 and up gets 20% off three renewals, 10.00 and up gets
// 5.00 off two renewals, any other paid plan gets one free month.
func DefaultPolicy() *TieredPolicy {
	return NewTieredPolicy(
		Tier{MinMonthlyPrice: 4000, Effect: func(plan.Plan) OfferEffect {
			return PercentDiscount{Percent: 20, Cycles: 3}
		}},
		Tier{MinMonthlyPrice: 1000, Effect: func(p plan.Plan) OfferEffect {
			return FixedDiscount{Amount: plan.Money{Amount: 500, Currency: p.Price.Currency}, Cycles: 2}
		}},
		Tier{MinMonthlyPrice: 1, Effect: func(plan.Plan) OfferEffect {
			return FreeMonths{Months: 1}
		}},
	)
}
