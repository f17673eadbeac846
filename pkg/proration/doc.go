// Package proration computes the money owed when a subscription changes plan
// in the middle of a billing period.
//
// Credit for the unused part of the old plan is the old price scaled by the
// remaining share of the period, rounded half-up to minor units. Upgrades apply
// immediately; by default they charge the full new price and restart the
// billing cycle (ChargeFull). Downgrades by default wait for renewal
// (ApplyAtRenewal) and cost nothing now.
//
//	res, err := proration.Calculate(proration.CalculationInput{
//		PeriodStart: sub.CurrentPeriodStart,
//		PeriodEnd:   sub.CurrentPeriodEnd,
//		OldPlan:     current,
//		NewPlan:     target,
//		Now:         clock.Now(),
//	})
package proration
