// Package retention creates and settles incentives offered when a tenant
// cancels a subscription.
//
// A Policy maps the cancelling plan to an OfferEffect. The default policy
// tiers by monthly price: 20% off three renewals from 40.00, 5.00 off two
// renewals from 10.00, and one free month for any other paid plan. Free plans
// get nothing. Offers are unique per subscription and cancellation, valid for
// seven days by default, and can be accepted once.
//
// OfferEffect is a closed sum type (PercentDiscount, FixedDiscount, FreeMonths,
// Downgrade). Callers apply it without knowing the concrete variant:
//
//	target = offer.Effect.Apply(target)
package retention
