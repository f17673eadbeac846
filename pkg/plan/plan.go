package plan

import (
	"time"
)

// FeatureID identifies a gated capability, e.g. "projects" or "api_calls".
type FeatureID string

// Period is the metering window over which a feature's usage accumulates.
type Period string

const (
	PeriodLifetime Period = "lifetime" // never resets, e.g. number of projects
	PeriodDaily    Period = "daily"
	PeriodMonthly  Period = "monthly" // calendar month, UTC
	PeriodYearly   Period = "yearly"
)

// Bounds returns the window containing t. Lifetime windows have zero bounds.
func (p Period) Bounds(t time.Time) (start, end time.Time) {
	t = t.UTC()
	switch p {
	case PeriodLifetime:
		return time.Time{}, time.Time{}
	case PeriodDaily:
		start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	case PeriodYearly:
		start = time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	default:
		start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
}

func (p Period) Valid() bool {
	switch p {
	case PeriodLifetime, PeriodDaily, PeriodMonthly, PeriodYearly:
		return true
	}
	return false
}

// Feature describes a capability independent of any plan.
type Feature struct {
	ID       FeatureID `yaml:"id"`
	Name     string    `yaml:"name"`
	Category string    `yaml:"category"`
	Premium  bool      `yaml:"premium"`
	Period   Period    `yaml:"period"` // defaults to monthly
}

// BillingInterval represents the billing frequency for a plan.
type BillingInterval string

const (
	BillingIntervalNone    BillingInterval = "none" // free plans with no billing
	BillingIntervalMonthly BillingInterval = "monthly"
	BillingIntervalAnnual  BillingInterval = "annual"
)

// Months returns the length of one billing cycle in months, 0 for free plans.
func (i BillingInterval) Months() int {
	switch i {
	case BillingIntervalMonthly:
		return 1
	case BillingIntervalAnnual:
		return 12
	default:
		return 0
	}
}

// PeriodEnd returns the end of a billing period starting at start.
// Free plans still roll monthly so that time-driven sweeps have a boundary.
func (i BillingInterval) PeriodEnd(start time.Time) time.Time {
	if i == BillingIntervalAnnual {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// Plan describes a subscription plan and its feature entitlements.
type Plan struct {
	ID           string           `yaml:"id"`
	Name         string           `yaml:"name"`
	Description  string           `yaml:"description"`
	Price        Money            `yaml:"price"`
	Interval     BillingInterval  `yaml:"interval"`
	TrialDays    int              `yaml:"trial_days"`
	Public       bool             `yaml:"public"` // available for self-service signup and upgrade prompts
	Rank         int              `yaml:"rank"`   // ordering used to find upgrade paths
	Entitlements EntitlementTable `yaml:"entitlements"`
}

// TrialEndsAt calculates when the trial period ends.
// Returns startedAt unchanged if no trial is available.
func (p Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if p.TrialDays <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, 0, p.TrialDays).UTC()
}

func (p Plan) HasTrial() bool {
	return p.TrialDays > 0
}

func (p Plan) IsFree() bool {
	return p.Interval == BillingIntervalNone || p.Price.Amount == 0
}

// MonthlyPrice normalizes the plan price to a monthly amount in minor units.
func (p Plan) MonthlyPrice() int64 {
	switch p.Interval {
	case BillingIntervalMonthly:
		return p.Price.Amount
	case BillingIntervalAnnual:
		return p.Price.Amount / 12
	default:
		return 0
	}
}

// Limit returns the plan's limit for a feature and whether the feature is included.
func (p Plan) Limit(feature FeatureID) (Limit, bool) {
	return p.Entitlements.Lookup(feature)
}

// Clone returns a deep copy so callers cannot mutate catalog state.
func (p Plan) Clone() Plan {
	p.Entitlements = p.Entitlements.Clone()
	return p
}
