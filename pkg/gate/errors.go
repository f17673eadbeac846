package gate

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/usage"
)

var (
	ErrNotEntitled   = errors.New("gate: feature not included in plan")
	ErrNoUpgradePath = errors.New("gate: no plan covers the requested usage")
)

// NotEntitledError is returned when the tenant's plan does not include a feature.
type NotEntitledError struct {
	Feature plan.FeatureID
	PlanID  string
}

func (e *NotEntitledError) Error() string {
	return fmt.Sprintf("gate: feature %s is not included in plan %s", e.Feature, e.PlanID)
}

func (e *NotEntitledError) Is(target error) bool {
	return target == ErrNotEntitled
}

// QuotaExceededError is returned when the requested amount does not fit the remaining quota.
type QuotaExceededError struct {
	Feature  plan.FeatureID
	Current  int64
	Limit    plan.Limit
	Required int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("gate: quota exceeded for %s: %d of %s used, %d requested",
		e.Feature, e.Current, e.Limit, e.Required)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == usage.ErrQuotaExceeded
}

func IsNotEntitled(err error) bool {
	var e *NotEntitledError
	return errors.As(err, &e)
}

func IsQuotaExceeded(err error) bool {
	var e *QuotaExceededError
	return errors.As(err, &e)
}
