package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/retention"
)

// State of a subscription.
type State string

const (
	// StateNone is the pseudo-state before a subscription exists. Never stored.
	StateNone           State = "none"
	StateTrialing       State = "trialing"
	StateActive         State = "active"
	StatePaused         State = "paused"
	StateCancelledGrace State = "cancelled_grace"
	StateExpired        State = "expired"
)

// Terminal reports whether no command leaves the state.
func (s State) Terminal() bool {
	return s == StateExpired
}

// Subscription is a tenant's subscription to a plan. Rows are never deleted;
// an expired subscription stays as history.
type Subscription struct {
	ID            uuid.UUID `json:"id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	PlanID        string    `json:"plan_id"`
	PendingPlanID string    `json:"pending_plan_id,omitempty"` // applied at the next renewal
	State         State     `json:"state"`

	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	PausedAt           *time.Time `json:"paused_at,omitempty"`

	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
	GracePeriodEndsAt    *time.Time `json:"grace_period_ends_at,omitempty"`
	CancellationID       uuid.UUID  `json:"cancellation_id,omitzero"`
	CancellationReason   string     `json:"cancellation_reason,omitempty"`
	CancellationFeedback string     `json:"cancellation_feedback,omitempty"`

	Discount            *retention.Discount `json:"discount,omitempty"`
	FreeMonthsRemaining int                 `json:"free_months_remaining,omitempty"`

	ProviderSubID string    `json:"provider_subscription_id,omitempty"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Live reports whether the subscription still counts as the tenant's subscription.
func (s Subscription) Live() bool {
	return !s.State.Terminal()
}

// InGraceAt reports whether a cancelled subscription can still be reactivated at now.
func (s Subscription) InGraceAt(now time.Time) bool {
	return s.State == StateCancelledGrace && s.GracePeriodEndsAt != nil && now.Before(*s.GracePeriodEndsAt)
}

// TrialDaysRemainingAt rounds partial days to the nearest day. Zero outside a trial.
func (s Subscription) TrialDaysRemainingAt(now time.Time) int {
	if s.State != StateTrialing || s.TrialEndsAt == nil {
		return 0
	}
	remaining := s.TrialEndsAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Hours()/24 + 0.5)
}

// DueAt returns the moment the next time-driven command applies and whether one exists.
func (s Subscription) DueAt() (time.Time, bool) {
	switch s.State {
	case StateTrialing:
		if s.TrialEndsAt != nil {
			return *s.TrialEndsAt, true
		}
	case StateCancelledGrace:
		if s.GracePeriodEndsAt != nil {
			return *s.GracePeriodEndsAt, true
		}
	case StateActive:
		return s.CurrentPeriodEnd, true
	}
	return time.Time{}, false
}

func (s Subscription) target() retention.Target {
	return retention.Target{PlanID: s.PlanID, Discount: s.Discount, FreeMonthsRemaining: s.FreeMonthsRemaining}
}

func (s Subscription) withTarget(t retention.Target) Subscription {
	s.PlanID = t.PlanID
	s.Discount = t.Discount
	s.FreeMonthsRemaining = t.FreeMonthsRemaining
	return s
}

func (s Subscription) clearCancellation() Subscription {
	s.CancelledAt = nil
	s.GracePeriodEndsAt = nil
	s.CancellationID = uuid.Nil
	s.CancellationReason = ""
	s.CancellationFeedback = ""
	return s
}
