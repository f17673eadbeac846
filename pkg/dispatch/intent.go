package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// Kind names an outbound side effect.
type Kind string

const (
	KindThresholdCrossed       Kind = "usage.threshold_crossed"
	KindSubscriptionStarted    Kind = "subscription.started"
	KindTrialEnded             Kind = "subscription.trial_ended"
	KindSubscriptionPaused     Kind = "subscription.paused"
	KindSubscriptionResumed    Kind = "subscription.resumed"
	KindSubscriptionCancelled  Kind = "subscription.cancelled"
	KindSubscriptionReactivate Kind = "subscription.reactivated"
	KindSubscriptionExpired    Kind = "subscription.expired"
	KindPlanChanged            Kind = "subscription.plan_changed"
	KindRenewalDue             Kind = "subscription.renewal_due"
	KindOfferCreated           Kind = "retention.offer_created"
	KindOfferAccepted          Kind = "retention.offer_accepted"
)

// Attribute keys carried in Intent.Attrs.
const (
	AttrFeature        = "feature"
	AttrMetric         = "metric"
	AttrThreshold      = "threshold"
	AttrUsage          = "usage"
	AttrLimit          = "limit"
	AttrPlanID         = "plan_id"
	AttrPreviousPlanID = "previous_plan_id"
	AttrState          = "state"
	AttrProviderSubID  = "provider_subscription_id"
	AttrAmount         = "amount"
	AttrCurrency       = "currency"
	AttrEffectiveAt    = "effective_at"
	AttrImmediate      = "immediate"
	AttrOfferID        = "offer_id"
	AttrOfferEffect    = "offer_effect"
	AttrReason         = "reason"
	AttrAlertID        = "alert_id"
)

// Intent describes a side effect to perform after a state change is committed.
// Intents are transported as-is; sinks decide how to render or apply them.
type Intent struct {
	ID             uuid.UUID         `json:"id"`
	Kind           Kind              `json:"kind"`
	TenantID       uuid.UUID         `json:"tenant_id"`
	SubscriptionID uuid.UUID         `json:"subscription_id,omitzero"`
	OccurredAt     time.Time         `json:"occurred_at"`
	Attrs          map[string]string `json:"attrs,omitempty"`
}

// NewIntent returns an intent with a fresh ID.
func NewIntent(kind Kind, tenantID uuid.UUID, at time.Time, attrs map[string]string) Intent {
	return Intent{
		ID:         uuid.New(),
		Kind:       kind,
		TenantID:   tenantID,
		OccurredAt: at,
		Attrs:      attrs,
	}
}

// Attr returns the named attribute or "".
func (i Intent) Attr(key string) string {
	return i.Attrs[key]
}
