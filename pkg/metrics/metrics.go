// Package metrics exposes Prometheus collectors for access decisions, usage,
// subscription transitions, retention offers and intent delivery.
//
// A nil *Collector is valid and records nothing, so services can hold one
// unconditionally:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//	g := gate.New(resolver, engine, catalog, gate.WithMetrics(m))
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "billingkit"

// Access decision outcomes.
const (
	OutcomeAllowed       = "allowed"
	OutcomeNotEntitled   = "not_entitled"
	OutcomeQuotaExceeded = "quota_exceeded"
)

// Collector groups every metric emitted by the module.
type Collector struct {
	accessDecisions   *prometheus.CounterVec
	usageTracked      *prometheus.CounterVec
	usageRejected     *prometheus.CounterVec
	thresholdAlerts   *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	transitionErrors  *prometheus.CounterVec
	retentionOffers   *prometheus.CounterVec
	resolverLookups   *prometheus.CounterVec
	intents           *prometheus.CounterVec
	dispatchQueueSize prometheus.Gauge
}

// New registers all collectors with reg. A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		accessDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Feature access decisions by feature and outcome.",
		}, []string{"feature", "outcome"}),
		usageTracked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metering",
			Name:      "usage_units_total",
			Help:      "Usage units applied to counters by feature and operation kind.",
		}, []string{"feature", "kind"}),
		usageRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metering",
			Name:      "rejected_total",
			Help:      "Track calls rejected because the quota would be exceeded.",
		}, []string{"feature"}),
		thresholdAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metering",
			Name:      "threshold_alerts_total",
			Help:      "Usage alerts recorded by feature and threshold percent.",
		}, []string{"feature", "threshold"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Committed subscription transitions.",
		}, []string{"command", "from", "to"}),
		transitionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transition_errors_total",
			Help:      "Rejected or failed subscription commands.",
		}, []string{"command", "reason"}),
		retentionOffers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "offers_total",
			Help:      "Retention offer events by effect kind.",
		}, []string{"event", "effect"}),
		resolverLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "plan_lookups_total",
			Help:      "Tenant plan lookups by cache result.",
		}, []string{"result"}),
		intents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "intents_total",
			Help:      "Side-effect intents by kind and delivery result.",
		}, []string{"kind", "result"}),
		dispatchQueueSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "queue_length",
			Help:      "Intents waiting for a dispatch worker.",
		}),
	}
}

func (c *Collector) AccessDecision(feature, outcome string) {
	if c == nil {
		return
	}
	c.accessDecisions.WithLabelValues(feature, outcome).Inc()
}

func (c *Collector) UsageTracked(feature, kind string, amount int64) {
	if c == nil || amount <= 0 {
		return
	}
	c.usageTracked.WithLabelValues(feature, kind).Add(float64(amount))
}

func (c *Collector) UsageRejected(feature string) {
	if c == nil {
		return
	}
	c.usageRejected.WithLabelValues(feature).Inc()
}

func (c *Collector) ThresholdAlert(feature string, threshold int) {
	if c == nil {
		return
	}
	c.thresholdAlerts.WithLabelValues(feature, strconv.Itoa(threshold)).Inc()
}

func (c *Collector) Transition(command, from, to string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(command, from, to).Inc()
}

func (c *Collector) TransitionError(command, reason string) {
	if c == nil {
		return
	}
	c.transitionErrors.WithLabelValues(command, reason).Inc()
}

func (c *Collector) RetentionOffer(event, effect string) {
	if c == nil {
		return
	}
	c.retentionOffers.WithLabelValues(event, effect).Inc()
}

// PlanLookup records a resolver lookup; hit reports whether the cache served it.
func (c *Collector) PlanLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.resolverLookups.WithLabelValues(result).Inc()
}

func (c *Collector) Intent(kind, result string) {
	if c == nil {
		return
	}
	c.intents.WithLabelValues(kind, result).Inc()
}

func (c *Collector) QueueLength(n int) {
	if c == nil {
		return
	}
	c.dispatchQueueSize.Set(float64(n))
}
