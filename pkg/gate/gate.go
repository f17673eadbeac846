package gate

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/entitlement"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/metering"
	"github.com/dmitrymomot/billingkit/pkg/metrics"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/usage"
)

// Reason explains a Decision.
type Reason string

const (
	ReasonAllowed       Reason = "allowed"
	ReasonNotEntitled   Reason = "not_entitled"
	ReasonQuotaExceeded Reason = "quota_exceeded"
)

// Decision is the outcome of an access check.
type Decision struct {
	Allowed      bool           `json:"allowed"`
	Feature      plan.FeatureID `json:"feature"`
	PlanID       string         `json:"plan_id"`
	CurrentUsage int64          `json:"current_usage"`
	Limit        plan.Limit     `json:"limit"`
	Remaining    int64          `json:"remaining"` // -1 when unlimited
	Unlimited    bool           `json:"unlimited"`
	Reason       Reason         `json:"reason"`
}

// Err converts a denied decision into the matching typed error. Returns nil when allowed.
func (d Decision) Err(required int64) error {
	switch d.Reason {
	case ReasonNotEntitled:
		return &NotEntitledError{Feature: d.Feature, PlanID: d.PlanID}
	case ReasonQuotaExceeded:
		return &QuotaExceededError{Feature: d.Feature, Current: d.CurrentUsage, Limit: d.Limit, Required: required}
	}
	return nil
}

// CheckOption adjusts a single check.
type CheckOption func(*checkOptions)

type checkOptions struct {
	metric string
}

// WithMetric selects a named counter of the feature instead of the default one.
func WithMetric(metric string) CheckOption {
	return func(o *checkOptions) {
		if metric != "" {
			o.metric = metric
		}
	}
}

func newCheckOptions(opts []CheckOption) checkOptions {
	o := checkOptions{metric: usage.DefaultMetric}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Gate grants or denies feature access. Checks never record usage;
// RecordUsage is the explicit write step.
type Gate interface {
	CheckAccess(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID, quantity int64, opts ...CheckOption) (Decision, error)
	RecordUsage(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID, quantity int64, opts ...CheckOption) (usage.Counter, error)
	// Require is CheckAccess returning *NotEntitledError or *QuotaExceededError on denial.
	Require(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID, quantity int64, opts ...CheckOption) error
	// UpgradePath returns the cheapest public plan ranked above the tenant's
	// current plan that covers current usage plus quantity.
	// WithMetric selects the counter the usage is read from.
	UpgradePath(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID, quantity int64, opts ...CheckOption) (plan.Plan, error)
}

// Option configures the gate.
type Option func(*gate)

func WithLogger(l *slog.Logger) Option {
	return func(g *gate) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(g *gate) {
		g.metrics = m
	}
}

type gate struct {
	resolver entitlement.Resolver
	engine   metering.Engine
	catalog  plan.Catalog
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// New creates a Gate. Panics if any dependency is nil.
func New(resolver entitlement.Resolver, engine metering.Engine, catalog plan.Catalog, opts ...Option) Gate {
	if resolver == nil {
		panic("gate: entitlement resolver is required")
	}
	if engine == nil {
		panic("gate: metering engine is required")
	}
	if catalog == nil {
		panic("gate: plan catalog is required")
	}

	g := &gate{
		resolver: resolver,
		engine:   engine,
		catalog:  catalog,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gate) CheckAccess(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID, quantity int64, opts ...CheckOption) (Decision, error) {
	if quantity < 0 {
		return Decision{}, usage.ErrInvalidAmount
	}
	o := newCheckOptions(opts)

	ent, err := g.resolver.Resolve(ctx, tenantID, feature)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Feature: feature, PlanID: ent.PlanID, Limit: ent.Limit}
	if !ent.Included {
		d.Reason = ReasonNotEntitled
		g.record(ctx, tenantID, d)
		return d, nil
	}

	u, err := g.engine.GetCurrentUsage(ctx, tenantID, feature, o.metric)
	if err != nil {
		return Decision{}, err
	}

	d.CurrentUsage = u.Current
	d.Unlimited = ent.Limit.IsUnlimited()
	d.Remaining = ent.Limit.Remaining(u.Current)
	d.Allowed = ent.Limit.Allows(u.Current, quantity)
	d.Reason = ReasonAllowed
	if !d.Allowed {
		d.Reason = ReasonQuotaExceeded
	}

	g.record(ctx, tenantID, d)
	return d, nil
}

func (g *gate) RecordUsage(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID, quantity int64, opts ...CheckOption) (usage.Counter, error) {
	o := newCheckOptions(opts)

	c, err := g.engine.Track(ctx, metering.TrackRequest{
		TenantID: tenantID,
		Feature:  feature,
		Metric:   o.metric,
		Amount:   quantity,
		Kind:     usage.OpIncrement,
	})
	switch {
	case errors.Is(err, metering.ErrFeatureNotIncluded):
		ent, _ := g.resolver.Resolve(ctx, tenantID, feature)
		return c, &NotEntitledError{Feature: feature, PlanID: ent.PlanID}
	case errors.Is(err, usage.ErrQuotaExceeded):
		return c, &QuotaExceededError{Feature: feature, Current: c.Value, Limit: c.Limit, Required: quantity}
	case err != nil:
		return c, err
	}
	return c, nil
}

func (g *gate) Require(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID, quantity int64, opts ...CheckOption) error {
	d, err := g.CheckAccess(ctx, tenantID, feature, quantity, opts...)
	if err != nil {
		return err
	}
	return d.Err(quantity)
}

func (g *gate) UpgradePath(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID, quantity int64, opts ...CheckOption) (plan.Plan, error) {
	o := newCheckOptions(opts)
	current, err := g.resolver.ResolvePlan(ctx, tenantID)
	if err != nil {
		return plan.Plan{}, err
	}

	u, err := g.engine.GetCurrentUsage(ctx, tenantID, feature, o.metric)
	if err != nil {
		return plan.Plan{}, err
	}
	required := u.Current + min(max(quantity, 0), math.MaxInt64-u.Current)

	plans, err := g.catalog.Plans(ctx)
	if err != nil {
		return plan.Plan{}, err
	}

	var (
		best  plan.Plan
		found bool
	)
	for _, p := range plans {
		if !p.Public || p.Rank <= current.Rank || p.ID == current.ID {
			continue
		}
		if !p.Covers(feature, required) {
			continue
		}
		if !found || p.MonthlyPrice() < best.MonthlyPrice() {
			best, found = p, true
		}
	}
	if !found {
		return plan.Plan{}, ErrNoUpgradePath
	}
	return best, nil
}

func (g *gate) record(ctx context.Context, tenantID uuid.UUID, d Decision) {
	switch d.Reason {
	case ReasonNotEntitled:
		g.metrics.AccessDecision(string(d.Feature), metrics.OutcomeNotEntitled)
	case ReasonQuotaExceeded:
		g.metrics.AccessDecision(string(d.Feature), metrics.OutcomeQuotaExceeded)
	default:
		g.metrics.AccessDecision(string(d.Feature), metrics.OutcomeAllowed)
		return
	}
	g.logger.DebugContext(ctx, "feature access denied",
		logger.TenantID(tenantID),
		logger.Feature(string(d.Feature)),
		logger.PlanID(d.PlanID),
		slog.String("reason", string(d.Reason)),
		slog.Int64("usage", d.CurrentUsage),
	)
}
