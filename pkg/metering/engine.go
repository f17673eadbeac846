package metering

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrymomot/billingkit/pkg/dispatch"
	"github.com/dmitrymomot/billingkit/pkg/entitlement"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/metrics"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/usage"
)

// LimitResolver supplies a tenant's current limit and metering period for a feature.
// entitlement.Resolver satisfies it.
type LimitResolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID) (entitlement.Entitlement, error)
	ResolvePlan(ctx context.Context, tenantID uuid.UUID) (plan.Plan, error)
}

// TrackRequest describes one usage change.
type TrackRequest struct {
	TenantID uuid.UUID
	Feature  plan.FeatureID
	Metric   string       // defaults to usage.DefaultMetric
	Amount   int64        // must not be negative
	Kind     usage.OpKind // defaults to usage.OpIncrement
	Context  map[string]string
}

// Usage is a read-only view of a counter against the tenant's current plan.
type Usage struct {
	Feature   plan.FeatureID `json:"feature"`
	Metric    string         `json:"metric"`
	Current   int64          `json:"current"`
	Limit     plan.Limit     `json:"limit"`
	Included  bool           `json:"included"`
	Window    usage.Window   `json:"window"`
	UpdatedAt time.Time      `json:"updated_at,omitzero"`
}

func (u Usage) Unlimited() bool {
	return u.Included && u.Limit.IsUnlimited()
}

// Remaining returns the units left in the window, or -1 when unlimited.
func (u Usage) Remaining() int64 {
	if !u.Included {
		return 0
	}
	return u.Limit.Remaining(u.Current)
}

// Engine records usage against windowed counters and raises threshold alerts.
type Engine interface {
	// Track applies a usage change. Increments are enforced against the limit
	// and fail with usage.ErrQuotaExceeded without mutating the counter; the
	// returned counter then carries the unchanged current value.
	Track(ctx context.Context, req TrackRequest) (usage.Counter, error)
	// CanPerform reports whether amount more units fit. It never writes.
	CanPerform(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID, metric string, amount int64) (bool, error)
	// GetCurrentUsage reports zero for a counter whose window has elapsed.
	GetCurrentUsage(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID, metric string) (Usage, error)
	// Rollover moves a counter into the current window. It is idempotent.
	Rollover(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID, metric string) (bool, error)
	// RolloverTenant rolls every counter of a tenant and returns how many moved.
	RolloverTenant(ctx context.Context, tenantID uuid.UUID) (int, error)

	UsageByFeature(ctx context.Context, tenantID uuid.UUID) ([]Usage, error)
	PendingAlerts(ctx context.Context, tenantID uuid.UUID) ([]Alert, error)
	AcknowledgeAlert(ctx context.Context, alertID uuid.UUID) error
	MarkAlertDelivered(ctx context.Context, alertID uuid.UUID) error
}

// Config holds engine settings loadable from the environment.
type Config struct {
	Thresholds   []int         `env:"METERING_THRESHOLDS" envSeparator:"," envDefault:"80,95,100"`
	MaxRetries   uint64        `env:"METERING_MAX_RETRIES" envDefault:"3"`
	RetryBackoff time.Duration `env:"METERING_RETRY_BACKOFF" envDefault:"10ms"`
}

// DefaultThresholds are the alert levels in percent of a limit.
var DefaultThresholds = []int{80, 95, 100}

// Option configures the engine.
type Option func(*engine)

// WithConfig applies thresholds and retry settings. Invalid thresholds panic.
func WithConfig(cfg Config) Option {
	return func(e *engine) {
		if len(cfg.Thresholds) > 0 {
			WithThresholds(cfg.Thresholds...)(e)
		}
		e.maxRetries = cfg.MaxRetries
		if cfg.RetryBackoff > 0 {
			e.retryBackoff = cfg.RetryBackoff
		}
	}
}

// WithThresholds replaces the alert thresholds. Values outside 1..100 panic.
func WithThresholds(thresholds ...int) Option {
	for _, t := range thresholds {
		if t < 1 || t > 100 {
			panic(fmt.Errorf("%w: %d", ErrInvalidThreshold, t))
		}
	}
	sorted := slices.Compact(slices.Sorted(slices.Values(thresholds)))
	return func(e *engine) {
		e.thresholds = sorted
	}
}

func WithAlertStore(store AlertStore) Option {
	return func(e *engine) {
		if store != nil {
			e.alerts = store
		}
	}
}

func WithDispatcher(d dispatch.Dispatcher) Option {
	return func(e *engine) {
		if d != nil {
			e.dispatcher = d
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(e *engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(e *engine) {
		e.metrics = m
	}
}

type engine struct {
	store        usage.Store
	resolver     LimitResolver
	alerts       AlertStore
	dispatcher   dispatch.Dispatcher
	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      *metrics.Collector
	thresholds   []int
	maxRetries   uint64
	retryBackoff time.Duration
}

// NewEngine creates an Engine. Panics if store or resolver is nil.
func NewEngine(store usage.Store, resolver LimitResolver, opts ...Option) Engine {
	if store == nil {
		panic("metering: usage store is required")
	}
	if resolver == nil {
		panic("metering: limit resolver is required")
	}

	e := &engine{
		store:        store,
		resolver:     resolver,
		alerts:       NewMemoryAlertStore(),
		dispatcher:   dispatch.Discard,
		clock:        clockwork.NewRealClock(),
		logger:       slog.Default(),
		thresholds:   slices.Clone(DefaultThresholds),
		maxRetries:   3,
		retryBackoff: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *engine) Track(ctx context.Context, req TrackRequest) (usage.Counter, error) {
	if req.Metric == "" {
		req.Metric = usage.DefaultMetric
	}
	if req.Kind == "" {
		req.Kind = usage.OpIncrement
	}
	key := usage.Key{TenantID: req.TenantID, Feature: req.Feature, Metric: req.Metric}

	ent, err := e.resolver.Resolve(ctx, req.TenantID, req.Feature)
	if err != nil {
		return usage.Counter{}, err
	}
	if !ent.Included && req.Kind == usage.OpIncrement {
		return usage.Counter{Key: key}, fmt.Errorf("%w: %s on plan %s", ErrFeatureNotIncluded, req.Feature, ent.PlanID)
	}

	now := e.clock.Now()
	op := usage.Op{
		Kind:    req.Kind,
		Delta:   req.Amount,
		Limit:   ent.Limit,
		Enforce: req.Kind == usage.OpIncrement,
		Window:  usage.WindowFor(ent.Period, now),
		Now:     now,
	}

	var res usage.ApplyResult
	attempt := 0
	backoff := retry.WithMaxRetries(e.maxRetries, retry.NewConstant(e.retryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var applyErr error
		res, applyErr = e.store.Apply(ctx, key, op)
		if errors.Is(applyErr, usage.ErrConcurrentModification) {
			return retry.RetryableError(applyErr)
		}
		return applyErr
	})
	if err != nil {
		if errors.Is(err, usage.ErrQuotaExceeded) {
			e.metrics.UsageRejected(string(req.Feature))
			return usage.Counter{Key: key, Window: op.Window, Value: res.Previous, Limit: ent.Limit}, err
		}
		e.logger.ErrorContext(ctx, "usage tracking failed",
			logger.TenantID(req.TenantID),
			logger.Feature(string(req.Feature)),
			logger.Metric(req.Metric),
			logger.RetryCount(attempt-1),
			logger.Error(err),
		)
		return usage.Counter{}, err
	}

	e.metrics.UsageTracked(string(req.Feature), string(req.Kind), req.Amount)

	if req.Kind == usage.OpIncrement {
		e.evaluateThresholds(ctx, res, req.Context)
	}
	return res.Counter, nil
}

// evaluateThresholds records one alert per threshold crossed by the last increment.
// Alert storage failures are logged and never fail the tracked usage.
func (e *engine) evaluateThresholds(ctx context.Context, res usage.ApplyResult, reqCtx map[string]string) {
	c := res.Counter
	if c.Limit.IsUnlimited() || c.Limit <= 0 {
		return
	}

	limit := int64(c.Limit)
	for _, t := range e.thresholds {
		mark := int64(t) * limit
		if res.Previous*100 >= mark || c.Value*100 < mark {
			continue
		}

		alert := Alert{
			ID:          uuid.New(),
			Key:         c.Key,
			WindowStart: c.Window.Start,
			Threshold:   t,
			Value:       c.Value,
			Limit:       c.Limit,
			CreatedAt:   c.UpdatedAt,
		}
		inserted, err := e.alerts.Record(ctx, alert)
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to record usage alert",
				logger.TenantID(c.Key.TenantID),
				logger.Feature(string(c.Key.Feature)),
				logger.Threshold(t),
				logger.Error(err),
			)
			continue
		}
		if !inserted {
			continue
		}

		e.metrics.ThresholdAlert(string(c.Key.Feature), t)
		e.logger.InfoContext(ctx, "usage threshold crossed",
			logger.TenantID(c.Key.TenantID),
			logger.Feature(string(c.Key.Feature)),
			logger.Threshold(t),
			slog.Int64("usage", c.Value),
			slog.Int64("limit", limit),
		)

		attrs := map[string]string{
			dispatch.AttrFeature:   string(c.Key.Feature),
			dispatch.AttrMetric:    c.Key.Metric,
			dispatch.AttrThreshold: strconv.Itoa(t),
			dispatch.AttrUsage:     strconv.FormatInt(c.Value, 10),
			dispatch.AttrLimit:     c.Limit.String(),
			dispatch.AttrAlertID:   alert.ID.String(),
		}
		for k, v := range reqCtx {
			if _, reserved := attrs[k]; !reserved {
				attrs[k] = v
			}
		}
		e.dispatcher.Dispatch(ctx, dispatch.NewIntent(dispatch.KindThresholdCrossed, c.Key.TenantID, c.UpdatedAt, attrs))
	}
}

func (e *engine) CanPerform(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID, metric string, amount int64) (bool, error) {
	if amount < 0 {
		return false, usage.ErrInvalidAmount
	}
	u, err := e.GetCurrentUsage(ctx, tenantID, feature, metric)
	if err != nil {
		return false, err
	}
	if !u.Included {
		return false, nil
	}
	return u.Limit.Allows(u.Current, amount), nil
}

func (e *engine) GetCurrentUsage(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID, metric string) (Usage, error) {
	ent, err := e.resolver.Resolve(ctx, tenantID, feature)
	if err != nil {
		return Usage{}, err
	}
	return e.currentUsage(ctx, ent, tenantID, metric)
}

func (e *engine) currentUsage(ctx context.Context, ent entitlement.Entitlement, tenantID uuid.UUID, metric string) (Usage, error) {
	if metric == "" {
		metric = usage.DefaultMetric
	}
	window := usage.WindowFor(ent.Period, e.clock.Now())
	u := Usage{
		Feature:  ent.Feature,
		Metric:   metric,
		Limit:    ent.Limit,
		Included: ent.Included,
		Window:   window,
	}

	c, found, err := e.store.Get(ctx, usage.Key{TenantID: tenantID, Feature: ent.Feature, Metric: metric})
	if err != nil {
		return Usage{}, err
	}
	if found && !c.Window.Before(window) {
		u.Current = c.Value
		u.UpdatedAt = c.UpdatedAt
	}
	return u, nil
}

func (e *engine) Rollover(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID, metric string) (bool, error) {
	if metric == "" {
		metric = usage.DefaultMetric
	}
	ent, err := e.resolver.Resolve(ctx, tenantID, feature)
	if err != nil {
		return false, err
	}
	now := e.clock.Now()
	key := usage.Key{TenantID: tenantID, Feature: feature, Metric: metric}
	_, rolled, err := e.store.Rollover(ctx, key, usage.WindowFor(ent.Period, now), ent.Limit, now)
	if err != nil {
		return false, err
	}
	if rolled {
		e.logger.DebugContext(ctx, "usage counter rolled over",
			logger.TenantID(tenantID),
			logger.Feature(string(feature)),
			logger.Metric(metric),
		)
	}
	return rolled, nil
}

func (e *engine) RolloverTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	counters, err := e.store.List(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	rolled := 0
	var errs []error
	for _, c := range counters {
		ok, err := e.Rollover(ctx, tenantID, c.Key.Feature, c.Key.Metric)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			rolled++
		}
	}
	return rolled, errors.Join(errs...)
}

func (e *engine) UsageByFeature(ctx context.Context, tenantID uuid.UUID) ([]Usage, error) {
	p, err := e.resolver.ResolvePlan(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	counters, err := e.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	type fm struct {
		feature plan.FeatureID
		metric  string
	}
	seen := make(map[fm]struct{})
	var keys []fm
	for _, f := range p.Entitlements.Features() {
		k := fm{f, usage.DefaultMetric}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for _, c := range counters {
		k := fm{c.Key.Feature, c.Key.Metric}
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}

	out := make([]Usage, 0, len(keys))
	for _, k := range keys {
		ent, err := e.resolver.Resolve(ctx, tenantID, k.feature)
		if err != nil {
			return nil, err
		}
		u, err := e.currentUsage(ctx, ent, tenantID, k.metric)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}

	slices.SortFunc(out, func(a, b Usage) int {
		return cmp.Or(cmp.Compare(a.Feature, b.Feature), cmp.Compare(a.Metric, b.Metric))
	})
	return out, nil
}

func (e *engine) PendingAlerts(ctx context.Context, tenantID uuid.UUID) ([]Alert, error) {
	return e.alerts.Pending(ctx, tenantID)
}

func (e *engine) AcknowledgeAlert(ctx context.Context, alertID uuid.UUID) error {
	return e.alerts.Acknowledge(ctx, alertID)
}

func (e *engine) MarkAlertDelivered(ctx context.Context, alertID uuid.UUID) error {
	return e.alerts.MarkDelivered(ctx, alertID)
}

// TrackDelivery wraps a sink so that threshold alerts are marked delivered
// once the sink accepts them.
func TrackDelivery(e Engine, next dispatch.Sink) dispatch.Sink {
	return dispatch.SinkFunc(func(ctx context.Context, intent dispatch.Intent) error {
		if err := next.Deliver(ctx, intent); err != nil {
			return err
		}
		if intent.Kind != dispatch.KindThresholdCrossed {
			return nil
		}
		id, err := uuid.Parse(intent.Attr(dispatch.AttrAlertID))
		if err != nil {
			return nil
		}
		return e.MarkAlertDelivered(ctx, id)
	})
}
