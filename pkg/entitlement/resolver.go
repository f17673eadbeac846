package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/billingkit/pkg/cache"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/metrics"
	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// TenantDirectory maps tenants to their current plan.
// An empty plan ID means the tenant has no plan and gets the catalog default.
// Unknown tenants must be reported with ErrTenantNotFound.
type TenantDirectory interface {
	PlanID(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// DirectoryFunc adapts a function to TenantDirectory.
type DirectoryFunc func(ctx context.Context, tenantID uuid.UUID) (string, error)

func (f DirectoryFunc) PlanID(ctx context.Context, tenantID uuid.UUID) (string, error) {
	return f(ctx, tenantID)
}

// Entitlement is a tenant's access to one feature under its current plan.
type Entitlement struct {
	Feature  plan.FeatureID
	Included bool
	Limit    plan.Limit  // meaningful only when Included
	Period   plan.Period // metering window of the feature
	PlanID   string
}

// Resolver answers "what does this tenant's plan allow".
type Resolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID) (Entitlement, error)
	ResolvePlan(ctx context.Context, tenantID uuid.UUID) (plan.Plan, error)
	// Invalidate drops any cached plan for the tenant. Called after plan or state changes.
	Invalidate(tenantID uuid.UUID)
}

// Config holds resolver settings loadable from the environment.
type Config struct {
	CacheTTL  time.Duration `env:"ENTITLEMENT_CACHE_TTL" envDefault:"5s"`
	CacheSize int           `env:"ENTITLEMENT_CACHE_SIZE" envDefault:"10000"`
}

// Option configures the resolver.
type Option func(*resolver)

func WithConfig(cfg Config) Option {
	return func(r *resolver) {
		r.cacheTTL = cfg.CacheTTL
		if cfg.CacheSize > 0 {
			r.cacheSize = cfg.CacheSize
		}
	}
}

// WithCacheTTL bounds how long a tenant's plan ID is reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *resolver) {
		r.cacheTTL = ttl
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(r *resolver) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(r *resolver) {
		r.metrics = m
	}
}

type resolver struct {
	catalog   plan.Catalog
	directory TenantDirectory
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *metrics.Collector
	cacheTTL  time.Duration
	cacheSize int

	planIDs *cache.TTLCache[uuid.UUID, string]
	group   singleflight.Group
	// epoch changes on every Invalidate; lookups that started under an older
	// epoch do not populate the cache.
	epoch atomic.Uint64
}

// NewResolver creates a Resolver. Panics if catalog or directory is nil.
func NewResolver(catalog plan.Catalog, directory TenantDirectory, opts ...Option) Resolver {
	if catalog == nil {
		panic("entitlement: plan catalog is required")
	}
	if directory == nil {
		panic("entitlement: tenant directory is required")
	}

	r := &resolver{
		catalog:   catalog,
		directory: directory,
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
		cacheTTL:  5 * time.Second,
		cacheSize: 10_000,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.cacheTTL > 0 {
		r.planIDs = cache.New[uuid.UUID, string](r.cacheSize, r.cacheTTL, cache.WithClock(r.clock))
	}
	return r
}

func (r *resolver) Resolve(ctx context.Context, tenantID uuid.UUID, feature plan.FeatureID) (Entitlement, error) {
	p, err := r.ResolvePlan(ctx, tenantID)
	if err != nil {
		return Entitlement{}, err
	}

	ent := Entitlement{Feature: feature, PlanID: p.ID, Period: plan.PeriodMonthly}

	f, err := r.catalog.Feature(ctx, feature)
	switch {
	case errors.Is(err, plan.ErrFeatureNotFound):
		// Unknown features are never included.
		return ent, nil
	case err != nil:
		return Entitlement{}, errors.Join(ErrResolveFailed, err)
	}
	ent.Period = f.Period

	ent.Limit, ent.Included = p.Limit(feature)
	return ent, nil
}

func (r *resolver) ResolvePlan(ctx context.Context, tenantID uuid.UUID) (plan.Plan, error) {
	planID, err := r.planID(ctx, tenantID)
	if err != nil {
		return plan.Plan{}, err
	}

	if planID == "" {
		p, err := r.catalog.DefaultPlan(ctx)
		if err != nil {
			return plan.Plan{}, errors.Join(ErrResolveFailed, err)
		}
		return p, nil
	}

	p, err := r.catalog.Plan(ctx, planID)
	if err != nil {
		return plan.Plan{}, errors.Join(ErrResolveFailed, err)
	}
	return p, nil
}

func (r *resolver) Invalidate(tenantID uuid.UUID) {
	r.epoch.Add(1)
	if r.planIDs != nil {
		r.planIDs.Remove(tenantID)
	}
	r.group.Forget(tenantID.String())
}

func (r *resolver) planID(ctx context.Context, tenantID uuid.UUID) (string, error) {
	if r.planIDs != nil {
		if id, ok := r.planIDs.Get(tenantID); ok {
			r.metrics.PlanLookup(true)
			return id, nil
		}
	}
	r.metrics.PlanLookup(false)

	v, err, _ := r.group.Do(tenantID.String(), func() (any, error) {
		epoch := r.epoch.Load()
		id, err := r.directory.PlanID(ctx, tenantID)
		if err != nil {
			return "", err
		}
		if r.planIDs != nil && r.epoch.Load() == epoch {
			r.planIDs.Put(tenantID, id)
		}
		return id, nil
	})
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return "", err
		}
		r.logger.ErrorContext(ctx, "tenant plan lookup failed",
			logger.TenantID(tenantID),
			logger.Error(err),
		)
		return "", fmt.Errorf("%w: tenant %s: %w", ErrResolveFailed, tenantID, err)
	}
	return v.(string), nil
}
