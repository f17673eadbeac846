package entitlement_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/entitlement"
	"github.com/dmitrymomot/billingkit/pkg/plan"
)

func testCatalog(t *testing.T) plan.Catalog {
	t.Helper()
	return plan.MustNewCatalog(plan.CatalogConfig{
		DefaultPlanID: "free",
		Features: []plan.Feature{
			{ID: "projects", Period: plan.PeriodLifetime},
			{ID: "api_calls", Period: plan.PeriodMonthly},
			{ID: "sso"},
		},
		Plans: []plan.Plan{
			{ID: "free", Interval: plan.BillingIntervalNone, Entitlements: plan.EntitlementTable{"projects": 3}},
			{
				ID: "pro", Price: plan.Money{Amount: 2000, Currency: "USD"}, Interval: plan.BillingIntervalMonthly, Rank: 1,
				Entitlements: plan.EntitlementTable{"projects": plan.Unlimited, "api_calls": 1000},
			},
		},
	})
}

// countingDirectory records how many times the backing lookup ran.
type countingDirectory struct {
	mu    sync.Mutex
	plans map[uuid.UUID]string
	calls atomic.Int32
	delay time.Duration
}

func (d *countingDirectory) PlanID(_ context.Context, tenantID uuid.UUID) (string, error) {
	d.calls.Add(1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.plans[tenantID]
	if !ok {
		return "", entitlement.ErrTenantNotFound
	}
	return id, nil
}

func (d *countingDirectory) set(tenantID uuid.UUID, planID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plans[tenantID] = planID
}

func TestResolve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	pro, free := uuid.New(), uuid.New()
	dir := &countingDirectory{plans: map[uuid.UUID]string{pro: "pro", free: ""}}
	r := entitlement.NewResolver(testCatalog(t), dir)

	tests := []struct {
		name     string
		tenant   uuid.UUID
		feature  plan.FeatureID
		included bool
		limit    plan.Limit
		period   plan.Period
		planID   string
	}{
		{"limited feature", pro, "api_calls", true, 1000, plan.PeriodMonthly, "pro"},
		{"unlimited feature", pro, "projects", true, plan.Unlimited, plan.PeriodLifetime, "pro"},
		{"declared but not included", pro, "sso", false, 0, plan.PeriodMonthly, "pro"},
		{"unknown feature", pro, "teleport", false, 0, plan.PeriodMonthly, "pro"},
		{"default plan fallback", free, "projects", true, 3, plan.PeriodLifetime, "free"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ent, err := r.Resolve(ctx, tt.tenant, tt.feature)
			require.NoError(t, err)
			assert.Equal(t, tt.included, ent.Included)
			assert.Equal(t, tt.period, ent.Period)
			assert.Equal(t, tt.planID, ent.PlanID)
			if tt.included {
				assert.Equal(t, tt.limit, ent.Limit)
			}
		})
	}
}

func TestResolveUnknownTenant(t *testing.T) {
	t.Parallel()

	r := entitlement.NewResolver(testCatalog(t), &countingDirectory{plans: map[uuid.UUID]string{}})
	_, err := r.Resolve(context.Background(), uuid.New(), "projects")
	require.ErrorIs(t, err, entitlement.ErrTenantNotFound)
}

func TestResolveUnknownPlan(t *testing.T) {
	t.Parallel()

	tenant := uuid.New()
	r := entitlement.NewResolver(testCatalog(t), &countingDirectory{plans: map[uuid.UUID]string{tenant: "gold"}})
	_, err := r.ResolvePlan(context.Background(), tenant)
	require.ErrorIs(t, err, entitlement.ErrResolveFailed)
	require.ErrorIs(t, err, plan.ErrPlanNotFound)
}

func TestResolveDirectoryFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	dir := entitlement.DirectoryFunc(func(context.Context, uuid.UUID) (string, error) { return "", boom })
	r := entitlement.NewResolver(testCatalog(t), dir)

	_, err := r.Resolve(context.Background(), uuid.New(), "projects")
	require.ErrorIs(t, err, entitlement.ErrResolveFailed)
	require.ErrorIs(t, err, boom)
}

func TestResolverCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tenant := uuid.New()
	clock := clockwork.NewFakeClock()
	dir := &countingDirectory{plans: map[uuid.UUID]string{tenant: "free"}}
	r := entitlement.NewResolver(testCatalog(t), dir,
		entitlement.WithClock(clock),
		entitlement.WithCacheTTL(5*time.Second),
	)

	p, err := r.ResolvePlan(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, "free", p.ID)

	dir.set(tenant, "pro")

	p, err = r.ResolvePlan(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, "free", p.ID, "served from cache")
	assert.Equal(t, int32(1), dir.calls.Load())

	clock.Advance(5 * time.Second)
	p, err = r.ResolvePlan(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, "pro", p.ID, "expired entry is refreshed")

	dir.set(tenant, "free")
	r.Invalidate(tenant)
	p, err = r.ResolvePlan(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, "free", p.ID, "invalidate forces a reload")
	assert.Equal(t, int32(3), dir.calls.Load())
}

func TestResolverCollapsesConcurrentMisses(t *testing.T) {
	t.Parallel()

	tenant := uuid.New()
	dir := &countingDirectory{plans: map[uuid.UUID]string{tenant: "pro"}, delay: 50 * time.Millisecond}
	r := entitlement.NewResolver(testCatalog(t), dir)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(context.Background(), tenant, "api_calls")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Less(t, dir.calls.Load(), int32(20))
}

func TestNewResolverPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { entitlement.NewResolver(nil, &countingDirectory{}) })
	assert.Panics(t, func() { entitlement.NewResolver(testCatalog(t), nil) })
}
