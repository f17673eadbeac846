package metering_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/dispatch"
	"github.com/dmitrymomot/billingkit/pkg/entitlement"
	"github.com/dmitrymomot/billingkit/pkg/metering"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/usage"
)

type fixture struct {
	engine  metering.Engine
	store   *usage.MemoryStore
	clock   *clockwork.FakeClock
	rec     *dispatch.Recorder
	tenants map[uuid.UUID]string
	mu      sync.Mutex
	res     entitlement.Resolver
}

func (f *fixture) setPlan(tenant uuid.UUID, planID string) {
	f.mu.Lock()
	f.tenants[tenant] = planID
	f.mu.Unlock()
	f.res.Invalidate(tenant)
}

func newFixture(t *testing.T, opts ...metering.Option) *fixture {
	t.Helper()

	catalog := plan.MustNewCatalog(plan.CatalogConfig{
		DefaultPlanID: "free",
		Features: []plan.Feature{
			{ID: "api_calls", Period: plan.PeriodMonthly},
			{ID: "projects", Period: plan.PeriodLifetime},
			{ID: "exports", Period: plan.PeriodDaily},
			{ID: "sso"},
		},
		Plans: []plan.Plan{
			{ID: "free", Interval: plan.BillingIntervalNone, Entitlements: plan.EntitlementTable{"api_calls": 100, "projects": 2}},
			{
				ID: "pro", Price: plan.Money{Amount: 2000, Currency: "USD"}, Interval: plan.BillingIntervalMonthly, Rank: 1,
				Entitlements: plan.EntitlementTable{"api_calls": 1000, "projects": plan.Unlimited, "exports": 5},
			},
		},
	})

	f := &fixture{
		store:   usage.NewMemoryStore(),
		clock:   clockwork.NewFakeClockAt(time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)),
		rec:     &dispatch.Recorder{},
		tenants: map[uuid.UUID]string{},
	}
	f.res = entitlement.NewResolver(catalog, entitlement.DirectoryFunc(func(_ context.Context, id uuid.UUID) (string, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		p, ok := f.tenants[id]
		if !ok {
			return "", entitlement.ErrTenantNotFound
		}
		return p, nil
	}), entitlement.WithCacheTTL(0))

	base := []metering.Option{metering.WithClock(f.clock), metering.WithDispatcher(f.rec)}
	f.engine = metering.NewEngine(f.store, f.res, append(base, opts...)...)
	return f
}

func (f *fixture) tenant(planID string) uuid.UUID {
	id := uuid.New()
	f.setPlan(id, planID)
	return id
}

func track(feature plan.FeatureID, tenant uuid.UUID, amount int64) metering.TrackRequest {
	return metering.TrackRequest{TenantID: tenant, Feature: feature, Amount: amount}
}

func TestTrack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("increments and reads back", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tenant := f.tenant("free")

		c, err := f.engine.Track(ctx, track("api_calls", tenant, 10))
		require.NoError(t, err)
		assert.Equal(t, int64(10), c.Value)
		assert.Equal(t, usage.DefaultMetric, c.Key.Metric)

		u, err := f.engine.GetCurrentUsage(ctx, tenant, "api_calls", "")
		require.NoError(t, err)
		assert.Equal(t, int64(10), u.Current)
		assert.Equal(t, plan.Limit(100), u.Limit)
		assert.Equal(t, int64(90), u.Remaining())
	})

	t.Run("rejects increments over the limit without mutation", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tenant := f.tenant("free")

		_, err := f.engine.Track(ctx, track("projects", tenant, 2))
		require.NoError(t, err)

		c, err := f.engine.Track(ctx, track("projects", tenant, 1))
		require.ErrorIs(t, err, usage.ErrQuotaExceeded)
		assert.Equal(t, int64(2), c.Value)

		u, err := f.engine.GetCurrentUsage(ctx, tenant, "projects", "")
		require.NoError(t, err)
		assert.Equal(t, int64(2), u.Current)
	})

	t.Run("feature not in plan", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tenant := f.tenant("free")

		_, err := f.engine.Track(ctx, track("sso", tenant, 1))
		require.ErrorIs(t, err, metering.ErrFeatureNotIncluded)
	})

	t.Run("decrement floors at zero", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tenant := f.tenant("free")

		_, err := f.engine.Track(ctx, track("projects", tenant, 1))
		require.NoError(t, err)
		c, err := f.engine.Track(ctx, metering.TrackRequest{TenantID: tenant, Feature: "projects", Amount: 5, Kind: usage.OpDecrement})
		require.NoError(t, err)
		assert.Equal(t, int64(0), c.Value)
	})

	t.Run("negative amount", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.engine.Track(ctx, track("api_calls", f.tenant("free"), -1))
		require.ErrorIs(t, err, usage.ErrInvalidAmount)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.engine.Track(ctx, track("api_calls", uuid.New(), 1))
		require.ErrorIs(t, err, entitlement.ErrTenantNotFound)
	})
}

func TestWindowRollover(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	tenant := f.tenant("free")

	_, err := f.engine.Track(ctx, track("api_calls", tenant, 100))
	require.NoError(t, err)
	ok, err := f.engine.CanPerform(ctx, tenant, "api_calls", "", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	f.clock.Advance(31 * 24 * time.Hour) // into June

	u, err := f.engine.GetCurrentUsage(ctx, tenant, "api_calls", "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.Current, "stale window reads as zero")

	ok, err = f.engine.CanPerform(ctx, tenant, "api_calls", "", 100)
	require.NoError(t, err)
	assert.True(t, ok)

	rolled, err := f.engine.Rollover(ctx, tenant, "api_calls", "")
	require.NoError(t, err)
	assert.True(t, rolled)

	rolled, err = f.engine.Rollover(ctx, tenant, "api_calls", "")
	require.NoError(t, err)
	assert.False(t, rolled, "rollover is idempotent")

	c, err := f.engine.Track(ctx, track("api_calls", tenant, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Value, "no carryover")
}

func TestLifetimeCountersNeverRoll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	tenant := f.tenant("free")

	_, err := f.engine.Track(ctx, track("projects", tenant, 2))
	require.NoError(t, err)
	f.clock.Advance(400 * 24 * time.Hour)

	n, err := f.engine.RolloverTenant(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	u, err := f.engine.GetCurrentUsage(ctx, tenant, "projects", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), u.Current)
}

func TestRolloverTenant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	tenant := f.tenant("pro")

	_, err := f.engine.Track(ctx, track("api_calls", tenant, 5))
	require.NoError(t, err)
	_, err = f.engine.Track(ctx, track("exports", tenant, 2))
	require.NoError(t, err)
	_, err = f.engine.Track(ctx, track("projects", tenant, 9))
	require.NoError(t, err)

	f.clock.Advance(31 * 24 * time.Hour)

	n, err := f.engine.RolloverTenant(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.engine.RolloverTenant(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCanPerform(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	pro := f.tenant("pro")
	free := f.tenant("free")

	ok, err := f.engine.CanPerform(ctx, pro, "projects", "", 1_000_000)
	require.NoError(t, err)
	assert.True(t, ok, "unlimited")

	ok, err = f.engine.CanPerform(ctx, free, "exports", "", 1)
	require.NoError(t, err)
	assert.False(t, ok, "not included")

	ok, err = f.engine.CanPerform(ctx, free, "projects", "", 2)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.engine.CanPerform(ctx, free, "projects", "", -1)
	require.ErrorIs(t, err, usage.ErrInvalidAmount)

	counters, err := f.store.List(ctx, free)
	require.NoError(t, err)
	assert.Empty(t, counters, "CanPerform never writes")
}

func TestThresholdAlerts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	tenant := f.tenant("free")

	_, err := f.engine.Track(ctx, track("api_calls", tenant, 79))
	require.NoError(t, err)
	assert.Empty(t, f.rec.Intents())

	// 79 -> 96 crosses both 80 and 95 in one step.
	_, err = f.engine.Track(ctx, metering.TrackRequest{
		TenantID: tenant, Feature: "api_calls", Amount: 17,
		Context: map[string]string{"source": "api", dispatch.AttrFeature: "spoofed"},
	})
	require.NoError(t, err)

	intents := f.rec.Intents()
	require.Len(t, intents, 2)
	assert.Equal(t, "80", intents[0].Attr(dispatch.AttrThreshold))
	assert.Equal(t, "95", intents[1].Attr(dispatch.AttrThreshold))
	assert.Equal(t, "api_calls", intents[0].Attr(dispatch.AttrFeature))
	assert.Equal(t, "api", intents[0].Attr("source"))
	assert.Equal(t, dispatch.KindThresholdCrossed, intents[0].Kind)

	_, err = f.engine.Track(ctx, track("api_calls", tenant, 4))
	require.NoError(t, err)
	assert.Len(t, f.rec.Intents(), 3, "100% crossed")

	// Dropping below and crossing again in the same window does not re-alert.
	_, err = f.engine.Track(ctx, metering.TrackRequest{TenantID: tenant, Feature: "api_calls", Amount: 30, Kind: usage.OpDecrement})
	require.NoError(t, err)
	_, err = f.engine.Track(ctx, track("api_calls", tenant, 30))
	require.NoError(t, err)
	assert.Len(t, f.rec.Intents(), 3)

	alerts, err := f.engine.PendingAlerts(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	require.NoError(t, f.engine.AcknowledgeAlert(ctx, alerts[0].ID))
	require.NoError(t, f.engine.MarkAlertDelivered(ctx, alerts[1].ID))
	alerts, err = f.engine.PendingAlerts(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	require.ErrorIs(t, f.engine.AcknowledgeAlert(ctx, uuid.New()), metering.ErrAlertNotFound)

	// A new window may alert again.
	f.clock.Advance(31 * 24 * time.Hour)
	_, err = f.engine.Track(ctx, track("api_calls", tenant, 80))
	require.NoError(t, err)
	assert.Len(t, f.rec.Intents(), 4)
}

func TestNoAlertsForUnlimited(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tenant := f.tenant("pro")
	_, err := f.engine.Track(context.Background(), track("projects", tenant, 1_000))
	require.NoError(t, err)
	assert.Empty(t, f.rec.Intents())
}

func TestCustomThresholds(t *testing.T) {
	t.Parallel()

	f := newFixture(t, metering.WithThresholds(50, 50, 10))
	tenant := f.tenant("free")

	_, err := f.engine.Track(context.Background(), track("api_calls", tenant, 60))
	require.NoError(t, err)
	assert.Len(t, f.rec.Intents(), 2)

	assert.Panics(t, func() { metering.WithThresholds(0) })
	assert.Panics(t, func() { newFixture(t, metering.WithThresholds(101)) })
}

func TestUsageByFeature(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	tenant := f.tenant("pro")

	_, err := f.engine.Track(ctx, track("api_calls", tenant, 10))
	require.NoError(t, err)
	_, err = f.engine.Track(ctx, metering.TrackRequest{TenantID: tenant, Feature: "api_calls", Metric: "batch", Amount: 3})
	require.NoError(t, err)

	list, err := f.engine.UsageByFeature(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, list, 4)

	assert.Equal(t, plan.FeatureID("api_calls"), list[0].Feature)
	assert.Equal(t, "batch", list[0].Metric)
	assert.Equal(t, int64(3), list[0].Current)
	assert.Equal(t, usage.DefaultMetric, list[1].Metric)
	assert.Equal(t, int64(10), list[1].Current)
	assert.Equal(t, plan.FeatureID("exports"), list[2].Feature)
	assert.Equal(t, plan.FeatureID("projects"), list[3].Feature)
	assert.True(t, list[3].Unlimited())
	assert.Equal(t, int64(-1), list[3].Remaining())
}

func TestConcurrentTrackNeverOvershoots(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tenant := f.tenant("free")

	var wg sync.WaitGroup
	for range 150 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.engine.Track(context.Background(), track("api_calls", tenant, 1))
		}()
	}
	wg.Wait()

	u, err := f.engine.GetCurrentUsage(context.Background(), tenant, "api_calls", "")
	require.NoError(t, err)
	assert.Equal(t, int64(100), u.Current)
	assert.Len(t, f.rec.Intents(), 3, "each threshold alerts exactly once")
}

func TestTrackDelivery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	tenant := f.tenant("free")
	_, err := f.engine.Track(ctx, track("api_calls", tenant, 80))
	require.NoError(t, err)

	sink := metering.TrackDelivery(f.engine, &dispatch.Recorder{})
	for _, in := range f.rec.Intents() {
		require.NoError(t, sink.Deliver(ctx, in))
	}

	alerts, err := f.engine.PendingAlerts(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Delivered)
}

// conflictStore fails the first Apply calls with a concurrency conflict.
type conflictStore struct {
	*usage.MemoryStore
	mu        sync.Mutex
	conflicts int
}

func (s *conflictStore) Apply(ctx context.Context, key usage.Key, op usage.Op) (usage.ApplyResult, error) {
	s.mu.Lock()
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return usage.ApplyResult{}, usage.ErrConcurrentModification
	}
	s.mu.Unlock()
	return s.MemoryStore.Apply(ctx, key, op)
}

func TestTrackRetriesConcurrentModification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tenant := uuid.New()
	catalog := plan.MustNewCatalog(plan.CatalogConfig{
		DefaultPlanID: "free",
		Features:      []plan.Feature{{ID: "api_calls"}},
		Plans:         []plan.Plan{{ID: "free", Interval: plan.BillingIntervalNone, Entitlements: plan.EntitlementTable{"api_calls": 10}}},
	})
	res := entitlement.NewResolver(catalog, entitlement.DirectoryFunc(func(context.Context, uuid.UUID) (string, error) { return "", nil }))

	t.Run("recovers within budget", func(t *testing.T) {
		t.Parallel()
		store := &conflictStore{MemoryStore: usage.NewMemoryStore(), conflicts: 2}
		e := metering.NewEngine(store, res, metering.WithConfig(metering.Config{MaxRetries: 3, RetryBackoff: time.Millisecond}))
		c, err := e.Track(ctx, track("api_calls", tenant, 1))
		require.NoError(t, err)
		assert.Equal(t, int64(1), c.Value)
	})

	t.Run("surfaces after budget", func(t *testing.T) {
		t.Parallel()
		store := &conflictStore{MemoryStore: usage.NewMemoryStore(), conflicts: 10}
		e := metering.NewEngine(store, res, metering.WithConfig(metering.Config{MaxRetries: 2, RetryBackoff: time.Millisecond}))
		_, err := e.Track(ctx, track("api_calls", tenant, 1))
		require.ErrorIs(t, err, usage.ErrConcurrentModification)
	})
}
