package plan_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

func testCatalogConfig() plan.CatalogConfig {
	return plan.CatalogConfig{
		DefaultPlanID: "free",
		Features: []plan.Feature{
			{ID: "projects", Period: plan.PeriodLifetime},
			{ID: "api_calls"},
		},
		Plans: []plan.Plan{
			{
				ID:           "pro",
				Price:        plan.Money{Amount: 2000, Currency: "USD"},
				Interval:     plan.BillingIntervalMonthly,
				Rank:         1,
				Entitlements: plan.EntitlementTable{"projects": 10, "api_calls": plan.Unlimited},
			},
			{
				ID:           "free",
				Interval:     plan.BillingIntervalNone,
				Entitlements: plan.EntitlementTable{"projects": 1},
			},
		},
	}
}

func TestNewCatalog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	catalog, err := plan.NewCatalog(testCatalogConfig())
	require.NoError(t, err)

	t.Run("lookup plan", func(t *testing.T) {
		t.Parallel()
		p, err := catalog.Plan(ctx, "pro")
		require.NoError(t, err)
		assert.Equal(t, plan.Limit(10), p.Entitlements["projects"])
	})

	t.Run("unknown plan", func(t *testing.T) {
		t.Parallel()
		_, err := catalog.Plan(ctx, "enterprise")
		assert.ErrorIs(t, err, plan.ErrPlanNotFound)
	})

	t.Run("plans sorted by rank", func(t *testing.T) {
		t.Parallel()
		plans, err := catalog.Plans(ctx)
		require.NoError(t, err)
		require.Len(t, plans, 2)
		assert.Equal(t, "free", plans[0].ID)
		assert.Equal(t, "pro", plans[1].ID)
	})

	t.Run("default plan", func(t *testing.T) {
		t.Parallel()
		p, err := catalog.DefaultPlan(ctx)
		require.NoError(t, err)
		assert.Equal(t, "free", p.ID)
	})

	t.Run("feature period defaults to monthly", func(t *testing.T) {
		t.Parallel()
		f, err := catalog.Feature(ctx, "api_calls")
		require.NoError(t, err)
		assert.Equal(t, plan.PeriodMonthly, f.Period)

		_, err = catalog.Feature(ctx, "sso")
		assert.ErrorIs(t, err, plan.ErrFeatureNotFound)
	})

	t.Run("returned plans are copies", func(t *testing.T) {
		t.Parallel()
		p, err := catalog.Plan(ctx, "free")
		require.NoError(t, err)
		p.Entitlements["projects"] = 999

		again, err := catalog.Plan(ctx, "free")
		require.NoError(t, err)
		assert.Equal(t, plan.Limit(1), again.Entitlements["projects"])
	})
}

func TestNewCatalogIsolatedFromInput(t *testing.T) {
	t.Parallel()

	cfg := testCatalogConfig()
	catalog, err := plan.NewCatalog(cfg)
	require.NoError(t, err)

	cfg.Plans[0].Entitlements["projects"] = 0

	p, err := catalog.Plan(context.Background(), "pro")
	require.NoError(t, err)
	assert.Equal(t, plan.Limit(10), p.Entitlements["projects"])
}

func TestNewCatalogValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*plan.CatalogConfig)
	}{
		{"no plans", func(c *plan.CatalogConfig) { c.Plans = nil }},
		{"missing default", func(c *plan.CatalogConfig) { c.DefaultPlanID = "gold" }},
		{"undeclared feature", func(c *plan.CatalogConfig) { c.Plans[1].Entitlements["sso"] = 1 }},
		{"negative trial", func(c *plan.CatalogConfig) { c.Plans[0].TrialDays = -1 }},
		{"invalid limit", func(c *plan.CatalogConfig) { c.Plans[0].Entitlements["projects"] = -5 }},
		{"duplicate plan", func(c *plan.CatalogConfig) { c.Plans = append(c.Plans, c.Plans[0]) }},
		{"unknown period", func(c *plan.CatalogConfig) { c.Features[0].Period = "weekly" }},
		{"unknown interval", func(c *plan.CatalogConfig) { c.Plans[0].Interval = "weekly" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testCatalogConfig()
			tt.mutate(&cfg)
			_, err := plan.NewCatalog(cfg)
			assert.ErrorIs(t, err, plan.ErrInvalidPlanConfiguration)
		})
	}
}

func TestMustNewCatalogPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { plan.MustNewCatalog(plan.CatalogConfig{}) })
}

func TestDefaultPlanNotConfigured(t *testing.T) {
	t.Parallel()

	cfg := testCatalogConfig()
	cfg.DefaultPlanID = ""
	catalog, err := plan.NewCatalog(cfg)
	require.NoError(t, err)

	_, err = catalog.DefaultPlan(context.Background())
	assert.ErrorIs(t, err, plan.ErrNoDefaultPlan)
}

func TestParseCatalog(t *testing.T) {
	t.Parallel()

	const doc = `
default_plan: free
features:
  - id: projects
    period: lifetime
  - id: api_calls
plans:
  - id: free
    interval: none
    entitlements:
      projects: 1
  - id: business
    price: {amount: 4900, currency: USD}
    interval: monthly
    trial_days: 14
    public: true
    rank: 2
    entitlements:
      projects: unlimited
      api_calls: 100000
`

	catalog, err := plan.ParseCatalog(strings.NewReader(doc))
	require.NoError(t, err)

	p, err := catalog.Plan(context.Background(), "business")
	require.NoError(t, err)
	assert.Equal(t, plan.Unlimited, p.Entitlements["projects"])
	assert.Equal(t, plan.Limit(100000), p.Entitlements["api_calls"])
	assert.Equal(t, int64(4900), p.Price.Amount)
	assert.Equal(t, 14, p.TrialDays)
	assert.True(t, p.Public)

	_, err = plan.ParseCatalog(strings.NewReader("plans: [oops"))
	assert.ErrorIs(t, err, plan.ErrFailedToLoadCatalog)

	_, err = plan.ParseCatalog(strings.NewReader("unknown_key: 1\nplans: []\n"))
	assert.ErrorIs(t, err, plan.ErrFailedToLoadCatalog)
}
