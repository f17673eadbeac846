package plan_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

func TestLimit(t *testing.T) {
	t.Parallel()

	t.Run("allows within limit", func(t *testing.T) {
		t.Parallel()
		l := plan.Limit(10)
		assert.True(t, l.Allows(9, 1))
		assert.False(t, l.Allows(10, 1))
		assert.True(t, l.Allows(0, 10))
	})

	t.Run("huge amounts do not wrap", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			name    string
			limit   plan.Limit
			current int64
			amount  int64
			want    bool
		}{
			{name: "max amount on small limit", limit: 5, current: 1, amount: math.MaxInt64, want: false},
			{name: "max amount on empty counter", limit: 5, current: 0, amount: math.MaxInt64, want: false},
			{name: "max current", limit: 5, current: math.MaxInt64, amount: 1, want: false},
			{name: "max limit fits", limit: math.MaxInt64, current: 1, amount: math.MaxInt64 - 1, want: true},
			{name: "max limit overflows", limit: math.MaxInt64, current: 2, amount: math.MaxInt64 - 1, want: false},
		}
		for _, tt := range tests {
			assert.Equal(t, tt.want, tt.limit.Allows(tt.current, tt.amount), tt.name)
		}
	})

	t.Run("unlimited allows anything", func(t *testing.T) {
		t.Parallel()
		assert.True(t, plan.Unlimited.Allows(1<<40, 1<<20))
		assert.Equal(t, int64(-1), plan.Unlimited.Remaining(100))
	})

	t.Run("remaining never negative", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, int64(3), plan.Limit(5).Remaining(2))
		assert.Equal(t, int64(0), plan.Limit(5).Remaining(7))
	})
}

func TestParseLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    plan.Limit
		wantErr bool
	}{
		{in: "10", want: 10},
		{in: "0", want: 0},
		{in: "unlimited", want: plan.Unlimited},
		{in: "Unlimited", want: plan.Unlimited},
		{in: "-1", want: plan.Unlimited},
		{in: "-2", wantErr: true},
		{in: "lots", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := plan.ParseLimit(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, plan.ErrInvalidLimit)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLimitYAML(t *testing.T) {
	t.Parallel()

	var table plan.EntitlementTable
	require.NoError(t, yaml.Unmarshal([]byte("projects: 5\napi_calls: unlimited\n"), &table))
	assert.Equal(t, plan.Limit(5), table["projects"])
	assert.Equal(t, plan.Unlimited, table["api_calls"])

	out, err := yaml.Marshal(table)
	require.NoError(t, err)
	assert.Contains(t, string(out), "api_calls: unlimited")
}

func TestEntitlementTable(t *testing.T) {
	t.Parallel()

	table := plan.EntitlementTable{"b": 1, "a": plan.Unlimited}
	assert.Equal(t, []plan.FeatureID{"a", "b"}, table.Features())
	assert.True(t, table.Includes("a"))
	assert.False(t, table.Includes("c"))

	clone := table.Clone()
	clone["c"] = 3
	assert.False(t, table.Includes("c"))

	var nilTable plan.EntitlementTable
	assert.NotNil(t, nilTable.Clone())
}

func TestPeriodBounds(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, time.March, 15, 13, 45, 0, 0, time.UTC)

	tests := []struct {
		period     plan.Period
		start, end time.Time
	}{
		{plan.PeriodDaily, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)},
		{plan.PeriodMonthly, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		{plan.PeriodYearly, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{plan.PeriodLifetime, time.Time{}, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			t.Parallel()
			start, end := tt.period.Bounds(ts)
			assert.True(t, tt.start.Equal(start), "start %s", start)
			assert.True(t, tt.end.Equal(end), "end %s", end)
		})
	}
}

func TestBillingIntervalMonths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, plan.BillingIntervalMonthly.Months())
	assert.Equal(t, 12, plan.BillingIntervalAnnual.Months())
	assert.Zero(t, plan.BillingIntervalNone.Months())
}

func TestPlan(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)

	t.Run("trial end", func(t *testing.T) {
		t.Parallel()
		p := plan.Plan{TrialDays: 14}
		assert.True(t, p.HasTrial())
		assert.Equal(t, start.AddDate(0, 0, 14), p.TrialEndsAt(start))
		assert.Equal(t, start, plan.Plan{}.TrialEndsAt(start))
	})

	t.Run("monthly price", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, int64(2000), plan.Plan{Price: plan.Money{Amount: 2000}, Interval: plan.BillingIntervalMonthly}.MonthlyPrice())
		assert.Equal(t, int64(1000), plan.Plan{Price: plan.Money{Amount: 12000}, Interval: plan.BillingIntervalAnnual}.MonthlyPrice())
		assert.Equal(t, int64(0), plan.Plan{Interval: plan.BillingIntervalNone}.MonthlyPrice())
	})

	t.Run("period end", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, start.AddDate(1, 0, 0), plan.BillingIntervalAnnual.PeriodEnd(start))
		assert.Equal(t, start.AddDate(0, 1, 0), plan.BillingIntervalMonthly.PeriodEnd(start))
	})

	t.Run("covers", func(t *testing.T) {
		t.Parallel()
		p := plan.Plan{Entitlements: plan.EntitlementTable{"seats": 5, "api": plan.Unlimited}}
		assert.True(t, p.Covers("seats", 5))
		assert.False(t, p.Covers("seats", 6))
		assert.True(t, p.Covers("api", 1<<30))
		assert.False(t, p.Covers("sso", 1))
	})
}

func TestMoney(t *testing.T) {
	t.Parallel()

	formatted := plan.Money{Amount: 4999, Currency: "USD"}.Format(language.English)
	assert.Contains(t, formatted, "$")
	assert.Contains(t, formatted, "49.99")
	assert.Equal(t, "5 XYZ", plan.Money{Amount: 5, Currency: "XYZ"}.String())
	assert.True(t, plan.Money{}.SameCurrency(plan.Money{Amount: 10, Currency: "EUR"}))
	assert.True(t, plan.Money{Amount: 1, Currency: "usd"}.SameCurrency(plan.Money{Amount: 2, Currency: "USD"}))
	assert.False(t, plan.Money{Amount: 1, Currency: "USD"}.SameCurrency(plan.Money{Amount: 2, Currency: "EUR"}))
}

func TestComparePlans(t *testing.T) {
	t.Parallel()

	current := plan.Plan{Entitlements: plan.EntitlementTable{
		"projects": 10,
		"api":      plan.Unlimited,
		"sso":      1,
		"storage":  100,
	}}
	target := plan.Plan{Entitlements: plan.EntitlementTable{
		"projects": 5,
		"api":      1000,
		"storage":  plan.Unlimited,
		"audit":    1,
	}}

	cmp := plan.ComparePlans(current, target)
	assert.Equal(t, []plan.FeatureID{"audit"}, cmp.NewFeatures)
	assert.Equal(t, []plan.FeatureID{"sso"}, cmp.LostFeatures)
	assert.Contains(t, cmp.DecreasedLimits, plan.FeatureID("projects"))
	assert.Contains(t, cmp.DecreasedLimits, plan.FeatureID("api"))
	assert.Equal(t, plan.LimitChange{From: 100, To: plan.Unlimited}, cmp.IncreasedLimits["storage"])
	assert.True(t, cmp.IsDowngrade())

	assert.False(t, plan.ComparePlans(current, current).IsDowngrade())
}
