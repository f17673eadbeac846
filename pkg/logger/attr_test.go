package logger_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

func TestGroup(t *testing.T) {
	t.Parallel()
	attr := logger.Group("req", slog.String("id", "1"), slog.Int("n", 2))
	require.Equal(t, "req", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "id", g[0].Key)
	assert.Equal(t, "n", g[1].Key)
}

func TestErrors(t *testing.T) {
	t.Parallel()
	err1 := errors.New("first")
	err2 := errors.New("second")

	attr := logger.Errors(err1, nil, err2)
	require.Equal(t, "errors", attr.Key)
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, err1, g[0].Value.Any())
	assert.Equal(t, err2, g[1].Value.Any())

	assert.True(t, logger.Errors(nil).Equal(slog.Attr{}))
}

func TestError(t *testing.T) {
	t.Parallel()
	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
}

func TestDomainAttrs(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	tests := []struct {
		attr slog.Attr
		key  string
	}{
		{logger.TenantID(id), "tenant_id"},
		{logger.SubscriptionID(id), "subscription_id"},
		{logger.OfferID(id), "offer_id"},
		{logger.PlanID("pro"), "plan_id"},
		{logger.Feature("seats"), "feature"},
		{logger.Metric("default"), "metric"},
		{logger.State("active"), "state"},
		{logger.Command("pause"), "command"},
		{logger.Intent("usage.threshold_crossed"), "intent"},
		{logger.Threshold(80), "threshold"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.key, tt.attr.Key)
	}

	assert.True(t, logger.TenantID(nil).Equal(slog.Attr{}))
}
