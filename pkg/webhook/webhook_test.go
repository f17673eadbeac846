package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/dispatch"
	"github.com/dmitrymomot/billingkit/pkg/webhook"
)

const secret = "whsec_test"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testIntent() dispatch.Intent {
	return dispatch.NewIntent(dispatch.KindThresholdCrossed, uuid.New(), epoch, map[string]string{
		dispatch.AttrFeature:   "api_calls",
		dispatch.AttrThreshold: "80",
	})
}

func newSink(t *testing.T, url string, opts ...webhook.Option) *webhook.Sink {
	t.Helper()
	sink, err := webhook.NewSink(webhook.Config{URL: url, Secret: secret, Timeout: time.Second}, opts...)
	require.NoError(t, err)
	return sink
}

func TestSinkDeliversSignedIntent(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(epoch)
	var received dispatch.Intent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		sig, err := webhook.ParseSignature(r.Header)
		require.NoError(t, err)
		assert.NoError(t, webhook.Verify(secret, body, sig, 5*time.Minute, epoch))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, string(dispatch.KindThresholdCrossed), r.Header.Get("X-Billingkit-Intent"))

		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	in := testIntent()
	sink := newSink(t, srv.URL, webhook.WithClock(clock))
	require.NoError(t, sink.Deliver(context.Background(), in))

	assert.Equal(t, in.ID, received.ID)
	assert.Equal(t, in.TenantID, received.TenantID)
	assert.Equal(t, "api_calls", received.Attr(dispatch.AttrFeature))
}

func TestSinkStatusHandling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		undeliverable bool
	}{
		{name: "server error is retryable", status: http.StatusBadGateway},
		{name: "rate limited is retryable", status: http.StatusTooManyRequests},
		{name: "bad request is final", status: http.StatusBadRequest, undeliverable: true},
		{name: "gone is final", status: http.StatusGone, undeliverable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			t.Cleanup(srv.Close)

			err := newSink(t, srv.URL).Deliver(context.Background(), testIntent())
			require.Error(t, err)
			if tt.undeliverable {
				assert.ErrorIs(t, err, webhook.ErrPermanentFailure)
				assert.ErrorIs(t, err, dispatch.ErrUndeliverable)
			} else {
				assert.ErrorIs(t, err, webhook.ErrDeliveryFailed)
				assert.NotErrorIs(t, err, dispatch.ErrUndeliverable)
			}
		})
	}
}

func TestSinkCircuitBreaker(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(epoch)
	var calls atomic.Int32
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cb := webhook.NewCircuitBreaker(2, 1, time.Minute, clock)
	sink := newSink(t, srv.URL, webhook.WithCircuitBreaker(cb), webhook.WithClock(clock))
	ctx := context.Background()

	assert.ErrorIs(t, sink.Deliver(ctx, testIntent()), webhook.ErrDeliveryFailed)
	assert.ErrorIs(t, sink.Deliver(ctx, testIntent()), webhook.ErrDeliveryFailed)
	assert.Equal(t, webhook.CircuitOpen, cb.State())

	err := sink.Deliver(ctx, testIntent())
	assert.True(t, webhook.IsCircuitOpen(err))
	assert.Equal(t, int32(2), calls.Load())

	clock.Advance(time.Minute)
	healthy.Store(true)
	assert.Equal(t, webhook.CircuitHalfOpen, cb.State())
	require.NoError(t, sink.Deliver(ctx, testIntent()))
	assert.Equal(t, webhook.CircuitClosed, cb.State())
}

func TestNewSinkValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  webhook.Config
	}{
		{name: "empty url", cfg: webhook.Config{Secret: secret}},
		{name: "relative url", cfg: webhook.Config{URL: "/hooks", Secret: secret}},
		{name: "ftp url", cfg: webhook.Config{URL: "ftp://example.com/hooks", Secret: secret}},
		{name: "missing secret", cfg: webhook.Config{URL: "https://example.com/hooks"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := webhook.NewSink(tt.cfg)
			assert.ErrorIs(t, err, webhook.ErrInvalidConfig)
		})
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"kind":"subscription.expired"}`)
	sig, err := webhook.Sign(secret, payload, epoch, "d1")
	require.NoError(t, err)

	assert.NoError(t, webhook.Verify(secret, payload, sig, 0, epoch.Add(time.Hour)))
	assert.ErrorIs(t, webhook.Verify("other", payload, sig, 0, epoch), webhook.ErrInvalidSignature)
	assert.ErrorIs(t, webhook.Verify(secret, []byte(`{}`), sig, 0, epoch), webhook.ErrInvalidSignature)
	assert.ErrorIs(t, webhook.Verify(secret, payload, sig, time.Minute, epoch.Add(2*time.Minute)), webhook.ErrSignatureTooOld)
	assert.ErrorIs(t, webhook.Verify(secret, payload, sig, time.Minute, epoch.Add(-2*time.Minute)), webhook.ErrSignatureTooOld)

	_, err = webhook.Sign("", payload, epoch, "d1")
	assert.ErrorIs(t, err, webhook.ErrInvalidConfig)

	h := http.Header{}
	sig.Apply(h)
	parsed, err := webhook.ParseSignature(h)
	require.NoError(t, err)
	assert.Equal(t, sig, parsed)

	_, err = webhook.ParseSignature(http.Header{})
	assert.ErrorIs(t, err, webhook.ErrMissingSignature)
}
