package billingsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/lifecycle"
	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// RequestVerifier checks the signature of an inbound webhook request.
// *paddle.WebhookVerifier satisfies it.
type RequestVerifier interface {
	Verify(req *http.Request) (bool, error)
}

// Event is the subset of a Paddle notification billingkit cares about.
type Event struct {
	ID            string
	Type          string
	OccurredAt    time.Time
	ProviderSubID string
	Status        string
	CustomData    map[string]any
}

// WebhookParser verifies and decodes Paddle notifications.
type WebhookParser struct {
	verifier RequestVerifier
}

// NewWebhookParser verifies with the configured secret.
func NewWebhookParser(cfg Config) (*WebhookParser, error) {
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: PADDLE_WEBHOOK_SECRET is required", ErrInvalidConfig)
	}
	return NewWebhookParserWithVerifier(paddle.NewWebhookVerifier(cfg.WebhookSecret)), nil
}

// NewWebhookParserWithVerifier panics when v is nil.
func NewWebhookParserWithVerifier(v RequestVerifier) *WebhookParser {
	if v == nil {
		panic("billingsync: webhook verifier is required")
	}
	return &WebhookParser{verifier: v}
}

// Parse verifies the request signature and decodes the payload.
func (p *WebhookParser) Parse(req *http.Request) (Event, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return Event{}, errors.Join(ErrInvalidPayload, err)
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return Event{}, errors.Join(ErrInvalidSignature, err)
	}
	if !valid {
		return Event{}, ErrInvalidSignature
	}

	var raw struct {
		EventID    string    `json:"event_id"`
		EventType  string    `json:"event_type"`
		OccurredAt time.Time `json:"occurred_at"`
		Data       struct {
			ID         string         `json:"id"`
			Status     string         `json:"status"`
			CustomData map[string]any `json:"custom_data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, errors.Join(ErrInvalidPayload, err)
	}
	if raw.EventType == "" {
		return Event{}, fmt.Errorf("%w: missing event_type", ErrInvalidPayload)
	}

	return Event{
		ID:            raw.EventID,
		Type:          raw.EventType,
		OccurredAt:    raw.OccurredAt,
		ProviderSubID: raw.Data.ID,
		Status:        raw.Data.Status,
		CustomData:    raw.Data.CustomData,
	}, nil
}

// Linker records the provider id on a local subscription.
// lifecycle.Service satisfies it.
type Linker interface {
	LinkProvider(ctx context.Context, id uuid.UUID, providerSubID string) (lifecycle.Subscription, error)
}

// Reconciler links Paddle subscriptions to local ones. The local id travels
// in the checkout's custom data.
type Reconciler struct {
	linker Linker
	key    string
	log    *slog.Logger
}

type ReconcilerOption func(*Reconciler)

// WithCustomDataKey changes the custom_data field holding the local id.
func WithCustomDataKey(key string) ReconcilerOption {
	return func(r *Reconciler) {
		if key != "" {
			r.key = key
		}
	}
}

func WithReconcilerLogger(log *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// NewReconciler panics when linker is nil.
func NewReconciler(linker Linker, opts ...ReconcilerOption) *Reconciler {
	if linker == nil {
		panic("billingsync: linker is required")
	}
	r := &Reconciler{linker: linker, key: "subscription_id", log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply links the subscription named in a subscription.created or
// subscription.activated event. Other events are ignored.
func (r *Reconciler) Apply(ctx context.Context, ev Event) error {
	switch ev.Type {
	case "subscription.created", "subscription.activated":
	default:
		return nil
	}

	raw, _ := ev.CustomData[r.key].(string)
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || ev.ProviderSubID == "" {
		return fmt.Errorf("%w: event %s", ErrMissingReference, ev.ID)
	}

	if _, err := r.linker.LinkProvider(ctx, id, ev.ProviderSubID); err != nil {
		return err
	}
	r.log.InfoContext(ctx, "provider subscription linked",
		logger.SubscriptionID(id),
		slog.String("provider_subscription_id", ev.ProviderSubID),
		slog.String("event", ev.Type),
	)
	return nil
}
