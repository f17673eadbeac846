package billingsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/dmitrymomot/billingkit/pkg/dispatch"
	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// SubscriptionsAPI is the part of the Paddle SDK the sink calls.
type SubscriptionsAPI interface {
	CancelSubscription(ctx context.Context, req *paddle.CancelSubscriptionRequest) (*paddle.Subscription, error)
	PauseSubscription(ctx context.Context, req *paddle.PauseSubscriptionRequest) (*paddle.Subscription, error)
	ResumeSubscription(ctx context.Context, req *paddle.ResumeSubscriptionRequest) (*paddle.Subscription, error)
}

// NewClient creates a Paddle SDK client for the configured environment.
func NewClient(cfg Config) (*paddle.SDK, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: PADDLE_API_KEY is required", ErrInvalidConfig)
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("%w: unknown paddle environment %q", ErrInvalidConfig, cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}
	return client, nil
}

// Sink mirrors local lifecycle transitions onto the linked Paddle
// subscription. Intents without a provider subscription id are ignored.
type Sink struct {
	api SubscriptionsAPI
	log *slog.Logger
}

var _ dispatch.Sink = (*Sink)(nil)

type Option func(*Sink)

func WithLogger(log *slog.Logger) Option {
	return func(s *Sink) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSink panics when api is nil.
func NewSink(api SubscriptionsAPI, opts ...Option) *Sink {
	if api == nil {
		panic("billingsync: subscriptions api is required")
	}
	s := &Sink{api: api, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSinkFromConfig builds the SDK client and wraps its subscriptions API.
func NewSinkFromConfig(cfg Config, opts ...Option) (*Sink, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewSink(client.SubscriptionsClient, opts...), nil
}

// Kinds lists the intent kinds the sink acts on.
func (s *Sink) Kinds() []dispatch.Kind {
	return []dispatch.Kind{
		dispatch.KindSubscriptionPaused,
		dispatch.KindSubscriptionResumed,
		dispatch.KindSubscriptionCancelled,
	}
}

func (s *Sink) Deliver(ctx context.Context, intent dispatch.Intent) error {
	providerID := intent.Attr(dispatch.AttrProviderSubID)
	if providerID == "" {
		return nil
	}

	var err error
	switch intent.Kind {
	case dispatch.KindSubscriptionPaused:
		_, err = s.api.PauseSubscription(ctx, &paddle.PauseSubscriptionRequest{
			SubscriptionID: providerID,
			EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromImmediately),
		})
	case dispatch.KindSubscriptionResumed:
		_, err = s.api.ResumeSubscription(ctx, &paddle.ResumeSubscriptionRequest{
			SubscriptionID: providerID,
		})
	case dispatch.KindSubscriptionCancelled:
		effective := paddle.EffectiveFromNextBillingPeriod
		if intent.Attr(dispatch.AttrImmediate) == "true" {
			effective = paddle.EffectiveFromImmediately
		}
		_, err = s.api.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
			SubscriptionID: providerID,
			EffectiveFrom:  paddle.PtrTo(effective),
		})
	default:
		return nil
	}
	if err != nil {
		return errors.Join(ErrProviderCall, fmt.Errorf("%s %s: %w", intent.Kind, providerID, err))
	}

	s.log.InfoContext(ctx, "provider subscription updated",
		logger.Intent(string(intent.Kind)),
		logger.SubscriptionID(intent.SubscriptionID),
		slog.String("provider_subscription_id", providerID),
	)
	return nil
}
