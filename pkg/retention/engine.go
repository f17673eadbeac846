package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/metrics"
)

// Engine creates and settles retention offers.
type Engine interface {
	// MaybeCreateOffer returns the offer for the candidate's cancellation,
	// creating it when the policy grants one. Repeated calls for the same
	// cancellation return the same offer. Returns nil when no offer applies.
	MaybeCreateOffer(ctx context.Context, c Candidate) (*Offer, error)
	// Accept consumes a pending offer.
	Accept(ctx context.Context, offerID uuid.UUID) (*Offer, error)
	// Release returns an accepted offer to pending. Used when the
	// subscription change that consumed it could not be committed.
	Release(ctx context.Context, offerID uuid.UUID) error
	// ExpireStale marks pending offers past their validity as expired.
	ExpireStale(ctx context.Context) (int, error)
	Get(ctx context.Context, offerID uuid.UUID) (*Offer, error)
}

// Config holds environment-driven settings.
type Config struct {
	OfferValidity time.Duration `env:"RETENTION_OFFER_VALIDITY" envDefault:"168h"`
}

type Option func(*engine)

func WithConfig(cfg Config) Option {
	return func(e *engine) {
		if cfg.OfferValidity > 0 {
			e.validity = cfg.OfferValidity
		}
	}
}

func WithValidity(d time.Duration) Option {
	return func(e *engine) {
		if d > 0 {
			e.validity = d
		}
	}
}

func WithPolicy(p Policy) Option {
	return func(e *engine) {
		if p != nil {
			e.policy = p
		}
	}
}

func WithStore(s Store) Option {
	return func(e *engine) {
		if s != nil {
			e.store = s
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(e *engine) {
		if c != nil {
			e.clock = c
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
	store    Store
	policy   Policy
	validity time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// NewEngine creates an Engine backed by an in-memory store and DefaultPolicy
// unless options say otherwise.
func NewEngine(opts ...Option) Engine {
	e := &engine{
		store:    NewMemoryStore(),
		policy:   DefaultPolicy(),
		validity: 7 * 24 * time.Hour,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *engine) MaybeCreateOffer(ctx context.Context, c Candidate) (*Offer, error) {
	effect, ok := e.policy.Select(c)
	if !ok {
		return nil, nil
	}

	now := e.clock.Now()
	o, created, err := e.store.Create(ctx, Offer{
		ID:             uuid.New(),
		SubscriptionID: c.SubscriptionID,
		TenantID:       c.TenantID,
		CancellationID: c.CancellationID,
		Effect:         effect,
		CreatedAt:      now,
		ExpiresAt:      now.Add(e.validity),
		Status:         StatusPending,
	})
	if err != nil {
		return nil, err
	}

	if created {
		e.metrics.RetentionOffer("created", string(effect.Kind()))
		e.logger.InfoContext(ctx, "retention offer created",
			logger.OfferID(o.ID),
			logger.SubscriptionID(o.SubscriptionID),
			logger.PlanID(c.Plan.ID),
			slog.String("effect", string(effect.Kind())),
		)
	}
	return &o, nil
}

func (e *engine) Accept(ctx context.Context, offerID uuid.UUID) (*Offer, error) {
	o, err := e.store.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	switch o.Status {
	case StatusAccepted:
		return nil, ErrOfferAlreadyConsumed
	case StatusExpired:
		return nil, errors.Join(ErrOfferExpired, ErrOfferAlreadyConsumed)
	}
	if o.ElapsedAt(now) {
		if _, err := e.store.Transition(ctx, o.ID, StatusPending, StatusExpired, now); err != nil && !errors.Is(err, ErrStatusConflict) {
			e.logger.WarnContext(ctx, "failed to expire retention offer", logger.OfferID(o.ID), logger.Error(err))
		}
		return nil, ErrOfferExpired
	}

	accepted, err := e.store.Transition(ctx, o.ID, StatusPending, StatusAccepted, now)
	if errors.Is(err, ErrStatusConflict) {
		return nil, ErrOfferAlreadyConsumed
	}
	if err != nil {
		return nil, err
	}

	e.metrics.RetentionOffer("accepted", string(o.Effect.Kind()))
	return &accepted, nil
}

func (e *engine) Release(ctx context.Context, offerID uuid.UUID) error {
	_, err := e.store.Transition(ctx, offerID, StatusAccepted, StatusPending, e.clock.Now())
	if err != nil {
		return err
	}
	e.logger.WarnContext(ctx, "retention offer released", logger.OfferID(offerID))
	return nil
}

func (e *engine) ExpireStale(ctx context.Context) (int, error) {
	now := e.clock.Now()
	stale, err := e.store.Elapsed(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, o := range stale {
		_, err := e.store.Transition(ctx, o.ID, StatusPending, StatusExpired, now)
		switch {
		case errors.Is(err, ErrStatusConflict):
			continue
		case err != nil:
			return expired, err
		}
		expired++
		e.metrics.RetentionOffer("expired", string(o.Effect.Kind()))
	}
	if expired > 0 {
		e.logger.DebugContext(ctx, "retention offers expired", slog.Int("count", expired))
	}
	return expired, nil
}

func (e *engine) Get(ctx context.Context, offerID uuid.UUID) (*Offer, error) {
	o, err := e.store.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
