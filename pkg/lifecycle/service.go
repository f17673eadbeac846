package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrymomot/billingkit/pkg/dispatch"
	"github.com/dmitrymomot/billingkit/pkg/keylock"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/metrics"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/proration"
	"github.com/dmitrymomot/billingkit/pkg/retention"
)

// Result is the outcome of a committed command.
type Result struct {
	Subscription Subscription
	// Intents were handed to the dispatcher after commit.
	Intents   []dispatch.Intent
	Offer     *retention.Offer
	Proration *proration.Result
}

// CancelRequest carries the caller's cancellation details.
type CancelRequest struct {
	Reason    string
	Feedback  string
	Immediate bool
}

// SweepReport counts what a Sweep did.
type SweepReport struct {
	TrialsEnded   int
	GraceExpired  int
	Renewed       int
	OffersExpired int
	Failed        int
}

// Service runs subscription lifecycle commands. Commands on one subscription
// are serialized; a command that is not allowed from the current state fails
// with *InvalidStateTransitionError and changes nothing.
type Service interface {
	Start(ctx context.Context, tenantID uuid.UUID, planID string) (Result, error)
	EndTrial(ctx context.Context, id uuid.UUID) (Result, error)
	Pause(ctx context.Context, id uuid.UUID) (Result, error)
	Resume(ctx context.Context, id uuid.UUID) (Result, error)
	// Cancel consults the retention engine before committing. The returned
	// offer, if any, never blocks the cancellation.
	Cancel(ctx context.Context, id uuid.UUID, req CancelRequest) (Result, error)
	Reactivate(ctx context.Context, id uuid.UUID) (Result, error)
	ChangePlan(ctx context.Context, id uuid.UUID, planID string) (Result, error)
	AcceptRetentionOffer(ctx context.Context, offerID uuid.UUID) (Result, error)
	ExpireGrace(ctx context.Context, id uuid.UUID) (Result, error)
	Renew(ctx context.Context, id uuid.UUID) (Result, error)
	// Sweep applies every time-driven command that is due and expires stale offers.
	Sweep(ctx context.Context) (SweepReport, error)
	// LinkProvider records the billing provider's id for the subscription.
	LinkProvider(ctx context.Context, id uuid.UUID, providerSubID string) (Subscription, error)
	Get(ctx context.Context, id uuid.UUID) (Subscription, error)
	GetByTenant(ctx context.Context, tenantID uuid.UUID) (Subscription, error)
}

// Invalidator drops cached entitlements of a tenant. entitlement.Resolver satisfies it.
type Invalidator interface {
	Invalidate(tenantID uuid.UUID)
}

// Config holds environment-driven settings.
type Config struct {
	SkipGraceOnImmediate bool             `env:"LIFECYCLE_SKIP_GRACE_ON_IMMEDIATE" envDefault:"false"`
	MaxRetries           uint64           `env:"LIFECYCLE_MAX_RETRIES" envDefault:"3"`
	RetryBackoff         time.Duration    `env:"LIFECYCLE_RETRY_BACKOFF" envDefault:"10ms"`
	SweepBatchSize       int              `env:"LIFECYCLE_SWEEP_BATCH_SIZE" envDefault:"500"`
	Proration            proration.Policy
}

type Option func(*service)

func WithConfig(cfg Config) Option {
	return func(s *service) {
		s.skipGrace = cfg.SkipGraceOnImmediate
		s.maxRetries = cfg.MaxRetries
		if cfg.RetryBackoff > 0 {
			s.retryBackoff = cfg.RetryBackoff
		}
		if cfg.SweepBatchSize > 0 {
			s.batchSize = cfg.SweepBatchSize
		}
		s.policy = cfg.Proration
	}
}

// WithProrationPolicy panics on unknown policy values.
func WithProrationPolicy(p proration.Policy) Option {
	if err := p.Validate(); err != nil {
		panic(err)
	}
	return func(s *service) {
		s.policy = p
	}
}

func WithSkipGraceOnImmediate(skip bool) Option {
	return func(s *service) {
		s.skipGrace = skip
	}
}

func WithRetention(e retention.Engine) Option {
	return func(s *service) {
		if e != nil {
			s.retention = e
		}
	}
}

func WithDispatcher(d dispatch.Dispatcher) Option {
	return func(s *service) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithInvalidator registers caches to clear after each committed change.
func WithInvalidator(inv ...Invalidator) Option {
	return func(s *service) {
		for _, i := range inv {
			if i != nil {
				s.invalidators = append(s.invalidators, i)
			}
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(s *service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *service) {
		s.metrics = m
	}
}

type service struct {
	store        Store
	catalog      plan.Catalog
	retention    retention.Engine
	dispatcher   dispatch.Dispatcher
	invalidators []Invalidator
	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      *metrics.Collector
	locks        keylock.Locker[uuid.UUID]

	skipGrace    bool
	policy       proration.Policy
	maxRetries   uint64
	retryBackoff time.Duration
	batchSize    int
}

// NewService creates a lifecycle Service. Panics if store or catalog is nil.
// Without WithRetention an in-memory retention engine with the default
// policy and the service clock is used.
func NewService(store Store, catalog plan.Catalog, opts ...Option) Service {
	if store == nil {
		panic("lifecycle: subscription store is required")
	}
	if catalog == nil {
		panic("lifecycle: plan catalog is required")
	}

	s := &service{
		store:        store,
		catalog:      catalog,
		dispatcher:   dispatch.Discard,
		clock:        clockwork.NewRealClock(),
		logger:       slog.Default(),
		policy:       proration.DefaultPolicy(),
		maxRetries:   3,
		retryBackoff: 10 * time.Millisecond,
		batchSize:    500,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retention == nil {
		s.retention = retention.NewEngine(retention.WithClock(s.clock), retention.WithLogger(s.logger), retention.WithMetrics(s.metrics))
	}
	return s
}

// change is what a command wants to commit.
type change struct {
	sub       Subscription
	intents   []dispatch.Intent
	offer     *retention.Offer
	proration *proration.Result
}

// mutation computes a change from the freshly loaded subscription. It may run
// more than once when the store reports a concurrent modification.
type mutation func(ctx context.Context, sub Subscription, now time.Time) (change, error)

func (s *service) execute(ctx context.Context, id uuid.UUID, cmd Command, fn mutation) (Result, error) {
	ctx = logger.ContextWithAttrs(ctx, logger.SubscriptionID(id), logger.Command(string(cmd)))

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	var (
		from State
		ch   change
		out  Subscription
	)
	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewConstant(s.retryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		sub, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		from = sub.State

		now := s.clock.Now()
		ch, err = fn(ctx, sub, now)
		if err != nil {
			return err
		}
		ch.sub.UpdatedAt = now

		out, err = s.store.Update(ctx, ch.sub)
		if errors.Is(err, ErrConcurrentModification) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		s.fail(ctx, cmd, err)
		return Result{}, err
	}

	return s.commit(ctx, cmd, from, out, ch), nil
}

func (s *service) commit(ctx context.Context, cmd Command, from State, sub Subscription, ch change) Result {
	for _, inv := range s.invalidators {
		inv.Invalidate(sub.TenantID)
	}
	for i := range ch.intents {
		ch.intents[i].SubscriptionID = sub.ID
	}

	s.metrics.Transition(string(cmd), string(from), string(sub.State))
	s.logger.InfoContext(ctx, "subscription transition",
		logger.TenantID(sub.TenantID),
		logger.PlanID(sub.PlanID),
		slog.String("from", string(from)),
		slog.String("to", string(sub.State)),
	)

	if len(ch.intents) > 0 {
		s.dispatcher.Dispatch(ctx, ch.intents...)
	}

	return Result{Subscription: sub, Intents: ch.intents, Offer: ch.offer, Proration: ch.proration}
}

func (s *service) fail(ctx context.Context, cmd Command, err error) {
	reason := "error"
	switch {
	case errors.Is(err, ErrInvalidStateTransition):
		reason = "invalid_state"
	case errors.Is(err, ErrConcurrentModification):
		reason = "conflict"
	case errors.Is(err, ErrSubscriptionNotFound):
		reason = "not_found"
	}
	s.metrics.TransitionError(string(cmd), reason)

	if reason == "error" || reason == "conflict" {
		s.logger.ErrorContext(ctx, "subscription command failed", logger.Error(err))
		return
	}
	s.logger.DebugContext(ctx, "subscription command rejected", logger.Error(err))
}

func (s *service) Start(ctx context.Context, tenantID uuid.UUID, planID string) (Result, error) {
	ctx = logger.ContextWithAttrs(ctx, logger.TenantID(tenantID), logger.Command(string(CmdStart)))

	p, err := s.catalog.Plan(ctx, planID)
	if err != nil {
		return Result{}, err
	}

	now := s.clock.Now()
	sub := Subscription{
		ID:        uuid.New(),
		TenantID:  tenantID,
		PlanID:    p.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	to, err := next(ctx, CmdStart, guardInput{now: now, sub: sub, hasTrial: p.HasTrial()})
	if err != nil {
		return Result{}, err
	}
	sub.State = to
	sub.CurrentPeriodStart = now
	if to == StateTrialing {
		trialEnd := p.TrialEndsAt(now)
		sub.TrialEndsAt = &trialEnd
		sub.CurrentPeriodEnd = trialEnd
	} else {
		sub.CurrentPeriodEnd = p.Interval.PeriodEnd(now)
	}

	if err := s.store.Create(ctx, sub); err != nil {
		s.fail(ctx, CmdStart, err)
		return Result{}, err
	}

	attrs := map[string]string{
		dispatch.AttrPlanID: p.ID,
		dispatch.AttrState:  string(to),
	}
	if p.Price.Amount > 0 {
		attrs[dispatch.AttrAmount] = strconv.FormatInt(p.Price.Amount, 10)
		attrs[dispatch.AttrCurrency] = p.Price.Currency
	}
	intent := dispatch.NewIntent(dispatch.KindSubscriptionStarted, tenantID, now, attrs)
	return s.commit(ctx, CmdStart, StateNone, sub, change{sub: sub, intents: []dispatch.Intent{intent}}), nil
}

func (s *service) EndTrial(ctx context.Context, id uuid.UUID) (Result, error) {
	return s.execute(ctx, id, CmdEndTrial, func(ctx context.Context, sub Subscription, now time.Time) (change, error) {
		to, err := next(ctx, CmdEndTrial, guardInput{now: now, sub: sub})
		if err != nil {
			return change{}, err
		}
		p, err := s.catalog.Plan(ctx, sub.PlanID)
		if err != nil {
			return change{}, err
		}

		sub.State = to
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = p.Interval.PeriodEnd(now)

		attrs := map[string]string{dispatch.AttrPlanID: p.ID}
		if p.Price.Amount > 0 {
			attrs[dispatch.AttrAmount] = strconv.FormatInt(p.Price.Amount, 10)
			attrs[dispatch.AttrCurrency] = p.Price.Currency
		}
		return change{sub: sub, intents: []dispatch.Intent{
			dispatch.NewIntent(dispatch.KindTrialEnded, sub.TenantID, now, attrs),
		}}, nil
	})
}

func (s *service) Pause(ctx context.Context, id uuid.UUID) (Result, error) {
	return s.execute(ctx, id, CmdPause, func(ctx context.Context, sub Subscription, now time.Time) (change, error) {
		to, err := next(ctx, CmdPause, guardInput{now: now, sub: sub})
		if err != nil {
			return change{}, err
		}
		sub.State = to
		sub.PausedAt = &now
		return change{sub: sub, intents: []dispatch.Intent{
			s.intent(dispatch.KindSubscriptionPaused, sub, now, nil),
		}}, nil
	})
}

func (s *service) Resume(ctx context.Context, id uuid.UUID) (Result, error) {
	return s.execute(ctx, id, CmdResume, func(ctx context.Context, sub Subscription, now time.Time) (change, error) {
		to, err := next(ctx, CmdResume, guardInput{now: now, sub: sub})
		if err != nil {
			return change{}, err
		}
		sub.State = to
		sub.PausedAt = nil
		return change{sub: sub, intents: []dispatch.Intent{
			s.intent(dispatch.KindSubscriptionResumed, sub, now, nil),
		}}, nil
	})
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, req CancelRequest) (Result, error) {
	cancellationID := uuid.New()

	return s.execute(ctx, id, CmdCancel, func(ctx context.Context, sub Subscription, now time.Time) (change, error) {
		to, err := next(ctx, CmdCancel, guardInput{now: now, sub: sub, skipGrace: req.Immediate && s.skipGrace})
		if err != nil {
			return change{}, err
		}

		graceEnd := sub.CurrentPeriodEnd
		if req.Immediate || graceEnd.Before(now) {
			graceEnd = now
		}

		sub.State = to
		sub.CancelledAt = &now
		sub.GracePeriodEndsAt = &graceEnd
		sub.CancellationID = cancellationID
		sub.CancellationReason = req.Reason
		sub.CancellationFeedback = req.Feedback

		ch := change{sub: sub}
		ch.intents = append(ch.intents, s.intent(dispatch.KindSubscriptionCancelled, sub, now, map[string]string{
			dispatch.AttrReason:      req.Reason,
			dispatch.AttrImmediate:   strconv.FormatBool(req.Immediate),
			dispatch.AttrEffectiveAt: graceEnd.UTC().Format(time.RFC3339),
		}))
		if to == StateExpired {
			ch.intents = append(ch.intents, s.intent(dispatch.KindSubscriptionExpired, sub, now, nil))
			return ch, nil
		}

		ch.offer = s.offerFor(ctx, sub)
		if ch.offer != nil {
			ch.intents = append(ch.intents, s.intent(dispatch.KindOfferCreated, sub, now, map[string]string{
				dispatch.AttrOfferID:     ch.offer.ID.String(),
				dispatch.AttrOfferEffect: string(ch.offer.Effect.Kind()),
				dispatch.AttrEffectiveAt: ch.offer.ExpiresAt.UTC().Format(time.RFC3339),
			}))
		}
		return ch, nil
	})
}

// offerFor never fails the cancellation; lookup problems are logged.
func (s *service) offerFor(ctx context.Context, sub Subscription) *retention.Offer {
	p, err := s.catalog.Plan(ctx, sub.PlanID)
	if err != nil {
		s.logger.WarnContext(ctx, "retention offer skipped: plan lookup failed", logger.Error(err))
		return nil
	}
	offer, err := s.retention.MaybeCreateOffer(ctx, retention.Candidate{
		SubscriptionID: sub.ID,
		TenantID:       sub.TenantID,
		CancellationID: sub.CancellationID,
		Plan:           p,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "retention offer skipped", logger.Error(err))
		return nil
	}
	return offer
}

func (s *service) Reactivate(ctx context.Context, id uuid.UUID) (Result, error) {
	return s.execute(ctx, id, CmdReactivate, func(ctx context.Context, sub Subscription, now time.Time) (change, error) {
		to, err := next(ctx, CmdReactivate, guardInput{now: now, sub: sub})
		if err != nil {
			return change{}, err
		}
		sub = sub.clearCancellation()
		sub.State = to
		sub.PausedAt = nil
		return change{sub: sub, intents: []dispatch.Intent{
			s.intent(dispatch.KindSubscriptionReactivate, sub, now, nil),
		}}, nil
	})
}

func (s *service) ChangePlan(ctx context.Context, id uuid.UUID, planID string) (Result, error) {
	target, err := s.catalog.Plan(ctx, planID)
	if err != nil {
		return Result{}, err
	}

	return s.execute(ctx, id, CmdChangePlan, func(ctx context.Context, sub Subscription, now time.Time) (change, error) {
		if _, err := next(ctx, CmdChangePlan, guardInput{now: now, sub: sub}); err != nil {
			return change{}, err
		}
		if sub.PlanID == target.ID {
			if sub.PendingPlanID == "" {
				return change{}, ErrPlanUnchanged
			}
			// Switching back to the current plan cancels a scheduled downgrade.
			prev := sub.PendingPlanID
			sub.PendingPlanID = ""
			return change{sub: sub, intents: []dispatch.Intent{
				s.intent(dispatch.KindPlanChanged, sub, now, map[string]string{
					dispatch.AttrPreviousPlanID: prev,
					dispatch.AttrImmediate:      "true",
					dispatch.AttrEffectiveAt:    now.UTC().Format(time.RFC3339),
				}),
			}}, nil
		}

		current, err := s.catalog.Plan(ctx, sub.PlanID)
		if err != nil {
			return change{}, err
		}
		res, err := proration.Calculate(proration.CalculationInput{
			PeriodStart: sub.CurrentPeriodStart,
			PeriodEnd:   sub.CurrentPeriodEnd,
			OldPlan:     current,
			NewPlan:     target,
			Now:         now,
			Policy:      s.policy,
		})
		if err != nil {
			return change{}, err
		}

		if res.Deferred {
			sub.PendingPlanID = target.ID
		} else {
			sub.PlanID = target.ID
			sub.PendingPlanID = ""
			sub.CurrentPeriodStart = res.PeriodStart
			sub.CurrentPeriodEnd = res.PeriodEnd
		}

		intent := s.intent(dispatch.KindPlanChanged, sub, now, map[string]string{
			dispatch.AttrPlanID:         target.ID,
			dispatch.AttrPreviousPlanID: current.ID,
			dispatch.AttrAmount:         strconv.FormatInt(res.NetAmount.Amount, 10),
			dispatch.AttrCurrency:       res.NetAmount.Currency,
			dispatch.AttrImmediate:      strconv.FormatBool(!res.Deferred),
			dispatch.AttrEffectiveAt:    res.EffectiveDate.UTC().Format(time.RFC3339),
		})
		return change{sub: sub, intents: []dispatch.Intent{intent}, proration: &res}, nil
	})
}

func (s *service) AcceptRetentionOffer(ctx context.Context, offerID uuid.UUID) (Result, error) {
	offer, err := s.retention.Get(ctx, offerID)
	if err != nil {
		return Result{}, err
	}

	var accepted *retention.Offer
	res, err := s.execute(ctx, offer.SubscriptionID, CmdAcceptOffer, func(ctx context.Context, sub Subscription, now time.Time) (change, error) {
		if sub.CancellationID != offer.CancellationID {
			return change{}, fmt.Errorf("%w: offer %s is for an earlier cancellation", ErrOfferMismatch, offer.ID)
		}
		to, err := next(ctx, CmdAcceptOffer, guardInput{now: now, sub: sub})
		if err != nil {
			return change{}, err
		}

		if accepted == nil {
			accepted, err = s.retention.Accept(ctx, offerID)
			if err != nil {
				return change{}, err
			}
		}

		sub = sub.withTarget(accepted.Effect.Apply(sub.target()))
		if _, err := s.catalog.Plan(ctx, sub.PlanID); err != nil {
			return change{}, err
		}
		sub = sub.clearCancellation()
		sub.State = to
		sub.PausedAt = nil

		return change{sub: sub, offer: accepted, intents: []dispatch.Intent{
			s.intent(dispatch.KindOfferAccepted, sub, now, map[string]string{
				dispatch.AttrOfferID:     accepted.ID.String(),
				dispatch.AttrOfferEffect: string(accepted.Effect.Kind()),
			}),
			s.intent(dispatch.KindSubscriptionReactivate, sub, now, nil),
		}}, nil
	})
	if err != nil && accepted != nil {
		if relErr := s.retention.Release(ctx, accepted.ID); relErr != nil {
			s.logger.ErrorContext(ctx, "failed to release retention offer",
				logger.OfferID(accepted.ID),
				logger.Errors(err, relErr),
			)
		}
	}
	return res, err
}

func (s *service) ExpireGrace(ctx context.Context, id uuid.UUID) (Result, error) {
	return s.execute(ctx, id, CmdExpireGrace, func(ctx context.Context, sub Subscription, now time.Time) (change, error) {
		to, err := next(ctx, CmdExpireGrace, guardInput{now: now, sub: sub})
		if err != nil {
			return change{}, err
		}
		sub.State = to
		return change{sub: sub, intents: []dispatch.Intent{
			s.intent(dispatch.KindSubscriptionExpired, sub, now, nil),
		}}, nil
	})
}

func (s *service) Renew(ctx context.Context, id uuid.UUID) (Result, error) {
	return s.execute(ctx, id, CmdRenew, func(ctx context.Context, sub Subscription, now time.Time) (change, error) {
		to, err := next(ctx, CmdRenew, guardInput{now: now, sub: sub})
		if err != nil {
			return change{}, err
		}

		previous := sub.PlanID
		if sub.PendingPlanID != "" {
			sub.PlanID = sub.PendingPlanID
			sub.PendingPlanID = ""
		}
		p, err := s.catalog.Plan(ctx, sub.PlanID)
		if err != nil {
			return change{}, err
		}

		due := p.Price
		switch {
		case sub.FreeMonthsRemaining > 0 && p.Interval.Months() > 0:
			// Free months are calendar months: an annual cycle uses up to 12
			// and is billed pro rata for the rest.
			cycle := p.Interval.Months()
			waived := min(sub.FreeMonthsRemaining, cycle)
			due.Amount -= due.Amount * int64(waived) / int64(cycle)
			sub.FreeMonthsRemaining -= waived
		case sub.Discount.Active():
			due = sub.Discount.ApplyTo(due)
			sub.Discount = sub.Discount.Consume()
		}

		sub.State = to
		sub.CurrentPeriodStart = sub.CurrentPeriodEnd
		sub.CurrentPeriodEnd = p.Interval.PeriodEnd(sub.CurrentPeriodStart)

		ch := change{sub: sub}
		if previous != sub.PlanID {
			ch.intents = append(ch.intents, s.intent(dispatch.KindPlanChanged, sub, now, map[string]string{
				dispatch.AttrPreviousPlanID: previous,
				dispatch.AttrImmediate:      "false",
				dispatch.AttrEffectiveAt:    sub.CurrentPeriodStart.UTC().Format(time.RFC3339),
			}))
		}
		ch.intents = append(ch.intents, s.intent(dispatch.KindRenewalDue, sub, now, map[string]string{
			dispatch.AttrAmount:      strconv.FormatInt(due.Amount, 10),
			dispatch.AttrCurrency:    due.Currency,
			dispatch.AttrEffectiveAt: sub.CurrentPeriodStart.UTC().Format(time.RFC3339),
		}))
		return ch, nil
	})
}

func (s *service) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	due, err := s.store.ListDue(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		return report, err
	}

	var errs []error
	for _, sub := range due {
		var cmdErr error
		switch sub.State {
		case StateTrialing:
			if _, cmdErr = s.EndTrial(ctx, sub.ID); cmdErr == nil {
				report.TrialsEnded++
			}
		case StateCancelledGrace:
			if _, cmdErr = s.ExpireGrace(ctx, sub.ID); cmdErr == nil {
				report.GraceExpired++
			}
		case StateActive:
			if _, cmdErr = s.Renew(ctx, sub.ID); cmdErr == nil {
				report.Renewed++
			}
		}
		// Another worker got there first.
		if cmdErr != nil && !errors.Is(cmdErr, ErrInvalidStateTransition) {
			report.Failed++
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, cmdErr))
		}
	}

	n, err := s.retention.ExpireStale(ctx)
	report.OffersExpired = n
	if err != nil {
		errs = append(errs, err)
	}

	s.logger.InfoContext(ctx, "lifecycle sweep finished",
		slog.Int("trials_ended", report.TrialsEnded),
		slog.Int("grace_expired", report.GraceExpired),
		slog.Int("renewed", report.Renewed),
		slog.Int("offers_expired", report.OffersExpired),
		slog.Int("failed", report.Failed),
	)
	return report, errors.Join(errs...)
}

func (s *service) LinkProvider(ctx context.Context, id uuid.UUID, providerSubID string) (Subscription, error) {
	res, err := s.execute(ctx, id, CmdLinkProvider, func(_ context.Context, sub Subscription, _ time.Time) (change, error) {
		sub.ProviderSubID = providerSubID
		return change{sub: sub}, nil
	})
	return res.Subscription, err
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (Subscription, error) {
	return s.store.Get(ctx, id)
}

func (s *service) GetByTenant(ctx context.Context, tenantID uuid.UUID) (Subscription, error) {
	return s.store.GetLiveByTenant(ctx, tenantID)
}

func (s *service) intent(kind dispatch.Kind, sub Subscription, now time.Time, attrs map[string]string) dispatch.Intent {
	if attrs == nil {
		attrs = make(map[string]string, 2)
	}
	if _, ok := attrs[dispatch.AttrPlanID]; !ok {
		attrs[dispatch.AttrPlanID] = sub.PlanID
	}
	attrs[dispatch.AttrState] = string(sub.State)
	if sub.ProviderSubID != "" {
		attrs[dispatch.AttrProviderSubID] = sub.ProviderSubID
	}
	i := dispatch.NewIntent(kind, sub.TenantID, now, attrs)
	i.SubscriptionID = sub.ID
	return i
}
