package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/billingkit/pkg/lifecycle"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/retention"
)

const subscriptionColumns = `id, tenant_id, plan_id, pending_plan_id, state,
	current_period_start, current_period_end, trial_ends_at, paused_at,
	cancelled_at, grace_period_ends_at, cancellation_id, cancellation_reason, cancellation_feedback,
	discount, free_months_remaining, provider_sub_id, version, created_at, updated_at`

// SubscriptionStore implements lifecycle.Store. Update is a compare-and-swap
// on the version column.
type SubscriptionStore struct {
	db DB
}

var _ lifecycle.Store = (*SubscriptionStore)(nil)

func NewSubscriptionStore(db DB) *SubscriptionStore {
	if db == nil {
		panic("pgstore: db cannot be nil")
	}
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) Create(ctx context.Context, sub lifecycle.Subscription) error {
	args, err := subscriptionArgs(sub)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		args...)
	if pg.IsDuplicateKeyError(err) {
		return lifecycle.ErrSubscriptionAlreadyExists
	}
	return err
}

func (s *SubscriptionStore) Get(ctx context.Context, id uuid.UUID) (lifecycle.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return lifecycle.Subscription{}, lifecycle.ErrSubscriptionNotFound
	}
	return sub, err
}

func (s *SubscriptionStore) GetLiveByTenant(ctx context.Context, tenantID uuid.UUID) (lifecycle.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE tenant_id = $1 AND state <> $2`,
		tenantID, string(lifecycle.StateExpired)))
	if pg.IsNotFoundError(err) {
		return lifecycle.Subscription{}, lifecycle.ErrSubscriptionNotFound
	}
	return sub, err
}

func (s *SubscriptionStore) Update(ctx context.Context, sub lifecycle.Subscription) (lifecycle.Subscription, error) {
	args, err := subscriptionArgs(sub)
	if err != nil {
		return lifecycle.Subscription{}, err
	}
	updated, err := scanSubscription(s.db.QueryRow(ctx, `
		UPDATE subscriptions SET
			tenant_id = $2, plan_id = $3, pending_plan_id = $4, state = $5,
			current_period_start = $6, current_period_end = $7, trial_ends_at = $8, paused_at = $9,
			cancelled_at = $10, grace_period_ends_at = $11, cancellation_id = $12,
			cancellation_reason = $13, cancellation_feedback = $14,
			discount = $15, free_months_remaining = $16, provider_sub_id = $17,
			version = version + 1, created_at = $19, updated_at = $20
		WHERE id = $1 AND version = $18
		RETURNING `+subscriptionColumns, args...))
	if err == nil {
		return updated, nil
	}
	if !pg.IsNotFoundError(err) {
		return lifecycle.Subscription{}, err
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, sub.ID).Scan(&exists); err != nil {
		return lifecycle.Subscription{}, err
	}
	if !exists {
		return lifecycle.Subscription{}, lifecycle.ErrSubscriptionNotFound
	}
	return lifecycle.Subscription{}, lifecycle.ErrConcurrentModification
}

func (s *SubscriptionStore) ListDue(ctx context.Context, now time.Time, limit int) ([]lifecycle.Subscription, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE (state = 'trialing' AND trial_ends_at <= $1)
		   OR (state = 'cancelled_grace' AND grace_period_ends_at <= $1)
		   OR (state = 'active' AND current_period_end <= $1)
		ORDER BY CASE state
			WHEN 'trialing' THEN trial_ends_at
			WHEN 'cancelled_grace' THEN grace_period_ends_at
			ELSE current_period_end
		END, id
		LIMIT $2`, now.UTC(), lim)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (lifecycle.Subscription, error) {
		return scanSubscription(row)
	})
}

func subscriptionArgs(sub lifecycle.Subscription) ([]any, error) {
	var discount []byte
	if sub.Discount != nil {
		raw, err := json.Marshal(sub.Discount)
		if err != nil {
			return nil, fmt.Errorf("encode discount: %w", err)
		}
		discount = raw
	}
	var cancellationID *uuid.UUID
	if sub.CancellationID != uuid.Nil {
		cancellationID = &sub.CancellationID
	}
	return []any{
		sub.ID, sub.TenantID, sub.PlanID, sub.PendingPlanID, string(sub.State),
		sub.CurrentPeriodStart.UTC(), sub.CurrentPeriodEnd.UTC(), utcPtr(sub.TrialEndsAt), utcPtr(sub.PausedAt),
		utcPtr(sub.CancelledAt), utcPtr(sub.GracePeriodEndsAt), cancellationID,
		sub.CancellationReason, sub.CancellationFeedback,
		discount, sub.FreeMonthsRemaining, sub.ProviderSubID,
		sub.Version, sub.CreatedAt.UTC(), sub.UpdatedAt.UTC(),
	}, nil
}

func scanSubscription(row pgx.Row) (lifecycle.Subscription, error) {
	var (
		sub            lifecycle.Subscription
		state          string
		cancellationID *uuid.UUID
		discount       []byte
	)
	err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.PlanID, &sub.PendingPlanID, &state,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.TrialEndsAt, &sub.PausedAt,
		&sub.CancelledAt, &sub.GracePeriodEndsAt, &cancellationID,
		&sub.CancellationReason, &sub.CancellationFeedback,
		&discount, &sub.FreeMonthsRemaining, &sub.ProviderSubID,
		&sub.Version, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return lifecycle.Subscription{}, err
	}

	sub.State = lifecycle.State(state)
	if cancellationID != nil {
		sub.CancellationID = *cancellationID
	}
	if len(discount) > 0 {
		var d retention.Discount
		if err := json.Unmarshal(discount, &d); err != nil {
			return lifecycle.Subscription{}, errors.Join(ErrCorruptRow, err)
		}
		sub.Discount = &d
	}
	sub.CurrentPeriodStart = sub.CurrentPeriodStart.UTC()
	sub.CurrentPeriodEnd = sub.CurrentPeriodEnd.UTC()
	sub.TrialEndsAt = utcPtr(sub.TrialEndsAt)
	sub.PausedAt = utcPtr(sub.PausedAt)
	sub.CancelledAt = utcPtr(sub.CancelledAt)
	sub.GracePeriodEndsAt = utcPtr(sub.GracePeriodEndsAt)
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return sub, nil
}
