package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/retention"
)

const offerColumns = `id, subscription_id, tenant_id, cancellation_id, effect, status, created_at, expires_at, accepted_at`

// OfferStore implements retention.Store.
type OfferStore struct {
	db DB
}

var _ retention.Store = (*OfferStore)(nil)

func NewOfferStore(db DB) *OfferStore {
	if db == nil {
		panic("pgstore: db cannot be nil")
	}
	return &OfferStore{db: db}
}

func (s *OfferStore) Create(ctx context.Context, o retention.Offer) (retention.Offer, bool, error) {
	effect, err := retention.MarshalEffect(o.Effect)
	if err != nil {
		return retention.Offer{}, false, err
	}
	created, err := scanOffer(s.db.QueryRow(ctx, `
		INSERT INTO retention_offers (`+offerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (subscription_id, cancellation_id) DO NOTHING
		RETURNING `+offerColumns,
		o.ID, o.SubscriptionID, o.TenantID, o.CancellationID, effect, string(o.Status),
		o.CreatedAt.UTC(), o.ExpiresAt.UTC(), utcPtr(o.AcceptedAt),
	))
	if err == nil {
		return created, true, nil
	}
	if !pg.IsNotFoundError(err) {
		return retention.Offer{}, false, err
	}

	existing, err := scanOffer(s.db.QueryRow(ctx,
		`SELECT `+offerColumns+` FROM retention_offers WHERE subscription_id = $1 AND cancellation_id = $2`,
		o.SubscriptionID, o.CancellationID))
	if err != nil {
		return retention.Offer{}, false, err
	}
	return existing, false, nil
}

func (s *OfferStore) Get(ctx context.Context, id uuid.UUID) (retention.Offer, error) {
	o, err := scanOffer(s.db.QueryRow(ctx, `SELECT `+offerColumns+` FROM retention_offers WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return retention.Offer{}, retention.ErrOfferNotFound
	}
	return o, err
}

func (s *OfferStore) Transition(ctx context.Context, id uuid.UUID, from, to retention.Status, at time.Time) (retention.Offer, error) {
	o, err := scanOffer(s.db.QueryRow(ctx, `
		UPDATE retention_offers SET
			status = $3::text,
			accepted_at = CASE $3::text
				WHEN 'accepted' THEN $4::timestamptz
				WHEN 'pending' THEN NULL
				ELSE accepted_at
			END
		WHERE id = $1 AND status = $2
		RETURNING `+offerColumns,
		id, string(from), string(to), at.UTC()))
	if err == nil {
		return o, nil
	}
	if !pg.IsNotFoundError(err) {
		return retention.Offer{}, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return retention.Offer{}, err
	}
	return current, retention.ErrStatusConflict
}

func (s *OfferStore) Elapsed(ctx context.Context, now time.Time) ([]retention.Offer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+offerColumns+` FROM retention_offers
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at, id`, now.UTC())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (retention.Offer, error) {
		return scanOffer(row)
	})
}

func scanOffer(row pgx.Row) (retention.Offer, error) {
	var (
		o      retention.Offer
		effect []byte
		status string
	)
	if err := row.Scan(&o.ID, &o.SubscriptionID, &o.TenantID, &o.CancellationID, &effect, &status,
		&o.CreatedAt, &o.ExpiresAt, &o.AcceptedAt); err != nil {
		return retention.Offer{}, err
	}
	e, err := retention.UnmarshalEffect(effect)
	if err != nil {
		return retention.Offer{}, errors.Join(ErrCorruptRow, err)
	}
	o.Effect = e
	o.Status = retention.Status(status)
	o.CreatedAt = o.CreatedAt.UTC()
	o.ExpiresAt = o.ExpiresAt.UTC()
	o.AcceptedAt = utcPtr(o.AcceptedAt)
	return o, nil
}
