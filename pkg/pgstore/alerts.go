package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/billingkit/pkg/metering"
	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// AlertStore implements metering.AlertStore.
type AlertStore struct {
	db DB
}

var _ metering.AlertStore = (*AlertStore)(nil)

func NewAlertStore(db DB) *AlertStore {
	if db == nil {
		panic("pgstore: db cannot be nil")
	}
	return &AlertStore{db: db}
}

func (s *AlertStore) Record(ctx context.Context, a metering.Alert) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO usage_alerts
			(id, tenant_id, feature, metric, window_start, threshold, value, quota, created_at, delivered, acknowledged)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT DO NOTHING`,
		a.ID, a.Key.TenantID, string(a.Key.Feature), a.Key.Metric, nullTime(a.WindowStart),
		a.Threshold, a.Value, int64(a.Limit), a.CreatedAt.UTC(), a.Delivered, a.Acknowledged,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *AlertStore) Pending(ctx context.Context, tenantID uuid.UUID) ([]metering.Alert, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, tenant_id, feature, metric, window_start, threshold, value, quota, created_at, delivered, acknowledged
		FROM usage_alerts
		WHERE tenant_id = $1 AND NOT acknowledged
		ORDER BY created_at, threshold, feature`, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (metering.Alert, error) {
		var (
			a       metering.Alert
			feature string
			start   *time.Time
			quota   int64
		)
		if err := row.Scan(&a.ID, &a.Key.TenantID, &feature, &a.Key.Metric, &start,
			&a.Threshold, &a.Value, &quota, &a.CreatedAt, &a.Delivered, &a.Acknowledged); err != nil {
			return metering.Alert{}, err
		}
		a.Key.Feature = plan.FeatureID(feature)
		a.WindowStart = fromNullTime(start)
		a.Limit = plan.Limit(quota)
		a.CreatedAt = a.CreatedAt.UTC()
		return a, nil
	})
}

func (s *AlertStore) Acknowledge(ctx context.Context, id uuid.UUID) error {
	return s.set(ctx, `UPDATE usage_alerts SET acknowledged = true WHERE id = $1`, id)
}

func (s *AlertStore) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	return s.set(ctx, `UPDATE usage_alerts SET delivered = true WHERE id = $1`, id)
}

func (s *AlertStore) set(ctx context.Context, q string, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return metering.ErrAlertNotFound
	}
	return nil
}

