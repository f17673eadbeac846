package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/usage"
)

const counterColumns = `tenant_id, feature, metric, window_start, window_end, value, quota, version, updated_at`

// CounterStore implements usage.Store. Writes to one key are serialized with a
// transaction-scoped advisory lock, so the read-modify-write runs in Go
// through usage.Compute.
type CounterStore struct {
	db DB
}

var _ usage.Store = (*CounterStore)(nil)

func NewCounterStore(db DB) *CounterStore {
	if db == nil {
		panic("pgstore: db cannot be nil")
	}
	return &CounterStore{db: db}
}

func (s *CounterStore) Get(ctx context.Context, key usage.Key) (usage.Counter, bool, error) {
	return getCounter(ctx, s.db, key, false)
}

func (s *CounterStore) Apply(ctx context.Context, key usage.Key, op usage.Op) (usage.ApplyResult, error) {
	var result usage.ApplyResult
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := lockKey(ctx, tx, key); err != nil {
			return err
		}
		current, found, err := getCounter(ctx, tx, key, true)
		if err != nil {
			return err
		}
		result, err = usage.Compute(current, found, key, op)
		if err != nil {
			return err
		}
		return putCounter(ctx, tx, result.Counter)
	})
	if err != nil {
		if errors.Is(err, usage.ErrQuotaExceeded) || errors.Is(err, usage.ErrInvalidAmount) ||
			errors.Is(err, usage.ErrInvalidOperation) || errors.Is(err, usage.ErrStoreFailure) {
			return result, err
		}
		return result, txError(err)
	}
	return result, nil
}

func (s *CounterStore) Rollover(ctx context.Context, key usage.Key, window usage.Window, limit plan.Limit, now time.Time) (usage.Counter, bool, error) {
	var (
		out    usage.Counter
		rolled bool
	)
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := lockKey(ctx, tx, key); err != nil {
			return err
		}
		current, found, err := getCounter(ctx, tx, key, true)
		if err != nil {
			return err
		}
		out, rolled = usage.ComputeRollover(current, found, window, limit, now)
		if !rolled {
			return nil
		}
		return putCounter(ctx, tx, out)
	})
	if err != nil {
		return usage.Counter{}, false, txError(err)
	}
	return out, rolled, nil
}

func (s *CounterStore) List(ctx context.Context, tenantID uuid.UUID) ([]usage.Counter, error) {
	rows, err := s.db.Query(ctx, `SELECT `+counterColumns+` FROM usage_counters WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, errors.Join(usage.ErrStoreFailure, err)
	}
	counters, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (usage.Counter, error) {
		return scanCounter(row)
	})
	if err != nil {
		return nil, errors.Join(usage.ErrStoreFailure, err)
	}
	usage.SortCounters(counters)
	return counters, nil
}

// Tenants lists every tenant with at least one counter.
func (s *CounterStore) Tenants(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT tenant_id FROM usage_counters ORDER BY tenant_id`)
	if err != nil {
		return nil, errors.Join(usage.ErrStoreFailure, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, errors.Join(usage.ErrStoreFailure, err)
	}
	return ids, nil
}

// txError maps serialization failures and deadlocks to
// usage.ErrConcurrentModification so callers retry them.
func txError(err error) error {
	if pg.IsSerializationError(err) {
		return errors.Join(usage.ErrConcurrentModification, err)
	}
	return errors.Join(usage.ErrStoreFailure, err)
}

func lockKey(ctx context.Context, tx pgx.Tx, key usage.Key) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "usage:"+key.String())
	return err
}

func getCounter(ctx context.Context, db DB, key usage.Key, forUpdate bool) (usage.Counter, bool, error) {
	q := `SELECT ` + counterColumns + ` FROM usage_counters WHERE tenant_id = $1 AND feature = $2 AND metric = $3`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	c, err := scanCounter(db.QueryRow(ctx, q, key.TenantID, string(key.Feature), key.Metric))
	if errors.Is(err, pgx.ErrNoRows) {
		return usage.Counter{}, false, nil
	}
	if err != nil {
		return usage.Counter{}, false, errors.Join(usage.ErrStoreFailure, err)
	}
	return c, true, nil
}

func putCounter(ctx context.Context, tx pgx.Tx, c usage.Counter) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO usage_counters (`+counterColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, feature, metric) DO UPDATE SET
			window_start = EXCLUDED.window_start,
			window_end   = EXCLUDED.window_end,
			value        = EXCLUDED.value,
			quota        = EXCLUDED.quota,
			version      = EXCLUDED.version,
			updated_at   = EXCLUDED.updated_at`,
		c.Key.TenantID, string(c.Key.Feature), c.Key.Metric,
		nullTime(c.Window.Start), nullTime(c.Window.End),
		c.Value, int64(c.Limit), c.Version, c.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: write counter %s: %w", usage.ErrStoreFailure, c.Key, err)
	}
	return nil
}

func scanCounter(row pgx.Row) (usage.Counter, error) {
	var (
		c          usage.Counter
		feature    string
		start, end *time.Time
		quota      int64
	)
	if err := row.Scan(&c.Key.TenantID, &feature, &c.Key.Metric, &start, &end,
		&c.Value, &quota, &c.Version, &c.UpdatedAt); err != nil {
		return usage.Counter{}, err
	}
	c.Key.Feature = plan.FeatureID(feature)
	c.Window = usage.Window{Start: fromNullTime(start), End: fromNullTime(end)}
	c.Limit = plan.Limit(quota)
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}
