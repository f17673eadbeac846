package pgstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/pgstore"
	"github.com/dmitrymomot/billingkit/pkg/usage"
)

// failingDB fails every transaction with err.
type failingDB struct {
	err error
}

func (db failingDB) Begin(context.Context) (pgx.Tx, error) {
	return nil, db.err
}

func (db failingDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, db.err
}

func (db failingDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, db.err
}

func (db failingDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestCounterStoreErrorMapping(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 5, 17, 8, 0, 0, 0, time.UTC)
	key := usage.Key{TenantID: uuid.New(), Feature: "api_calls", Metric: usage.DefaultMetric}
	window := usage.WindowFor(plan.PeriodMonthly, now)
	op := usage.Op{Kind: usage.OpIncrement, Delta: 1, Limit: 10, Enforce: true, Window: window, Now: now}

	tests := []struct {
		name       string
		err        error
		concurrent bool
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, concurrent: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, concurrent: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}},
		{name: "connection lost", err: errors.New("conn closed")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := pgstore.NewCounterStore(failingDB{err: tt.err})

			_, applyErr := store.Apply(ctx, key, op)
			_, _, rollErr := store.Rollover(ctx, key, window, 10, now)

			for _, err := range []error{applyErr, rollErr} {
				if tt.concurrent {
					assert.ErrorIs(t, err, usage.ErrConcurrentModification)
					assert.NotErrorIs(t, err, usage.ErrStoreFailure)
				} else {
					assert.ErrorIs(t, err, usage.ErrStoreFailure)
					assert.NotErrorIs(t, err, usage.ErrConcurrentModification)
				}
			}
		})
	}
}
