// Package pgstore persists billingkit state in PostgreSQL.
//
// CounterStore, AlertStore, SubscriptionStore and OfferStore implement the
// storage ports of the usage, metering, lifecycle and retention packages.
// The schema ships as embedded goose migrations:
//
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations(), log); err != nil {
//		return err
//	}
//	subs := pgstore.NewSubscriptionStore(pool)
//	svc := lifecycle.NewService(subs, catalog,
//		lifecycle.WithRetention(retention.NewEngine(retention.WithStore(pgstore.NewOfferStore(pool)))))
//
// Counter writes take a transaction-scoped advisory lock per key. Subscription
// updates compare the version column and report lifecycle.ErrConcurrentModification
// on mismatch.
package pgstore
