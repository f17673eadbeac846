// Package pg bootstraps PostgreSQL access on pgx/v5: a retrying pool
// constructor, goose migrations from disk or an embedded filesystem, a health
// check and error classifiers.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations(), slog.Default()); err != nil {
//		return err
//	}
package pg
