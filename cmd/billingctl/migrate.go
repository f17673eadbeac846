package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/pgstore"
)

type migrateFunc func(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, src pg.Migrations, log pg.Logger) error

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the billing schema",
	}
	sub := func(use, short string, fn migrateFunc) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.migrate(cmd.Context(), fn)
			},
		}
	}
	cmd.AddCommand(
		sub("up", "Apply all pending migrations", pg.Migrate),
		sub("down", "Revert the latest migration", pg.Rollback),
		sub("status", "Show applied and pending migrations", pg.MigrationStatus),
	)
	return cmd
}

func (a *app) migrate(ctx context.Context, fn migrateFunc) error {
	pool, cfg, err := a.connectPG(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool, cfg, pgstore.Migrations(), a.log)
}
