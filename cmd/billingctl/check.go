package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/pgstore"
	"github.com/dmitrymomot/billingkit/pkg/redis"
)

func newCheckCmd(a *app) *cobra.Command {
	var withRedis bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check PostgreSQL (and optionally Redis) and verify the schema is migrated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			pool, _, err := a.connectPG(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := report(ctx, out, "postgres", pg.Healthcheck(pool, pgstore.Tables()...)); err != nil {
				return err
			}

			if !withRedis {
				return nil
			}
			var rcfg redis.Config
			if err := load(a, &rcfg); err != nil {
				return err
			}
			client, err := redis.Connect(ctx, rcfg)
			if err != nil {
				return err
			}
			defer client.Close()
			return report(ctx, out, "redis", redis.Healthcheck(client))
		},
	}
	cmd.Flags().BoolVar(&withRedis, "redis", false, "also check REDIS_URL")
	return cmd
}

func report(ctx context.Context, out io.Writer, name string, check func(context.Context) error) error {
	if err := check(ctx); err != nil {
		fmt.Fprintf(out, "%s: failed\n", name)
		return err
	}
	fmt.Fprintf(out, "%s: ok\n", name)
	return nil
}
