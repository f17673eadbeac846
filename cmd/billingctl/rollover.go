package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/billingkit/pkg/entitlement"
	"github.com/dmitrymomot/billingkit/pkg/lifecycle"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/metering"
	"github.com/dmitrymomot/billingkit/pkg/pgstore"
	"github.com/dmitrymomot/billingkit/pkg/redis"
	"github.com/dmitrymomot/billingkit/pkg/usage"
)

const (
	storePostgres = "postgres"
	storeRedis    = "redis"
)

func newRolloverCmd(a *app) *cobra.Command {
	var (
		tenants []string
		all     bool
		store   string
		flags   sinkFlags
	)

	cmd := &cobra.Command{
		Use:   "rollover",
		Short: "Move usage counters whose window ended into the current window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if all == (len(tenants) > 0) {
				return errors.New("exactly one of --tenant or --all is required")
			}
			if all && store != storePostgres {
				return errors.New("--all is only supported with --store=postgres")
			}
			ids := make([]uuid.UUID, 0, len(tenants))
			for _, raw := range tenants {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid tenant id %q: %w", raw, err)
				}
				ids = append(ids, id)
			}

			catalog, err := a.catalog()
			if err != nil {
				return err
			}
			pool, _, err := a.connectPG(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			var counters usage.Store
			switch store {
			case storePostgres:
				pgCounters := pgstore.NewCounterStore(pool)
				counters = pgCounters
				if all {
					if ids, err = pgCounters.Tenants(ctx); err != nil {
						return err
					}
				}
			case storeRedis:
				var rcfg redis.Config
				if err := load(a, &rcfg); err != nil {
					return err
				}
				client, err := redis.Connect(ctx, rcfg)
				if err != nil {
					return err
				}
				defer client.Close()
				counters = usage.NewRedisStore(client, usage.WithKeyPrefix(rcfg.KeyPrefix))
			default:
				return fmt.Errorf("unknown store %q: must be %q or %q", store, storePostgres, storeRedis)
			}

			var ecfg entitlement.Config
			if err := load(a, &ecfg); err != nil {
				return err
			}
			var mcfg metering.Config
			if err := load(a, &mcfg); err != nil {
				return err
			}

			queue, err := a.queue(ctx, flags)
			if err != nil {
				return err
			}
			defer queue.Close()

			resolver := entitlement.NewResolver(catalog,
				lifecycle.NewDirectory(pgstore.NewSubscriptionStore(pool)),
				entitlement.WithConfig(ecfg),
				entitlement.WithLogger(a.log),
				entitlement.WithMetrics(a.metrics),
			)
			engine := metering.NewEngine(counters, resolver,
				metering.WithConfig(mcfg),
				metering.WithAlertStore(pgstore.NewAlertStore(pool)),
				metering.WithDispatcher(queue),
				metering.WithLogger(a.log),
				metering.WithMetrics(a.metrics),
			)

			moved, failed := rolloverAll(ctx, engine, ids, a)
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "tenants: %d\ncounters rolled: %d\nfailed: %d\n", len(ids), moved, failed); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d tenants failed, see log", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tenants, "tenant", nil, "tenant id to roll over (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "roll over every tenant with stored counters")
	cmd.Flags().StringVar(&store, "store", storePostgres, "counter store: postgres or redis")
	flags.register(cmd, false)
	return cmd
}

func rolloverAll(ctx context.Context, engine metering.Engine, ids []uuid.UUID, a *app) (moved, failed int) {
	for _, id := range ids {
		n, err := engine.RolloverTenant(ctx, id)
		if err != nil {
			failed++
			a.log.ErrorContext(ctx, "rollover failed", logger.TenantID(id), logger.Error(err))
			continue
		}
		moved += n
	}
	return moved, failed
}
