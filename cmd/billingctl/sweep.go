package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/billingkit/pkg/lifecycle"
	"github.com/dmitrymomot/billingkit/pkg/pgstore"
	"github.com/dmitrymomot/billingkit/pkg/retention"
)

func newSweepCmd(a *app) *cobra.Command {
	var flags sinkFlags

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Apply due time-driven transitions",
		Long:  "sweep ends elapsed trials, expires finished grace periods, renews active subscriptions whose period ended and expires stale retention offers.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			catalog, err := a.catalog()
			if err != nil {
				return err
			}
			pool, _, err := a.connectPG(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			var lcfg lifecycle.Config
			if err := load(a, &lcfg); err != nil {
				return err
			}
			var rcfg retention.Config
			if err := load(a, &rcfg); err != nil {
				return err
			}

			queue, err := a.queue(ctx, flags)
			if err != nil {
				return err
			}
			defer queue.Close()

			offers := retention.NewEngine(
				retention.WithConfig(rcfg),
				retention.WithStore(pgstore.NewOfferStore(pool)),
				retention.WithLogger(a.log),
				retention.WithMetrics(a.metrics),
			)
			svc := lifecycle.NewService(pgstore.NewSubscriptionStore(pool), catalog,
				lifecycle.WithConfig(lcfg),
				lifecycle.WithRetention(offers),
				lifecycle.WithDispatcher(queue),
				lifecycle.WithLogger(a.log),
				lifecycle.WithMetrics(a.metrics),
			)

			report, err := svc.Sweep(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"trials ended: %d\ngrace expired: %d\nrenewed: %d\noffers expired: %d\nfailed: %d\n",
				report.TrialsEnded, report.GraceExpired, report.Renewed, report.OffersExpired, report.Failed)
			if err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d subscriptions failed, see log", report.Failed)
			}
			return nil
		},
	}

	flags.register(cmd, true)
	return cmd
}
