package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/billingkit/pkg/billingsync"
	"github.com/dmitrymomot/billingkit/pkg/dispatch"
	"github.com/dmitrymomot/billingkit/pkg/notify"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/webhook"
)

func (a *app) connectPG(ctx context.Context) (*pgxpool.Pool, pg.Config, error) {
	var cfg pg.Config
	if err := load(a, &cfg); err != nil {
		return nil, cfg, err
	}
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, cfg, err
	}
	return pool, cfg, nil
}

func (a *app) catalog() (plan.Catalog, error) {
	catalog, err := plan.LoadCatalogFile(a.plansFile)
	if err != nil {
		return nil, fmt.Errorf("load plans from %s: %w", a.plansFile, err)
	}
	return catalog, nil
}

type sinkFlags struct {
	paddle    bool
	notifyOps bool
	webhook   bool
}

func (f *sinkFlags) register(cmd *cobra.Command, paddle bool) {
	if paddle {
		cmd.Flags().BoolVar(&f.paddle, "paddle", false, "mirror pause, resume and cancel onto Paddle")
	}
	cmd.Flags().BoolVar(&f.notifyOps, "notify-ops", false, "email rendered intents to NOTIFY_SUPPORT_EMAIL")
	cmd.Flags().BoolVar(&f.webhook, "webhook", false, "post intents to WEBHOOK_URL")
}

// queue builds the dispatcher for intents produced by a maintenance run.
// Intents are always logged; every other sink is opt-in.
func (a *app) queue(ctx context.Context, flags sinkFlags) (*dispatch.Queue, error) {
	sinks := dispatch.MultiSink{dispatch.LogSink(a.log)}

	if flags.paddle {
		var cfg billingsync.Config
		if err := load(a, &cfg); err != nil {
			return nil, err
		}
		sink, err := billingsync.NewSinkFromConfig(cfg, billingsync.WithLogger(a.log))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, dispatch.KindFilter(sink, sink.Kinds()...))
	}

	if flags.notifyOps {
		var cfg notify.Config
		if err := load(a, &cfg); err != nil {
			return nil, err
		}
		ops := notify.RecipientFunc(func(context.Context, uuid.UUID) (string, error) {
			return cfg.SupportEmail, nil
		})
		sink, err := notify.NewSinkFromConfig(cfg, ops, notify.WithLogger(a.log))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}

	if flags.webhook {
		var cfg webhook.Config
		if err := load(a, &cfg); err != nil {
			return nil, err
		}
		sink, err := webhook.NewSink(cfg, webhook.WithLogger(a.log))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}

	var qcfg dispatch.Config
	if err := load(a, &qcfg); err != nil {
		return nil, err
	}
	q := dispatch.NewQueue(sinks,
		dispatch.WithConfig(qcfg),
		dispatch.WithLogger(a.log),
		dispatch.WithMetrics(a.metrics),
	)
	q.Start(ctx)
	return q, nil
}
