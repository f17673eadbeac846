package main

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/billingkit/pkg/config"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/metrics"
)

// app carries what every subcommand shares. It is filled in PersistentPreRunE.
type app struct {
	envFiles    []string
	plansFile   string
	metricsFile string

	log      *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "billingctl",
		Short:         "Maintenance tasks for billingkit",
		Long:          "billingctl migrates the billing schema, runs the subscription sweep, rolls usage counters into new windows, validates plan catalogs and checks storage health.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var logCfg logger.Config
			if err := load(a, &logCfg); err != nil {
				return err
			}
			a.log = logger.New(logger.FromConfig(logCfg), logger.WithOutput(cmd.ErrOrStderr()))
			a.registry = prometheus.NewRegistry()
			a.metrics = metrics.New(a.registry)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.metricsFile == "" || a.registry == nil {
				return nil
			}
			return prometheus.WriteToTextfile(a.metricsFile, a.registry)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringSliceVar(&a.envFiles, "env-file", []string{".env"}, "optional .env files loaded before the environment is parsed")
	flags.StringVar(&a.plansFile, "plans", "plans.yaml", "plan catalog YAML file")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit (textfile collector format)")

	rootCmd.AddCommand(
		newMigrateCmd(a),
		newSweepCmd(a),
		newRolloverCmd(a),
		newPlansCmd(a),
		newCheckCmd(a),
	)
	return rootCmd
}

// load parses environment configuration into cfg.
func load[T any](a *app, cfg *T) error {
	return config.Load(cfg, config.WithOptionalEnvFiles(a.envFiles...))
}
