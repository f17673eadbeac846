package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

func newPlansCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Inspect plan catalogs",
	}
	cmd.AddCommand(newPlansValidateCmd(a))
	return cmd
}

func newPlansValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a plan catalog and print its plans",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.plansFile
			if len(args) == 1 {
				path = args[0]
			}
			catalog, err := plan.LoadCatalogFile(path)
			if err != nil {
				return fmt.Errorf("load plans from %s: %w", path, err)
			}
			plans, err := catalog.Plans(cmd.Context())
			if err != nil {
				return err
			}
			// A catalog without a default plan is valid; nothing gets the marker.
			def, _ := catalog.DefaultPlan(cmd.Context())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPRICE\tINTERVAL\tTRIAL\tFEATURES\t")
			for _, p := range plans {
				id := p.ID
				if def.ID != "" && p.ID == def.ID {
					id += " (default)"
				}
				price := "free"
				if !p.IsFree() {
					price = p.Price.Format(language.English)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dd\t%s\t\n",
					id, p.Name, price, p.Interval, p.TrialDays, features(p))
			}
			return w.Flush()
		},
	}
}

func features(p plan.Plan) string {
	ids := p.Entitlements.Features()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		limit, _ := p.Entitlements.Lookup(id)
		parts = append(parts, fmt.Sprintf("%s=%s", id, limit))
	}
	return strings.Join(parts, ",")
}
