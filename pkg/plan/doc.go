// Package plan defines the plan catalog: plans, features and the per-plan
// entitlement tables that map features to limits.
//
// Plans are immutable values. A Catalog hands out deep copies so that callers
// cannot mutate shared state:
//
//	catalog, err := plan.NewCatalog(plan.CatalogConfig{
//		DefaultPlanID: "free",
//		Features: []plan.Feature{
//			{ID: "projects", Period: plan.PeriodLifetime},
//			{ID: "api_calls", Period: plan.PeriodMonthly},
//		},
//		Plans: []plan.Plan{
//			{ID: "free", Interval: plan.BillingIntervalNone, Entitlements: plan.EntitlementTable{"projects": 1}},
//			{ID: "pro", Price: plan.Money{Amount: 2000, Currency: "USD"}, Interval: plan.BillingIntervalMonthly,
//				Rank: 1, Public: true, Entitlements: plan.EntitlementTable{"projects": 10, "api_calls": plan.Unlimited}},
//		},
//	})
//
// Catalogs can also be loaded from YAML with ParseCatalog or LoadCatalogFile.
// Limits in YAML accept either a non-negative integer or the word "unlimited".
//
// A feature absent from a plan's EntitlementTable is not included in that plan.
// Unlimited (-1) disables quota enforcement for an included feature.
package plan
