// Package logger builds *slog.Logger instances with functional options,
// per-environment defaults and transparent injection of values stored in
// context.Context.
//
// New wraps a text or JSON slog handler with LogHandlerDecorator, which runs
// ContextExtractor callbacks for every record. Attributes attached with
// ContextWithAttrs are always extracted, so a command can tag everything
// logged beneath it:
//
//	log := logger.New(logger.FromConfig(cfg))
//	ctx = logger.ContextWithAttrs(ctx, logger.SubscriptionID(sub.ID))
//	log.InfoContext(ctx, "subscription paused", logger.State("paused"))
//
// Helper constructors such as Error, TenantID, Feature and PlanID keep
// attribute naming consistent across packages. Error and Errors return an
// empty Attr for nil errors, so they can be passed without a nil check.
package logger
