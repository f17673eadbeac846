// Package metering tracks feature usage against plan limits.
//
// Every Track call resolves the tenant's current limit and metering period,
// applies the change to a windowed counter (rolling it into the current
// window first when needed) and, for increments, records one alert per
// threshold crossed. Alerts are deduplicated per counter, window and
// threshold and announced through a dispatch.Dispatcher after the counter
// write has succeeded.
//
//	engine := metering.NewEngine(usage.NewMemoryStore(), resolver,
//		metering.WithDispatcher(queue),
//		metering.WithThresholds(80, 100),
//	)
//	_, err := engine.Track(ctx, metering.TrackRequest{TenantID: id, Feature: "api_calls", Amount: 1})
//	if errors.Is(err, usage.ErrQuotaExceeded) {
//		// reject the request
//	}
package metering
