// Package cache provides a generic, thread-safe LRU cache whose entries expire
// after a fixed time-to-live.
//
// It bounds both memory (capacity, least recently used entries are evicted
// first) and staleness (TTL measured on an injectable clockwork.Clock):
//
//	plans := cache.New[uuid.UUID, string](10_000, 5*time.Second)
//	plans.Put(tenantID, "pro")
//	if id, ok := plans.Get(tenantID); ok {
//		// use id
//	}
//	plans.Remove(tenantID) // invalidate after a plan change
//
// Tests pass cache.WithClock(clockwork.NewFakeClock()) and advance time explicitly.
package cache
