package usage

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/keylock"
	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// MemoryStore implements Store in process memory.
// Suitable for tests and single-instance deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	counters map[Key]Counter
	locks    keylock.Locker[Key]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[Key]Counter)}
}

func (ms *MemoryStore) Get(_ context.Context, key Key) (Counter, bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	c, ok := ms.counters[key]
	return c, ok, nil
}

func (ms *MemoryStore) Apply(ctx context.Context, key Key, op Op) (ApplyResult, error) {
	unlock, err := ms.locks.Lock(ctx, key)
	if err != nil {
		return ApplyResult{}, err
	}
	defer unlock()

	current, found, _ := ms.Get(ctx, key)
	res, err := Compute(current, found, key, op)
	if err != nil {
		return res, err
	}

	ms.put(res.Counter)
	return res, nil
}

func (ms *MemoryStore) Rollover(ctx context.Context, key Key, window Window, limit plan.Limit, now time.Time) (Counter, bool, error) {
	unlock, err := ms.locks.Lock(ctx, key)
	if err != nil {
		return Counter{}, false, err
	}
	defer unlock()

	current, found, _ := ms.Get(ctx, key)
	next, rolled := ComputeRollover(current, found, window, limit, now)
	if rolled {
		ms.put(next)
	}
	return next, rolled, nil
}

func (ms *MemoryStore) List(_ context.Context, tenantID uuid.UUID) ([]Counter, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var out []Counter
	for k, c := range ms.counters {
		if k.TenantID == tenantID {
			out = append(out, c)
		}
	}
	SortCounters(out)
	return out, nil
}

func (ms *MemoryStore) put(c Counter) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.counters[c.Key] = c
}

// SortCounters orders counters by feature, then metric.
func SortCounters(counters []Counter) {
	slices.SortFunc(counters, func(a, b Counter) int {
		return cmp.Or(
			cmp.Compare(a.Key.Feature, b.Key.Feature),
			cmp.Compare(a.Key.Metric, b.Key.Metric),
		)
	})
}
