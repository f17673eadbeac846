package metering

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/usage"
)

// Alert records that a counter crossed a percentage of its limit within a window.
type Alert struct {
	ID           uuid.UUID  `json:"id"`
	Key          usage.Key  `json:"key"`
	WindowStart  time.Time  `json:"window_start"`
	Threshold    int        `json:"threshold"` // percent of the limit
	Value        int64      `json:"value"`
	Limit        plan.Limit `json:"limit"`
	CreatedAt    time.Time  `json:"created_at"`
	Delivered    bool       `json:"delivered"`
	Acknowledged bool       `json:"acknowledged"`
}

// AlertStore persists alerts. Record must be idempotent on (Key, WindowStart, Threshold).
type AlertStore interface {
	// Record inserts a if no alert exists for its key, window and threshold.
	// It reports whether a new alert was stored.
	Record(ctx context.Context, a Alert) (bool, error)
	// Pending returns unacknowledged alerts of a tenant, oldest first.
	Pending(ctx context.Context, tenantID uuid.UUID) ([]Alert, error)
	Acknowledge(ctx context.Context, id uuid.UUID) error
	MarkDelivered(ctx context.Context, id uuid.UUID) error
}

type alertKey struct {
	key         usage.Key
	windowStart int64
	threshold   int
}

// MemoryAlertStore implements AlertStore in process memory.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts map[uuid.UUID]Alert
	index  map[alertKey]uuid.UUID
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{
		alerts: make(map[uuid.UUID]Alert),
		index:  make(map[alertKey]uuid.UUID),
	}
}

func (s *MemoryAlertStore) Record(_ context.Context, a Alert) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := alertKey{key: a.Key, windowStart: a.WindowStart.UnixNano(), threshold: a.Threshold}
	if _, exists := s.index[k]; exists {
		return false, nil
	}
	s.index[k] = a.ID
	s.alerts[a.ID] = a
	return true, nil
}

func (s *MemoryAlertStore) Pending(_ context.Context, tenantID uuid.UUID) ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Alert
	for _, a := range s.alerts {
		if a.Key.TenantID == tenantID && !a.Acknowledged {
			out = append(out, a)
		}
	}
	SortAlerts(out)
	return out, nil
}

func (s *MemoryAlertStore) Acknowledge(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(a *Alert) { a.Acknowledged = true })
}

func (s *MemoryAlertStore) MarkDelivered(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(a *Alert) { a.Delivered = true })
}

func (s *MemoryAlertStore) update(id uuid.UUID, fn func(*Alert)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	fn(&a)
	s.alerts[id] = a
	return nil
}

// SortAlerts orders alerts by creation time, then threshold.
func SortAlerts(alerts []Alert) {
	slices.SortFunc(alerts, func(a, b Alert) int {
		return cmp.Or(
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.Threshold, b.Threshold),
			cmp.Compare(a.Key.Feature, b.Key.Feature),
		)
	})
}
