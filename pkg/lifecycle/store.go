package lifecycle

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists subscriptions.
type Store interface {
	// Create inserts a new subscription. It fails with ErrSubscriptionAlreadyExists
	// when the tenant already has a live subscription.
	Create(ctx context.Context, sub Subscription) error
	Get(ctx context.Context, id uuid.UUID) (Subscription, error)
	// GetLiveByTenant returns the tenant's non-expired subscription.
	GetLiveByTenant(ctx context.Context, tenantID uuid.UUID) (Subscription, error)
	// Update replaces a subscription if its stored version equals sub.Version and
	// returns it with the version incremented. A mismatch fails with
	// ErrConcurrentModification and writes nothing.
	Update(ctx context.Context, sub Subscription) (Subscription, error)
	// ListDue returns up to limit subscriptions whose trial, grace period or
	// billing period ended at or before now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Subscription, error)
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]Subscription
	live map[uuid.UUID]uuid.UUID // tenant -> live subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs: make(map[uuid.UUID]Subscription),
		live: make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *MemoryStore) Create(_ context.Context, sub Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live[sub.TenantID]; ok && sub.Live() {
		return ErrSubscriptionAlreadyExists
	}
	if _, ok := s.subs[sub.ID]; ok {
		return ErrSubscriptionAlreadyExists
	}
	s.subs[sub.ID] = sub
	if sub.Live() {
		s.live[sub.TenantID] = sub.ID
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[id]
	if !ok {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *MemoryStore) GetLiveByTenant(_ context.Context, tenantID uuid.UUID) (Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.live[tenantID]
	if !ok {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return s.subs[id], nil
}

func (s *MemoryStore) Update(_ context.Context, sub Subscription) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.subs[sub.ID]
	if !ok {
		return Subscription{}, ErrSubscriptionNotFound
	}
	if stored.Version != sub.Version {
		return Subscription{}, ErrConcurrentModification
	}

	sub.Version++
	s.subs[sub.ID] = sub
	if !sub.Live() && s.live[sub.TenantID] == sub.ID {
		delete(s.live, sub.TenantID)
	}
	return sub, nil
}

func (s *MemoryStore) ListDue(_ context.Context, now time.Time, limit int) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []Subscription
	for _, sub := range s.subs {
		if at, ok := sub.DueAt(); ok && !at.After(now) {
			due = append(due, sub)
		}
	}
	slices.SortFunc(due, func(a, b Subscription) int {
		at, _ := a.DueAt()
		bt, _ := b.DueAt()
		return cmp.Or(at.Compare(bt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}
