package retention

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// Status of an offer. Pending offers are the only ones that can be accepted.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusExpired  Status = "expired"
)

// Offer is a time-boxed incentive tied to one cancellation of one subscription.
type Offer struct {
	ID             uuid.UUID   `json:"id"`
	SubscriptionID uuid.UUID   `json:"subscription_id"`
	TenantID       uuid.UUID   `json:"tenant_id"`
	CancellationID uuid.UUID   `json:"cancellation_id"`
	Effect         OfferEffect `json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
	ExpiresAt      time.Time   `json:"expires_at"`
	Status         Status      `json:"status"`
	AcceptedAt     *time.Time  `json:"accepted_at,omitempty"`
}

// Accepted reports whether the offer was consumed.
func (o Offer) Accepted() bool {
	return o.Status == StatusAccepted
}

// ElapsedAt reports whether the validity window is over at now.
func (o Offer) ElapsedAt(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// Candidate describes a cancellation that may receive an offer.
type Candidate struct {
	SubscriptionID uuid.UUID
	TenantID       uuid.UUID
	CancellationID uuid.UUID
	Plan           plan.Plan
}

// Store persists offers.
type Store interface {
	// Create inserts o unless an offer exists for the same subscription and
	// cancellation, in which case the existing offer is returned with false.
	Create(ctx context.Context, o Offer) (Offer, bool, error)
	Get(ctx context.Context, id uuid.UUID) (Offer, error)
	// Transition moves an offer from one status to another and fails with
	// ErrStatusConflict when its status is no longer from.
	Transition(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (Offer, error)
	// Elapsed lists pending offers whose validity ended at or before now.
	Elapsed(ctx context.Context, now time.Time) ([]Offer, error)
}

type offerKey struct {
	subscription uuid.UUID
	cancellation uuid.UUID
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	offers map[uuid.UUID]Offer
	index  map[offerKey]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		offers: make(map[uuid.UUID]Offer),
		index:  make(map[offerKey]uuid.UUID),
	}
}

func (s *MemoryStore) Create(_ context.Context, o Offer) (Offer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := offerKey{subscription: o.SubscriptionID, cancellation: o.CancellationID}
	if id, ok := s.index[k]; ok {
		return s.offers[id], false, nil
	}
	s.offers[o.ID] = o
	s.index[k] = o.ID
	return o, true, nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[id]
	if !ok {
		return Offer{}, ErrOfferNotFound
	}
	return o, nil
}

func (s *MemoryStore) Transition(_ context.Context, id uuid.UUID, from, to Status, at time.Time) (Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[id]
	if !ok {
		return Offer{}, ErrOfferNotFound
	}
	if o.Status != from {
		return o, ErrStatusConflict
	}
	o.Status = to
	switch to {
	case StatusAccepted:
		o.AcceptedAt = &at
	case StatusPending:
		o.AcceptedAt = nil
	}
	s.offers[id] = o
	return o, nil
}

func (s *MemoryStore) Elapsed(_ context.Context, now time.Time) ([]Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Offer
	for _, o := range s.offers {
		if o.Status == StatusPending && o.ElapsedAt(now) {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b Offer) int {
		return cmp.Or(a.ExpiresAt.Compare(b.ExpiresAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return out, nil
}
