package lifecycle

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Directory resolves a tenant's effective plan from its subscription.
// Trialing, active and cancelled subscriptions in grace keep their plan.
// Paused tenants and tenants without a live subscription get the catalog's
// default plan, signalled by an empty plan id.
type Directory struct {
	store Store
}

func NewDirectory(store Store) *Directory {
	if store == nil {
		panic("lifecycle: subscription store is required")
	}
	return &Directory{store: store}
}

func (d *Directory) PlanID(ctx context.Context, tenantID uuid.UUID) (string, error) {
	sub, err := d.store.GetLiveByTenant(ctx, tenantID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	switch sub.State {
	case StateTrialing, StateActive, StateCancelledGrace:
		return sub.PlanID, nil
	}
	return "", nil
}
