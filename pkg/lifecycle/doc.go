// Package lifecycle runs the subscription state machine.
//
// States are trialing, active, paused, cancelled_grace and expired. Each
// command (Start, Pause, Cancel, ChangePlan, ...) loads the subscription,
// checks the transition table, computes the new subscription and commits it
// with an optimistic version check. Commands on one subscription are
// serialized in process; conflicts with other processes are retried a bounded
// number of times before ErrConcurrentModification is returned.
//
// A command never performs side effects itself. It returns the committed
// subscription together with the intents (notifications, provider calls) that
// follow from it, and hands the same intents to the configured dispatcher.
//
//	svc := lifecycle.NewService(store, catalog,
//	    lifecycle.WithRetention(offers),
//	    lifecycle.WithDispatcher(queue),
//	    lifecycle.WithInvalidator(resolver),
//	)
//	res, err := svc.Cancel(ctx, subID, lifecycle.CancelRequest{Reason: "too expensive"})
//	if res.Offer != nil {
//	    // show the retention offer
//	}
//
// Directory adapts the store to entitlement.TenantDirectory so that feature
// access follows the subscription state.
package lifecycle
