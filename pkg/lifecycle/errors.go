package lifecycle

import (
	"errors"
	"fmt"
)

var (
	ErrSubscriptionNotFound      = errors.New("lifecycle: subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("lifecycle: tenant already has a live subscription")
	ErrInvalidStateTransition    = errors.New("lifecycle: invalid state transition")
	ErrConcurrentModification    = errors.New("lifecycle: subscription was modified concurrently")
	ErrPlanUnchanged             = errors.New("lifecycle: subscription is already on this plan")
	ErrOfferMismatch             = errors.New("lifecycle: offer belongs to another subscription")
)

// InvalidStateTransitionError reports a command that is not allowed from the
// subscription's current state. It matches ErrInvalidStateTransition.
type InvalidStateTransitionError struct {
	From    State
	Command Command
	// Reason is set when the transition exists but its time condition is not met.
	Reason string
}

func (e *InvalidStateTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("lifecycle: cannot %s subscription in state %s: %s", e.Command, e.From, e.Reason)
	}
	return fmt.Sprintf("lifecycle: cannot %s subscription in state %s", e.Command, e.From)
}

func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

func IsInvalidStateTransition(err error) bool {
	var e *InvalidStateTransitionError
	return errors.As(err, &e)
}
