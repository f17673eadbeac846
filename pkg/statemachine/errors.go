package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition  = errors.New("invalid transition: from, to, and event must be set")
	ErrDuplicateGuardless = errors.New("invalid transition: unguarded transition shadows a later one")

	ErrNoTransition = errors.New("no transition defined")
	ErrRejected     = errors.New("transition rejected by guards")
)

// TransitionError reports why Fire stayed in From. It matches ErrRejected when
// a transition exists but every guard refused it, ErrNoTransition otherwise.
type TransitionError struct {
	From     string
	Event    string
	Rejected bool
}

func (e *TransitionError) Error() string {
	if e.Rejected {
		return fmt.Sprintf("statemachine: %q from %q rejected by guards", e.Event, e.From)
	}
	return fmt.Sprintf("statemachine: no transition for %q from %q", e.Event, e.From)
}

func (e *TransitionError) Is(target error) bool {
	if e.Rejected {
		return target == ErrRejected
	}
	return target == ErrNoTransition
}

func IsNoTransitionAvailableError(err error) bool {
	return errors.Is(err, ErrNoTransition)
}

func IsTransitionRejectedError(err error) bool {
	return errors.Is(err, ErrRejected)
}
