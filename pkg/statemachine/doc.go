// Package statemachine provides immutable finite-state transition tables.
//
// A Table maps (state, event) pairs to target states, optionally guarded by
// predicates over runtime data. It does not hold a current state: the caller
// loads the state from storage, asks the table where an event leads, and
// persists the result. This keeps the table shareable across goroutines and
// leaves serialization to the owner of the state.
//
// # Usage
//
//	type State string
//	type Event string
//
//	table := statemachine.MustNew(
//	    statemachine.WithTransition[State, Event]("draft", "in_review", "submit"),
//	    statemachine.WithTransition[State, Event]("in_review", "approved", "approve",
//	        statemachine.WithGuard(isReviewer),
//	    ),
//	)
//
//	next, err := table.Fire(ctx, doc.State, "submit", nil)
//
// Several transitions may share a state and event; the first one whose guards
// all pass wins, which allows guard-based branching.
//
// # Error Handling
//
// Fire returns a *TransitionError that matches ErrNoTransition when the event is
// not defined from the state and ErrRejected when every guard refused it:
//
//	if errors.Is(err, statemachine.ErrRejected) { /* guards said no */ }
package statemachine
