package lifecycle

import (
	"context"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/statemachine"
)

// Command names a lifecycle operation. Commands are the events of the
// subscription state machine.
type Command string

const (
	CmdStart       Command = "start"
	CmdEndTrial    Command = "end_trial"
	CmdPause       Command = "pause"
	CmdResume      Command = "resume"
	CmdCancel      Command = "cancel"
	CmdReactivate  Command = "reactivate"
	CmdChangePlan  Command = "change_plan"
	CmdAcceptOffer Command = "accept_offer"
	CmdExpireGrace Command = "expire_grace"
	CmdRenew       Command = "renew"

	// CmdLinkProvider updates bookkeeping only and is not part of the state machine.
	CmdLinkProvider Command = "link_provider"
)

// guardInput is the runtime data guards decide on.
type guardInput struct {
	now       time.Time
	sub       Subscription
	hasTrial  bool
	skipGrace bool
}

type guard = statemachine.Guard[State, Command]

func input(data any) guardInput {
	in, _ := data.(guardInput)
	return in
}

var (
	withTrial guard = func(_ context.Context, _ State, _ Command, data any) bool {
		return input(data).hasTrial
	}
	trialOver guard = func(_ context.Context, _ State, _ Command, data any) bool {
		in := input(data)
		return in.sub.TrialEndsAt != nil && !in.now.Before(*in.sub.TrialEndsAt)
	}
	skipGrace guard = func(_ context.Context, _ State, _ Command, data any) bool {
		return input(data).skipGrace
	}
	inGrace guard = func(_ context.Context, _ State, _ Command, data any) bool {
		in := input(data)
		return in.sub.InGraceAt(in.now)
	}
	graceOver guard = func(_ context.Context, _ State, _ Command, data any) bool {
		in := input(data)
		return in.sub.GracePeriodEndsAt != nil && !in.now.Before(*in.sub.GracePeriodEndsAt)
	}
	periodOver guard = func(_ context.Context, _ State, _ Command, data any) bool {
		in := input(data)
		return !in.now.Before(in.sub.CurrentPeriodEnd)
	}
)

// transitions is the full subscription state machine.
var transitions = statemachine.MustNew(
	statemachine.WithTransition(StateNone, StateTrialing, CmdStart, statemachine.WithGuard(withTrial)),
	statemachine.WithTransition(StateNone, StateActive, CmdStart),

	statemachine.WithTransition(StateTrialing, StateActive, CmdEndTrial, statemachine.WithGuard(trialOver)),

	statemachine.WithTransition(StateActive, StatePaused, CmdPause),
	statemachine.WithTransition(StatePaused, StateActive, CmdResume),

	statemachine.WithTransitionFrom([]State{StateActive, StateTrialing, StatePaused}, StateExpired, CmdCancel,
		statemachine.WithGuard(skipGrace)),
	statemachine.WithTransitionFrom([]State{StateActive, StateTrialing, StatePaused}, StateCancelledGrace, CmdCancel),

	statemachine.WithTransition(StateCancelledGrace, StateActive, CmdReactivate, statemachine.WithGuard(inGrace)),
	statemachine.WithTransition(StateCancelledGrace, StateActive, CmdAcceptOffer, statemachine.WithGuard(inGrace)),
	statemachine.WithTransition(StateCancelledGrace, StateExpired, CmdExpireGrace, statemachine.WithGuard(graceOver)),

	statemachine.WithTransition(StateActive, StateActive, CmdChangePlan),
	statemachine.WithTransition(StateActive, StateActive, CmdRenew, statemachine.WithGuard(periodOver)),
)

// next returns the state cmd leads to, or *InvalidStateTransitionError.
func next(ctx context.Context, cmd Command, in guardInput) (State, error) {
	from := in.sub.State
	if from == "" {
		from = StateNone
	}
	to, err := transitions.Fire(ctx, from, cmd, in)
	if err == nil {
		return to, nil
	}
	e := &InvalidStateTransitionError{From: from, Command: cmd}
	if statemachine.IsTransitionRejectedError(err) {
		e.Reason = rejectionReason(cmd)
	}
	return from, e
}

// Commands lists the commands accepted from a state, ignoring time conditions.
func Commands(s State) []Command {
	return transitions.Events(s)
}

func rejectionReason(cmd Command) string {
	switch cmd {
	case CmdEndTrial:
		return "trial has not ended"
	case CmdReactivate, CmdAcceptOffer:
		return "grace period is over"
	case CmdExpireGrace:
		return "grace period has not ended"
	case CmdRenew:
		return "billing period has not ended"
	}
	return "condition not met"
}
