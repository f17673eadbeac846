package statemachine

import (
	"context"
	"fmt"
	"slices"
)

// Guard evaluates whether a transition should be allowed based on runtime conditions.
type Guard[S, E ~string] func(ctx context.Context, from S, event E, data any) bool

type transition[S, E ~string] struct {
	to     S
	guards []Guard[S, E]
}

// Table is an immutable transition table. It holds no current state: callers
// pass the state they loaded and persist the state it returns, which keeps the
// table safe for concurrent use without locking.
type Table[S, E ~string] struct {
	transitions map[S]map[E][]transition[S, E]
}

// Option configures a table during construction.
type Option[S, E ~string] func(*Table[S, E]) error

// TransitionOption configures a single transition.
type TransitionOption[S, E ~string] func(*transition[S, E])

// New builds a transition table.
func New[S, E ~string](opts ...Option[S, E]) (*Table[S, E], error) {
	t := &Table[S, E]{transitions: make(map[S]map[E][]transition[S, E])}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// MustNew is like New but panics on an invalid table.
func MustNew[S, E ~string](opts ...Option[S, E]) *Table[S, E] {
	t, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return t
}

// WithTransition adds a transition. Several transitions may share from and
// event; the first one whose guards all pass wins.
func WithTransition[S, E ~string](from, to S, event E, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(t *Table[S, E]) error {
		if from == "" || to == "" || event == "" {
			return ErrInvalidTransition
		}
		tr := transition[S, E]{to: to}
		for _, opt := range opts {
			opt(&tr)
		}

		byEvent, ok := t.transitions[from]
		if !ok {
			byEvent = make(map[E][]transition[S, E])
			t.transitions[from] = byEvent
		}
		for _, existing := range byEvent[event] {
			if len(existing.guards) == 0 {
				return fmt.Errorf("%w: %s on %s", ErrDuplicateGuardless, from, event)
			}
		}
		byEvent[event] = append(byEvent[event], tr)
		return nil
	}
}

// WithTransitionFrom adds the same transition from several states.
func WithTransitionFrom[S, E ~string](from []S, to S, event E, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(t *Table[S, E]) error {
		for _, f := range from {
			if err := WithTransition(f, to, event, opts...)(t); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithGuard adds guards to a transition. Nil guards are ignored.
func WithGuard[S, E ~string](guards ...Guard[S, E]) TransitionOption[S, E] {
	return func(tr *transition[S, E]) {
		for _, g := range guards {
			if g != nil {
				tr.guards = append(tr.guards, g)
			}
		}
	}
}

// Fire returns the state reached from from by event. It never has side effects.
func (t *Table[S, E]) Fire(ctx context.Context, from S, event E, data any) (S, error) {
	candidates := t.transitions[from][event]
	if len(candidates) == 0 {
		return from, &TransitionError{From: string(from), Event: string(event)}
	}
	for _, tr := range candidates {
		if tr.allows(ctx, from, event, data) {
			return tr.to, nil
		}
	}
	return from, &TransitionError{From: string(from), Event: string(event), Rejected: true}
}

func (t *Table[S, E]) CanFire(ctx context.Context, from S, event E, data any) bool {
	_, err := t.Fire(ctx, from, event, data)
	return err == nil
}

// Events lists the events defined from a state, ignoring guards. Sorted.
func (t *Table[S, E]) Events(from S) []E {
	events := make([]E, 0, len(t.transitions[from]))
	for e := range t.transitions[from] {
		events = append(events, e)
	}
	slices.Sort(events)
	return events
}

// States lists every state that appears in the table. Sorted.
func (t *Table[S, E]) States() []S {
	seen := make(map[S]struct{})
	for from, byEvent := range t.transitions {
		seen[from] = struct{}{}
		for _, trs := range byEvent {
			for _, tr := range trs {
				seen[tr.to] = struct{}{}
			}
		}
	}
	states := make([]S, 0, len(seen))
	for s := range seen {
		states = append(states, s)
	}
	slices.Sort(states)
	return states
}

// Terminal reports whether no event leaves s.
func (t *Table[S, E]) Terminal(s S) bool {
	return len(t.transitions[s]) == 0
}

func (tr transition[S, E]) allows(ctx context.Context, from S, event E, data any) bool {
	for _, g := range tr.guards {
		if !g(ctx, from, event, data) {
			return false
		}
	}
	return true
}
