package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// DefaultMetric is used when a feature has a single counter.
const DefaultMetric = "default"

// Key identifies one counter.
type Key struct {
	TenantID uuid.UUID      `json:"tenant_id"`
	Feature  plan.FeatureID `json:"feature"`
	Metric   string         `json:"metric"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.TenantID, k.Feature, k.Metric)
}

// Window is the period a counter accumulates over.
// Lifetime windows have zero bounds and never roll.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WindowFor returns the window of period p containing t.
func WindowFor(p plan.Period, t time.Time) Window {
	start, end := p.Bounds(t)
	return Window{Start: start, End: end}
}

func (w Window) IsLifetime() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Before reports whether w started before other.
func (w Window) Before(other Window) bool {
	return w.Start.Before(other.Start)
}

// Counter is the accumulated usage of one key within one window.
type Counter struct {
	Key       Key        `json:"key"`
	Window    Window     `json:"window"`
	Value     int64      `json:"value"`
	Limit     plan.Limit `json:"limit"` // snapshot taken at the last write
	Version   int64      `json:"version"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// OpKind selects how Apply changes a counter.
type OpKind string

const (
	OpIncrement OpKind = "increment"
	OpDecrement OpKind = "decrement"
	OpReset     OpKind = "reset"
)

// Op is a single counter mutation.
type Op struct {
	Kind    OpKind
	Delta   int64
	Limit   plan.Limit
	Enforce bool // reject increments that would exceed Limit
	Window  Window
	Now     time.Time
}

// ApplyResult holds the counter after the operation and its value before it.
// Previous is zero when the operation rolled the counter into a new window.
type ApplyResult struct {
	Counter  Counter
	Previous int64
}

// Store persists counters. Every implementation serializes Apply and Rollover per key.
type Store interface {
	Get(ctx context.Context, key Key) (Counter, bool, error)

	// Apply runs op against the counter, rolling it into op.Window first when the
	// stored window is older. Enforced increments over the limit fail with
	// ErrQuotaExceeded and leave the counter untouched.
	Apply(ctx context.Context, key Key, op Op) (ApplyResult, error)

	// Rollover moves an existing counter into window with a zero value.
	// It reports false when the counter is missing or already in window.
	Rollover(ctx context.Context, key Key, window Window, limit plan.Limit, now time.Time) (Counter, bool, error)

	// List returns every counter stored for a tenant.
	List(ctx context.Context, tenantID uuid.UUID) ([]Counter, error)
}

// MaxValue is the ceiling of every counter. Unenforced increments saturate
// here; it is the largest integer the Redis backend stores exactly.
const MaxValue int64 = 1<<53 - 1

// Compute applies op to current without side effects. Backends that run the
// read-modify-write in Go share it; found is false for a counter never written.
func Compute(current Counter, found bool, key Key, op Op) (ApplyResult, error) {
	if op.Delta < 0 {
		return ApplyResult{}, ErrInvalidAmount
	}

	next := current
	if !found || current.Window.Before(op.Window) {
		next = Counter{Key: key, Window: op.Window, Version: current.Version}
	}
	previous := next.Value
	next.Limit = op.Limit

	switch op.Kind {
	case OpIncrement:
		if op.Enforce && !op.Limit.Allows(previous, op.Delta) {
			return ApplyResult{Counter: current, Previous: previous},
				fmt.Errorf("%w: %s at %d of %s, requested %d", ErrQuotaExceeded, key, previous, op.Limit, op.Delta)
		}
		next.Value = previous + min(op.Delta, MaxValue-previous)
	case OpDecrement:
		next.Value = max(previous-op.Delta, 0)
	case OpReset:
		next.Value = 0
	default:
		return ApplyResult{}, fmt.Errorf("%w: %q", ErrInvalidOperation, op.Kind)
	}

	next.Version++
	next.UpdatedAt = op.Now
	return ApplyResult{Counter: next, Previous: previous}, nil
}

// ComputeRollover returns current moved into window, or false if no rollover is due.
func ComputeRollover(current Counter, found bool, window Window, limit plan.Limit, now time.Time) (Counter, bool) {
	if !found || !current.Window.Before(window) {
		return current, false
	}
	return Counter{
		Key:       current.Key,
		Window:    window,
		Limit:     limit,
		Version:   current.Version + 1,
		UpdatedAt: now,
	}, true
}
