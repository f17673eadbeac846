package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Dispatcher accepts intents for asynchronous delivery. Dispatch never blocks
// on delivery and never reports delivery failures to the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, intents ...Intent)
}

// Sink delivers one intent to an external collaborator.
type Sink interface {
	Deliver(ctx context.Context, intent Intent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, intent Intent) error

func (f SinkFunc) Deliver(ctx context.Context, intent Intent) error {
	return f(ctx, intent)
}

// MultiSink fans an intent out to several sinks. Every sink is attempted;
// failures are joined.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, intent Intent) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, intent); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// KindFilter delivers only intents whose kind is listed.
func KindFilter(sink Sink, kinds ...Kind) Sink {
	allowed := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		allowed[k] = struct{}{}
	}
	return SinkFunc(func(ctx context.Context, intent Intent) error {
		if _, ok := allowed[intent.Kind]; !ok {
			return nil
		}
		return sink.Deliver(ctx, intent)
	})
}

// LogSink writes intents to a logger. Useful as a default and in development.
func LogSink(log *slog.Logger) Sink {
	if log == nil {
		log = slog.Default()
	}
	return SinkFunc(func(ctx context.Context, intent Intent) error {
		log.InfoContext(ctx, "intent",
			logger.Intent(string(intent.Kind)),
			logger.TenantID(intent.TenantID),
			slog.Any("attrs", intent.Attrs),
		)
		return nil
	})
}

// Discard drops every intent.
var Discard Dispatcher = discard{}

type discard struct{}

func (discard) Dispatch(context.Context, ...Intent) {}

// Recorder keeps every dispatched or delivered intent in memory.
// It implements both Dispatcher and Sink and is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	intents []Intent
}

func (r *Recorder) Dispatch(_ context.Context, intents ...Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, intents...)
}

func (r *Recorder) Deliver(ctx context.Context, intent Intent) error {
	r.Dispatch(ctx, intent)
	return nil
}

// Intents returns a copy of everything recorded so far.
func (r *Recorder) Intents() []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Intent(nil), r.intents...)
}

// Kinds returns the kinds of recorded intents in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.intents))
	for i, in := range r.intents {
		out[i] = in.Kind
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = nil
}
