package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/metrics"
)

var (
	ErrQueueFull   = errors.New("dispatch: queue is full")
	ErrQueueClosed = errors.New("dispatch: queue is closed")

	// ErrUndeliverable marks sink errors that retrying cannot fix.
	ErrUndeliverable = errors.New("dispatch: intent is undeliverable")
)

// Config holds queue settings loadable from the environment.
type Config struct {
	Workers       int           `env:"DISPATCH_WORKERS" envDefault:"4"`
	BufferSize    int           `env:"DISPATCH_BUFFER_SIZE" envDefault:"1024"`
	RetryAttempts uint64        `env:"DISPATCH_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"DISPATCH_RETRY_INTERVAL" envDefault:"200ms"`
	SinkTimeout   time.Duration `env:"DISPATCH_SINK_TIMEOUT" envDefault:"10s"`
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

func WithConfig(cfg Config) QueueOption {
	return func(q *Queue) {
		if cfg.Workers > 0 {
			q.workers = cfg.Workers
		}
		if cfg.BufferSize > 0 {
			q.bufferSize = cfg.BufferSize
		}
		q.retryAttempts = cfg.RetryAttempts
		if cfg.RetryInterval > 0 {
			q.retryInterval = cfg.RetryInterval
		}
		if cfg.SinkTimeout > 0 {
			q.sinkTimeout = cfg.SinkTimeout
		}
	}
}

func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithBufferSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.bufferSize = n
		}
	}
}

// WithRetry sets how many times a failed delivery is retried and the pause between attempts.
func WithRetry(attempts uint64, interval time.Duration) QueueOption {
	return func(q *Queue) {
		q.retryAttempts = attempts
		if interval > 0 {
			q.retryInterval = interval
		}
	}
}

func WithLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

func WithMetrics(m *metrics.Collector) QueueOption {
	return func(q *Queue) {
		q.metrics = m
	}
}

// Queue is a bounded, fire-and-forget Dispatcher backed by a worker pool.
// A full buffer drops the intent and logs instead of blocking the caller.
type Queue struct {
	sink          Sink
	workers       int
	bufferSize    int
	retryAttempts uint64
	retryInterval time.Duration
	sinkTimeout   time.Duration
	logger        *slog.Logger
	metrics       *metrics.Collector

	mu     sync.RWMutex
	ch     chan Intent
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewQueue creates a queue delivering to sink. Call Start before dispatching.
func NewQueue(sink Sink, opts ...QueueOption) *Queue {
	if sink == nil {
		panic("dispatch: sink is required")
	}
	q := &Queue{
		sink:          sink,
		workers:       4,
		bufferSize:    1024,
		retryAttempts: 3,
		retryInterval: 200 * time.Millisecond,
		sinkTimeout:   10 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.ch = make(chan Intent, q.bufferSize)
	return q
}

// Start launches the workers. They run until Close is called or ctx is done.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for range q.workers {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

// Dispatch enqueues intents without blocking.
func (q *Queue) Dispatch(ctx context.Context, intents ...Intent) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, intent := range intents {
		if q.closed {
			q.drop(ctx, intent, ErrQueueClosed)
			continue
		}
		select {
		case q.ch <- intent:
			q.metrics.QueueLength(len(q.ch))
		default:
			q.drop(ctx, intent, ErrQueueFull)
		}
	}
}

// Close stops accepting intents, drains the buffer and waits for workers.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	q.wg.Wait()
	if q.cancel != nil {
		q.cancel()
	}
}

func (q *Queue) drop(ctx context.Context, intent Intent, reason error) {
	q.metrics.Intent(string(intent.Kind), "dropped")
	q.logger.WarnContext(ctx, "intent dropped",
		logger.Intent(string(intent.Kind)),
		logger.TenantID(intent.TenantID),
		logger.Error(reason),
	)
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for intent := range q.ch {
		q.metrics.QueueLength(len(q.ch))
		q.deliver(ctx, intent)
	}
}

func (q *Queue) deliver(ctx context.Context, intent Intent) {
	attempts := 0
	backoff := retry.WithMaxRetries(q.retryAttempts, retry.NewConstant(q.retryInterval))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		ctx, cancel := context.WithTimeout(ctx, q.sinkTimeout)
		defer cancel()
		if err := q.sink.Deliver(ctx, intent); err != nil {
			if errors.Is(err, ErrUndeliverable) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		q.metrics.Intent(string(intent.Kind), "failed")
		q.logger.ErrorContext(ctx, "intent delivery failed",
			logger.Intent(string(intent.Kind)),
			logger.TenantID(intent.TenantID),
			logger.RetryCount(attempts-1),
			logger.Error(err),
		)
		return
	}
	q.metrics.Intent(string(intent.Kind), "delivered")
}
