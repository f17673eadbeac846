package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/billingkit/pkg/dispatch"
	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Sink posts every intent as signed JSON to a single endpoint.
// Retries are left to the dispatch.Queue in front of it.
type Sink struct {
	url     string
	secret  string
	timeout time.Duration
	client  *http.Client
	breaker *CircuitBreaker
	clock   clockwork.Clock
	log     *slog.Logger
}

var _ dispatch.Sink = (*Sink)(nil)

type Option func(*Sink)

// WithHTTPClient replaces the default client, e.g. for custom transports or tests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Sink) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(s *Sink) {
		s.breaker = cb
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSink validates cfg and builds a sink with a circuit breaker from cfg.
func NewSink(cfg Config, opts ...Option) (*Sink, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: url %q must be an absolute http or https URL", ErrInvalidConfig, cfg.URL)
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("%w: secret is required", ErrInvalidConfig)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s := &Sink{
		url:     cfg.URL,
		secret:  cfg.Secret,
		timeout: timeout,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		clock: clockwork.NewRealClock(),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.RecoveryTimeout, s.clock)
	}
	return s, nil
}

// Deliver implements dispatch.Sink.
func (s *Sink) Deliver(ctx context.Context, intent dispatch.Intent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return errors.Join(ErrDeliveryFailed, err)
	}
	if !s.breaker.Allow() {
		return ErrCircuitOpen
	}

	status, err := s.post(ctx, intent, payload)
	if err != nil && !permanent(status) {
		s.breaker.RecordFailure()
		return errors.Join(ErrDeliveryFailed, err)
	}
	s.breaker.RecordSuccess()
	if err != nil {
		s.log.WarnContext(ctx, "webhook endpoint rejected intent",
			logger.Intent(string(intent.Kind)),
			logger.TenantID(intent.TenantID),
			slog.Int("status", status),
			logger.Error(err),
		)
		return errors.Join(ErrPermanentFailure, dispatch.ErrUndeliverable, err)
	}
	return nil
}

func (s *Sink) post(ctx context.Context, intent dispatch.Intent, payload []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sig, err := Sign(s.secret, payload, s.clock.Now(), intent.ID.String())
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "billingkit-webhook/1.0")
	req.Header.Set("X-Billingkit-Intent", string(intent.Kind))
	sig.Apply(req.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	msg := strings.ReplaceAll(strings.TrimSpace(string(body)), "\n", " ")
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
}

// permanent reports whether a status means the endpoint understood and refused
// the request. Timeouts and rate limiting are retried.
func permanent(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}
