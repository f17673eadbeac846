package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/dispatch"
	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// RecipientResolver finds the billing contact of a tenant.
type RecipientResolver interface {
	Recipient(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// RecipientFunc adapts a function to RecipientResolver.
type RecipientFunc func(ctx context.Context, tenantID uuid.UUID) (string, error)

func (f RecipientFunc) Recipient(ctx context.Context, tenantID uuid.UUID) (string, error) {
	return f(ctx, tenantID)
}

// Sink emails tenants about the intents its renderer knows. It implements
// dispatch.Sink and is meant to run behind a dispatch.Queue.
type Sink struct {
	mailer     Mailer
	recipients RecipientResolver
	renderer   Renderer
	log        *slog.Logger
}

var _ dispatch.Sink = (*Sink)(nil)

// SinkOption configures a Sink.
type SinkOption func(*Sink)

func WithRenderer(r Renderer) SinkOption {
	return func(s *Sink) {
		if r != nil {
			s.renderer = r
		}
	}
}

func WithLogger(log *slog.Logger) SinkOption {
	return func(s *Sink) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSink panics when mailer or recipients is nil.
func NewSink(mailer Mailer, recipients RecipientResolver, opts ...SinkOption) *Sink {
	if mailer == nil {
		panic("notify: mailer is required")
	}
	if recipients == nil {
		panic("notify: recipient resolver is required")
	}
	s := &Sink{
		mailer:     mailer,
		recipients: recipients,
		renderer:   NewTemplateRenderer("billingkit"),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSinkFromConfig picks Postmark when both tokens are configured and
// DevMailer otherwise.
func NewSinkFromConfig(cfg Config, recipients RecipientResolver, opts ...SinkOption) (*Sink, error) {
	var mailer Mailer
	if cfg.PostmarkEnabled() {
		m, err := NewPostmarkMailer(cfg)
		if err != nil {
			return nil, err
		}
		mailer = m
	} else {
		mailer = NewDevMailer(cfg.DevOutputDir, nil)
	}
	opts = append([]SinkOption{WithRenderer(NewTemplateRenderer(cfg.ProductName))}, opts...)
	return NewSink(mailer, recipients, opts...), nil
}

// Deliver renders the intent and mails it to the tenant's contact.
// Kinds without a template are skipped.
func (s *Sink) Deliver(ctx context.Context, intent dispatch.Intent) error {
	content, ok, err := s.renderer.Render(ctx, intent)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	to, err := s.recipients.Recipient(ctx, intent.TenantID)
	if err != nil {
		return errors.Join(ErrNoRecipient, err)
	}
	if to == "" {
		return fmt.Errorf("%w: %s", ErrNoRecipient, intent.TenantID)
	}

	if err := s.mailer.Send(ctx, Message{
		To:      to,
		Subject: content.Subject,
		HTML:    content.HTML,
		Tag:     content.Tag,
	}); err != nil {
		return err
	}

	s.log.DebugContext(ctx, "notification sent",
		logger.Intent(string(intent.Kind)),
		logger.TenantID(intent.TenantID),
		slog.String("tag", content.Tag),
	)
	return nil
}
