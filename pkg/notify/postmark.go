package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// PostmarkAPI is the part of the Postmark client used for delivery.
type PostmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

var _ PostmarkAPI = (*postmark.Client)(nil)

type postmarkMailer struct {
	api PostmarkAPI
	cfg Config
}

// NewPostmarkMailer creates a Postmark-backed mailer. Both tokens are required.
func NewPostmarkMailer(cfg Config) (Mailer, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	return NewPostmarkMailerWithAPI(postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken), cfg)
}

// NewPostmarkMailerWithAPI wires an existing client.
func NewPostmarkMailerWithAPI(api PostmarkAPI, cfg Config) (Mailer, error) {
	if api == nil {
		return nil, fmt.Errorf("%w: postmark client is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" || !validAddress(cfg.SenderEmail) {
		return nil, fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	if cfg.SupportEmail == "" || !validAddress(cfg.SupportEmail) {
		return nil, fmt.Errorf("%w: SupportEmail must be a valid email address", ErrInvalidConfig)
	}
	return &postmarkMailer{api: api, cfg: cfg}, nil
}

// MustNewPostmarkMailer panics on invalid configuration.
func MustNewPostmarkMailer(cfg Config) Mailer {
	m, err := NewPostmarkMailer(cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// Send delivers through Postmark. Replies go to the support address.
func (m *postmarkMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	resp, err := m.api.SendEmail(ctx, postmark.Email{
		From:       m.cfg.SenderEmail,
		ReplyTo:    m.cfg.SupportEmail,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTML,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrSendFailed,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return nil
}
