package notify

import "errors"

var (
	ErrInvalidConfig  = errors.New("notify: invalid config")
	ErrInvalidMessage = errors.New("notify: invalid message")
	ErrSendFailed     = errors.New("notify: failed to send email")
	ErrNoRecipient    = errors.New("notify: no recipient for tenant")
	ErrRenderFailed   = errors.New("notify: failed to render intent")
)
