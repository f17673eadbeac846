package billingsync

import "errors"

var (
	ErrInvalidConfig    = errors.New("billingsync: invalid config")
	ErrProviderCall     = errors.New("billingsync: provider call failed")
	ErrInvalidSignature = errors.New("billingsync: webhook signature verification failed")
	ErrInvalidPayload   = errors.New("billingsync: invalid webhook payload")
	ErrMissingReference = errors.New("billingsync: webhook carries no subscription reference")
)
