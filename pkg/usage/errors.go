package usage

import "errors"

var (
	ErrQuotaExceeded          = errors.New("usage: quota exceeded")
	ErrConcurrentModification = errors.New("usage: concurrent modification")
	ErrInvalidAmount          = errors.New("usage: amount must not be negative")
	ErrInvalidOperation       = errors.New("usage: unknown operation kind")
	ErrStoreFailure           = errors.New("usage: store failure")
)
