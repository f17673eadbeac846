package proration

import "errors"

var (
	ErrCurrencyMismatch = errors.New("proration: plans are priced in different currencies")
	ErrInvalidPeriod    = errors.New("proration: billing period ends before it starts")
	ErrInvalidPolicy    = errors.New("proration: unknown policy")
)
