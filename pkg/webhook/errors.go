package webhook

import "errors"

var (
	ErrInvalidConfig    = errors.New("webhook: invalid configuration")
	ErrDeliveryFailed   = errors.New("webhook: delivery failed")
	ErrPermanentFailure = errors.New("webhook: endpoint rejected the intent")
	ErrCircuitOpen      = errors.New("webhook: circuit breaker is open")
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	ErrSignatureTooOld  = errors.New("webhook: signature timestamp outside tolerance")
	ErrMissingSignature = errors.New("webhook: signature headers missing")
)

// IsCircuitOpen checks if an error indicates the circuit breaker is open.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
